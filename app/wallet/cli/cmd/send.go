package cmd

import (
	"crypto/ecdsa"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var (
	to     string
	amount string
	fee    string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign and send a transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, from, err := loadKey()
		if err != nil {
			log.Fatal(err)
		}

		sendWithDetails(privateKey, from)
	},
}

func sendWithDetails(privateKey *ecdsa.PrivateKey, from string) {
	value, err := database.ParseAmount(amount)
	if err != nil {
		log.Fatal(err)
	}

	tip, err := database.ParseAmount(fee)
	if err != nil {
		log.Fatal(err)
	}

	// The recipient can be given by wallet name.
	toAddr := to
	if !database.IsAddress(to) {
		var b balance
		if err := call(http.MethodGet, "/v1/wallets/"+to, nil, &b); err != nil {
			log.Fatal(err)
		}
		toAddr = b.Address
	}

	tx, err := database.NewTx(from, toAddr, value, tip, time.Now().UnixMilli())
	if err != nil {
		log.Fatal(err)
	}

	signedTx, err := tx.Sign(signature.FromECDSA(privateKey).PrivateKey)
	if err != nil {
		log.Fatal(err)
	}

	var resp struct {
		Signature string `json:"signature"`
	}
	if err := call(http.MethodPost, "/v1/tx/submit", signedTx, &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Submitted:", resp.Signature)
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Address or wallet name of the recipient.")
	sendCmd.Flags().StringVarP(&amount, "amount", "v", "0", "Amount to send.")
	sendCmd.Flags().StringVarP(&fee, "fee", "f", "0.0005", "Fee to pay the miner.")
}
