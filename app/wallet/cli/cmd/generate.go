package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/ardanlabs/blocksim/foundation/blockchain/signature"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	register bool
	startBal string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().BoolVarP(&register, "register", "r", false, "Register the wallet with the simulation.")
	generateCmd.Flags().StringVarP(&startBal, "balance", "b", "0", "Starting balance when registering.")
}

func generateRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	file, err := wallet.SaveKey(accountPath, walletName(), privateKey)
	if err != nil {
		log.Fatal(err)
	}

	address, err := signature.DeriveAddress(signature.FromECDSA(privateKey).PublicKey)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println("Key file:", file)
	fmt.Println("Address: ", address)

	if !register {
		return
	}

	balance, err := database.ParseAmount(startBal)
	if err != nil {
		log.Fatal(err)
	}

	req := struct {
		Name       string          `json:"name"`
		Balance    database.Amount `json:"balance"`
		PrivateKey string          `json:"privateKey"`
	}{
		Name:       walletName(),
		Balance:    balance,
		PrivateKey: signature.FromECDSA(privateKey).PrivateKey,
	}

	if err := call(http.MethodPost, "/v1/wallets", req, nil); err != nil {
		log.Fatal(err)
	}

	fmt.Println("Registered:", walletName())
}
