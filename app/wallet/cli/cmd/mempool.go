package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var mine bool

var mempoolCmd = &cobra.Command{
	Use:   "mempool",
	Short: "Print the pending transactions in selection order",
	Run:   mempoolRun,
}

func init() {
	rootCmd.AddCommand(mempoolCmd)
	mempoolCmd.Flags().BoolVarP(&mine, "mine", "m", false, "Only show transactions for this wallet.")
}

func mempoolRun(cmd *cobra.Command, args []string) {
	path := "/v1/mempool"
	if mine {
		_, address, err := loadKey()
		if err != nil {
			log.Fatal(err)
		}
		path += "?wallet=" + address
	}

	var txs []struct {
		FromName  string          `json:"fromName"`
		ToName    string          `json:"toName"`
		Amount    database.Amount `json:"amount"`
		Fee       database.Amount `json:"fee"`
		Signature string          `json:"signature"`
	}
	if err := call(http.MethodGet, path, nil, &txs); err != nil {
		log.Fatal(err)
	}

	for i, tx := range txs {
		fmt.Printf("%3d %s -> %s amount[%s] fee[%s] sig[%s]\n", i+1, tx.FromName, tx.ToName, tx.Amount, tx.Fee, tx.Signature)
	}
}
