package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

type balance struct {
	Name            string          `json:"name"`
	Address         string          `json:"address"`
	Balance         database.Amount `json:"balance"`
	PendingOutgoing database.Amount `json:"pendingOutgoing"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	_, address, err := loadKey()
	if err != nil {
		log.Fatal(err)
	}

	var b balance
	if err := call(http.MethodGet, "/v1/wallets/"+address, nil, &b); err != nil {
		log.Fatal(err)
	}

	fmt.Println("For Address:", b.Address)
	fmt.Println("Balance:    ", b.Balance)
	fmt.Println("Pending:    ", b.PendingOutgoing)
	fmt.Println("Available:  ", b.Balance-b.PendingOutgoing)
}
