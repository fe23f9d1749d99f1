package cmd

import (
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/blocksim/foundation/blockchain/database"
	"github.com/spf13/cobra"
)

var newFee string

var cancelCmd = &cobra.Command{
	Use:   "cancel <signature>",
	Short: "Cancel a pending transaction by paying a higher fee",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		replaceRun(args[0], "cancel")
	},
}

var speedupCmd = &cobra.Command{
	Use:   "speedup <signature>",
	Short: "Raise the fee of a pending transaction",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		replaceRun(args[0], "speedup")
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(speedupCmd)
	cancelCmd.Flags().StringVarP(&newFee, "fee", "f", "0.001", "New fee, must be higher than the current one.")
	speedupCmd.Flags().StringVarP(&newFee, "fee", "f", "0.001", "New fee, must be higher than the current one.")
}

func replaceRun(sig string, action string) {
	f, err := database.ParseAmount(newFee)
	if err != nil {
		log.Fatal(err)
	}

	req := struct {
		Fee database.Amount `json:"fee"`
	}{
		Fee: f,
	}

	var resp struct {
		Signature string          `json:"signature"`
		Fee       database.Amount `json:"fee"`
		Cancelled bool            `json:"cancelled"`
	}
	if err := call(http.MethodPost, fmt.Sprintf("/v1/tx/%s/%s", sig, action), req, &resp); err != nil {
		log.Fatal(err)
	}

	fmt.Printf("%s: fee %s cancelled %t\n", resp.Signature, resp.Fee, resp.Cancelled)
}
