package cmd

import (
	"log"
	"net/http"

	"github.com/spf13/cobra"
)

var validateOnly bool

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "Print the canonical chain",
	Run:   chainRun,
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.Flags().BoolVarP(&validateOnly, "validate", "v", false, "Only report whether the chain is valid.")
}

func chainRun(cmd *cobra.Command, args []string) {
	path := "/v1/chain"
	if validateOnly {
		path += "/validate"
	}

	var resp any
	if err := call(http.MethodGet, path, nil, &resp); err != nil {
		log.Fatal(err)
	}

	if err := printJSON(resp); err != nil {
		log.Fatal(err)
	}
}
