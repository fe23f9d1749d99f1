package main

import "github.com/ardanlabs/blocksim/app/wallet/cli/cmd"

func main() {
	cmd.Execute()
}
