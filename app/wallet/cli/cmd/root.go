// Package cmd contains the wallet app that drives a running simulation.
package cmd

import (
	"crypto/ecdsa"
	"os"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/blocksim/foundation/blockchain/signature"
	"github.com/ardanlabs/blocksim/foundation/blockchain/wallet"
	"github.com/spf13/cobra"
)

var (
	accountName string
	accountPath string
	url         string
)

const (
	keyExtenstion = ".ecdsa"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private", "Name of the private key file.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
	rootCmd.PersistentFlags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the simulation.")
}

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Simple wallet for the block simulator",
}

// Execute runs the command selected on the command line.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func walletName() string {
	return strings.TrimSuffix(accountName, keyExtenstion)
}

func getPrivateKeyPath() string {
	return filepath.Join(accountPath, walletName()+keyExtenstion)
}

// loadKey reads the account's private key and returns it with its address.
func loadKey() (*ecdsa.PrivateKey, string, error) {
	privateKey, err := wallet.LoadKey(getPrivateKeyPath())
	if err != nil {
		return nil, "", err
	}

	address, err := signature.DeriveAddress(signature.FromECDSA(privateKey).PublicKey)
	if err != nil {
		return nil, "", err
	}

	return privateKey, address, nil
}
