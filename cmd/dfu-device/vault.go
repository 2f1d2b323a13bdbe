package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-usb/virtualdfu/flash"
)

var vaultPassphrase string

var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Inspect an encrypted upgrade-history vault",
}

var vaultShowCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Decrypt and print the records in a vault",
	Args:  cobra.ExactArgs(1),
	Run:   vaultShow,
}

func init() {
	vaultCmd.AddCommand(vaultShowCmd)
	vaultShowCmd.Flags().StringVar(&vaultPassphrase, "passphrase", "", "Vault passphrase")
	vaultShowCmd.MarkFlagRequired("passphrase")
}

func vaultShow(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read %s: %v\n", args[0], err)
		os.Exit(1)
	}
	vault, err := flash.OpenVault(data, vaultPassphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open vault: %v\n", err)
		os.Exit(1)
	}
	for i, record := range vault.Records() {
		status := "ok"
		if !record.Succeeded {
			status = "failed"
		}
		fmt.Printf("%3d: vendor=0x%04x product=0x%04x size=%d digest=%s [%s]\n",
			i, record.Vendor, record.Product, record.ImageSize, hex.EncodeToString(record.ImageDigest), status)
	}
}
