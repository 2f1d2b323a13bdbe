package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-usb/virtualdfu/flash"
)

var imageCmd = &cobra.Command{
	Use:   "image",
	Short: "Inspect or produce DFU 1.1 suffixed image files",
}

var imageInspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print the DFU suffix of an image file",
	Args:  cobra.ExactArgs(1),
	Run:   imageInspect,
}

var (
	imageSignVendor  uint16
	imageSignProduct uint16
	imageSignDevice  uint16
	imageSignOut     string
)

var imageSignCmd = &cobra.Command{
	Use:   "sign <file>",
	Short: "Append a DFU 1.1 suffix to a raw binary",
	Args:  cobra.ExactArgs(1),
	Run:   imageSign,
}

func init() {
	imageCmd.AddCommand(imageInspectCmd)
	imageCmd.AddCommand(imageSignCmd)

	imageSignCmd.Flags().Uint16Var(&imageSignVendor, "vendor", 0x1209, "USB vendor ID")
	imageSignCmd.Flags().Uint16Var(&imageSignProduct, "product", 0x0001, "USB product ID")
	imageSignCmd.Flags().Uint16Var(&imageSignDevice, "device", 0x0100, "Device release number (bcdDevice)")
	imageSignCmd.Flags().StringVar(&imageSignOut, "out", "", "Output path (required; there is no default)")
	imageSignCmd.MarkFlagRequired("out")
}

func imageInspect(cmd *cobra.Command, args []string) {
	data, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read %s: %v\n", args[0], err)
		os.Exit(1)
	}
	body, suffix, err := flash.ReadImage(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "not a valid DFU image: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("body:      %d bytes\n", len(body))
	fmt.Printf("idVendor:  0x%04x\n", suffix.IDVendor)
	fmt.Printf("idProduct: 0x%04x\n", suffix.IDProduct)
	fmt.Printf("bcdDevice: 0x%04x\n", suffix.BcdDevice)
	fmt.Printf("bcdDFU:    0x%04x\n", suffix.BcdDFU)
	fmt.Printf("crc32:     0x%08x\n", suffix.CRC32)
	fmt.Printf("signature: %s\n", hex.EncodeToString(suffix.Signature[:]))
}

func imageSign(cmd *cobra.Command, args []string) {
	body, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read %s: %v\n", args[0], err)
		os.Exit(1)
	}
	signed := flash.WriteImage(body, imageSignVendor, imageSignProduct, imageSignDevice)
	if err := os.WriteFile(imageSignOut, signed, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "could not write %s: %v\n", imageSignOut, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%d bytes)\n", imageSignOut, len(signed))
}
