package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/go-usb/virtualdfu/dfu"
	"github.com/go-usb/virtualdfu/flash"
	"github.com/go-usb/virtualdfu/usb"
	"github.com/go-usb/virtualdfu/usbip"
)

var (
	serveVendor       uint16
	serveProduct      uint16
	serveDevice       uint16
	serveTransferSize uint16
	serveTolerant     bool
	serveCanUpload    bool
	serveVaultPath    string
	servePassphrase   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Attach a virtual DFU device over USB/IP on 127.0.0.1:3240",
	Run:   serve,
}

func init() {
	serveCmd.Flags().Uint16Var(&serveVendor, "vendor", 0x1209, "Vendor ID written to vault records (the device descriptor always reports 0x1209)")
	serveCmd.Flags().Uint16Var(&serveProduct, "product", 0x0001, "Product ID written to vault records (the device descriptor always reports 0x0001)")
	serveCmd.Flags().Uint16Var(&serveDevice, "device", 0x0100, "Device release number; not used (the device descriptor always reports bcdDevice 0x0100)")
	serveCmd.Flags().Uint16Var(&serveTransferSize, "transfer-size", 1024, "Maximum DNLOAD/UPLOAD block size")
	serveCmd.Flags().BoolVar(&serveTolerant, "tolerant", true, "Advertise MANIFESTATION_TOLERANT")
	serveCmd.Flags().BoolVar(&serveCanUpload, "can-upload", true, "Advertise CAN_UPLOAD")
	serveCmd.Flags().StringVar(&serveVaultPath, "vault", "", "Upgrade-history vault file to append to on manifestation")
	serveCmd.Flags().StringVar(&servePassphrase, "passphrase", "", "Passphrase protecting --vault")
}

func serve(cmd *cobra.Command, args []string) {
	setupLogging()

	vault := flash.NewVault()
	if serveVaultPath != "" {
		if data, err := os.ReadFile(serveVaultPath); err == nil {
			opened, err := flash.OpenVault(data, servePassphrase)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not open existing vault, starting fresh: %v\n", err)
			} else {
				vault = opened
			}
		}
	}

	attrs := flash.Attributes{
		CanDownload:           true,
		CanUpload:             serveCanUpload,
		ManifestationTolerant: serveTolerant,
		TransferSize:          serveTransferSize,
	}
	sim := flash.NewSimulatedFlash(serveVendor, serveProduct, serveDevice, attrs, vault)
	if serveVaultPath != "" && servePassphrase != "" {
		sim.OnManifest(func(v *flash.Vault) {
			sealed, err := v.Seal(servePassphrase)
			if err != nil {
				fmt.Fprintf(os.Stderr, "could not seal vault: %v\n", err)
				return
			}
			if err := os.WriteFile(serveVaultPath, sealed, 0600); err != nil {
				fmt.Fprintf(os.Stderr, "could not write vault: %v\n", err)
			}
		})
	}

	context := dfu.NewContext(sim)
	sim.Attach(context)
	context.BusReset()

	device := usb.NewDevice(context)
	server := usbip.NewUSBIPServer([]usbip.USBIPDevice{device})

	fmt.Printf("Virtual DFU device listening on 127.0.0.1:3240 (bus %s)\n", device.BusID())
	server.Start()
}
