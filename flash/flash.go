package flash

import (
	"time"

	"github.com/go-usb/virtualdfu/crypto"
	"github.com/go-usb/virtualdfu/dfu"
	"github.com/go-usb/virtualdfu/util"
)

var flashLogger = util.NewLogger("[FLASH] ", util.LogLevelTrace)

// SimulatedFlash is a dfu.Delegate backed by an in-memory byte buffer,
// standing in for the microcontroller flash array a real device would
// program block by block. It owns the poll timer and the upgrade
// history vault, so a single value wires every application-side
// concern a DFU session touches.
type SimulatedFlash struct {
	vendor, product, device uint16

	attrs Attributes

	firmware []byte

	pollTimer *time.Timer
	context   *dfu.Context

	received  []byte
	done      bool
	manifested bool

	vault      *Vault
	onManifest func(*Vault)
}

// Attributes mirrors dfu.Attributes but is declared here so callers
// configuring a SimulatedFlash don't need to import the dfu package
// just to build the value NewSimulatedFlash expects.
type Attributes struct {
	CanDownload           bool
	CanUpload             bool
	ManifestationTolerant bool
	WillDetach            bool
	DetachTimeout         uint16
	TransferSize          uint16
}

func NewSimulatedFlash(vendor, product, device uint16, attrs Attributes, vault *Vault) *SimulatedFlash {
	if vault == nil {
		vault = NewVault()
	}
	return &SimulatedFlash{
		vendor:  vendor,
		product: product,
		device:  device,
		attrs:   attrs,
		vault:   vault,
	}
}

// Attach lets the caller set the context back-reference once it
// exists, so PollTimeoutExpired can be called from StartPollTimeout's
// timer without SimulatedFlash constructing the context itself.
func (f *SimulatedFlash) Attach(context *dfu.Context) {
	f.context = context
}

// OnManifest registers a callback invoked right after a manifestation
// is recorded to the vault, letting a caller persist it to disk
// without SimulatedFlash knowing anything about files.
func (f *SimulatedFlash) OnManifest(hook func(*Vault)) {
	f.onManifest = hook
}

func (f *SimulatedFlash) InitAttrs() dfu.Attributes {
	return dfu.Attributes{
		CanDownload:           f.attrs.CanDownload,
		CanUpload:             f.attrs.CanUpload,
		ManifestationTolerant: f.attrs.ManifestationTolerant,
		WillDetach:            f.attrs.WillDetach,
		DetachTimeout:         f.attrs.DetachTimeout,
		TransferSize:          f.attrs.TransferSize,
	}
}

// FirmwareValidCheck adopts the most recently completed download as the
// firmware. A DFU suffix that verifies is stripped off; an image with
// no suffix, or with a suffix that does not verify, is adopted whole
// (some images are flashed without a suffix at all). Without a
// completed download it reports whether earlier firmware is present.
func (f *SimulatedFlash) FirmwareValidCheck() bool {
	if len(f.received) == 0 || !f.done {
		return f.firmware != nil
	}
	body, _, err := ReadImage(f.received)
	if err != nil {
		flashLogger.Printf("no usable DFU suffix on received image, accepting body as-is: %s\n", err)
		body = f.received
	}
	f.firmware = body
	f.recordManifestation(true)
	return true
}

func (f *SimulatedFlash) recordManifestation(succeeded bool) {
	if f.manifested {
		return
	}
	f.manifested = true
	f.vault.Append(Record{
		ImageDigest: crypto.HashSHA256(f.firmware),
		ImageSize:   len(f.firmware),
		Vendor:      f.vendor,
		Product:     f.product,
		Succeeded:   succeeded,
	})
	if f.onManifest != nil {
		f.onManifest(f.vault)
	}
}

func (f *SimulatedFlash) RebootToRuntime() {
	flashLogger.Printf("rebooting to runtime mode with %d bytes of firmware\n", len(f.firmware))
	f.received = nil
	f.done = false
	f.manifested = false
}

func (f *SimulatedFlash) ReqDnloadData(block uint16, buf []byte, length uint16) {
	flashLogger.Printf("DNLOAD block %d: %d bytes\n", block, length)
	if length == 0 {
		f.done = true
		return
	}
	if f.manifested {
		// First block of a new download after a manifestation.
		f.received = nil
		f.manifested = false
	}
	f.received = append(f.received, buf[:length]...)
	f.done = false
}

func (f *SimulatedFlash) ReqUploadData(block uint16, buf []byte, maxLen uint16) uint16 {
	offset := int(block) * int(maxLen)
	if offset >= len(f.firmware) {
		return 0
	}
	end := offset + int(maxLen)
	if end > len(f.firmware) {
		end = len(f.firmware)
	}
	n := copy(buf, f.firmware[offset:end])
	return uint16(n)
}

// DeviceDataDoneCheck is queried on the zero-length DNLOAD that ends a
// download. The core does not pass that DNLOAD to ReqDnloadData, and
// every earlier block has already been delivered, so the download is
// complete once any bytes have arrived.
func (f *SimulatedFlash) DeviceDataDoneCheck() bool {
	if len(f.received) > 0 {
		f.done = true
	}
	return f.done
}

func (f *SimulatedFlash) StartPollTimeout(timeout [3]byte) {
	millis := pollTimeoutMillisFromBytes(timeout)
	if f.pollTimer != nil {
		f.pollTimer.Stop()
	}
	if f.context == nil {
		return
	}
	f.pollTimer = time.AfterFunc(time.Duration(millis)*time.Millisecond, func() {
		f.context.PollTimeoutExpired()
	})
}

func pollTimeoutMillisFromBytes(timeout [3]byte) uint32 {
	return uint32(timeout[0]) | uint32(timeout[1])<<8 | uint32(timeout[2])<<16
}

// GetPollTimeout reports a fixed, short poll window. Real flash
// programming would vary this with block size; the simulation treats
// every write as equally fast.
func (f *SimulatedFlash) GetPollTimeout() [3]byte {
	return [3]byte{50, 0, 0}
}

// Abort discards whatever partial image has been received so far.
func (f *SimulatedFlash) Abort() {
	flashLogger.Printf("aborting in-progress transfer, discarding %d received bytes\n", len(f.received))
	f.received = nil
	f.done = false
}

func (f *SimulatedFlash) Vault() *Vault {
	return f.vault
}
