package flash

import (
	"bytes"
	"testing"

	"github.com/go-usb/virtualdfu/dfu"
)

func TestImageRoundTrip(t *testing.T) {
	body := []byte("firmware-bytes-go-here")
	image := WriteImage(body, 0x1209, 0x0001, 0x0100)

	gotBody, suffix, err := ReadImage(image)
	if err != nil {
		t.Fatalf("ReadImage failed: %v", err)
	}
	if !bytes.Equal(gotBody, body) {
		t.Fatalf("body = %q, want %q", gotBody, body)
	}
	if suffix.IDVendor != 0x1209 || suffix.IDProduct != 0x0001 || suffix.BcdDevice != 0x0100 {
		t.Fatalf("suffix fields = %+v, unexpected", suffix)
	}
}

func TestReadImageRejectsBadSignature(t *testing.T) {
	image := WriteImage([]byte("body"), 1, 2, 3)
	image[len(image)-8] = 'X' // corrupt the signature's first byte
	if _, _, err := ReadImage(image); err == nil {
		t.Fatal("expected a bad signature to be rejected")
	}
}

func TestReadImageRejectsCorruptCRC(t *testing.T) {
	image := WriteImage([]byte("body"), 1, 2, 3)
	image[0] ^= 0xFF // corrupt the body without touching the suffix
	if _, _, err := ReadImage(image); err == nil {
		t.Fatal("expected a CRC mismatch to be rejected")
	}
}

func TestReadImageRejectsShortInput(t *testing.T) {
	if _, _, err := ReadImage([]byte("too short")); err == nil {
		t.Fatal("expected a too-short image to be rejected")
	}
}

func TestVaultSealOpenRoundTrip(t *testing.T) {
	vault := NewVault()
	vault.Append(Record{ImageDigest: []byte{1, 2, 3}, ImageSize: 1024, Vendor: 0x1209, Product: 0x0001, Succeeded: true})
	vault.Append(Record{ImageDigest: []byte{4, 5, 6}, ImageSize: 2048, Vendor: 0x1209, Product: 0x0001, Succeeded: false})

	sealed, err := vault.Seal("correct horse battery staple")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	opened, err := OpenVault(sealed, "correct horse battery staple")
	if err != nil {
		t.Fatalf("OpenVault failed: %v", err)
	}
	records := opened.Records()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if !records[0].Succeeded || records[1].Succeeded {
		t.Fatalf("records = %+v, unexpected Succeeded values", records)
	}
}

func TestVaultOpenWrongPassphraseFails(t *testing.T) {
	vault := NewVault()
	vault.Append(Record{ImageDigest: []byte{1}, ImageSize: 1, Succeeded: true})
	sealed, err := vault.Seal("right passphrase")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if _, err := OpenVault(sealed, "wrong passphrase"); err == nil {
		t.Fatal("expected OpenVault with the wrong passphrase to fail")
	}
}

func TestSimulatedFlashDownloadUploadRoundTrip(t *testing.T) {
	attrs := Attributes{CanDownload: true, CanUpload: true, ManifestationTolerant: true, TransferSize: 64}
	sim := NewSimulatedFlash(0x1209, 0x0001, 0x0100, attrs, nil)

	body := WriteImage(bytes.Repeat([]byte{0xAB}, 32), 0x1209, 0x0001, 0x0100)
	sim.ReqDnloadData(0, body, uint16(len(body)))
	sim.ReqDnloadData(1, nil, 0)

	if !sim.DeviceDataDoneCheck() {
		t.Fatal("DeviceDataDoneCheck should be true after a zero-length terminating DNLOAD")
	}
	if !sim.FirmwareValidCheck() {
		t.Fatal("FirmwareValidCheck should accept a well-formed suffixed image")
	}
	if len(sim.Vault().Records()) != 1 {
		t.Fatalf("vault has %d records, want 1", len(sim.Vault().Records()))
	}

	buf := make([]byte, 64)
	n := sim.ReqUploadData(0, buf, 64)
	if n == 0 {
		t.Fatal("ReqUploadData returned 0 bytes after a successful manifestation")
	}
}

var _ dfu.Delegate = (*SimulatedFlash)(nil)
var _ dfu.Poller = (*SimulatedFlash)(nil)
var _ dfu.Aborter = (*SimulatedFlash)(nil)
