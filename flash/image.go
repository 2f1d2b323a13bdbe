package flash

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/boguslaw-wojcik/crc32a"
)

// Suffix is the 16-byte USB DFU 1.1 file suffix (DFU 1.1 Appendix A),
// the format dfu-util appends to a raw binary before sending it and
// the format the "image" CLI subcommands read and write.
type Suffix struct {
	BcdDevice uint16
	IDProduct uint16
	IDVendor  uint16
	BcdDFU    uint16
	Signature [3]byte
	BLength   uint8
	CRC32     uint32
}

const SuffixLength = 16

var dfuSuffixSignature = [3]byte{'U', 'F', 'D'}

// ReadImage splits a suffixed DFU image into its body and suffix,
// verifying the signature, length, and trailing CRC32 (computed over
// everything but the CRC field itself, per Appendix A).
func ReadImage(data []byte) (body []byte, suffix Suffix, err error) {
	if len(data) < SuffixLength {
		return nil, Suffix{}, fmt.Errorf("flash: image of %d bytes is shorter than a DFU suffix", len(data))
	}
	split := len(data) - SuffixLength
	if err := binary.Read(bytes.NewReader(data[split:]), binary.LittleEndian, &suffix); err != nil {
		return nil, Suffix{}, fmt.Errorf("flash: could not decode suffix: %w", err)
	}
	if suffix.Signature != dfuSuffixSignature {
		return nil, Suffix{}, fmt.Errorf("flash: bad DFU suffix signature %q", suffix.Signature)
	}
	if suffix.BLength != SuffixLength {
		return nil, Suffix{}, fmt.Errorf("flash: unexpected suffix length %d", suffix.BLength)
	}
	wantCRC := crc32a.Checksum(data[:len(data)-4])
	if wantCRC != suffix.CRC32 {
		return nil, Suffix{}, fmt.Errorf("flash: suffix CRC mismatch: file has 0x%08x, computed 0x%08x", suffix.CRC32, wantCRC)
	}
	return data[:split], suffix, nil
}

// WriteImage appends a DFU suffix to body, computing the CRC32 over
// body plus the suffix fields that precede the CRC.
func WriteImage(body []byte, vendor, product, device uint16) []byte {
	suffix := Suffix{
		BcdDevice: device,
		IDProduct: product,
		IDVendor:  vendor,
		BcdDFU:    0x0100,
		Signature: dfuSuffixSignature,
		BLength:   SuffixLength,
	}
	out := new(bytes.Buffer)
	out.Write(body)
	binary.Write(out, binary.LittleEndian, suffix)
	withoutCRC := out.Bytes()[:out.Len()-4]
	suffix.CRC32 = crc32a.Checksum(withoutCRC)

	final := new(bytes.Buffer)
	final.Write(body)
	binary.Write(final, binary.LittleEndian, suffix)
	return final.Bytes()
}
