package dfu

// State is one of the eleven states of the DFU 1.1 device-side state
// machine (DFU 1.1 §6.1.2). Values match the wire encoding sent in the
// one-byte GETSTATE/GETSTATUS bState field.
type State uint8

const (
	StateAppIdle              State = 0
	StateAppDetach            State = 1
	StateDFUIdle              State = 2
	StateDFUDnloadSync        State = 3
	StateDFUDnBusy            State = 4
	StateDFUDnloadIdle        State = 5
	StateDFUManifestSync      State = 6
	StateDFUManifest          State = 7
	StateDFUManifestWaitReset State = 8
	StateDFUUploadIdle        State = 9
	StateDFUError             State = 10
)

var stateDescriptions = map[State]string{
	StateAppIdle:              "APP_IDLE",
	StateAppDetach:            "APP_DETACH",
	StateDFUIdle:              "DFU_IDLE",
	StateDFUDnloadSync:        "DFU_DNLOAD_SYNC",
	StateDFUDnBusy:            "DFU_DNBUSY",
	StateDFUDnloadIdle:        "DFU_DNLOAD_IDLE",
	StateDFUManifestSync:      "DFU_MANIFEST_SYNC",
	StateDFUManifest:          "DFU_MANIFEST",
	StateDFUManifestWaitReset: "DFU_MANIFEST_WAIT_RESET",
	StateDFUUploadIdle:        "DFU_UPLOAD_IDLE",
	StateDFUError:             "DFU_ERROR",
}

func (s State) String() string {
	if desc, ok := stateDescriptions[s]; ok {
		return desc
	}
	return "UNKNOWN_STATE"
}

// Mode reports whether a state belongs to run-time/application
// operation or to DFU reprogramming. The two APP_* states are the only
// run-time states; everything else is DFU mode.
type Mode uint8

const (
	ModeRuntime Mode = iota
	ModeDFU
)

func (s State) Mode() Mode {
	if s == StateAppIdle || s == StateAppDetach {
		return ModeRuntime
	}
	return ModeDFU
}

// Status is the device's persisted error code, reported in the
// bStatus field of GETSTATUS (DFU 1.1 §6.1.2, Table 6.3).
type Status uint8

const (
	StatusOK             Status = 0x00
	StatusErrTarget      Status = 0x01
	StatusErrFile        Status = 0x02
	StatusErrWrite       Status = 0x03
	StatusErrErase       Status = 0x04
	StatusErrCheckErased Status = 0x05
	StatusErrProg        Status = 0x06
	StatusErrVerify      Status = 0x07
	StatusErrAddress     Status = 0x08
	StatusErrNotDone     Status = 0x09
	StatusErrFirmware    Status = 0x0A
	StatusErrVendor      Status = 0x0B
	StatusErrUSBR        Status = 0x0C
	StatusErrPOR         Status = 0x0D
	StatusErrUnknown     Status = 0x0E
	StatusErrStalledPkt  Status = 0x0F
)

var statusDescriptions = map[Status]string{
	StatusOK:             "OK",
	StatusErrTarget:      "errTARGET",
	StatusErrFile:        "errFILE",
	StatusErrWrite:       "errWRITE",
	StatusErrErase:       "errERASE",
	StatusErrCheckErased: "errCHECK_ERASED",
	StatusErrProg:        "errPROG",
	StatusErrVerify:      "errVERIFY",
	StatusErrAddress:     "errADDRESS",
	StatusErrNotDone:     "errNOTDONE",
	StatusErrFirmware:    "errFIRMWARE",
	StatusErrVendor:      "errVENDOR",
	StatusErrUSBR:        "errUSBR",
	StatusErrPOR:         "errPOR",
	StatusErrUnknown:     "errUNKNOWN",
	StatusErrStalledPkt:  "errSTALLEDPKT",
}

func (s Status) String() string {
	if desc, ok := statusDescriptions[s]; ok {
		return desc
	}
	return "errUNKNOWN"
}

// Attributes is the immutable capability bitmask an application
// reports at init time (DFU 1.1 §4.1.3, bmAttributes of the functional
// descriptor) plus the detach timeout and transfer size fields the same
// descriptor carries.
type Attributes struct {
	CanDownload            bool
	CanUpload              bool
	ManifestationTolerant  bool
	WillDetach             bool
	DetachTimeout          uint16
	TransferSize           uint16
}

const (
	attrCanDownload           uint8 = 0b0001
	attrCanUpload             uint8 = 0b0010
	attrManifestationTolerant uint8 = 0b0100
	attrWillDetach            uint8 = 0b1000
)

// Encode packs the four capability bits into the descriptor's
// bmAttributes byte.
func (a Attributes) Encode() uint8 {
	var b uint8
	if a.CanDownload {
		b |= attrCanDownload
	}
	if a.CanUpload {
		b |= attrCanUpload
	}
	if a.ManifestationTolerant {
		b |= attrManifestationTolerant
	}
	if a.WillDetach {
		b |= attrWillDetach
	}
	return b
}

func DecodeAttributes(b uint8) Attributes {
	return Attributes{
		CanDownload:           b&attrCanDownload != 0,
		CanUpload:             b&attrCanUpload != 0,
		ManifestationTolerant: b&attrManifestationTolerant != 0,
		WillDetach:            b&attrWillDetach != 0,
	}
}
