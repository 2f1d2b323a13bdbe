package dfu

// Delegate is the application contract Context requires to drive the
// state machine: flash programming, firmware validity, and poll-timer
// scheduling never live in the core (spec §1 Non-goals), so every
// block-level effect is delegated through here.
type Delegate interface {
	// InitAttrs returns the capability bitmask cached at Init and
	// after every bus reset.
	InitAttrs() Attributes

	// FirmwareValidCheck is queried after bus reset from any active
	// DFU state to decide between APP_IDLE and DFU_ERROR.
	FirmwareValidCheck() bool

	// RebootToRuntime is invoked once the context has landed in
	// APP_IDLE; the application is expected to restart the USB stack
	// in run-time mode.
	RebootToRuntime()

	// ReqDnloadData delivers one received block to be programmed.
	// last_transfer_len (the requested length, not a transport-actual
	// length — see SPEC_FULL.md's decided open question) is passed as
	// length.
	ReqDnloadData(block uint16, buf []byte, length uint16)

	// ReqUploadData fills buf (capacity maxLen) with the next block to
	// send and returns the number of valid bytes. A short return ends
	// the upload session.
	ReqUploadData(block uint16, buf []byte, maxLen uint16) uint16

	// DeviceDataDoneCheck confirms every expected image byte has been
	// received and programmed, gating the DNLOAD_IDLE -> MANIFEST_SYNC
	// transition on a zero-length terminating DNLOAD.
	DeviceDataDoneCheck() bool

	// StartPollTimeout starts the platform timer that will later
	// invoke Context.PollTimeoutExpired.
	StartPollTimeout(timeout [3]byte)
}

// Poller supplies the current poll timeout on demand. A Delegate that
// does not implement it gets a zero timeout reported in GETSTATUS, per
// §4.9.
type Poller interface {
	GetPollTimeout() [3]byte
}

// StatusStringer supplies the iString index reported in GETSTATUS.
// Delegates that don't implement it report index 0 (no string).
type StatusStringer interface {
	GetStatusDescTableIndex() uint8
}

// Aborter is notified when ABORT cancels a download or upload session
// from DNLOAD_IDLE or UPLOAD_IDLE.
type Aborter interface {
	Abort()
}

// ResetOverrider lets the application pick the post-bus-reset state
// itself instead of the default firmware-valid-check policy (§4.3).
type ResetOverrider interface {
	USBReset(current State) State
}

// NonStandardRequester handles SETUP-stage requests that are neither
// class requests nor a standard SET_INTERFACE (vendor requests, other
// standard requests). Class requests always go to the state machine,
// including class request codes it does not recognize.
type NonStandardRequester interface {
	NonStandardRequest(stage ControlStage, bRequest uint8, wValue, wIndex, wLength uint16) bool
}
