package dfu

import "testing"

// fakeDelegate is a minimal, fully in-memory Delegate used to drive the
// state machine without any real flash or timer.
type fakeDelegate struct {
	attrs         Attributes
	firmwareValid bool
	dataDone      bool

	rebooted bool

	downloaded  map[uint16][]byte
	uploadBlock map[uint16][]byte

	aborted     bool
	pollTimeout [3]byte
	startedWith [3]byte
	timerStarts int
}

func newFakeDelegate(attrs Attributes) *fakeDelegate {
	return &fakeDelegate{
		attrs:       attrs,
		downloaded:  make(map[uint16][]byte),
		uploadBlock: make(map[uint16][]byte),
	}
}

func (f *fakeDelegate) InitAttrs() Attributes        { return f.attrs }
func (f *fakeDelegate) FirmwareValidCheck() bool     { return f.firmwareValid }
func (f *fakeDelegate) RebootToRuntime()             { f.rebooted = true }
func (f *fakeDelegate) DeviceDataDoneCheck() bool    { return f.dataDone }
func (f *fakeDelegate) GetPollTimeout() [3]byte      { return f.pollTimeout }
func (f *fakeDelegate) Abort()                       { f.aborted = true }

func (f *fakeDelegate) ReqDnloadData(block uint16, buf []byte, length uint16) {
	data := make([]byte, length)
	copy(data, buf[:length])
	f.downloaded[block] = data
}

func (f *fakeDelegate) ReqUploadData(block uint16, buf []byte, maxLen uint16) uint16 {
	data := f.uploadBlock[block]
	n := copy(buf, data)
	return uint16(n)
}

func (f *fakeDelegate) StartPollTimeout(timeout [3]byte) {
	f.timerStarts++
	f.startedWith = timeout
}

func classRequest(bRequest uint8, wValue, wLength uint16) ControlRequest {
	return ControlRequest{
		RecipientInterface: true,
		Class:               true,
		BRequest:            bRequest,
		WValue:              wValue,
		WLength:             wLength,
	}
}

func download(t *testing.T, c *Context, block uint16, data []byte) {
	t.Helper()
	_, stall := c.ControlTransfer(classRequest(RequestDnload, block, uint16(len(data))), data)
	if stall {
		t.Fatalf("DNLOAD(block=%d) unexpectedly stalled", block)
	}
}

func getStatus(t *testing.T, c *Context) StatusPayload {
	t.Helper()
	response, stall := c.ControlTransfer(classRequest(RequestGetStatus, 0, 6), nil)
	if stall {
		t.Fatalf("GETSTATUS unexpectedly stalled")
	}
	if len(response) != 6 {
		t.Fatalf("GETSTATUS response was %d bytes, want 6", len(response))
	}
	return StatusPayload{
		BStatus:       Status(response[0]),
		BwPollTimeout: [3]byte{response[1], response[2], response[3]},
		BState:        State(response[4]),
		IString:       response[5],
	}
}

// Scenario 1: happy download on a manifestation-tolerant device.
func TestHappyDownloadTolerant(t *testing.T) {
	delegate := newFakeDelegate(Attributes{CanDownload: true, CanUpload: true, ManifestationTolerant: true})
	c := NewContext(delegate)
	c.BusReset()
	if c.State() != StateDFUIdle {
		t.Fatalf("state after reset = %s, want DFU_IDLE", c.State())
	}

	download(t, c, 0, make([]byte, 64))
	if c.State() != StateDFUDnloadSync {
		t.Fatalf("state after DNLOAD = %s, want DFU_DNLOAD_SYNC", c.State())
	}
	if delegate.timerStarts != 1 {
		t.Fatalf("poll timer started %d times, want 1", delegate.timerStarts)
	}

	status := getStatus(t, c)
	if status.BState != StateDFUDnBusy {
		t.Fatalf("GETSTATUS reported state %s, want DFU_DNBUSY", status.BState)
	}
	if c.State() != StateDFUDnBusy {
		t.Fatalf("state = %s, want DFU_DNBUSY", c.State())
	}

	c.PollTimeoutExpired()
	if c.State() != StateDFUDnloadSync {
		t.Fatalf("state after poll timeout = %s, want DFU_DNLOAD_SYNC", c.State())
	}

	status = getStatus(t, c)
	if status.BState != StateDFUDnloadIdle {
		t.Fatalf("GETSTATUS reported state %s, want DFU_DNLOAD_IDLE", status.BState)
	}

	delegate.dataDone = true
	download(t, c, 1, nil)
	if c.State() != StateDFUManifestSync {
		t.Fatalf("state after terminating DNLOAD = %s, want DFU_MANIFEST_SYNC", c.State())
	}

	delegate.firmwareValid = true
	status = getStatus(t, c)
	if c.State() != StateDFUIdle {
		t.Fatalf("state after tolerant manifest GETSTATUS = %s, want DFU_IDLE", c.State())
	}
	_ = status
}

// Scenario 2: happy download on a manifestation-intolerant device.
func TestHappyDownloadIntolerant(t *testing.T) {
	delegate := newFakeDelegate(Attributes{CanDownload: true})
	c := NewContext(delegate)
	c.BusReset()

	download(t, c, 0, make([]byte, 64))
	getStatus(t, c)
	c.PollTimeoutExpired()
	getStatus(t, c)

	delegate.dataDone = true
	download(t, c, 1, nil)
	if c.State() != StateDFUManifestSync {
		t.Fatalf("state = %s, want DFU_MANIFEST_SYNC", c.State())
	}

	getStatus(t, c)
	if c.State() != StateDFUManifest {
		t.Fatalf("state after intolerant manifest GETSTATUS = %s, want DFU_MANIFEST", c.State())
	}

	c.PollTimeoutExpired()
	if c.State() != StateDFUManifestWaitReset {
		t.Fatalf("state after manifest timer = %s, want DFU_MANIFEST_WAIT_RESET", c.State())
	}

	delegate.firmwareValid = true
	c.BusReset()
	if c.State() != StateAppIdle {
		t.Fatalf("state after reset from manifest-wait-reset = %s, want APP_IDLE", c.State())
	}
	if !delegate.rebooted {
		t.Fatal("RebootToRuntime was not invoked")
	}
}

// Scenario 3: download rejected because CAN_DOWNLOAD is off.
func TestDownloadRejectedCapabilityOff(t *testing.T) {
	delegate := newFakeDelegate(Attributes{CanUpload: true})
	c := NewContext(delegate)
	c.BusReset()

	_, stall := c.ControlTransfer(classRequest(RequestDnload, 0, 64), make([]byte, 64))
	if !stall {
		t.Fatal("DNLOAD with CAN_DOWNLOAD off should have stalled")
	}
	if c.State() != StateDFUError {
		t.Fatalf("state = %s, want DFU_ERROR", c.State())
	}

	status := getStatus(t, c)
	if status.BState != StateDFUError {
		t.Fatalf("GETSTATUS in DFU_ERROR reported %s, want DFU_ERROR", status.BState)
	}

	_, stall = c.ControlTransfer(classRequest(RequestClrStatus, 0, 0), nil)
	if stall {
		t.Fatal("CLRSTATUS from DFU_ERROR should not stall")
	}
	if c.State() != StateDFUIdle {
		t.Fatalf("state after CLRSTATUS = %s, want DFU_IDLE", c.State())
	}
}

// Scenario 4: a short upload response ends the upload session.
func TestUploadShortPacketEndsSession(t *testing.T) {
	delegate := newFakeDelegate(Attributes{CanUpload: true})
	delegate.uploadBlock[0] = make([]byte, 64)
	delegate.uploadBlock[1] = make([]byte, 40)
	c := NewContext(delegate)
	c.BusReset()

	response, stall := c.ControlTransfer(classRequest(RequestUpload, 0, 64), nil)
	if stall {
		t.Fatal("first UPLOAD unexpectedly stalled")
	}
	if len(response) != 64 {
		t.Fatalf("first UPLOAD returned %d bytes, want 64", len(response))
	}
	if c.State() != StateDFUUploadIdle {
		t.Fatalf("state = %s, want DFU_UPLOAD_IDLE", c.State())
	}

	response, stall = c.ControlTransfer(classRequest(RequestUpload, 1, 64), nil)
	if stall {
		t.Fatal("second UPLOAD unexpectedly stalled")
	}
	if len(response) != 40 {
		t.Fatalf("second UPLOAD returned %d bytes, want 40", len(response))
	}
	if c.State() != StateDFUIdle {
		t.Fatalf("state after short UPLOAD = %s, want DFU_IDLE", c.State())
	}
}

// Scenario 5: ABORT from DFU_DNLOAD_IDLE invokes the application hook
// and returns to DFU_IDLE.
func TestAbortFromDownloadIdle(t *testing.T) {
	delegate := newFakeDelegate(Attributes{CanDownload: true})
	c := NewContext(delegate)
	c.BusReset()

	download(t, c, 0, make([]byte, 16))
	getStatus(t, c)
	c.PollTimeoutExpired()
	getStatus(t, c)
	if c.State() != StateDFUDnloadIdle {
		t.Fatalf("state = %s, want DFU_DNLOAD_IDLE", c.State())
	}

	_, stall := c.ControlTransfer(classRequest(RequestAbort, 0, 0), nil)
	if stall {
		t.Fatal("ABORT unexpectedly stalled")
	}
	if !delegate.aborted {
		t.Fatal("Abort callback was not invoked")
	}
	if c.State() != StateDFUIdle {
		t.Fatalf("state after ABORT = %s, want DFU_IDLE", c.State())
	}
}

// Scenario 6: a bus reset while DFU_DNBUSY with invalid firmware lands
// in DFU_ERROR.
func TestBusResetDuringDnBusy(t *testing.T) {
	delegate := newFakeDelegate(Attributes{CanDownload: true})
	c := NewContext(delegate)
	c.BusReset()

	download(t, c, 0, make([]byte, 16))
	getStatus(t, c)
	if c.State() != StateDFUDnBusy {
		t.Fatalf("state = %s, want DFU_DNBUSY", c.State())
	}

	delegate.firmwareValid = false
	c.BusReset()
	if c.State() != StateDFUError {
		t.Fatalf("state after reset with invalid firmware = %s, want DFU_ERROR", c.State())
	}
}

// I1: an unlisted (state, request) pair never silently succeeds.
func TestUnknownRequestInIdleStalls(t *testing.T) {
	delegate := newFakeDelegate(Attributes{})
	c := NewContext(delegate)
	c.BusReset()

	_, stall := c.ControlTransfer(classRequest(0x7F, 0, 0), nil)
	if !stall {
		t.Fatal("unrecognized class request should stall")
	}
	if c.State() != StateDFUError {
		t.Fatalf("state = %s, want DFU_ERROR", c.State())
	}
}

// I4: no class request drives the state machine into APP_IDLE.
func TestClassRequestsNeverReachAppIdle(t *testing.T) {
	delegate := newFakeDelegate(Attributes{CanDownload: true, CanUpload: true})
	c := NewContext(delegate)
	c.BusReset()

	requests := []uint8{RequestDnload, RequestUpload, RequestGetStatus, RequestClrStatus, RequestGetState, RequestAbort, RequestDetach}
	for _, req := range requests {
		c.ControlTransfer(classRequest(req, 0, 0), nil)
		if c.State() == StateAppIdle || c.State() == StateAppDetach {
			t.Fatalf("request 0x%02x drove state to %s", req, c.State())
		}
	}
}

func TestOpenRecognizesDFUInterface(t *testing.T) {
	delegate := newFakeDelegate(Attributes{})
	c := NewContext(delegate)

	itf := InterfaceDescriptor{BInterfaceSubClass: interfaceSubclassDFU, BInterfaceProtocol: interfaceProtocolDFUMode}
	functional := []byte{9, descriptorTypeDFUFunctional, 0, 0, 0, 0, 0, 0, 0}
	if n := c.Open(itf, functional); n != 18 {
		t.Fatalf("Open() = %d, want 18 (9-byte interface + 9-byte functional)", n)
	}
}

func TestOpenRecognizesDFUInterfaceWithoutFunctionalDescriptor(t *testing.T) {
	delegate := newFakeDelegate(Attributes{})
	c := NewContext(delegate)

	itf := InterfaceDescriptor{BInterfaceSubClass: interfaceSubclassDFU, BInterfaceProtocol: interfaceProtocolDFUMode}
	if n := c.Open(itf, nil); n != 9 {
		t.Fatalf("Open() = %d, want 9 (interface descriptor only)", n)
	}
}

func TestOpenRejectsOtherInterfaces(t *testing.T) {
	delegate := newFakeDelegate(Attributes{})
	c := NewContext(delegate)

	itf := InterfaceDescriptor{BInterfaceSubClass: 0x08, BInterfaceProtocol: 0x06}
	if n := c.Open(itf, []byte{9, descriptorTypeDFUFunctional}); n != 0 {
		t.Fatalf("Open() = %d, want 0 for a non-DFU interface", n)
	}
}

// DFU_DNBUSY stalls and errors on anything but the poll timer.
func TestDnBusyStallsOnAnyRequest(t *testing.T) {
	delegate := newFakeDelegate(Attributes{CanDownload: true})
	c := NewContext(delegate)
	c.BusReset()
	download(t, c, 0, make([]byte, 16))
	getStatus(t, c) // -> DFU_DNBUSY

	_, stall := c.ControlTransfer(classRequest(RequestGetState, 0, 0), nil)
	if !stall {
		t.Fatal("request while DFU_DNBUSY should stall")
	}
	if c.State() != StateDFUError {
		t.Fatalf("state = %s, want DFU_ERROR", c.State())
	}
}
