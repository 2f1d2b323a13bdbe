package dfu

// ControlStage is one of the three phases of a USB control transfer
// that a host/device stack invokes the class driver for (§4.4).
type ControlStage uint8

const (
	StageSetup ControlStage = iota
	StageData
	StageAck
)

func (stage ControlStage) String() string {
	switch stage {
	case StageSetup:
		return "SETUP"
	case StageData:
		return "DATA"
	case StageAck:
		return "ACK"
	default:
		return "UNKNOWN"
	}
}

// ControlRequest is the narrow, transport-agnostic view of a control
// transfer's setup stage that Context needs to classify and dispatch
// a request (§4.4). It deliberately carries no USB wire type so the
// core never depends on a particular transport package.
type ControlRequest struct {
	RecipientInterface bool
	Standard           bool
	Class              bool
	BRequest           uint8
	HostToDevice       bool
	WValue             uint16
	WIndex             uint16
	WLength            uint16
}

// Standard request code for SET_INTERFACE (USB 2.0 Table 9-4), the one
// standard request the dispatcher must recognize itself (§4.4).
const standardRequestSetInterface uint8 = 11

// ControlResult is what a stage handler hands back to the transport:
// whether to stall the endpoint, and for IN stages, the response data.
// NeedsDataStage is set only when a SETUP-stage DNLOAD has been
// accepted and the transport must still deliver wLength bytes of data
// before the transfer can be acknowledged.
type ControlResult struct {
	Stall          bool
	Data           []byte
	NeedsDataStage bool
}

func stalled() ControlResult {
	return ControlResult{Stall: true}
}

func acked() ControlResult {
	return ControlResult{}
}

func replied(data []byte) ControlResult {
	return ControlResult{Data: data}
}

// ControlTransfer runs a full control transfer through the dispatcher:
// SETUP first, then — only if SETUP accepted a DNLOAD — DATA with the
// payload the transport already holds, then ACK. This is the entry
// point a fully-buffered transport (like this module's usbip package)
// calls; a transport that delivers stages independently should call
// Dispatch directly instead.
func (c *Context) ControlTransfer(req ControlRequest, data []byte) (response []byte, stall bool) {
	setupResult := c.Dispatch(StageSetup, req, nil)
	if setupResult.Stall {
		return nil, true
	}
	if setupResult.NeedsDataStage {
		dataResult := c.Dispatch(StageData, req, data)
		if dataResult.Stall {
			return nil, true
		}
	}
	ackResult := c.Dispatch(StageAck, req, nil)
	if ackResult.Stall {
		return nil, true
	}
	return setupResult.Data, false
}

// Dispatch implements §4.4. The DATA-stage sentinel the C reference
// implementation encodes as a reserved bRequest value is modeled here
// as the context's own awaitingDnloadData flag (§9 design notes).
func (c *Context) Dispatch(stage ControlStage, req ControlRequest, data []byte) ControlResult {
	switch stage {
	case StageData:
		c.mu.Lock()
		awaiting := c.awaitingDnloadData
		c.mu.Unlock()
		if awaiting {
			return c.downloadDataStage(req, data)
		}
		return acked()
	case StageAck:
		return acked()
	}

	// StageSetup.
	if !req.RecipientInterface {
		return stalled()
	}
	if req.Standard && req.BRequest == standardRequestSetInterface {
		return acked()
	}
	if req.Class {
		return c.stateMachine(req)
	}
	if nonStandard, ok := c.delegate.(NonStandardRequester); ok {
		if nonStandard.NonStandardRequest(stage, req.BRequest, req.WValue, req.WIndex, req.WLength) {
			return acked()
		}
	}
	return stalled()
}

// downloadDataStage implements §4.6: starts the poll timer and hands
// the block to the application. blkTransferInProc stays set until the
// poll timer fires (PollTimeoutExpired clears it); the state itself
// stays DFU_DNLOAD_SYNC here, and the next GETSTATUS is what reads
// blkTransferInProc to decide DFU_DNBUSY vs DFU_DNLOAD_IDLE.
func (c *Context) downloadDataStage(req ControlRequest, data []byte) ControlResult {
	c.mu.Lock()
	timeout := c.pollTimeout()
	block := c.lastBlockNum
	length := c.lastTransferLen
	buf := c.transferBuf
	copy(buf, data)
	c.mu.Unlock()

	c.delegate.StartPollTimeout(timeout)
	c.delegate.ReqDnloadData(block, buf[:length], length)

	c.mu.Lock()
	c.awaitingDnloadData = false
	c.lastBlockNum = 0
	c.lastTransferLen = 0
	c.mu.Unlock()
	return acked()
}
