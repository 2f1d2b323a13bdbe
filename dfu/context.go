package dfu

import (
	"sync"

	"github.com/go-usb/virtualdfu/util"
)

var logger = util.NewLogger("[DFU] ", util.LogLevelTrace)

const defaultTransferBufferSize = 4096

// Context is the single, process-wide record the DFU class driver
// operates on (spec §3: "exactly one DFU interface instance exists
// process-wide"). All mutation happens through Init, SetStatus,
// Dispatch, BusReset, and PollTimeoutExpired, each of which takes the
// same lock, giving the
// core the cooperative single-threaded semantics spec §5 assumes of
// the USB stack's control-transfer serialization.
type Context struct {
	mu sync.Mutex

	delegate Delegate

	state  State
	status Status
	attrs  Attributes

	lastBlockNum      uint16
	lastTransferLen   uint16
	blkTransferInProc bool
	awaitingDnloadData bool

	transferBuf []byte
}

func NewContext(delegate Delegate) *Context {
	c := &Context{
		delegate:    delegate,
		transferBuf: make([]byte, defaultTransferBufferSize),
	}
	c.Init()
	return c
}

// Init sets state to APP_DETACH, status to OK, clears block
// bookkeeping, and caches the attribute bitmask (§4.1). No I/O occurs.
func (c *Context) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateAppDetach
	c.status = StatusOK
	c.attrs = c.delegate.InitAttrs()
	c.blkTransferInProc = false
	c.awaitingDnloadData = false
	c.lastBlockNum = 0
	c.lastTransferLen = 0
	logger.Printf("INIT: state=%s attrs=%#v\n", c.state, c.attrs)
}

func (c *Context) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Context) Mode() Mode {
	return c.State().Mode()
}

func (c *Context) Attributes() Attributes {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attrs
}

// SetStatus records an application error (§7, channel 2: "application
// errors"); the next GETSTATUS surfaces it. It takes the context's
// lock, so it works from ReqDnloadData, StartPollTimeout,
// NonStandardRequest and other goroutines. The remaining Delegate
// callbacks run with that lock held, and a SetStatus call from inside
// one of them deadlocks.
func (c *Context) SetStatus(status Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
}

// BusReset implements §4.3. Locking here, not in a sub-helper, because
// a ResetOverrider callback must see (and may itself want to inspect)
// the pre-reset state under the same critical section.
func (c *Context) BusReset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateAppDetach {
		c.state = StateDFUIdle
	} else if overrider, ok := c.delegate.(ResetOverrider); ok {
		c.state = overrider.USBReset(c.state)
	} else {
		switch c.state {
		case StateDFUError:
			c.state = StateAppIdle
		default:
			if c.delegate.FirmwareValidCheck() {
				c.state = StateAppIdle
			} else {
				c.state = StateDFUError
			}
		}
	}

	if c.state == StateAppIdle {
		c.delegate.RebootToRuntime()
	}

	c.status = StatusOK
	c.attrs = c.delegate.InitAttrs()
	c.blkTransferInProc = false
	c.awaitingDnloadData = false
	c.lastBlockNum = 0
	c.lastTransferLen = 0
	logger.Printf("BUS RESET: state=%s\n", c.state)
}

// PollTimeoutExpired implements §4.8, invoked by the platform timer
// started in StartPollTimeout.
func (c *Context) PollTimeoutExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateDFUDnBusy:
		c.blkTransferInProc = false
		c.state = StateDFUDnloadSync
	case StateDFUDnloadSync:
		// The timer fired before the host's GETSTATUS: that GETSTATUS
		// goes straight to DFU_DNLOAD_IDLE.
		c.blkTransferInProc = false
	case StateDFUManifest:
		if c.attrs.ManifestationTolerant {
			c.state = StateDFUManifestSync
		} else {
			c.state = StateDFUManifestWaitReset
		}
	}
	logger.Printf("POLL TIMEOUT EXPIRED: state=%s\n", c.state)
}

func (c *Context) pollTimeout() [3]byte {
	if poller, ok := c.delegate.(Poller); ok {
		return poller.GetPollTimeout()
	}
	return [3]byte{}
}

func (c *Context) statusStringIndex() uint8 {
	if stringer, ok := c.delegate.(StatusStringer); ok {
		return stringer.GetStatusDescTableIndex()
	}
	return 0
}
