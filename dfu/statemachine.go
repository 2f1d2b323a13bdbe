package dfu

// stateMachine implements the complete (state x request) table of
// §4.5. It is written as a nested switch over every state and, within
// each state, every request the table names — deliberately not a
// generic lookup table, so every (state, request) pair in spec.md's
// table is visible as an explicit case (§9 design notes). Go does not
// check switch exhaustiveness; pairs without a case fall to their
// state's default arm.
func (c *Context) stateMachine(req ControlRequest) ControlResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger.Printf("STATE MACHINE: state=%s request=%s\n", c.state, requestName(req.BRequest))

	switch c.state {
	case StateDFUIdle:
		return c.onDFUIdle(req)
	case StateDFUDnloadSync:
		return c.onDFUDnloadSync(req)
	case StateDFUDnBusy:
		return c.onDFUDnBusy(req)
	case StateDFUDnloadIdle:
		return c.onDFUDnloadIdle(req)
	case StateDFUManifestSync:
		return c.onDFUManifestSync(req)
	case StateDFUManifest:
		return stalled()
	case StateDFUManifestWaitReset:
		return stalled()
	case StateDFUUploadIdle:
		return c.onDFUUploadIdle(req)
	case StateDFUError:
		return c.onDFUError(req)
	default:
		// APP_IDLE, APP_DETACH, or anything unreachable: no class
		// request is valid here (I4) — go DFU_ERROR defensively.
		c.state = StateDFUError
		return stalled()
	}
}

func (c *Context) onDFUIdle(req ControlRequest) ControlResult {
	switch req.BRequest {
	case RequestDnload:
		if c.attrs.CanDownload && req.WLength > 0 {
			return c.acceptDnloadSetup(req)
		}
		c.state = StateDFUError
		return stalled()
	case RequestUpload:
		if c.attrs.CanUpload {
			c.state = StateDFUUploadIdle
			return replied(c.uploadData(req.WValue, req.WLength))
		}
		c.state = StateDFUError
		return stalled()
	case RequestGetStatus:
		return replied(c.statusPayload().Encode())
	case RequestGetState:
		return replied([]byte{byte(c.state)})
	case RequestAbort:
		return acked()
	default:
		c.state = StateDFUError
		return stalled()
	}
}

func (c *Context) onDFUDnloadSync(req ControlRequest) ControlResult {
	switch req.BRequest {
	case RequestGetStatus:
		if c.blkTransferInProc {
			c.state = StateDFUDnBusy
		} else {
			c.state = StateDFUDnloadIdle
		}
		return replied(c.statusPayload().Encode())
	case RequestGetState:
		return replied([]byte{byte(c.state)})
	default:
		c.state = StateDFUError
		return stalled()
	}
}

func (c *Context) onDFUDnBusy(req ControlRequest) ControlResult {
	// Host must wait for the poll timeout; any request here is a
	// protocol violation (§4.5: "host must wait for poll timeout").
	c.state = StateDFUError
	return stalled()
}

func (c *Context) onDFUDnloadIdle(req ControlRequest) ControlResult {
	switch req.BRequest {
	case RequestDnload:
		if c.attrs.CanDownload && req.WLength > 0 {
			return c.acceptDnloadSetup(req)
		}
		if c.delegate.DeviceDataDoneCheck() {
			c.state = StateDFUManifestSync
			return acked()
		}
		c.state = StateDFUError
		return stalled()
	case RequestGetStatus:
		return replied(c.statusPayload().Encode())
	case RequestGetState:
		return replied([]byte{byte(c.state)})
	case RequestAbort:
		if aborter, ok := c.delegate.(Aborter); ok {
			aborter.Abort()
		}
		c.state = StateDFUIdle
		return acked()
	default:
		c.state = StateDFUError
		return stalled()
	}
}

func (c *Context) onDFUManifestSync(req ControlRequest) ControlResult {
	switch req.BRequest {
	case RequestGetStatus:
		if !c.attrs.ManifestationTolerant {
			c.state = StateDFUManifest
			return replied(c.statusPayload().Encode())
		}
		// Open question (SPEC_FULL.md): status is built before the
		// firmware-valid transition, matching dfu-util's expectation
		// that the host sees the current state once more.
		payload := c.statusPayload().Encode()
		if c.delegate.FirmwareValidCheck() {
			c.state = StateDFUIdle
		}
		return replied(payload)
	case RequestGetState:
		return replied([]byte{byte(c.state)})
	default:
		c.state = StateDFUError
		return stalled()
	}
}

func (c *Context) onDFUUploadIdle(req ControlRequest) ControlResult {
	switch req.BRequest {
	case RequestUpload:
		data := c.uploadData(req.WValue, req.WLength)
		if uint16(len(data)) < req.WLength {
			c.state = StateDFUIdle
		}
		return replied(data)
	case RequestGetStatus:
		return replied(c.statusPayload().Encode())
	case RequestGetState:
		return replied([]byte{byte(c.state)})
	case RequestAbort:
		if aborter, ok := c.delegate.(Aborter); ok {
			aborter.Abort()
		}
		c.state = StateDFUIdle
		return acked()
	default:
		return stalled()
	}
}

func (c *Context) onDFUError(req ControlRequest) ControlResult {
	switch req.BRequest {
	case RequestGetStatus:
		return replied(c.statusPayload().Encode())
	case RequestClrStatus:
		c.state = StateDFUIdle
		return acked()
	case RequestGetState:
		return replied([]byte{byte(c.state)})
	default:
		return stalled()
	}
}

// acceptDnloadSetup implements the DNLOAD branch common to DFU_IDLE
// and DFU_DNLOAD_IDLE: record block bookkeeping, mark a block transfer
// in progress, move to DFU_DNLOAD_SYNC, and tell the dispatcher a DATA
// stage must follow before this transfer can ack (§4.6).
func (c *Context) acceptDnloadSetup(req ControlRequest) ControlResult {
	length := req.WLength
	if length > uint16(len(c.transferBuf)) {
		length = uint16(len(c.transferBuf))
	}
	c.state = StateDFUDnloadSync
	c.blkTransferInProc = true
	c.awaitingDnloadData = true
	c.lastBlockNum = req.WValue
	c.lastTransferLen = length
	return ControlResult{NeedsDataStage: true}
}

func (c *Context) uploadData(block uint16, maxLen uint16) []byte {
	if maxLen > uint16(len(c.transferBuf)) {
		maxLen = uint16(len(c.transferBuf))
	}
	n := c.delegate.ReqUploadData(block, c.transferBuf, maxLen)
	if n > maxLen {
		n = maxLen
	}
	out := make([]byte, n)
	copy(out, c.transferBuf[:n])
	return out
}

func (c *Context) statusPayload() StatusPayload {
	return StatusPayload{
		BStatus:       c.status,
		BwPollTimeout: c.pollTimeout(),
		BState:        c.state,
		IString:       c.statusStringIndex(),
	}
}
