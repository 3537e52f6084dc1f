package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Receive state machine.
 *
 * Description:	One incoming byte at a time is classified against the
 *		reserved values, subject to the escape flag, and either
 *		steers the frame structure or lands in the buffer:
 *
 *		  STH	resets everything and starts a new frame.  A
 *			second STH mid frame is therefore a restart,
 *			which is also why senders may emit a dummy one.
 *		  STX	marks the end of the channel name.  A null is
 *			written at its position so the buffer doubles
 *			as two C style strings for the string callback.
 *		  EOT	ends the frame: validate, dispatch, reset.
 *		  ESC	makes the next byte literal.
 *
 *		Anything structurally wrong (overlong frame, second
 *		divider) sets the garbage flag; the frame keeps being
 *		consumed but is thrown away at EOT.  The next STH
 *		always starts clean, so one mangled frame never takes
 *		a later one down with it.
 *
 *---------------------------------------------------------------*/

/*-------------------------------------------------------------------
 *
 * Name:        decode_char
 *
 * Purpose:     Process one byte from the bus.
 *
 * Inputs:	chr	- the received byte.
 *
 * Outputs:	Updates the receive buffer and state flags.  On a
 *		complete valid frame, hands it to the clock discipline
 *		or the registered callback.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) decode_char(chr byte) {
	// Frame too long?  Flag it and wrap the cursor.  The frame is
	// already doomed; this just keeps the cursor in bounds until
	// the next STH.
	if n.recv_ptr > MAX_MESSAGE {
		n.garbage = true
		n.recv_ptr = 0
	}

	if !n.escape {
		switch chr {
		case STH:
			n.start_of_frame()
			return

		case STX:
			// A second divider would mean a multi segment
			// message, which this library does not handle.
			if n.header_end != 0 {
				n.garbage = true
			}

			n.header_end = n.recv_ptr
			n.message[n.recv_ptr] = 0
			n.recv_ptr++
			return

		case EOT:
			n.end_of_frame()
			return
		}
	}

	if chr == ESC && !n.escape {
		n.escape = true
		return
	}

	n.escape = false
	n.message[n.recv_ptr] = chr
	n.recv_ptr++
}

// start_of_frame resets the state machine for a new frame and records
// when it began arriving.
func (n *WBTVNode) start_of_frame() {
	if n.opts.RecordTime {
		var now = n.time.NowMillis()

		n.msg_start = now
		n.msg_time_error = now - n.last_serviced

		if n.port.Available() {
			// The STH was not the frontier of the stream, so
			// it could have arrived at any time since the
			// poll before last.  The timestamp cannot be
			// trusted.
			n.msg_time_accurate = false
		} else {
			// It arrived somewhere in the last polling
			// interval; assume the midpoint.
			n.msg_time_accurate = true
			n.msg_start = now - n.msg_time_error/2
		}
	}

	n.recv_ptr = 0
	n.header_end = 0
	n.garbage = false
	n.escape = false

	n.reseed_rng()
}

/*-------------------------------------------------------------------
 *
 * Name:        end_of_frame
 *
 * Purpose:     Validate and dispatch a completed frame.
 *
 * Description:	Discards, in order: frames flagged as garbage, frames
 *		with no divider (which includes zero length channels),
 *		frames too short to carry a checksum, and frames whose
 *		checksum does not match.  Survivors go to the clock
 *		discipline if it claims them, otherwise to the
 *		registered callback.  No callback, no delivery.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) end_of_frame() {
	// Whatever happens, EOT empties the buffer.  A duplicated EOT
	// must not re-validate (and re-deliver) the previous frame.
	defer func() {
		n.recv_ptr = 0
		n.header_end = 0
		n.garbage = false
		n.reseed_rng()
	}()

	if n.garbage {
		return
	}

	if n.header_end == 0 {
		// Zero length channel, or the divider never arrived.
		return
	}

	if n.recv_ptr < 2 {
		// No room for the checksum; cannot be valid.
		return
	}

	if n.recv_ptr < n.header_end+3 {
		// The divider arrived inside the last two bytes, so the
		// "checksum" would overlap the header.  A degenerate
		// frame of null header bytes can otherwise pass the
		// comparison with zeroed accumulators.
		return
	}

	n.hash_received_frame()

	if n.message[n.recv_ptr-2] != n.sum_slow || n.message[n.recv_ptr-1] != n.sum_fast {
		return
	}

	if n.opts.AdvMode && n.process_time_message() {
		return
	}

	n.dispatch()
}

func (n *WBTVNode) dispatch() {
	var channel = n.message[:n.header_end]
	var data = n.message[n.header_end+1 : n.recv_ptr-2]

	if n.callback != nil {
		n.callback(channel, data)
		return
	}

	if n.string_callback != nil {
		// A null inside a channel name would make it
		// indistinguishable, as a string, from the shorter
		// channel it starts with.  Refuse the frame rather
		// than deliver it on the wrong channel.
		for _, chr := range channel {
			if chr == 0 {
				return
			}
		}

		n.string_callback(string(channel), string(data))
	}
}
