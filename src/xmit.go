package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Transmit path: bus arbitration, echo verified writes,
 *		escaping, framing.
 *
 * Description:	On a wired-OR bus, transmitting is a three part
 *		discipline:
 *
 *		(1) Arbitrate.  Wait until the bus has been idle for a
 *		    full randomly drawn window.  Two nodes wanting the
 *		    bus at once will almost always draw different
 *		    windows, and the longer draw sees the shorter
 *		    node's traffic and keeps waiting.
 *
 *		(2) Echo verify.  Every byte written is read back off
 *		    the line.  If anyone else drove the bus at the
 *		    same time, the wired-OR means what we read is not
 *		    what we wrote.  That mismatch is the collision
 *		    detector; there is no other one.
 *
 *		(3) Retry from scratch.  Any mismatch or echo timeout
 *		    abandons the frame and goes back to (1) with a
 *		    fresh random draw.  Receivers see the truncated
 *		    frame, flag it as garbage at the next STH or EOT,
 *		    and lose nothing.
 *
 *		Full duplex links skip all three: there is nobody to
 *		collide with, so writes succeed unconditionally.
 *
 *		Total latency of SendMessage is unbounded in principle
 *		(a jammed bus means endless retries).  Callers who
 *		care should wrap it with their own timeout.
 *
 *---------------------------------------------------------------*/

/*-------------------------------------------------------------------
 *
 * Name:        SendMessage
 *
 * Purpose:     Frame and transmit one message.
 *
 * Inputs:	channel	- Channel name, 1 or more bytes.  Any byte
 *			  values are legal on the wire, but see the
 *			  string callback's null restriction.
 *		data	- Message content, may be empty.
 *
 * Description:	Blocks until the whole frame has gone out unmolested.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) SendMessage(channel []byte, data []byte) {
	for !n.send_attempt(channel, data) {
	}
}

// StringSend is SendMessage for text channels and payloads.
func (n *WBTVNode) StringSend(channel string, data string) {
	n.SendMessage([]byte(channel), []byte(data))
}

/*-------------------------------------------------------------------
 *
 * Name:        send_attempt
 *
 * Purpose:     One pass at emitting a complete frame.
 *
 * Returns:	true if every byte echoed back correctly.  false means
 *		a collision or timeout; the caller re-arbitrates and
 *		retransmits from the beginning.  There is no resuming
 *		mid frame -- the partial emission is garbage at every
 *		receiver.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) send_attempt(channel []byte, data []byte) bool {
	if n.wired_or {
		n.wait_till_can_send()
	}

	n.reset_hash()

	if n.opts.DummySTH {
		// Extra start code in case line noise looked like an
		// ESC that would swallow the real one.  Receivers
		// treat a repeated STH as a frame restart, so nodes
		// need not agree on this option.
		if !n.write_raw(STH) {
			return false
		}
	}

	if !n.write_raw(STH) {
		return false
	}

	for _, chr := range channel {
		n.update_hash(chr)
		if !n.escaped_write(chr) {
			return false
		}
	}

	if !n.write_raw(STX) {
		return false
	}
	if n.opts.HashSTX {
		n.update_hash(HASH_STX_SENTINEL)
	}

	for _, chr := range data {
		n.update_hash(chr)
		if !n.escaped_write(chr) {
			return false
		}
	}

	// Checksum bytes are content as far as the wire is concerned,
	// so they get escaped too.
	if !n.escaped_write(n.sum_slow) {
		return false
	}
	if !n.escaped_write(n.sum_fast) {
		return false
	}

	return n.write_raw(EOT)
}

/*-------------------------------------------------------------------
 *
 * Name:        escaped_write
 *
 * Purpose:     Emit one content byte, prefixing ESC if the value
 *		collides with a reserved framing byte.
 *
 * Returns:	true on success.  Produces exactly one or two bytes
 *		on the wire.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) escaped_write(chr byte) bool {
	if is_reserved(chr) {
		if !n.write_raw(ESC) {
			return false
		}
	}

	return n.write_raw(chr)
}

/*-------------------------------------------------------------------
 *
 * Name:        write_raw
 *
 * Purpose:     Put one byte on the wire and, in wired-OR mode,
 *		verify it against the echo.
 *
 * Returns:	true if the echo matched (or the link is full duplex).
 *		false on mismatch or after MaxWait ms with no echo.
 *
 * Description:	Any bytes already sitting in the receive buffer are
 *		stale -- we only transmit after a full idle window, so
 *		they cannot be the start of someone else's frame --
 *		and would otherwise be mistaken for our echo.  Drain
 *		them first.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) write_raw(chr byte) bool {
	if !n.wired_or {
		n.port.WriteByte(chr)
		return true
	}

	for n.port.Available() {
		n.port.ReadByte()
	}

	n.port.WriteByte(chr)

	var start = n.time.NowMillis()
	for !n.port.Available() {
		if n.time.NowMillis()-start > n.opts.MaxWait {
			return false
		}
	}

	return n.port.ReadByte() == chr
}

/*-------------------------------------------------------------------
 *
 * Name:        wait_till_can_send
 *
 * Purpose:     Block until the bus has been idle for one full
 *		randomly sized window.
 *
 * Description:	Draw a delay uniformly from [MinBackoff, MaxBackoff)
 *		microseconds and watch the sense input for that long.
 *		Any activity restarts the wait with a fresh draw.
 *
 *		The poll is unrolled four deep to raise the odds of
 *		catching a short pulse between two reads of the
 *		microsecond counter.
 *
 *		A useful side effect: nodes tend to wait out bursts of
 *		line noise instead of transmitting into them.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) wait_till_can_send() {
wait:
	for {
		var start = n.time.NowMicros()
		var window = n.time.Rand(n.opts.MinBackoff, n.opts.MaxBackoff)

		for n.time.NowMicros()-start < window {
			if !n.sense.Idle() {
				continue wait
			}
			if !n.sense.Idle() {
				continue wait
			}
			if !n.sense.Idle() {
				continue wait
			}
			if !n.sense.Idle() {
				continue wait
			}
		}

		return
	}
}
