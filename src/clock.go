package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Best effort distributed clock discipline.
 *
 * Description:	Nodes broadcast the current time on the reserved
 *		channel "TIME", together with an honest estimate of
 *		how wrong they might be.  A receiver adopts a
 *		broadcast only when the sender's claimed error, plus
 *		everything the receive path could have added, is no
 *		worse than its own running estimate.  Over time the
 *		bus converges on whichever node has the best source.
 *
 *		Representation: 64 bit signed seconds plus a 16 bit
 *		binary fraction (1/65536 s per count).  The error
 *		estimate is a 32 bit count of the same 1/65536 s
 *		ticks.  Two values are reserved:
 *
 *		  0xFFFFFFFF  never synchronized (the initial state)
 *		  0xFFFFFFFE  synchronized, but the error no longer
 *			      fits the counter
 *
 *		Every elapsed second adds ErrorPerSecond ticks of
 *		assumed drift, saturating at 0xFFFFFFFE.
 *
 *		TIME payload, 14 bytes:
 *
 *		   0..7    seconds, int64 little endian
 *		   8..11   32 bit binary fraction, little endian.
 *			   Only the top 16 bits are meaningful here;
 *			   senders put 0x00 0x7F in the low half to
 *			   claim the midpoint of the unknown range.
 *		  12	   error exponent e, int8
 *		  13	   error mantissa m; the error is m*2^(e+15)
 *			   ticks
 *
 *		The clock is an explicitly owned object, one per node,
 *		not process global state.
 *
 *---------------------------------------------------------------*/

import (
	"encoding/binary"
)

const TIME_CHANNEL = "TIME"

const TIME_PAYLOAD_LEN = 14

const (
	CLOCK_ERROR_NEVER_SET uint32 = 0xFFFFFFFF
	CLOCK_ERROR_SATURATED uint32 = 0xFFFFFFFE
)

// Five minutes in 1/65536 s ticks.  Tacked onto the error of any TIME
// frame whose arrival timestamp could not be trusted.
const INACCURATE_ARRIVAL_PENALTY = 19660800

// Time is a point on the disciplined clock: whole seconds, a binary
// fraction in 1/65536 s, and the accumulated error bound in the same
// ticks.
type Time struct {
	Seconds  int64
	Fraction uint16
	Error    uint32
}

// Synchronized reports whether the clock behind this reading has ever
// been set from any source.
func (t Time) Synchronized() bool {
	return t.Error != CLOCK_ERROR_NEVER_SET
}

type Clock struct {
	time TimeSource

	seconds          int64
	err              uint32
	error_per_second uint32

	// Monotonic reference: the millis() reading at which `seconds`
	// last rolled over.  Residual milliseconds past it become the
	// fraction on demand.
	prev_millis uint32
}

func NewClock(time TimeSource, error_per_second uint32) *Clock {
	return &Clock{
		time:             time,
		err:              CLOCK_ERROR_NEVER_SET,
		error_per_second: error_per_second,
		prev_millis:      time.NowMillis(),
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        GetTime
 *
 * Purpose:     Read the clock.
 *
 * Description:	Advances the stored seconds by however many whole
 *		seconds have elapsed since the reference point, moving
 *		the reference forward 1000 ms per step and charging
 *		one second of drift each time.  The residual
 *		milliseconds become the fraction.
 *
 *		(ms*65)+(ms>>1) is ms*65.5, within a tenth of a
 *		percent of the exact ms*65.536.  At ms=999 it reads
 *		about 36 low; adding 32 biases it upward, so the error
 *		runs from +32 at ms=0 to about -4 at ms=999.
 *
 *--------------------------------------------------------------------*/

func (c *Clock) GetTime() Time {
	var now = c.time.NowMillis()

	for now-c.prev_millis >= 1000 {
		c.seconds++
		c.prev_millis += 1000

		if c.err == CLOCK_ERROR_NEVER_SET {
			// Drift on a clock that was never set is not a
			// meaningful quantity.
		} else if c.err < CLOCK_ERROR_SATURATED-c.error_per_second {
			c.err += c.error_per_second
		} else {
			c.err = CLOCK_ERROR_SATURATED
		}
	}

	var ms = now - c.prev_millis

	return Time{
		Seconds:  c.seconds,
		Fraction: uint16(ms*65 + ms>>1 + 32),
		Error:    c.err,
	}
}

/*-------------------------------------------------------------------
 *
 * Name:        SetTime
 *
 * Purpose:     Manually set the clock, e.g. from NTP or an RTC.
 *
 * Inputs:	seconds	 - UNIX time.
 *		fraction - Fractional part in 1/65536 s.
 *		err	 - Error bound you claim for this source, in
 *			   1/65536 s.  Times typed in by humans should
 *			   be assumed minutes off.
 *
 * Description:	Refused outright if the clock already believes it is
 *		more accurate than the claimed source.
 *
 *--------------------------------------------------------------------*/

func (c *Clock) SetTime(seconds int64, fraction uint16, err uint32) {
	if err > c.err {
		return
	}

	c.prev_millis = back_date(c.time.NowMillis(), fraction)
	c.seconds = seconds
	c.err = err
}

// back_date moves a millis() reading backward by a 1/65536 s fraction
// so it lands where the current second began.  -(f/64)+(f/4096)+(f/8192)
// approximates -f*0.01526 (ticks to ms) within a tenth of a percent.
func back_date(millis uint32, fraction uint16) uint32 {
	var f = uint32(fraction)
	return millis - f>>6 + f>>12 + f>>13
}

/*-------------------------------------------------------------------
 *
 * Name:        process_time_message
 *
 * Purpose:     Examine a validated frame and, if it is a TIME
 *		broadcast, weigh it against the local estimate.
 *
 * Returns:	true if the frame was a TIME frame (it is consumed
 *		either way and never reaches the dispatcher); false to
 *		let normal dispatch proceed.
 *
 * Description:	The sender's error estimate is decoded from the
 *		(e, m) float-ish pair, then inflated by what our own
 *		receive path can add:
 *
 *		  - the polling interval uncertainty, converted from
 *		    ms to ticks by multiplying by 66 (65.536 rounded
 *		    up, staying conservative);
 *		  - five minutes flat if the arrival timestamp was
 *		    not trustworthy.
 *
 *		Only if the result is no worse than the running local
 *		error does the broadcast take effect.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) process_time_message() bool {
	if n.header_end != len(TIME_CHANNEL) || string(n.message[:n.header_end]) != TIME_CHANNEL {
		return false
	}

	var payload = n.message[n.header_end+1 : n.recv_ptr-2]
	if len(payload) < TIME_PAYLOAD_LEN {
		// A TIME frame too short to parse is still a TIME
		// frame; swallow it so application callbacks never see
		// the reserved channel.
		return true
	}

	var e = int8(payload[12])
	var m = payload[13]

	var err uint32

	if e > 8 {
		// The sender's own estimate overflows our counter.
		err = CLOCK_ERROR_SATURATED
	} else {
		if e > -16 {
			err = uint32(m) << uint(int(e)+15)
		} else {
			// Below one tick of resolution.  Assume the
			// largest value an exponent of -16 could have
			// meant; at worst 4 ms too pessimistic.
			err = 255
		}

		err += n.msg_time_error << 6
		err += n.msg_time_error << 1

		if !n.msg_time_accurate {
			if err < CLOCK_ERROR_SATURATED-INACCURATE_ARRIVAL_PENALTY {
				err += INACCURATE_ARRIVAL_PENALTY
			} else {
				err = CLOCK_ERROR_SATURATED
			}
		}
	}

	if err <= n.clock.err {
		n.clock.err = err
		n.clock.seconds = int64(binary.LittleEndian.Uint64(payload[0:8]))
		n.clock.prev_millis = back_date(n.msg_start, binary.LittleEndian.Uint16(payload[10:12]))
	}

	return true
}

/*-------------------------------------------------------------------
 *
 * Name:        SendTime
 *
 * Purpose:     Broadcast the local clock on the TIME channel.
 *
 * Description:	Same arbitration and retry discipline as SendMessage.
 *		The clock is sampled immediately after the start code
 *		wins the bus, so the timestamp is as fresh as it can
 *		be when it hits the wire.
 *
 *		Panics if the node was built without AdvMode, same as
 *		any other use of a feature that was configured away.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) SendTime() {
	for !n.send_time_attempt() {
	}
}

func (n *WBTVNode) send_time_attempt() bool {
	if n.wired_or {
		n.wait_till_can_send()
	}

	n.reset_hash()

	if !n.write_raw(STH) {
		return false
	}

	var t = n.clock.GetTime()

	for i := 0; i < len(TIME_CHANNEL); i++ {
		var chr = TIME_CHANNEL[i]
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

	var payload [TIME_PAYLOAD_LEN]byte
	binary.LittleEndian.PutUint64(payload[0:8], uint64(t.Seconds))
	// We only keep 16 fraction bits; claim the middle of the 16 we
	// don't have.
	payload[8] = 0x00
	payload[9] = 0x7F
	binary.LittleEndian.PutUint16(payload[10:12], t.Fraction)

	var e, m = encode_clock_error(t.Error)
	payload[12] = byte(e)
	payload[13] = m

	for _, chr := range payload {
		n.update_hash(chr)
		if !n.escaped_write(chr) {
			return false
		}
	}

	if !n.escaped_write(n.sum_slow) {
		return false
	}
	if !n.escaped_write(n.sum_fast) {
		return false
	}

	return n.write_raw(EOT)
}

// encode_clock_error packs a tick count into the (exponent, mantissa)
// pair used on the wire: the smallest e such that err>>(e+15) fits in
// one byte.  Saturated or never-set clocks claim the maximum.
func encode_clock_error(err uint32) (int8, byte) {
	if err >= CLOCK_ERROR_SATURATED {
		return 127, 255
	}

	var e int8 = -15
	for err&^uint32(0xFF) != 0 {
		e++
		err >>= 1
	}

	return e, byte(err)
}
