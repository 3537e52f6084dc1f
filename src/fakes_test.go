package wbtv

/*
 * Deterministic stand-ins for the hardware capabilities, so the
 * protocol engine can be driven byte by byte in tests.
 */

// fake_time is a TimeSource under full manual control.  Optional auto
// stepping makes the busy-wait loops in the transmit path terminate.
type fake_time struct {
	millis uint32
	micros uint32

	millis_step uint32 /* added on every NowMillis call */
	micros_step uint32 /* added on every NowMicros call */

	rand_fixed uint32 /* returned by Rand when within [min, max) */
	rand_calls int

	mixed []uint32
}

func (f *fake_time) NowMillis() uint32 {
	f.millis += f.millis_step
	return f.millis
}

func (f *fake_time) NowMicros() uint32 {
	f.micros += f.micros_step
	return f.micros
}

func (f *fake_time) Rand(min uint32, max uint32) uint32 {
	f.rand_calls++
	if f.rand_fixed >= min && f.rand_fixed < max {
		return f.rand_fixed
	}
	return min
}

func (f *fake_time) MixEntropy(seed uint32) {
	f.mixed = append(f.mixed, seed)
}

// fake_port is a ByteIO backed by in-memory queues.  Everything
// written lands in tx; reads drain rx.  With echo on, writes are also
// looped back into rx, which is exactly what a healthy wired-OR bus
// does.  corrupt_echoes poisons the loopback for that many writes to
// simulate another node transmitting over us.
type fake_port struct {
	rx []byte
	tx []byte

	echo           bool
	swallow_echo   bool
	corrupt_echoes int
}

func (p *fake_port) Available() bool {
	return len(p.rx) > 0
}

func (p *fake_port) ReadByte() byte {
	var b = p.rx[0]
	p.rx = p.rx[1:]
	return b
}

func (p *fake_port) WriteByte(b byte) {
	p.tx = append(p.tx, b)

	if p.echo && !p.swallow_echo {
		var echoed = b
		if p.corrupt_echoes > 0 {
			echoed ^= 0xFF
			p.corrupt_echoes--
		}
		p.rx = append(p.rx, echoed)
	}
}

// push queues bytes for the node to receive.
func (p *fake_port) push(bytes ...byte) {
	p.rx = append(p.rx, bytes...)
}

// idle_sense is a bus that is always quiet.
type idle_sense struct{}

func (idle_sense) Idle() bool { return true }

// busy_then_idle_sense reports activity for the first `busy` polls.
type busy_then_idle_sense struct {
	busy int
}

func (s *busy_then_idle_sense) Idle() bool {
	if s.busy > 0 {
		s.busy--
		return false
	}
	return true
}

// new_test_node builds a full duplex node over a fresh fake port.
func new_test_node(opts Options) (*WBTVNode, *fake_port, *fake_time) {
	var port = &fake_port{}
	var ft = &fake_time{}
	var n = NewFullDuplexNode(port, ft, opts)
	return n, port, ft
}

// new_bus_node builds a wired-OR node with an honest echoing port and
// a quiet bus.
func new_bus_node(opts Options) (*WBTVNode, *fake_port, *fake_time) {
	var port = &fake_port{echo: true}
	var ft = &fake_time{micros_step: 500}
	var n = NewBusNode(port, idle_sense{}, ft, opts)
	return n, port, ft
}

// deliver feeds wire bytes to a node one Service poll at a time, the
// way a real application loop would see them trickle in.
func deliver(n *WBTVNode, port *fake_port, wire []byte) {
	for _, b := range wire {
		port.push(b)
		n.Service()
	}
}

// deliver_burst queues all bytes up front, so every byte after the
// first is received with more input already pending.
func deliver_burst(n *WBTVNode, port *fake_port, wire []byte) {
	port.push(wire...)
	for port.Available() {
		n.Service()
	}
}
