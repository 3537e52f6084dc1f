package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Node implementation for the WBTV serial bus protocol.
 *
 * Description:	WBTV is a lightweight message bus for microcontroller
 *		class devices sharing a half duplex wired-OR serial line,
 *		or talking point to point over a full duplex link such as
 *		a USB serial adapter.
 *
 *		A message on the wire looks like:
 *
 *			STH <channel...> STX <data...> <slow> <fast> EOT
 *
 *		where channel and data bytes that collide with the four
 *		reserved values are escaped with ESC, and slow/fast are a
 *		Fletcher style checksum over channel and data.
 *
 *		On a wired-OR bus there is no electrical collision
 *		detection.  Instead every transmitted byte is read back
 *		and compared (any other driver pulling the line changes
 *		what we hear), and transmission begins only after a full
 *		randomly sized window of bus idle.  Together that gives
 *		CSMA/CA with deterministic collision recovery: the frame
 *		is simply retransmitted from the start and every receiver
 *		discards the mangled partial as garbage.
 *
 *		Nodes may also participate in best effort time
 *		synchronization by exchanging messages on the reserved
 *		"TIME" channel.  See clock.go.
 *
 *		This file has the node object, the capability interfaces
 *		it is built on, and the polling service entry point.
 *		The receive state machine is in recv.go, the transmit
 *		path in xmit.go, the clock discipline in clock.go.
 *
 *---------------------------------------------------------------*/

/*
 * Reserved framing bytes.  These must be identical on every node of a
 * bus.  The values are the ones the original Arduino library shipped
 * with; there is nothing magic about them beyond being pairwise
 * distinct and printable enough to eyeball in a serial monitor.
 */

const (
	STH byte = '!'  /* Start of header */
	STX byte = '~'  /* End of header, start of data */
	EOT byte = '\n' /* End of transmission */
	ESC byte = '\\' /* Escape for any of the above appearing in content */
)

// Substituted for the header/data divider when hashing with HashSTX on.
// The divider position holds a null in the receive buffer, so both ends
// hash this fixed sentinel instead.
const HASH_STX_SENTINEL byte = '~'

// Maximum size of the receive buffer, including the null divider and
// the two checksum bytes.  Anything longer is discarded as garbage.
const MAX_MESSAGE = 128

/*
 * Default timing knobs.  Backoff is in microseconds, echo wait in
 * milliseconds.  These suit a 9600 bps bus; see Options.
 */

const (
	DEFAULT_MIN_BACKOFF = 2000  /* us */
	DEFAULT_MAX_BACKOFF = 10000 /* us */
	DEFAULT_MAX_WAIT    = 20    /* ms */
)

// Default drift accumulation, in 1/65536 s per elapsed second.  Very
// conservative; assumes a ceramic resonator grade clock.
const DEFAULT_ERROR_PER_SECOND = 2500

/*
 * Capability interfaces.  The node core never touches hardware
 * directly; it is handed a byte port, optionally a bus sense input,
 * and a time source at construction.  serial_port.go, file_port.go
 * and sense.go have the real implementations; the tests supply fakes.
 */

// ByteIO is a non-blocking byte oriented port.
// ReadByte may only be called when Available reports true.
type ByteIO interface {
	ReadByte() byte
	WriteByte(b byte)
	Available() bool
}

// SensePin reports whether the bus carrier is in its idle state.
// Only consulted in wired-OR mode.
type SensePin interface {
	Idle() bool
}

// TimeSource supplies monotonic counters and bounded random numbers.
// The counters wrap at 2^32 like an Arduino's; all arithmetic on them
// is done in uint32 so the wrap is harmless.
type TimeSource interface {
	NowMillis() uint32
	NowMicros() uint32
	Rand(min uint32, max uint32) uint32
}

// A TimeSource may optionally accept entropy collected from bus
// traffic.  The node mixes in the checksum state and microsecond
// counter on frame boundaries, which is when an observer knows least
// about our timing.
type entropy_mixer interface {
	MixEntropy(seed uint32)
}

/*
 * Options bundles the protocol knobs.  Both ends of a bus must agree
 * on HashSTX; the rest are per node choices.
 */

type Options struct {
	DummySTH bool /* Emit a second leading STH for noise immunity. */
	HashSTX  bool /* Include the header/data divider in the checksum. */

	AdvMode    bool /* Consume "TIME" frames and discipline a clock. */
	RecordTime bool /* Timestamp frame arrival.  Implied by AdvMode. */

	ErrorPerSecond uint32 /* Clock drift per second in 1/65536 s. */

	MinBackoff uint32 /* us, lower bound of the arbitration window */
	MaxBackoff uint32 /* us, upper bound (exclusive) */
	MaxWait    uint32 /* ms, how long to wait for our own echo */
}

// DefaultOptions returns the knobs most buses run with: single STH,
// divider excluded from the checksum, clock discipline off.
func DefaultOptions() Options {
	return Options{
		ErrorPerSecond: DEFAULT_ERROR_PER_SECOND,
		MinBackoff:     DEFAULT_MIN_BACKOFF,
		MaxBackoff:     DEFAULT_MAX_BACKOFF,
		MaxWait:        DEFAULT_MAX_WAIT,
	}
}

func (o *Options) fill_defaults() {
	if o.ErrorPerSecond == 0 {
		o.ErrorPerSecond = DEFAULT_ERROR_PER_SECOND
	}
	if o.MaxBackoff == 0 {
		o.MinBackoff = DEFAULT_MIN_BACKOFF
		o.MaxBackoff = DEFAULT_MAX_BACKOFF
	}
	if o.MaxWait == 0 {
		o.MaxWait = DEFAULT_MAX_WAIT
	}
	if o.AdvMode {
		// Clock discipline is meaningless without arrival timestamps.
		o.RecordTime = true
	}
}

/*
 * The node itself.  One per bus attachment.  All state lives here;
 * there are no package globals, so a process can drive several buses.
 *
 * The node is single threaded by design: Service, SendMessage and
 * SendTime must be called from the same goroutine.  The checksum
 * accumulator pair is shared between transmit and receive, which is
 * safe because receive hashing happens atomically at EOT.
 */

type WBTVNode struct {
	port     ByteIO
	sense    SensePin
	time     TimeSource
	opts     Options
	wired_or bool

	clock *Clock /* nil unless AdvMode */

	/* Receive state machine.  See recv.go. */
	message    [MAX_MESSAGE + 1]byte
	recv_ptr   int
	header_end int
	garbage    bool
	escape     bool

	/* Shared Fletcher checksum accumulators. */
	sum_slow byte
	sum_fast byte

	/* Receive timestamping for the clock discipline. */
	last_serviced     uint32
	msg_start         uint32
	msg_time_error    uint32
	msg_time_accurate bool

	callback        func(channel []byte, data []byte)
	string_callback func(channel string, data string)
}

/*-------------------------------------------------------------------
 *
 * Name:        NewBusNode
 *
 * Purpose:     Attach a node to a shared wired-OR bus.
 *
 * Inputs:	port	- Byte oriented port on the bus.
 *		sense	- Carrier sense input, typically the RX line
 *			  read as GPIO.
 *		time	- Monotonic clock and RNG.  nil for a new
 *			  SystemTime owned by this node.
 *		opts	- Protocol knobs.  Zero values are filled in
 *			  with defaults.
 *
 * Description:	A bus node arbitrates before transmitting and verifies
 *		every byte against its own echo.
 *
 *--------------------------------------------------------------------*/

func NewBusNode(port ByteIO, sense SensePin, time TimeSource, opts Options) *WBTVNode {
	var n = new_node(port, time, opts)
	n.sense = sense
	n.wired_or = true
	return n
}

/*-------------------------------------------------------------------
 *
 * Name:        NewFullDuplexNode
 *
 * Purpose:     Attach a node to a full duplex point to point link,
 *		e.g. a USB serial tunnel.  No arbitration, no echo
 *		verification; writes always succeed.
 *
 *--------------------------------------------------------------------*/

func NewFullDuplexNode(port ByteIO, time TimeSource, opts Options) *WBTVNode {
	return new_node(port, time, opts)
}

func new_node(port ByteIO, time TimeSource, opts Options) *WBTVNode {
	opts.fill_defaults()

	if time == nil {
		time = NewSystemTime()
	}

	var n = &WBTVNode{
		port: port,
		time: time,
		opts: opts,

		last_serviced: time.NowMillis(),
	}

	if opts.AdvMode {
		n.clock = NewClock(time, opts.ErrorPerSecond)
	}

	return n
}

// Clock returns the disciplined clock, or nil when AdvMode is off.
func (n *WBTVNode) Clock() *Clock {
	return n.clock
}

/*-------------------------------------------------------------------
 *
 * Name:        SetBinaryCallback / SetStringCallback
 *
 * Purpose:     Register the handler for validated frames.  The two
 *		registrations are mutually exclusive; setting one
 *		clears the other.
 *
 * Description:	The binary handler receives slices aliasing the
 *		receive buffer.  They are valid only until the next
 *		Service call; copy if you need to keep them.
 *
 *		The string handler is refused frames whose channel
 *		contains a null, because such a channel would alias
 *		every shorter channel it starts with.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) SetBinaryCallback(cb func(channel []byte, data []byte)) {
	n.callback = cb
	n.string_callback = nil
}

func (n *WBTVNode) SetStringCallback(cb func(channel string, data string)) {
	n.string_callback = cb
	n.callback = nil
}

/*-------------------------------------------------------------------
 *
 * Name:        Service
 *
 * Purpose:     Poll the port.  Call this frequently from the
 *		application loop.
 *
 * Description:	Reads at most one byte per invocation and feeds it to
 *		the receive state machine.  The time of the last poll
 *		is recorded regardless, because the clock discipline
 *		uses the polling interval to bound how stale a frame's
 *		arrival timestamp can be.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) Service() {
	if n.port.Available() {
		n.decode_char(n.port.ReadByte())
	}

	n.last_serviced = n.time.NowMillis()
}

/*-------------------------------------------------------------------
 *
 * Name:        Run
 *
 * Purpose:     Convenience polling loop for applications without
 *		their own.  Returns when stop is closed.
 *
 *--------------------------------------------------------------------*/

func (n *WBTVNode) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		n.Service()

		if !n.port.Available() {
			SLEEP_MS(1)
		}
	}
}

// reseed_rng mixes frame boundary entropy into the time source's RNG
// if it accepts any.  The original library tried to do this with the
// Arduino randomSeed; here it is a well defined hook.
func (n *WBTVNode) reseed_rng() {
	if m, ok := n.time.(entropy_mixer); ok {
		m.MixEntropy(uint32(n.sum_slow) + n.time.NowMicros())
	}
}
