package wbtv

/*------------------------------------------------------------------
 *
 * Purpose:   	Serial port byte I/O capability, hiding operating
 *		system differences.
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"os"

	"github.com/pkg/term"
	"golang.org/x/sys/unix"
)

// SerialPort adapts a raw mode serial device to the ByteIO interface.
// On a wired-OR bus the port's RX is electrically the bus itself, so
// reads double as the transmit echo check.
//
// pkg/term owns the line configuration and the reads/writes, but it
// exposes no readiness API and keeps its descriptor to itself, so a
// second descriptor is opened on the same device purely for poll(2).
// Both descriptors share the tty's input queue: readiness seen on one
// is readiness for a read on the other.
type SerialPort struct {
	t    *term.Term
	poll *os.File

	scratch [1]byte
}

/*-------------------------------------------------------------------
 *
 * Name:	OpenSerialPort
 *
 * Purpose:	Open a serial device in raw mode at the given speed.
 *
 * Inputs:	devicename	- Usually /dev/tty...
 *				  Could be /dev/rfcomm0 for Bluetooth.
 *
 *		baud		- Speed.  9600 bps is typical for WBTV.
 *				  If 0, leave the device's speed alone.
 *
 * Returns: 	Port handle, or an error if the device could not be
 *		opened or configured.
 *
 *---------------------------------------------------------------*/

func OpenSerialPort(devicename string, baud int) (*SerialPort, error) {
	var t, err = term.Open(devicename, term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("could not open serial port %s: %w", devicename, err)
	}

	switch baud {
	case 0: /* Leave it alone. */
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		if speedErr := t.SetSpeed(baud); speedErr != nil {
			t.Close()
			return nil, fmt.Errorf("could not set %s to %d baud: %w", devicename, baud, speedErr)
		}
	default:
		t.Close()
		return nil, fmt.Errorf("unsupported speed %d for %s", baud, devicename)
	}

	var poll, pollErr = os.OpenFile(devicename, os.O_RDONLY|unix.O_NOCTTY, 0)
	if pollErr != nil {
		t.Close()
		return nil, fmt.Errorf("could not open %s for polling: %w", devicename, pollErr)
	}

	return &SerialPort{t: t, poll: poll}, nil
}

// Available reports whether at least one byte is waiting in the
// kernel's input queue, without blocking.
func (p *SerialPort) Available() bool {
	var fds = []unix.PollFd{{Fd: int32(p.poll.Fd()), Events: unix.POLLIN}}

	var ready, err = unix.Poll(fds, 0)

	return err == nil && ready > 0 && fds[0].Revents&unix.POLLIN != 0
}

// ReadByte returns one byte.  Only call when Available is true; the
// read does not block in that case.
func (p *SerialPort) ReadByte() byte {
	var got, err = p.t.Read(p.scratch[:])
	if err != nil || got != 1 {
		return 0
	}
	return p.scratch[0]
}

func (p *SerialPort) WriteByte(chr byte) {
	p.scratch[0] = chr
	p.t.Write(p.scratch[:]) //nolint:errcheck // best effort, per the capability contract
}

func (p *SerialPort) Close() error {
	p.poll.Close()
	return p.t.Close()
}
