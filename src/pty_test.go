package wbtv

import (
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// End to end over a real kernel pty: two full duplex nodes talking
// through an actual terminal device, the same shape as a USB serial
// tunnel.  Raw mode matters here -- the line discipline would
// otherwise echo our bytes back and rewrite EOT (\n).
func TestRoundTripOverPty(t *testing.T) {
	var ptmx, tts, err = pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptmx.Close()
	defer tts.Close()

	require.NoError(t, SetRawMode(tts))

	var a = NewFullDuplexNode(NewFilePort(ptmx, ptmx), nil, DefaultOptions())
	var b = NewFullDuplexNode(NewFilePort(tts, tts), nil, DefaultOptions())

	var got = make(chan [2]string, 1)
	b.SetStringCallback(func(channel string, data string) {
		got <- [2]string{channel, data}
	})

	a.StringSend("NEWS", "hello from the master side")

	var deadline = time.Now().Add(5 * time.Second)
	for {
		b.Service()

		select {
		case msg := <-got:
			assert.Equal(t, "NEWS", msg[0])
			assert.Equal(t, "hello from the master side", msg[1])
			return
		default:
		}

		if time.Now().After(deadline) {
			t.Fatal("frame never arrived over the pty")
		}

		if !b.port.Available() {
			SLEEP_MS(1)
		}
	}
}

// And the reverse direction, with binary content that exercises the
// escape path through the tty layer.
func TestBinaryRoundTripOverPty(t *testing.T) {
	var ptmx, tts, err = pty.Open()
	if err != nil {
		t.Skipf("no pty available: %v", err)
	}
	defer ptmx.Close()
	defer tts.Close()

	require.NoError(t, SetRawMode(tts))

	var a = NewFullDuplexNode(NewFilePort(ptmx, ptmx), nil, DefaultOptions())
	var b = NewFullDuplexNode(NewFilePort(tts, tts), nil, DefaultOptions())

	var payload = []byte{STH, STX, EOT, ESC, 0x00, 0xFF}

	var got = make(chan []byte, 1)
	a.SetBinaryCallback(func(channel []byte, data []byte) {
		got <- append([]byte(nil), data...)
	})

	b.SendMessage([]byte("B"), payload)

	var deadline = time.Now().Add(5 * time.Second)
	for {
		a.Service()

		select {
		case data := <-got:
			assert.Equal(t, payload, data)
			return
		default:
		}

		if time.Now().After(deadline) {
			t.Fatal("frame never arrived over the pty")
		}

		if !a.port.Available() {
			SLEEP_MS(1)
		}
	}
}
