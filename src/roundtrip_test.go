package wbtv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Whatever goes in one end comes out the other, bit identical, for
// any channel/payload that fits a frame.
func TestRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var channel = rapid.SliceOfN(rapid.Byte(), 1, 16).Draw(t, "channel")
		var data = rapid.SliceOfN(rapid.Byte(), 0, 64).Draw(t, "data")

		var sender, senderPort, _ = new_test_node(DefaultOptions())
		sender.SendMessage(channel, data)

		// Worst case wire expansion is 2x content plus framing,
		// but the *buffered* size is content plus 3 (divider and
		// two checksum bytes), well within MAX_MESSAGE for these
		// draws; the check below keeps one byte of slack.
		require.LessOrEqual(t, len(channel)+len(data)+4, MAX_MESSAGE)

		var rx, rxPort, _ = new_test_node(DefaultOptions())
		var got capture
		got.attach(rx)

		deliver(rx, rxPort, senderPort.tx)

		require.Equal(t, 1, got.count)
		assert.Equal(t, channel, got.channel)
		assert.Equal(t, data, got.data)
	})
}

// Same property over a wired-OR bus with honest echoes.
func TestRoundTripPropertyWiredOR(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var channel = rapid.SliceOfN(rapid.Byte(), 1, 8).Draw(t, "channel")
		var data = rapid.SliceOfN(rapid.Byte(), 0, 32).Draw(t, "data")

		var sender, senderPort, _ = new_bus_node(DefaultOptions())
		sender.SendMessage(channel, data)

		var rx, rxPort, _ = new_test_node(DefaultOptions())
		var got capture
		got.attach(rx)

		deliver(rx, rxPort, senderPort.tx)

		require.Equal(t, 1, got.count)
		assert.Equal(t, channel, got.channel)
		assert.Equal(t, data, got.data)
	})
}

// A frame survives any amount of leading and trailing line noise that
// does not contain an unescaped STH.
func TestRoundTripWithSurroundingNoise(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var data = rapid.SliceOfN(rapid.Byte(), 0, 16).Draw(t, "data")

		var sender, senderPort, _ = new_test_node(DefaultOptions())
		sender.SendMessage([]byte("NZ"), data)

		var noise = rapid.SliceOfN(
			rapid.Byte().Filter(func(b byte) bool { return b != STH && b != ESC }),
			0, 16).Draw(t, "noise")

		var stream = append(append([]byte(nil), noise...), senderPort.tx...)

		var rx, rxPort, _ = new_test_node(DefaultOptions())
		var got capture
		got.attach(rx)

		deliver(rx, rxPort, stream)

		require.Equal(t, 1, got.count)
		assert.Equal(t, data, got.data)
	})
}
