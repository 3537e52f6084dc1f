package wbtv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestXorshiftNeverSticksAtZero(t *testing.T) {
	var r xorshift32

	r.mix(0)
	assert.NotZero(t, r.state)

	for i := 0; i < 1000; i++ {
		assert.NotZero(t, r.next())
	}
}

func TestRandRangeBounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var min = rapid.Uint32Range(0, 1<<20).Draw(t, "min")
		var span = rapid.Uint32Range(1, 1<<20).Draw(t, "span")

		var r = xorshift32{state: rapid.Uint32().Draw(t, "state")}

		var v = r.rand_range(min, min+span)
		assert.GreaterOrEqual(t, v, min)
		assert.Less(t, v, min+span)
	})
}

func TestMixEntropyChangesSequence(t *testing.T) {
	var a = xorshift32{state: 12345}
	var b = xorshift32{state: 12345}

	b.mix(0xDEADBEEF)

	assert.NotEqual(t, a.next(), b.next())
}

func TestSystemTimeAdvances(t *testing.T) {
	var s = NewSystemTime()

	var m0 = s.NowMillis()
	SLEEP_MS(5)
	var m1 = s.NowMillis()

	assert.GreaterOrEqual(t, m1-m0, uint32(4))
	assert.Less(t, m1-m0, uint32(1000))
}

func TestNodeReseedsOnFrameBoundaries(t *testing.T) {
	var n, port, ft = new_test_node(DefaultOptions())

	deliver(n, port, send_to_wire(t, DefaultOptions(), "X", []byte("Y")))

	// Once at STH, once at EOT.
	assert.Len(t, ft.mixed, 2)
}
