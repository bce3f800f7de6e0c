package mqtt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func pushN(rb *ringBuffer, from, to int) {
	for i := from; i < to; i++ {
		rb.push(bufferedMsg{topic: "fan-controller/switch/fan/set", payload: []byte{byte(i)}})
	}
}

func payloads(msgs []bufferedMsg) []byte {
	out := make([]byte, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb := newRingBuffer(10)
	require.Nil(t, rb.drainAll())
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb := newRingBuffer(10)
	pushN(rb, 0, 5)

	require.Equal(t, []byte{0, 1, 2, 3, 4}, payloads(rb.drainAll()))
	require.Nil(t, rb.drainAll(), "second drain")
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := newRingBuffer(5)
	pushN(rb, 0, 8)

	require.Equal(t, []byte{3, 4, 5, 6, 7}, payloads(rb.drainAll()))
}

func TestRingBufferReportsFirstDrop(t *testing.T) {
	rb := newRingBuffer(2)
	require.False(t, rb.push(bufferedMsg{payload: []byte{0}}))
	require.False(t, rb.push(bufferedMsg{payload: []byte{1}}))
	require.True(t, rb.push(bufferedMsg{payload: []byte{2}}), "first drop")
	require.False(t, rb.push(bufferedMsg{payload: []byte{3}}), "already reported")

	rb.drainAll()
	pushN(rb, 0, 2)
	require.True(t, rb.push(bufferedMsg{payload: []byte{9}}), "reported again after drain")
}

func TestRingBufferMultipleCycles(t *testing.T) {
	rb := newRingBuffer(5)
	pushN(rb, 0, 3)
	require.Len(t, rb.drainAll(), 3)

	pushN(rb, 10, 14)
	require.Equal(t, []byte{10, 11, 12, 13}, payloads(rb.drainAll()))
}

func TestRingBufferLen(t *testing.T) {
	rb := newRingBuffer(10)
	require.Zero(t, rb.len())

	pushN(rb, 0, 2)
	require.Equal(t, 2, rb.len())

	rb.drainAll()
	require.Zero(t, rb.len())
}

func TestRingBufferMinimumCapacity(t *testing.T) {
	rb := newRingBuffer(0)
	pushN(rb, 0, 3)
	require.Equal(t, []byte{2}, payloads(rb.drainAll()))
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(10)
	rb.push(bufferedMsg{
		topic:    "fan-controller/system",
		payload:  []byte(`{"system":{"event":"STARTUP"}}`),
		qos:      1,
		retained: true,
	})

	got := rb.drainAll()
	require.Len(t, got, 1)
	require.Equal(t, "fan-controller/system", got[0].topic)
	require.Equal(t, `{"system":{"event":"STARTUP"}}`, string(got[0].payload))
	require.Equal(t, byte(1), got[0].qos)
	require.True(t, got[0].retained)
}
