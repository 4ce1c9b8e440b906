package mqtt

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuffer(capacity int) (*ringBuffer, *test.Hook) {
	log, hook := test.NewNullLogger()
	return newRingBuffer(capacity, log, nil), hook
}

func payloads(msgs []bufferedMsg) []byte {
	var out []byte
	for _, m := range msgs {
		out = append(out, m.payload[0])
	}
	return out
}

func TestRingBufferEmptyDrain(t *testing.T) {
	rb, _ := newTestBuffer(10)
	assert.Nil(t, rb.drainAll())
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb, _ := newTestBuffer(10)
	for i := 0; i < 5; i++ {
		rb.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}
	assert.Equal(t, 5, rb.len())

	got := rb.drainAll()
	assert.Equal(t, []byte{0, 1, 2, 3, 4}, payloads(got))
	assert.Nil(t, rb.drainAll(), "second drain should be empty")
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	log, hook := test.NewNullLogger()
	dropped := 0
	rb := newRingBuffer(5, log, func() { dropped++ })
	for i := 0; i < 8; i++ {
		rb.push(bufferedMsg{topic: "t", payload: []byte{byte(i)}})
	}

	assert.Equal(t, 5, rb.len())
	assert.Equal(t, 3, dropped)
	assert.Equal(t, []byte{3, 4, 5, 6, 7}, payloads(rb.drainAll()))

	// One warning per overflow episode.
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, 5, hook.LastEntry().Data["capacity"])
}

func TestRingBufferMultipleCycles(t *testing.T) {
	rb, hook := newTestBuffer(3)

	for i := 0; i < 4; i++ {
		rb.push(bufferedMsg{payload: []byte{byte(i)}})
	}
	assert.Equal(t, []byte{1, 2, 3}, payloads(rb.drainAll()))

	for i := 10; i < 12; i++ {
		rb.push(bufferedMsg{payload: []byte{byte(i)}})
	}
	assert.Equal(t, []byte{10, 11}, payloads(rb.drainAll()))

	for i := 20; i < 24; i++ {
		rb.push(bufferedMsg{payload: []byte{byte(i)}})
	}
	assert.Equal(t, []byte{21, 22, 23}, payloads(rb.drainAll()))
	assert.Len(t, hook.AllEntries(), 2)
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb, _ := newTestBuffer(2)
	rb.push(bufferedMsg{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})

	got := rb.drainAll()
	require.Len(t, got, 1)
	assert.Equal(t, TopicSystem, got[0].topic)
	assert.Equal(t, byte(1), got[0].qos)
	assert.True(t, got[0].retained)
}
