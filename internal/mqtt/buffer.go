package mqtt

import "github.com/sirupsen/logrus"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// When full, the oldest message is overwritten: for sensor readings the
// newest value matters most.
// Not safe for concurrent use; the caller synchronizes.
type ringBuffer struct {
	buf      []bufferedMsg
	head     int // next write position
	count    int
	overflow bool // true if any message was dropped since last drain
	onDrop   func()
	log      logrus.FieldLogger
}

// newRingBuffer creates a buffer; onDrop, if set, is called for every
// message overwritten.
func newRingBuffer(capacity int, log logrus.FieldLogger, onDrop func()) *ringBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer{
		buf:    make([]bufferedMsg, capacity),
		onDrop: onDrop,
		log:    log,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}

	// head pointed at the oldest message, which is now gone.
	if r.onDrop != nil {
		r.onDrop()
	}
	if !r.overflow {
		r.overflow = true
		r.log.WithField("capacity", len(r.buf)).Warn("mqtt buffer full, dropping oldest messages")
	}
}

// drainAll returns the buffered messages, oldest first, and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}

	result := make([]bufferedMsg, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range result {
		result[i] = r.buf[(start+i)%len(r.buf)]
	}

	clear(r.buf)
	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
