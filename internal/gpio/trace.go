package gpio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadTrace parses a recorded edge trace: decimal microsecond durations
// separated by whitespace or commas. Text after '#' on a line is ignored.
func ReadTrace(r io.Reader) ([]uint32, error) {
	var out []uint32
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		for _, f := range fields {
			v, err := strconv.ParseUint(f, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("trace line %d: %w", lineNo, err)
			}
			out = append(out, uint32(v))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return out, nil
}

// ReplaySource plays back a recorded trace. All durations are queued up
// front and the channel is closed after the last one.
type ReplaySource struct {
	ch chan uint32
}

// NewReplaySource creates a source over durations.
func NewReplaySource(durations []uint32) *ReplaySource {
	ch := make(chan uint32, len(durations))
	for _, d := range durations {
		ch <- d
	}
	close(ch)
	return &ReplaySource{ch: ch}
}

// Edges returns the duration channel.
func (s *ReplaySource) Edges() <-chan uint32 {
	return s.ch
}

// Dropped always returns 0.
func (s *ReplaySource) Dropped() uint64 {
	return 0
}

// Close is a no-op; the channel is already closed.
func (s *ReplaySource) Close() error {
	return nil
}
