package session

import (
	"fmt"
	"strings"
)

// capture accumulates one output stream in bounded memory. With a limit it
// retains the first limit+1 bytes and a sliding window over the last
// limit+1 bytes, which is enough to render the head, the tail and the count
// of bytes dropped in between.
type capture struct {
	limit int
	all   strings.Builder // unlimited mode only
	head  []byte
	tail  []byte
	total int
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

func (c *capture) write(s string) {
	c.total += len(s)
	if c.limit <= 0 {
		c.all.WriteString(s)
		return
	}

	keep := c.limit + 1
	if room := keep - len(c.head); room > 0 {
		c.head = append(c.head, s[:min(room, len(s))]...)
	}

	if len(s) >= keep {
		c.tail = append(c.tail[:0], s[len(s)-keep:]...)
		return
	}
	c.tail = append(c.tail, s...)
	if len(c.tail) > 2*keep {
		n := copy(c.tail, c.tail[len(c.tail)-keep:])
		c.tail = c.tail[:n]
	}
}

// String returns the stream without the single trailing newline written by
// the trailer, truncated to the limit.
func (c *capture) String() string {
	if c.limit <= 0 {
		return strings.TrimSuffix(c.all.String(), "\n")
	}
	if c.total <= len(c.head) {
		return truncate(strings.TrimSuffix(string(c.head), "\n"), c.limit)
	}

	tail := strings.TrimSuffix(string(c.tail), "\n")
	size := c.total - (len(c.tail) - len(tail))
	half := c.limit / 2
	return string(c.head[:half]) +
		fmt.Sprintf("\n... [%d bytes truncated] ...\n", size-2*half) +
		tail[len(tail)-half:]
}
