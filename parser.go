package serial

import "bytes"

// Parser turns the raw byte stream of one connection into discrete
// messages. A Device calls Parse from a single goroutine and calls Reset
// before every new connection, so implementations need no locking.
type Parser interface {
	// Parse consumes a chunk and returns every message it completes.
	// Returned slices must not alias chunk.
	Parse(chunk []byte) [][]byte
	// Reset drops any partially buffered message.
	Reset()
}

// IdentityParser forwards every chunk as one message.
type IdentityParser struct{}

func (IdentityParser) Parse(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}
	return [][]byte{bytes.Clone(chunk)}
}

func (IdentityParser) Reset() {}

// LineParser splits the stream on a delimiter and holds the trailing
// partial line until the next chunk completes it. The delimiter is not
// part of the emitted message.
type LineParser struct {
	delim []byte
	buf   []byte
}

// NewLineParser returns a LineParser for delim, "\n" when empty.
func NewLineParser(delim string) *LineParser {
	if delim == "" {
		delim = "\n"
	}
	return &LineParser{delim: []byte(delim)}
}

func (p *LineParser) Parse(chunk []byte) [][]byte {
	p.buf = append(p.buf, chunk...)
	var msgs [][]byte
	for {
		idx := bytes.Index(p.buf, p.delim)
		if idx < 0 {
			break
		}
		msgs = append(msgs, bytes.Clone(p.buf[:idx]))
		p.buf = p.buf[idx+len(p.delim):]
	}
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return msgs
}

// Pending returns a copy of the buffered partial message.
func (p *LineParser) Pending() []byte {
	return bytes.Clone(p.buf)
}

func (p *LineParser) Reset() {
	p.buf = nil
}
