package tabular

// streaming.go wraps source readers so delimited text can be parsed without
// buffering the whole file:
//
//   - skipBOM drops a leading UTF-8 byte order mark written by spreadsheet tools
//   - utf8Sanitizer replaces invalid UTF-8 bytes with '?'
//   - LimitedReader fails once more than the configured number of bytes is read

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrSourceTooLarge is returned when a source exceeds the configured byte limit.
var ErrSourceTooLarge = errors.New("source file too large")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// skipBOM returns a reader positioned after the UTF-8 BOM, if one is present.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(utf8BOM))
	if err == nil && head[0] == utf8BOM[0] && head[1] == utf8BOM[1] && head[2] == utf8BOM[2] {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// utf8Sanitizer rewrites invalid UTF-8 in place. A multi-byte sequence split
// across two reads is carried over in pending.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		return s.r.Read(p)
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}

	data := p[:n]
	atEOF := errors.Is(err, io.EOF)
	if !atEOF {
		if tail := partialRuneTail(data); tail > 0 {
			s.pending = append(s.pending, data[n-tail:]...)
			data = data[:n-tail]
		}
	}
	if utf8.Valid(data) {
		return len(data), err
	}

	w := 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}
	return w, err
}

// partialRuneTail returns how many trailing bytes start a multi-byte rune
// that is not complete yet.
func partialRuneTail(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b&0xC0 == 0x80 {
			continue
		}
		if b < 0xC0 {
			return 0
		}
		need := 2
		switch {
		case b >= 0xF0:
			need = 4
		case b >= 0xE0:
			need = 3
		}
		if i < need {
			return i
		}
		return 0
	}
	return 0
}

// LimitedReader counts bytes read and fails with ErrSourceTooLarge past Max.
// A non-positive Max disables the limit.
type LimitedReader struct {
	R         io.Reader
	Max       int64
	BytesRead int64
}

func (l *LimitedReader) Read(p []byte) (int, error) {
	n, err := l.R.Read(p)
	l.BytesRead += int64(n)
	if l.Max > 0 && l.BytesRead > l.Max {
		return n, fmt.Errorf("%w: more than %d bytes", ErrSourceTooLarge, l.Max)
	}
	return n, err
}

// wrapText applies the BOM and UTF-8 wrappers used for delimited text.
func wrapText(r io.Reader) io.Reader {
	return newUTF8Sanitizer(skipBOM(r))
}
