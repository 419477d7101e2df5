// Package feed reads recorded venue events from a JSON-lines log.
package feed

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/hermish/traders-at-mit-2019/internal/dispatch"
	"github.com/hermish/traders-at-mit-2019/internal/models"
)

// maxLineSize bounds one event line. Longer lines are rejected as malformed
// and the reader resumes at the next newline.
const maxLineSize = 1 << 20

// Reader yields one Envelope per non-blank line.
type Reader struct {
	r       *bufio.Reader
	line    int
	maxLine int
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64*1024), maxLine: maxLineSize}
}

// Next returns the next event. A line that is not valid JSON, or is longer
// than maxLineSize, yields an error wrapping dispatch.ErrMalformedEvent and
// the reader stays usable.
func (r *Reader) Next() (models.Envelope, error) {
	for {
		b, tooLong, err := r.readLine()
		if err == io.EOF {
			return models.Envelope{}, io.EOF
		}
		if err != nil {
			return models.Envelope{}, fmt.Errorf("failed to read line %d: %w", r.line+1, err)
		}
		r.line++
		if tooLong {
			return models.Envelope{}, fmt.Errorf("%w: line %d exceeds %d bytes", dispatch.ErrMalformedEvent, r.line, r.maxLine)
		}
		b = bytes.TrimSpace(b)
		if len(b) == 0 {
			continue
		}
		var env models.Envelope
		if err := json.Unmarshal(b, &env); err != nil {
			return models.Envelope{}, fmt.Errorf("%w: line %d: %v", dispatch.ErrMalformedEvent, r.line, err)
		}
		return env, nil
	}
}

// readLine returns one line without its terminator. Past maxLine the rest
// of the line is consumed and discarded.
func (r *Reader) readLine() ([]byte, bool, error) {
	var (
		buf     []byte
		tooLong bool
	)
	for {
		chunk, isPrefix, err := r.r.ReadLine()
		if err != nil {
			if err == io.EOF && (len(buf) > 0 || tooLong) {
				return buf, tooLong, nil
			}
			return nil, false, err
		}
		if !tooLong {
			if len(buf)+len(chunk) > r.maxLine {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if !isPrefix {
			return buf, tooLong, nil
		}
	}
}

// Open opens the feed at path. "-" reads standard input.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open feed: %w", err)
	}
	return f, nil
}
