package orchestrator

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// sseFrame is one decoded server-sent-event frame: an optional event name
// and the joined payload of its "data:" lines.
type sseFrame struct {
	event string
	data  []byte
}

// sseReader pulls frames off an upstream SSE body one at a time. It
// tolerates blank keep-alive lines and CRLF line endings.
type sseReader struct {
	r *bufio.Reader
}

func newSSEReader(r io.Reader) *sseReader {
	return &sseReader{r: bufio.NewReader(r)}
}

// next returns the next frame, or an error (io.EOF on clean close).
func (s *sseReader) next() (sseFrame, error) {
	var frame sseFrame
	var dataLines [][]byte

	for {
		line, err := s.r.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		if line != "" {
			switch {
			case strings.HasPrefix(line, "event:"):
				frame.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				dataLines = append(dataLines, []byte(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")))
			}
			// Any other field (id:, retry:, comments) is ignored.
		}

		if err != nil {
			if len(dataLines) > 0 {
				frame.data = bytes.Join(dataLines, []byte("\n"))
				return frame, nil
			}
			return frame, err
		}

		if line == "" {
			if len(dataLines) == 0 && frame.event == "" {
				continue // keep-alive blank line between events
			}
			frame.data = bytes.Join(dataLines, []byte("\n"))
			return frame, nil
		}
	}
}
