package gateway

import (
	"bufio"
	"io"
	"strings"
)

// Event names used by the workflow gateway stream.
const (
	eventEndpoint = "endpoint"
	eventMessage  = "message"
	eventError    = "error"
	eventDone     = "done"
)

// event is one parsed frame from the gateway's event stream.
type event struct {
	name string
	data string
}

// eventReader decodes the gateway's line-oriented stream: events are
// blocks of "event:" and "data:" lines delimited by a blank line, and
// multiple data lines of one event concatenate with a newline. This is
// the read-side mirror of the framing our own SSE writer emits.
//
// The reader is single-use and not restartable; it is driven by one
// caller until a match or termination condition.
type eventReader struct {
	r *bufio.Reader
}

func newEventReader(r io.Reader) *eventReader {
	return &eventReader{r: bufio.NewReader(r)}
}

// next returns the next complete event. io.EOF is returned once the
// stream ends; a partial trailing event without its blank-line
// terminator is discarded.
func (er *eventReader) next() (event, error) {
	var ev event
	var data []string
	seenField := false

	for {
		line, err := er.r.ReadString('\n')
		if err != nil {
			return event{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if !seenField {
				continue // stray keep-alive blank line
			}
			ev.data = strings.Join(data, "\n")
			if ev.name == "" {
				ev.name = eventMessage
			}
			return ev, nil
		}

		switch {
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			seenField = true
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			seenField = true
		default:
			// Comment or unknown field, ignored.
		}
	}
}
