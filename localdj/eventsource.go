package localdj

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// StdinEventSource reads newline-delimited event envelopes from r (a
// reasonable local stand-in for the speaker's native event-subscription
// transport, which spec.md §1 places out of scope) and hands each
// non-blank line to a Dispatcher. Per spec.md §5's scheduling model,
// this blocking read runs on its own goroutine so it never stalls
// orchestrator logic.
type StdinEventSource struct {
	dispatcher *Dispatcher
	log        *logrus.Entry
}

// NewStdinEventSource constructs a StdinEventSource routing decoded
// lines to dispatcher.
func NewStdinEventSource(dispatcher *Dispatcher) *StdinEventSource {
	return &StdinEventSource{
		dispatcher: dispatcher,
		log:        logrus.WithField("component", "event_source"),
	}
}

// Run reads lines from r until EOF, ctx cancellation, or a read error,
// dispatching each one. It returns when the source is exhausted.
func (s *StdinEventSource) Run(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				s.log.Info("event source closed")
				return
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			s.dispatcher.HandleEvent(ctx, line)
		}
	}
}
