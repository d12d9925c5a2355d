package client

import (
	"bufio"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"organizer/domain"
)

const maxEventSize = 1 << 20

// readEvents parses a server-sent event stream. Comment lines are skipped,
// multi-line data fields are joined with newlines, and events with an unknown
// name are dropped. It returns nil when the stream ends cleanly.
func readEvents(r io.Reader, fn func(domain.Event)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var (
		kind string
		data []string
	)
	dispatch := func() {
		defer func() { kind, data = "", nil }()
		if len(data) == 0 {
			return
		}
		ev := domain.Event{Kind: domain.EventKind(kind), Data: []byte(strings.Join(data, "\n"))}
		if !ev.Kind.Valid() {
			log.WithField("kind", kind).Debug("ignoring unknown stream event")
			return
		}
		fn(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			dispatch()
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			kind = value
		case "data":
			data = append(data, value)
		}
	}
	return scanner.Err()
}
