package live

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/session"
)

// WriteSSE writes one server-sent event. Multi-line payloads are split
// across data fields.
func WriteSSE(w io.Writer, event string, payload []byte) error {
	var buf bytes.Buffer
	if event != "" {
		fmt.Fprintf(&buf, "event: %s\n", event)
	}
	if len(payload) == 0 {
		buf.WriteString("data:\n")
	} else {
		for _, line := range bytes.Split(payload, []byte("\n")) {
			buf.WriteString("data: ")
			buf.Write(line)
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadSSE reads events from r until it ends or fn returns false.
func ReadSSE(r io.Reader, fn func(event string, data []byte) bool) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var (
		event string
		data  [][]byte
		dirty bool
	)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if dirty {
				if !fn(event, bytes.Join(data, []byte("\n"))) {
					return nil
				}
			}
			event, data, dirty = "", nil, false
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			dirty = true
		case strings.HasPrefix(line, "data:"):
			v := strings.TrimPrefix(line, "data:")
			v = strings.TrimPrefix(v, " ")
			data = append(data, []byte(v))
			dirty = true
		}
	}
	return scanner.Err()
}

// Client talks to a running daemon. It implements session.Transport over
// the daemon's per-session event stream and session.RunningLister over its
// running-session endpoint.
type Client struct {
	base   string
	http   *http.Client
	logger *log.Logger
	bus    *Bus
}

// NewClient returns a client for the daemon listening on addr.
func NewClient(addr string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, http: &http.Client{}, logger: logger, bus: NewBus()}
}

// ListRunning fetches the daemon's view of running sessions.
func (c *Client) ListRunning(ctx context.Context) ([]model.Process, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/v1/running", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daemon returned %s", resp.Status)
	}
	var procs []model.Process
	if err := json.NewDecoder(resp.Body).Decode(&procs); err != nil {
		return nil, fmt.Errorf("decoding running sessions: %w", err)
	}
	return procs, nil
}

// Subscribe registers fn for one event class of sessionID. Events flow once
// the session is attached.
func (c *Client) Subscribe(sessionID string, class session.EventClass, fn func([]byte)) func() {
	return c.bus.Subscribe(sessionID, class, fn)
}

// Attach opens the daemon's event stream for ref, starting at offset in the
// session log. It returns once the daemon accepted the stream; events are
// then relayed to subscribers until ctx ends or the session completes.
func (c *Client) Attach(ctx context.Context, ref model.SessionRef, offset int64) error {
	q := url.Values{}
	q.Set("class", strings.Join([]string{
		string(session.EventOutput), string(session.EventError), string(session.EventComplete),
	}, ","))
	q.Set("offset", strconv.FormatInt(offset, 10))
	if ref.Engine != "" {
		q.Set("engine", string(ref.Engine))
	}
	u := c.base + "/v1/sessions/" + url.PathEscape(ref.SessionID) + "/stream?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return fmt.Errorf("daemon: %s: %w", ref.SessionID, session.ErrNotRunning)
	default:
		_ = resp.Body.Close()
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	go func() {
		defer func() { _ = resp.Body.Close() }()
		err := ReadSSE(resp.Body, func(event string, data []byte) bool {
			class := session.EventClass(event)
			if !slices.Contains(session.EventClasses, class) {
				return true
			}
			c.bus.Publish(ref.SessionID, class, data)
			return class != session.EventComplete
		})
		if err != nil && ctx.Err() == nil {
			c.logger.Printf("live: %s stream: %v", ref.SessionID, err)
		}
	}()
	return nil
}
