package daemon

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/wysstartgo/anycode/internal/billing"
	"github.com/wysstartgo/anycode/internal/live"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/session"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func startSSE(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
}

func sendEvent(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = live.WriteSSE(w, ev.Type, data)
}

func (s *Service) handleRunning(w http.ResponseWriter, r *http.Request) {
	procs, err := s.tracker.ListRunning(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if procs == nil {
		procs = []model.Process{}
	}
	writeJSON(w, http.StatusOK, procs)
}

// sessionRef reads the session reference from the path and query.
func sessionRef(r *http.Request) (model.SessionRef, error) {
	ref := model.SessionRef{
		SessionID: r.PathValue("id"),
		ProjectID: r.URL.Query().Get("project"),
	}
	if e := r.URL.Query().Get("engine"); e != "" {
		engine, ok := model.ParseEngine(e)
		if !ok {
			return ref, errors.New("unknown engine " + e)
		}
		ref.Engine = engine
	}
	return ref, nil
}

// handleLedger serves the billing ledger of one session.
func (s *Service) handleLedger(w http.ResponseWriter, r *http.Request) {
	ref, err := sessionRef(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	h, err := s.history.Load(r.Context(), ref)
	switch {
	case session.IsNotFound(err):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	ledger := billing.New(billing.WithEffectiveDates()).Aggregate(h.Messages)
	if ledger.Events == nil {
		ledger.Events = []model.BillingEvent{}
	}
	writeJSON(w, http.StatusOK, ledger)
}

// parseClasses reads the class query parameter: a comma-separated subset of
// the event classes. Empty means all of them.
func parseClasses(raw string) ([]session.EventClass, error) {
	if raw == "" {
		return session.EventClasses, nil
	}
	var out []session.EventClass
	for _, part := range strings.Split(raw, ",") {
		c := session.EventClass(strings.TrimSpace(part))
		switch c {
		case session.EventOutput, session.EventError, session.EventComplete:
			out = append(out, c)
		default:
			return nil, errors.New("unknown event class " + string(c))
		}
	}
	return out, nil
}

type liveEvent struct {
	class   session.EventClass
	payload []byte
}

// handleSessionStream relays a running session's events as server-sent
// events. The stream ends after a complete event.
func (s *Service) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	classes, err := parseClasses(r.URL.Query().Get("class"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	offset := int64(-1)
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if offset, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("bad offset "+raw))
			return
		}
	}
	id := r.PathValue("id")

	events := make(chan liveEvent, 256)
	// Subscribe to complete even when not requested so the stream can end.
	watch := append([]session.EventClass(nil), classes...)
	wantComplete := true
	if !slices.Contains(watch, session.EventComplete) {
		watch = append(watch, session.EventComplete)
		wantComplete = false
	}
	for _, c := range watch {
		unsub := s.tracker.Subscribe(id, c, func(p []byte) {
			select {
			case events <- liveEvent{class: c, payload: p}:
			default:
				s.logger.Printf("anycode daemon: %s stream is behind, dropping %s event", id, c)
			}
		})
		defer unsub()
	}

	// The tail starts only after the subscriptions above, so its first
	// records are not published to nobody.
	if _, err := s.tracker.Ensure(r.Context(), id, offset); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, live.ErrNotRunning) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}

	startSSE(w)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			if ev.class != session.EventComplete || wantComplete {
				_ = live.WriteSSE(w, string(ev.class), ev.payload)
				flusher.Flush()
			}
			if ev.class == session.EventComplete {
				return
			}
		}
	}
}
