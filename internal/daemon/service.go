// Package daemon provides the long-running background service: usage
// snapshots for every engine plus live streams of running sessions.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/wysstartgo/anycode/internal/live"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/pipeline"
	"github.com/wysstartgo/anycode/internal/source"
	"github.com/wysstartgo/anycode/internal/store"
)

// Defaults applied by New to a zero Config.
const (
	DefaultAddr         = "127.0.0.1:8787"
	DefaultInterval     = 10 * time.Second
	DefaultEventsBuffer = 200

	minInterval = 2 * time.Second
)

// Event types published on /v1/stream.
const (
	EventSnapshot   = "snapshot"
	EventUsageDelta = "usage_delta"
)

// Config controls what the daemon scans and where it listens.
type Config struct {
	Roots            source.Roots
	Engines          []model.Engine
	Days             int
	ProjectFilter    string
	ModelFilter      string
	IncludeSubagents bool
	UseCache         bool

	Interval     time.Duration
	ActiveWindow time.Duration
	IdleTimeout  time.Duration
	Addr         string
	EventsBuffer int
	Logger       *log.Logger
}

func (c *Config) applyDefaults() {
	if c.Interval < minInterval {
		c.Interval = DefaultInterval
	}
	if c.EventsBuffer < 1 {
		c.EventsBuffer = DefaultEventsBuffer
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.ActiveWindow <= 0 {
		c.ActiveWindow = 2 * time.Minute
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	if len(c.Engines) == 0 {
		c.Engines = model.Engines
	}
}

// Snapshot is the usage state at one poll.
type Snapshot struct {
	At               time.Time `json:"at"`
	Sessions         int       `json:"sessions"`
	Prompts          int       `json:"prompts"`
	APICalls         int       `json:"api_calls"`
	Tokens           int64     `json:"tokens"`
	EstimatedCostUSD float64   `json:"estimated_cost_usd"`
	CacheHitRate     float64   `json:"cache_hit_rate"`
	CostPerDayUSD    float64   `json:"cost_per_day_usd"`
	TokensPerDay     int64     `json:"tokens_per_day"`
	SessionsPerDay   float64   `json:"sessions_per_day"`
}

func newSnapshot(at time.Time, st model.SummaryStats) Snapshot {
	return Snapshot{
		At:               at,
		Sessions:         st.TotalSessions,
		Prompts:          st.TotalPrompts,
		APICalls:         st.TotalAPICalls,
		Tokens:           st.TotalBilledTokens,
		EstimatedCostUSD: st.EstimatedCost,
		CacheHitRate:     st.CacheHitRate,
		CostPerDayUSD:    st.CostPerDay,
		TokensPerDay:     st.TokensPerDay,
		SessionsPerDay:   st.SessionsPerDay,
	}
}

// Since returns the growth from prev to s.
func (s Snapshot) Since(prev Snapshot) Delta {
	return Delta{
		Sessions:         s.Sessions - prev.Sessions,
		Prompts:          s.Prompts - prev.Prompts,
		APICalls:         s.APICalls - prev.APICalls,
		Tokens:           s.Tokens - prev.Tokens,
		EstimatedCostUSD: s.EstimatedCostUSD - prev.EstimatedCostUSD,
	}
}

// Delta is the change between two consecutive snapshots.
type Delta struct {
	Sessions         int     `json:"sessions"`
	Prompts          int     `json:"prompts"`
	APICalls         int     `json:"api_calls"`
	Tokens           int64   `json:"tokens"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Empty reports whether nothing changed.
func (d Delta) Empty() bool {
	return d == Delta{}
}

// Event is one entry of the usage stream.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
}

// EngineSnapshot is the per-engine slice of a snapshot.
type EngineSnapshot struct {
	Engine           model.Engine `json:"engine"`
	Sessions         int          `json:"sessions"`
	APICalls         int          `json:"api_calls"`
	Tokens           int64        `json:"tokens"`
	EstimatedCostUSD float64      `json:"estimated_cost_usd"`
}

func engineSnapshots(stats []model.EngineStats) []EngineSnapshot {
	out := make([]EngineSnapshot, len(stats))
	for i, es := range stats {
		out[i] = EngineSnapshot{
			Engine:           es.Engine,
			Sessions:         es.Sessions,
			APICalls:         es.APICalls,
			Tokens:           es.TotalTokens,
			EstimatedCostUSD: es.EstimatedCost,
		}
	}
	return out
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time        `json:"started_at"`
	LastPollAt      time.Time        `json:"last_poll_at"`
	PollIntervalSec int              `json:"poll_interval_sec"`
	PollCount       int64            `json:"poll_count"`
	Engines         []model.Engine   `json:"engines"`
	Days            int              `json:"days"`
	ProjectFilter   string           `json:"project_filter,omitempty"`
	ModelFilter     string           `json:"model_filter,omitempty"`
	Summary         Snapshot         `json:"summary"`
	ByEngine        []EngineSnapshot `json:"by_engine,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
	EventCount      int              `json:"event_count"`
	SubscriberCount int              `json:"subscriber_count"`
	Following       int              `json:"following"`
}

// Service polls session logs on an interval and serves the HTTP API.
type Service struct {
	cfg     Config
	logger  *log.Logger
	history *source.HistoryStore
	tracker *live.Tracker
	feed    *feed

	startedAt time.Time

	mu         sync.RWMutex
	polls      int64
	lastPollAt time.Time
	lastError  string
	current    *Snapshot
	byEngine   []EngineSnapshot
}

// New builds a Service. Zero fields of cfg take their defaults.
func New(cfg Config) *Service {
	cfg.applyDefaults()

	bus := live.NewBus()
	tailer := live.NewTailer(bus, cfg.IdleTimeout, cfg.Logger)
	registry := live.NewRegistry(cfg.Roots, cfg.ActiveWindow)

	return &Service{
		cfg:       cfg,
		logger:    cfg.Logger,
		history:   source.NewHistoryStore(cfg.Roots, cfg.Logger),
		tracker:   live.NewTracker(bus, tailer, registry, cfg.Logger),
		feed:      newFeed(cfg.EventsBuffer),
		startedAt: time.Now(),
	}
}

// Handler returns the daemon's HTTP API.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/stream", s.handleStream)
	mux.HandleFunc("GET /v1/running", s.handleRunning)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleSessionStream)
	mux.HandleFunc("GET /v1/sessions/{id}/ledger", s.handleLedger)
	return mux
}

// Run serves the API and polls until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	defer s.tracker.Close()

	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	s.poll(time.Now())
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case now := <-ticker.C:
			s.poll(now)
		case err := <-serveErr:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

// poll measures usage once and publishes an event when it changed.
func (s *Service) poll(now time.Time) {
	snap, byEngine, err := s.measure(now)
	if err != nil {
		s.logger.Printf("anycode daemon: poll: %v", err)
	}
	if ev, ok := s.record(now, snap, byEngine, err); ok {
		s.feed.publish(ev)
	}
}

func (s *Service) measure(now time.Time) (Snapshot, []EngineSnapshot, error) {
	sessions, err := s.loadSessions()
	if err != nil {
		return Snapshot{}, nil, err
	}
	sessions = pipeline.Select(sessions,
		pipeline.OfEngines(s.cfg.Engines...),
		pipeline.OfProject(s.cfg.ProjectFilter),
		pipeline.UsingModel(s.cfg.ModelFilter),
	)
	since := now.AddDate(0, 0, -s.cfg.Days)
	snap := newSnapshot(now, pipeline.Aggregate(sessions, since, now))
	return snap, engineSnapshots(pipeline.AggregateEngines(sessions, since, now)), nil
}

// record stores a poll result and returns the event it warrants, if any.
// The first successful poll yields a snapshot event, later ones a delta.
func (s *Service) record(now time.Time, snap Snapshot, byEngine []EngineSnapshot, pollErr error) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls++
	s.lastPollAt = now
	if pollErr != nil {
		s.lastError = pollErr.Error()
		return Event{}, false
	}
	s.lastError = ""
	prev := s.current
	s.current = &snap
	s.byEngine = byEngine

	ev := Event{Type: EventSnapshot, Timestamp: now, Snapshot: snap}
	if prev == nil {
		return ev, true
	}
	ev.Type = EventUsageDelta
	ev.Delta = snap.Since(*prev)
	return ev, !ev.Delta.Empty()
}

func (s *Service) loadSessions() ([]model.SessionStats, error) {
	opts := pipeline.LoadOptions{
		Roots:            s.cfg.Roots,
		Engines:          s.cfg.Engines,
		IncludeSubagents: s.cfg.IncludeSubagents,
	}
	if s.cfg.UseCache {
		if cache, err := store.Open(pipeline.CachePath()); err == nil {
			defer func() { _ = cache.Close() }()
			cr, err := pipeline.LoadWithCache(opts, cache, nil)
			if err == nil {
				return cr.Sessions, nil
			}
			s.logger.Printf("anycode daemon: cache load failed, reparsing: %v", err)
		}
	}
	result, err := pipeline.Load(opts, nil)
	if err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

// Status reports the service state.
func (s *Service) Status() Status {
	events, subs := s.feed.counts()

	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval / time.Second),
		PollCount:       s.polls,
		Engines:         s.cfg.Engines,
		Days:            s.cfg.Days,
		ProjectFilter:   s.cfg.ProjectFilter,
		ModelFilter:     s.cfg.ModelFilter,
		ByEngine:        s.byEngine,
		LastError:       s.lastError,
		EventCount:      events,
		SubscriberCount: subs,
		Following:       s.tracker.Count(),
	}
	if s.current != nil {
		st.Summary = *s.current
	}
	return st
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.feed.recent())
}

// handleStream sends the current snapshot, then every published event.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	events, cancel := s.feed.subscribe(16)
	defer cancel()

	startSSE(w)
	sendEvent(w, Event{Type: EventSnapshot, Timestamp: time.Now(), Snapshot: s.Status().Summary})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			sendEvent(w, ev)
			flusher.Flush()
		}
	}
}
