package live

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/session"
)

// ErrNotRunning is returned when a live stream is requested for a session
// that is not running.
var ErrNotRunning = session.ErrNotRunning

// Tailer follows session logs and republishes every appended record on a Bus.
type Tailer struct {
	bus    *Bus
	idle   time.Duration
	logger *log.Logger
}

// NewTailer returns a tailer that signals completion once a log has been
// quiet for idle.
func NewTailer(bus *Bus, idle time.Duration, logger *log.Logger) *Tailer {
	if logger == nil {
		logger = log.Default()
	}
	if idle <= 0 {
		idle = 2 * time.Minute
	}
	return &Tailer{bus: bus, idle: idle, logger: logger}
}

// Follow publishes each complete line appended to p.Path from offset on as an
// output event. A negative offset starts at the current end of the file. It
// publishes complete and returns nil when the file goes idle or disappears,
// and returns ctx.Err() without publishing complete when ctx ends first.
func (t *Tailer) Follow(ctx context.Context, p model.Process, offset int64) error {
	f, err := os.Open(p.Path)
	if err != nil {
		return fmt.Errorf("tail %s: %w", p.SessionID, err)
	}
	defer func() { _ = f.Close() }()

	whence := io.SeekStart
	if offset < 0 {
		offset, whence = 0, io.SeekEnd
	}
	if _, err := f.Seek(offset, whence); err != nil {
		return fmt.Errorf("tail %s: %w", p.SessionID, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(p.Path); err != nil {
		return fmt.Errorf("watch %s: %w", p.Path, err)
	}

	r := &lineReader{r: bufio.NewReader(f)}
	emit := func() {
		lines, err := r.drain()
		for _, line := range lines {
			t.bus.Publish(p.SessionID, session.EventOutput, line)
		}
		if err != nil {
			t.bus.Publish(p.SessionID, session.EventError, []byte(err.Error()))
		}
	}
	emit()

	timer := time.NewTimer(t.idle)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			switch {
			case ev.Has(fsnotify.Write):
				emit()
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(t.idle)
			case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
				t.logger.Printf("live: %s log went away", p.SessionID)
				t.bus.Publish(p.SessionID, session.EventComplete, nil)
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			t.bus.Publish(p.SessionID, session.EventError, []byte(err.Error()))

		case <-timer.C:
			emit()
			t.bus.Publish(p.SessionID, session.EventComplete, nil)
			return nil
		}
	}
}

// lineReader splits a growing file into complete lines, holding back a
// trailing partial line until its newline arrives.
type lineReader struct {
	r       *bufio.Reader
	pending []byte
}

func (l *lineReader) drain() ([][]byte, error) {
	var lines [][]byte
	for {
		chunk, err := l.r.ReadBytes('\n')
		l.pending = append(l.pending, chunk...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, nil
			}
			return lines, err
		}
		if line := bytes.TrimSpace(l.pending); len(line) > 0 {
			lines = append(lines, bytes.Clone(line))
		}
		l.pending = l.pending[:0]
	}
}

// Tracker runs at most one tail per running session. It is the in-process
// session.Transport: listeners subscribe on its bus, and Attach starts the
// tail that feeds them.
type Tracker struct {
	bus      *Bus
	tailer   *Tailer
	registry *Registry
	logger   *log.Logger

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewTracker wires a bus, tailer and registry together.
func NewTracker(bus *Bus, tailer *Tailer, registry *Registry, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.Default()
	}
	return &Tracker{bus: bus, tailer: tailer, registry: registry, logger: logger, active: make(map[string]context.CancelFunc)}
}

// Subscribe registers fn on the bus. Nothing is delivered until the session
// is attached.
func (t *Tracker) Subscribe(sessionID string, class session.EventClass, fn func([]byte)) func() {
	return t.bus.Subscribe(sessionID, class, fn)
}

// Attach starts tailing ref from offset. It returns ErrNotRunning when the
// session has no running log.
func (t *Tracker) Attach(ctx context.Context, ref model.SessionRef, offset int64) error {
	_, err := t.Ensure(ctx, ref.SessionID, offset)
	return err
}

// ListRunning delegates to the registry.
func (t *Tracker) ListRunning(ctx context.Context) ([]model.Process, error) {
	return t.registry.ListRunning(ctx)
}

// Ensure starts tailing sessionID from offset, or from the current end of
// its log when offset is negative, unless a tail is already running. A
// running tail keeps its position.
func (t *Tracker) Ensure(ctx context.Context, sessionID string, offset int64) (model.Process, error) {
	p, ok, err := t.registry.Lookup(ctx, sessionID)
	if err != nil {
		return model.Process{}, err
	}
	if !ok {
		return model.Process{}, ErrNotRunning
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, running := t.active[sessionID]; running {
		return p, nil
	}
	tailCtx, cancel := context.WithCancel(context.Background())
	t.active[sessionID] = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.tailer.Follow(tailCtx, p, offset); err != nil && !errors.Is(err, context.Canceled) {
			t.logger.Printf("live: tail %s: %v", sessionID, err)
			t.bus.Publish(sessionID, session.EventError, []byte(err.Error()))
		}
		t.mu.Lock()
		delete(t.active, sessionID)
		t.mu.Unlock()
		cancel()
	}()
	return p, nil
}

// Following reports whether a tail is running for sessionID.
func (t *Tracker) Following(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[sessionID]
	return ok
}

// Count returns the number of sessions being tailed.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// Close stops every tail and waits for them to exit.
func (t *Tracker) Close() {
	t.mu.Lock()
	for _, cancel := range t.active {
		cancel()
	}
	t.mu.Unlock()
	t.wg.Wait()
}
