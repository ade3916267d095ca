// Package session moves a viewer between a session's finished history and
// its live event stream, guarding against races from rapid session switches.
package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/wysstartgo/anycode/internal/adapter"
	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/usage"
)

// ErrSessionNotFound is the sentinel loaders wrap for a missing session.
var ErrSessionNotFound = model.ErrSessionNotFound

// ErrNotRunning reports that a session has no running process to follow.
var ErrNotRunning = errors.New("session is not running")

// Loader fetches and converts the persisted history of a session.
type Loader interface {
	Load(ctx context.Context, ref model.SessionRef) (adapter.History, error)
}

// Transport delivers live events for a session. fn may be called from any
// goroutine; the returned function removes the subscription.
type Transport interface {
	Subscribe(sessionID string, class EventClass, fn func(payload []byte)) (unsubscribe func())
}

// Attacher is implemented by transports that must be told to start
// delivering a session's events after its listeners are subscribed. offset
// is where the loaded history ended, or -1 to start with new records only.
// Attach runs off the controller loop.
type Attacher interface {
	Attach(ctx context.Context, ref model.SessionRef, offset int64) error
}

// RunningLister reports the sessions that are currently running.
type RunningLister interface {
	ListRunning(ctx context.Context) ([]model.Process, error)
}

// Sink receives everything the controller publishes. Calls are made from the
// controller's loop goroutine, one at a time.
type Sink interface {
	HistoryLoaded(ref model.SessionRef, h adapter.History)
	MessageAppended(ref model.SessionRef, msg model.Message)
	Error(ref model.SessionRef, err error)
	Reset(ref model.SessionRef)
	StateChanged(s State)
}

// Snapshot is a point-in-time view of the controller, safe to read from any
// goroutine.
type Snapshot struct {
	State     State
	Requested model.SessionRef
	Active    model.SessionRef
	Listening bool
	Discarded int
}

// Controller serializes all session work on a single loop goroutine started
// by Run. Fetches run on their own goroutines and post their completions
// back to the loop; a completion whose generation is no longer the latest is
// discarded without side effects.
type Controller struct {
	loader    Loader
	transport Transport
	running   RunningLister
	sink      Sink
	logger    *log.Logger

	inbox chan func()
	done  chan struct{}

	// Loop-owned.
	runCtx     context.Context
	gen        uint64
	requested  model.SessionRef
	cancelLoad context.CancelFunc
	state      State
	listenID   uint64
	listenRef  model.SessionRef
	listening  bool
	unsubs     []func()
	discarded  int
	resumeAt   int64 // history offset for the next attach to requested, or -1

	snapMu sync.Mutex
	snap   Snapshot
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger for swallowed failures and dropped payloads.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRunningLister enables attaching to running sessions.
func WithRunningLister(r RunningLister) Option {
	return func(c *Controller) { c.running = r }
}

// New returns a controller. It does nothing until Run is called.
func New(loader Loader, transport Transport, sink Sink, opts ...Option) *Controller {
	c := &Controller{
		loader:    loader,
		transport: transport,
		sink:      sink,
		logger:    log.Default(),
		inbox:     make(chan func(), 64),
		done:      make(chan struct{}),
		resumeAt:  -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes requests until ctx is done, then releases any live listeners.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			if c.cancelLoad != nil {
				c.cancelLoad()
			}
			c.release()
			return ctx.Err()
		case fn := <-c.inbox:
			fn()
		}
	}
}

// LoadHistory requests the history of ref. Any earlier request still in
// flight is superseded.
func (c *Controller) LoadHistory(ref model.SessionRef) {
	c.post(func() { c.loadHistory(ref) })
}

// CheckActive asks whether ref is running and attaches to it if so.
func (c *Controller) CheckActive(ref model.SessionRef) {
	c.post(func() { c.checkActive(ref, c.gen) })
}

// Reconnect attaches live listeners for ref. It is a no-op while any session
// is already being listened to.
func (c *Controller) Reconnect(ref model.SessionRef) {
	c.post(func() { c.reconnect(ref) })
}

// Disconnect releases the live listeners, if any.
func (c *Controller) Disconnect() {
	c.post(func() {
		c.release()
		c.setState(Idle)
	})
}

// Snapshot returns the controller's current state.
func (c *Controller) Snapshot() Snapshot {
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	return c.snap
}

func (c *Controller) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

func (c *Controller) loadHistory(ref model.SessionRef) {
	c.gen++
	gen := c.gen
	c.requested = ref
	c.resumeAt = -1
	if c.cancelLoad != nil {
		c.cancelLoad()
	}
	if c.listening && c.listenRef != ref {
		c.release()
	}

	ctx, cancel := context.WithCancel(c.runCtx)
	c.cancelLoad = cancel
	c.setState(LoadingHistory)

	go func() {
		h, err := c.loader.Load(ctx, ref)
		c.post(func() { c.finishLoad(gen, ref, h, err) })
	}()
}

func (c *Controller) finishLoad(gen uint64, ref model.SessionRef, h adapter.History, err error) {
	if gen != c.gen {
		c.discarded++
		c.publish()
		return
	}
	if c.cancelLoad != nil {
		c.cancelLoad()
		c.cancelLoad = nil
	}

	switch {
	case err == nil:
		usage.NormalizeMessages(h.Messages)
		c.resumeAt = h.Offset
		c.setState(HistoryLoaded)
		c.sink.HistoryLoaded(ref, h)
	case IsNotFound(err):
		c.setState(HistoryNotFound)
		c.sink.Reset(ref)
	default:
		c.sink.Error(ref, err)
		c.setState(Idle)
		return
	}
	c.checkActive(ref, gen)
}

func (c *Controller) checkActive(ref model.SessionRef, gen uint64) {
	if !ref.Engine.Live() || c.running == nil {
		c.settle()
		return
	}
	if c.listening && c.listenRef == ref {
		c.setState(Listening)
		return
	}
	c.setState(CheckingActive)

	ctx := c.runCtx
	go func() {
		procs, err := c.running.ListRunning(ctx)
		c.post(func() { c.finishCheck(gen, ref, procs, err) })
	}()
}

func (c *Controller) finishCheck(gen uint64, ref model.SessionRef, procs []model.Process, err error) {
	if gen != c.gen {
		c.discarded++
		c.publish()
		return
	}
	if err != nil {
		c.logger.Printf("session: checking running sessions for %s: %v", ref.SessionID, err)
		c.settle()
		return
	}
	for _, p := range procs {
		if p.SessionID == ref.SessionID && (p.Engine == "" || p.Engine == ref.Engine) {
			c.reconnect(ref)
			return
		}
	}
	c.settle()
}

func (c *Controller) reconnect(ref model.SessionRef) {
	if c.listening {
		return
	}
	c.release()

	dec, err := adapter.NewLiveDecoder(ref.Engine)
	if err != nil {
		c.sink.Error(ref, err)
		c.settle()
		return
	}

	c.listenID++
	id := c.listenID
	c.listenRef = ref
	c.listening = true

	for _, class := range EventClasses {
		handle := c.handler(id, ref, class, dec)
		unsub := c.transport.Subscribe(ref.SessionID, class, func(payload []byte) {
			p := append([]byte(nil), payload...)
			c.post(func() { handle(p) })
		})
		c.unsubs = append(c.unsubs, unsub)
	}

	// The history offset is good for one attach; later ones start at the end.
	offset := int64(-1)
	if ref == c.requested {
		offset, c.resumeAt = c.resumeAt, -1
	}
	if a, ok := c.transport.(Attacher); ok {
		ctx, cancel := context.WithCancel(c.runCtx)
		c.unsubs = append(c.unsubs, cancel)
		go func() {
			if err := a.Attach(ctx, ref, offset); err != nil && ctx.Err() == nil {
				c.post(func() { c.finishAttach(id, ref, err) })
			}
		}()
	}
	c.setState(Listening)
}

// finishAttach drops a listener set whose transport could not start.
func (c *Controller) finishAttach(id uint64, ref model.SessionRef, err error) {
	if !c.listening || c.listenID != id {
		return
	}
	if !errors.Is(err, ErrNotRunning) {
		c.sink.Error(ref, err)
	}
	c.release()
	c.setState(Idle)
}

// handler returns the loop-side handler for one event class. Events that
// arrive after their listener set was released are ignored.
func (c *Controller) handler(id uint64, ref model.SessionRef, class EventClass, dec adapter.LiveDecoder) func([]byte) {
	return func(payload []byte) {
		if !c.listening || c.listenID != id {
			return
		}
		switch class {
		case EventOutput:
			msg, err := dec.Decode(payload)
			if err != nil {
				c.logger.Printf("session: dropping malformed live payload for %s: %v: %s", ref.SessionID, err, payload)
				return
			}
			if msg == nil {
				return
			}
			batch := []model.Message{*msg}
			usage.NormalizeMessages(batch)
			c.sink.MessageAppended(ref, batch[0])
		case EventError:
			c.sink.Error(ref, errors.New(string(payload)))
		case EventComplete:
			c.release()
			c.setState(Idle)
		}
	}
}

func (c *Controller) release() {
	for _, unsub := range c.unsubs {
		if unsub != nil {
			unsub()
		}
	}
	c.unsubs = nil
	if c.listening {
		c.listenID++
	}
	c.listening = false
	c.listenRef = model.SessionRef{}
	c.publish()
}

// settle leaves the controller idle unless a listener set is active.
func (c *Controller) settle() {
	if c.listening {
		c.setState(Listening)
		return
	}
	c.setState(Idle)
}

func (c *Controller) setState(s State) {
	changed := c.state != s
	c.state = s
	c.publish()
	if changed {
		c.sink.StateChanged(s)
	}
}

func (c *Controller) publish() {
	c.snapMu.Lock()
	c.snap = Snapshot{
		State:     c.state,
		Requested: c.requested,
		Active:    c.listenRef,
		Listening: c.listening,
		Discarded: c.discarded,
	}
	c.snapMu.Unlock()
}
