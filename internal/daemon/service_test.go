package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wysstartgo/anycode/internal/model"
	"github.com/wysstartgo/anycode/internal/source"
)

func assistantLine(id string, at time.Time, in, out int) string {
	return fmt.Sprintf(`{"type":"assistant","timestamp":%q,"message":{"id":%q,"model":"claude-sonnet-4-5","usage":{"input_tokens":%d,"output_tokens":%d}}}`+"\n",
		at.UTC().Format(time.RFC3339), id, in, out)
}

func TestPollEmitsSnapshotThenDeltas(t *testing.T) {
	root := t.TempDir()
	s := New(Config{
		Roots:  source.Roots{Claude: root},
		Days:   7,
		Logger: log.New(&bytes.Buffer{}, "", 0),
	})
	t.Cleanup(s.tracker.Close)

	hourAgo := time.Now().Add(-time.Hour)
	writeLog(t, filepath.Join(root, "projects", "-w-app", "s1.jsonl"), assistantLine("m1", hourAgo, 100, 10))

	s.poll(time.Now())
	s.poll(time.Now())

	events := s.feed.recent()
	require.Len(t, events, 1, "an unchanged poll publishes nothing")
	assert.Equal(t, EventSnapshot, events[0].Type)
	assert.Equal(t, int64(1), events[0].ID)
	assert.Equal(t, 1, events[0].Snapshot.Sessions)
	assert.Equal(t, int64(110), events[0].Snapshot.Tokens)

	writeLog(t, filepath.Join(root, "projects", "-w-app", "s2.jsonl"), assistantLine("m2", hourAgo, 50, 5))
	s.poll(time.Now())

	st := s.Status()
	assert.Equal(t, int64(3), st.PollCount)
	assert.Equal(t, 2, st.EventCount)
	assert.Empty(t, st.LastError)
	require.Len(t, st.ByEngine, 1)
	assert.Equal(t, model.EngineClaude, st.ByEngine[0].Engine)
	assert.Equal(t, 2, st.ByEngine[0].Sessions)

	delta := s.feed.recent()[1]
	assert.Equal(t, EventUsageDelta, delta.Type)
	assert.Equal(t, 1, delta.Delta.Sessions)
	assert.Equal(t, int64(55), delta.Delta.Tokens)
}

func TestRecordKeepsLastSnapshotOnError(t *testing.T) {
	s, _ := newTestService(t)
	now := time.Now()

	_, ok := s.record(now, Snapshot{Sessions: 3}, nil, nil)
	require.True(t, ok)
	_, ok = s.record(now, Snapshot{}, nil, errors.New("disk gone"))
	assert.False(t, ok)

	st := s.Status()
	assert.Equal(t, "disk gone", st.LastError)
	assert.Equal(t, 3, st.Summary.Sessions)
	assert.Equal(t, int64(2), st.PollCount)
}

func TestStatusOverHTTP(t *testing.T) {
	s, _ := newTestService(t)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	st, err := FetchStatus(context.Background(), strings.TrimPrefix(srv.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, model.Engines, st.Engines)
	assert.Equal(t, int(DefaultInterval/time.Second), st.PollIntervalSec)
	assert.Zero(t, st.Following)
}

func TestFeedKeepsNewest(t *testing.T) {
	f := newFeed(2)
	ch, cancel := f.subscribe(4)

	for i := 0; i < 3; i++ {
		f.publish(Event{Type: EventUsageDelta})
	}

	events := f.recent()
	require.Len(t, events, 2)
	assert.Equal(t, []int64{2, 3}, []int64{events[0].ID, events[1].ID})
	assert.Len(t, ch, 3)

	_, subs := f.counts()
	assert.Equal(t, 1, subs)
	cancel()
	_, subs = f.counts()
	assert.Zero(t, subs)
}

func TestSnapshotSince(t *testing.T) {
	d := Snapshot{Sessions: 12, APICalls: 136, Tokens: 1_250_000, EstimatedCostUSD: 13.1}.
		Since(Snapshot{Sessions: 10, APICalls: 120, Tokens: 1_000_000, EstimatedCostUSD: 10.5})
	assert.Equal(t, 2, d.Sessions)
	assert.Equal(t, 16, d.APICalls)
	assert.Equal(t, int64(250_000), d.Tokens)
	assert.InDelta(t, 2.6, d.EstimatedCostUSD, 1e-9)
	assert.False(t, d.Empty())
	assert.True(t, Delta{}.Empty())
}

func TestPIDFile(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "run", "anycoded.pid")}

	_, err := p.Read()
	require.ErrorIs(t, err, ErrNotRunning)

	require.NoError(t, p.Claim("127.0.0.1:9999"))
	st, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "127.0.0.1:9999", st.Addr)

	assert.ErrorContains(t, p.Claim("127.0.0.1:9999"), "already running")

	p.Release()
	_, err = p.Read()
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestPIDFileDropsStaleEntry(t *testing.T) {
	p := PIDFile{Path: filepath.Join(t.TempDir(), "anycoded.pid")}
	// A pid near the kernel maximum is not live in a test run.
	require.NoError(t, os.WriteFile(p.Path, []byte(strconv.Itoa(1<<22-3)+"\n"), 0o600))

	_, err := p.Read()
	require.ErrorIs(t, err, ErrNotRunning)
	assert.NoFileExists(t, p.Path)
}
