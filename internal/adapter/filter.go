package adapter

import (
	"log"
	"slices"
	"sync"

	"github.com/samber/lo"

	"github.com/wysstartgo/anycode/internal/model"
)

// KindFilter drops persisted records whose kind is outside the canonical set.
// Each distinct unknown kind is logged once for the lifetime of the filter.
type KindFilter struct {
	logger *log.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewKindFilter returns a filter that logs to logger (log.Default() if nil).
func NewKindFilter(logger *log.Logger) *KindFilter {
	if logger == nil {
		logger = log.Default()
	}
	return &KindFilter{logger: logger, seen: make(map[string]struct{})}
}

// Allow reports whether kind belongs to the canonical set, logging the first
// sighting of every other value.
func (f *KindFilter) Allow(kind string) bool {
	if model.Kind(kind).Valid() {
		return true
	}
	f.mu.Lock()
	_, dup := f.seen[kind]
	if !dup {
		f.seen[kind] = struct{}{}
	}
	f.mu.Unlock()
	if !dup {
		f.logger.Printf("adapter: skipping records of unknown kind %q", kind)
	}
	return false
}

// AllowLine peeks at a raw JSONL record and applies Allow to its type.
func (f *KindFilter) AllowLine(line []byte) bool {
	return f.Allow(PeekType(line))
}

// Filter returns msgs without the records Allow rejects. Order is preserved.
func (f *KindFilter) Filter(msgs []model.Message) []model.Message {
	out := msgs[:0:0]
	for _, m := range msgs {
		if f.Allow(string(m.Kind)) {
			out = append(out, m)
		}
	}
	return out
}

// Unknown returns the distinct unknown kinds seen so far, sorted.
func (f *KindFilter) Unknown() []string {
	f.mu.Lock()
	out := lo.Keys(f.seen)
	f.mu.Unlock()
	slices.Sort(out)
	return out
}
