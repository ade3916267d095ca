package source

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/wysstartgo/anycode/internal/adapter"
	"github.com/wysstartgo/anycode/internal/model"
)

// HistoryStore resolves session references to log files and loads them.
// The file index is rebuilt whenever a lookup misses.
type HistoryStore struct {
	roots   Roots
	decoder *adapter.Decoder
	logger  *log.Logger

	mu    sync.Mutex
	index []DiscoveredFile
}

// NewHistoryStore returns a store over the given engine directories.
func NewHistoryStore(roots Roots, logger *log.Logger) *HistoryStore {
	if logger == nil {
		logger = log.Default()
	}
	return &HistoryStore{roots: roots, decoder: adapter.NewDecoder(logger), logger: logger}
}

// Decoder exposes the store's decoder, whose kind filter remembers every
// unknown record kind seen so far.
func (s *HistoryStore) Decoder() *adapter.Decoder { return s.decoder }

// Files returns the current index, rescanning the engine directories.
func (s *HistoryStore) Files() ([]DiscoveredFile, error) {
	files, err := ScanAll(s.roots)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.index = files
	s.mu.Unlock()
	return files, nil
}

// Find resolves ref to its log file. An unambiguous prefix of a session id
// is accepted. The error wraps model.ErrSessionNotFound when nothing matches.
func (s *HistoryStore) Find(ref model.SessionRef) (DiscoveredFile, error) {
	s.mu.Lock()
	idx := s.index
	s.mu.Unlock()

	if df, ok := match(idx, ref); ok {
		return df, nil
	}
	idx, err := s.Files()
	if err != nil {
		return DiscoveredFile{}, err
	}
	if df, ok := match(idx, ref); ok {
		return df, nil
	}
	return DiscoveredFile{}, fmt.Errorf("%w: %s", model.ErrSessionNotFound, ref.SessionID)
}

func match(files []DiscoveredFile, ref model.SessionRef) (DiscoveredFile, bool) {
	if ref.SessionID == "" {
		return DiscoveredFile{}, false
	}
	var prefixed []DiscoveredFile
	for _, f := range files {
		if ref.Engine != "" && f.Engine != ref.Engine {
			continue
		}
		if ref.ProjectID != "" && f.ProjectDir != "" && f.ProjectDir != ref.ProjectID {
			continue
		}
		if f.SessionID == ref.SessionID {
			return f, true
		}
		if strings.HasPrefix(f.SessionID, ref.SessionID) {
			prefixed = append(prefixed, f)
		}
	}
	if len(prefixed) == 1 {
		return prefixed[0], true
	}
	return DiscoveredFile{}, false
}

// Load reads and converts the history of ref.
func (s *HistoryStore) Load(ctx context.Context, ref model.SessionRef) (adapter.History, error) {
	if err := ctx.Err(); err != nil {
		return adapter.History{}, err
	}
	df, err := s.Find(ref)
	if err != nil {
		return adapter.History{}, err
	}

	f, err := os.Open(df.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return adapter.History{}, fmt.Errorf("%w: %s", model.ErrSessionNotFound, ref.SessionID)
		}
		return adapter.History{}, err
	}
	defer func() { _ = f.Close() }()

	h, err := s.decoder.DecodeReader(df.Engine, f)
	if err != nil {
		return h, fmt.Errorf("load %s session %s: %w", df.Engine, df.SessionID, err)
	}
	if err := ctx.Err(); err != nil {
		return adapter.History{}, err
	}
	return h, nil
}

// Parse is ParseFile for a resolved reference.
func (s *HistoryStore) Parse(ref model.SessionRef) (ParseResult, error) {
	df, err := s.Find(ref)
	if err != nil {
		return ParseResult{}, err
	}
	res := parseFile(df, s.decoder)
	return res, res.Err
}
