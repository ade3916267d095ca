package adapter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/wysstartgo/anycode/internal/model"
)

// History is a fully converted session log.
type History struct {
	Messages    []model.Message
	Raw         [][]byte
	RateLimits  *model.RateLimits
	ParseErrors int
	// Offset is the byte offset just past the last record read. Following
	// the log from there yields exactly the records written afterwards.
	Offset int64
}

// Decoder converts the persisted history of one engine.
type Decoder struct {
	filter *KindFilter
	logger *log.Logger
}

// NewDecoder returns a history decoder that logs through logger.
func NewDecoder(logger *log.Logger) *Decoder {
	if logger == nil {
		logger = log.Default()
	}
	return &Decoder{filter: NewKindFilter(logger), logger: logger}
}

// Filter exposes the decoder's kind filter.
func (d *Decoder) Filter() *KindFilter { return d.filter }

// DecodeLines converts an ordered list of JSONL records. Records that fail to
// parse are counted and skipped. Records of unknown kind are dropped.
func (d *Decoder) DecodeLines(engine model.Engine, lines [][]byte) (History, error) {
	h := History{Raw: lines}
	switch engine {
	case model.EngineClaude:
		for _, line := range lines {
			if !d.filter.AllowLine(line) {
				continue
			}
			msg, err := Claude(line)
			if err != nil {
				h.ParseErrors++
				continue
			}
			h.Messages = append(h.Messages, msg)
		}
	case model.EngineCodex:
		c := NewCodex()
		for _, line := range lines {
			msg, err := c.Adapt(line)
			if err != nil {
				h.ParseErrors++
				continue
			}
			if msg != nil {
				h.Messages = append(h.Messages, *msg)
			}
		}
		h.RateLimits = c.RateLimits()
	case model.EngineGemini:
		// A Gemini log is a single JSON document.
		s, err := DecodeGeminiSession(bytes.Join(lines, []byte("\n")))
		if err != nil {
			return h, err
		}
		h.Messages = Gemini(s)
	default:
		return h, fmt.Errorf("unsupported engine %q", engine)
	}
	h.Messages = d.filter.Filter(h.Messages)
	if h.ParseErrors > 0 {
		d.logger.Printf("adapter: %s history: skipped %d malformed records", engine, h.ParseErrors)
	}
	return h, nil
}

// DecodeReader reads a session log and converts it.
func (d *Decoder) DecodeReader(engine model.Engine, r io.Reader) (History, error) {
	if engine == model.EngineGemini {
		data, err := io.ReadAll(r)
		if err != nil {
			return History{}, err
		}
		h, err := d.DecodeLines(engine, [][]byte{data})
		h.Offset = int64(len(data))
		return h, err
	}
	lines, offset, err := readRecords(r)
	if err != nil {
		return History{}, err
	}
	h, err := d.DecodeLines(engine, lines)
	h.Offset = offset
	return h, err
}

// ReadLines splits a JSONL stream into non-empty records.
func ReadLines(r io.Reader) ([][]byte, error) {
	lines, _, err := readRecords(r)
	return lines, err
}

// readRecords splits a JSONL stream into non-empty records and returns the
// offset just past the last one. A final record without a newline is kept
// only when it is already valid JSON; otherwise it is still being written,
// and the offset stops in front of it.
func readRecords(r io.Reader) ([][]byte, int64, error) {
	var (
		consumed   int64
		terminated bool
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 8*1024*1024)
	scanner.Split(func(data []byte, atEOF bool) (int, []byte, error) {
		advance, token, err := bufio.ScanLines(data, atEOF)
		if advance > 0 {
			consumed += int64(advance)
			terminated = data[advance-1] == '\n'
		}
		return advance, token, err
	})

	var (
		lines  [][]byte
		offset int64
	)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) > 0 && !terminated && !json.Valid(line) {
			break
		}
		offset = consumed
		if len(line) > 0 {
			lines = append(lines, bytes.Clone(line))
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return lines, offset, err
	}
	return lines, offset, nil
}
