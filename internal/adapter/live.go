package adapter

import (
	"errors"
	"fmt"

	"github.com/wysstartgo/anycode/internal/model"
)

// ErrNotLive is returned for engines whose sessions cannot be attached to.
var ErrNotLive = errors.New("engine has no live stream")

// LiveDecoder turns one live output payload into a canonical message. A nil
// message with a nil error means the payload carried nothing to display.
type LiveDecoder interface {
	Decode(payload []byte) (*model.Message, error)
}

// NewLiveDecoder returns the decoder for engine's live output.
func NewLiveDecoder(engine model.Engine) (LiveDecoder, error) {
	switch engine {
	case model.EngineClaude:
		return claudeLive{filter: NewKindFilter(nil)}, nil
	case model.EngineCodex:
		return NewCodex(), nil
	case model.EngineGemini:
		return nil, fmt.Errorf("%s: %w", engine, ErrNotLive)
	}
	return nil, fmt.Errorf("unsupported engine %q", engine)
}

// Decode implements LiveDecoder.
func (c *Codex) Decode(payload []byte) (*model.Message, error) {
	return c.Adapt(payload)
}

type claudeLive struct {
	filter *KindFilter
}

func (d claudeLive) Decode(payload []byte) (*model.Message, error) {
	msg, err := Claude(payload)
	if err != nil {
		return nil, err
	}
	if !d.filter.Allow(string(msg.Kind)) {
		return nil, nil
	}
	return &msg, nil
}
