package pipeline

import (
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/wysstartgo/anycode/internal/model"
)

// Predicate selects sessions for a report.
type Predicate func(model.SessionStats) bool

// Select returns the sessions every predicate accepts. Nil predicates are
// skipped, so optional filters can be passed unconditionally.
func Select(sessions []model.SessionStats, preds ...Predicate) []model.SessionStats {
	preds = lo.Filter(preds, func(p Predicate, _ int) bool { return p != nil })
	if len(preds) == 0 {
		return sessions
	}
	return lo.Filter(sessions, func(s model.SessionStats, _ int) bool {
		return lo.EveryBy(preds, func(p Predicate) bool { return p(s) })
	})
}

// InRange accepts sessions that started within [since, until). A zero bound
// is open; a session without a start time is rejected once any bound is set.
func InRange(since, until time.Time) Predicate {
	if since.IsZero() && until.IsZero() {
		return nil
	}
	return func(s model.SessionStats) bool {
		switch {
		case s.StartTime.IsZero():
			return false
		case !since.IsZero() && s.StartTime.Before(since):
			return false
		case !until.IsZero() && !s.StartTime.Before(until):
			return false
		}
		return true
	}
}

// OfProject matches the project name or path, case-insensitively.
func OfProject(substr string) Predicate {
	if substr == "" {
		return nil
	}
	return func(s model.SessionStats) bool {
		return containsFold(s.Project, substr) || containsFold(s.ProjectPath, substr)
	}
}

// UsingModel accepts sessions that called a model whose name contains substr.
func UsingModel(substr string) Predicate {
	if substr == "" {
		return nil
	}
	return func(s model.SessionStats) bool {
		return lo.SomeBy(lo.Keys(s.Models), func(m string) bool { return containsFold(m, substr) })
	}
}

// OfEngines accepts sessions of the listed engines. Untagged sessions count
// as Claude.
func OfEngines(engines ...model.Engine) Predicate {
	if len(engines) == 0 {
		return nil
	}
	return func(s model.SessionStats) bool {
		return slices.Contains(engines, engineOf(s))
	}
}

// FilterByTime returns sessions whose start time falls within [since, until).
func FilterByTime(sessions []model.SessionStats, since, until time.Time) []model.SessionStats {
	return Select(sessions, InRange(since, until))
}

// FilterByProject returns sessions matching the project substring.
func FilterByProject(sessions []model.SessionStats, project string) []model.SessionStats {
	return Select(sessions, OfProject(project))
}

// FilterByModel returns sessions with at least one call to a matching model.
func FilterByModel(sessions []model.SessionStats, substr string) []model.SessionStats {
	return Select(sessions, UsingModel(substr))
}

// FilterByEngine keeps sessions of the listed engines. No engines keeps all.
func FilterByEngine(sessions []model.SessionStats, engines ...model.Engine) []model.SessionStats {
	return Select(sessions, OfEngines(engines...))
}

func engineOf(s model.SessionStats) model.Engine {
	return lo.CoalesceOrEmpty(s.Engine, model.EngineClaude)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
