package pipeline

import "time"

// Stage is the furthest point an article reached in a run.
type Stage int

const (
	StageFetched Stage = iota
	StageNormalized
	StageClassified
	StagePersisted
	StageRejected
	StageFailed
	StageSkipped
)

func (s Stage) String() string {
	switch s {
	case StageFetched:
		return "fetched"
	case StageNormalized:
		return "normalized"
	case StageClassified:
		return "classified"
	case StagePersisted:
		return "persisted"
	case StageRejected:
		return "rejected"
	case StageFailed:
		return "failed"
	case StageSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome records what happened to the raw record at Index.
type Outcome struct {
	Index            int
	URL              string
	Stage            Stage
	Topics           []string
	Classified       bool
	FullTextFallback bool
	Published        bool
	Err              error
}

// Summary reports a run. It is returned even when the run was cancelled.
type Summary struct {
	RunID             string
	ConfigVersion     string
	Fetched           int
	Rejected          int
	Classified        int
	Unassigned        int
	Persisted         int
	Failed            int
	Skipped           int
	FullTextFallbacks int
	Published         int
	Cancelled         bool
	Started           time.Time
	Finished          time.Time
	Outcomes          []Outcome
}

// tally folds outcomes into the counters.
func (s *Summary) tally(outcomes []Outcome) {
	s.Outcomes = outcomes
	for _, o := range outcomes {
		switch o.Stage {
		case StageRejected:
			s.Rejected++
		case StageFailed:
			s.Failed++
		case StagePersisted:
			s.Persisted++
		case StageSkipped:
			s.Skipped++
		}
		if o.Classified {
			s.Classified++
			if len(o.Topics) == 0 {
				s.Unassigned++
			}
		}
		if o.FullTextFallback {
			s.FullTextFallbacks++
		}
		if o.Published {
			s.Published++
		}
	}
}

// Fields renders the counters for structured logging.
func (s Summary) Fields() map[string]any {
	return map[string]any{
		"run_id":              s.RunID,
		"config_version":      s.ConfigVersion,
		"fetched":             s.Fetched,
		"rejected":            s.Rejected,
		"classified":          s.Classified,
		"unassigned":          s.Unassigned,
		"persisted":           s.Persisted,
		"failed":              s.Failed,
		"skipped":             s.Skipped,
		"full_text_fallbacks": s.FullTextFallbacks,
		"published":           s.Published,
		"cancelled":           s.Cancelled,
		"duration_ms":         s.Finished.Sub(s.Started).Milliseconds(),
	}
}
