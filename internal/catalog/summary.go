package catalog

import (
	"sync"
	"time"
)

// Failure is the retained detail of a product that ended in an error.
type Failure struct {
	ProductURL string    `json:"product_url"`
	Key        string    `json:"key,omitempty"`
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
}

// Summary accumulates the outcomes of one run, it is safe for concurrent use.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	mutex    sync.Mutex
	counts   map[Outcome]int
	failures []Failure
}

func NewSummary(runID string, startedAt time.Time) *Summary {
	return &Summary{
		RunID:     runID,
		StartedAt: startedAt,
		counts:    map[Outcome]int{},
	}
}

// Observe records the outcome of a product, err is only kept for
// OutcomeError.
func (s *Summary) Observe(outcome Outcome, productURL, key string, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.counts[outcome]++
	if outcome != OutcomeError {
		return
	}

	failure := Failure{ProductURL: productURL, Key: key}
	if err != nil {
		failure.Message = err.Error()
		if kind, ok := KindOf(err); ok {
			failure.Kind = kind
		}
	}
	s.failures = append(s.failures, failure)
}

func (s *Summary) Finish(at time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.FinishedAt = at
}

func (s *Summary) count(outcome Outcome) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.counts[outcome]
}

func (s *Summary) Inserted() int { return s.count(OutcomeInserted) }
func (s *Summary) Updated() int  { return s.count(OutcomeUpdated) }
func (s *Summary) Skipped() int  { return s.count(OutcomeSkipped) }
func (s *Summary) Errors() int   { return s.count(OutcomeError) }

func (s *Summary) Total() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	total := 0
	for _, n := range s.counts {
		total += n
	}
	return total
}

func (s *Summary) Failures() []Failure {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]Failure, len(s.failures))
	copy(out, s.failures)
	return out
}

func (s *Summary) Duration() time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}
