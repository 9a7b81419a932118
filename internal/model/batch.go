package model

import "sync"

// OutcomeStatus classifies how a single batch item ended.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the result for one item of a batch operation.
type Outcome struct {
	ID     string        `json:"id"`
	Status OutcomeStatus `json:"status"`
	Detail string        `json:"detail,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// BatchResult accumulates per-item outcomes. A batch never aborts on a single
// item; failures are recorded here instead. Safe for concurrent use.
type BatchResult struct {
	mu       sync.Mutex
	Outcomes []Outcome `json:"outcomes"`
}

// Succeed records a successful item.
func (b *BatchResult) Succeed(id, detail string) {
	b.add(Outcome{ID: id, Status: OutcomeSucceeded, Detail: detail})
}

// Skip records an item that needed no change.
func (b *BatchResult) Skip(id, detail string) {
	b.add(Outcome{ID: id, Status: OutcomeSkipped, Detail: detail})
}

// Fail records a failed item.
func (b *BatchResult) Fail(id string, err error) {
	o := Outcome{ID: id, Status: OutcomeFailed}
	if err != nil {
		o.Error = err.Error()
	}
	b.add(o)
}

func (b *BatchResult) add(o Outcome) {
	b.mu.Lock()
	b.Outcomes = append(b.Outcomes, o)
	b.mu.Unlock()
}

// Count returns the number of outcomes with the given status.
func (b *BatchResult) Count(status OutcomeStatus) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, o := range b.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Total returns the number of recorded outcomes.
func (b *BatchResult) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Outcomes)
}

// Failures returns the failed outcomes.
func (b *BatchResult) Failures() []Outcome {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Outcome
	for _, o := range b.Outcomes {
		if o.Status == OutcomeFailed {
			out = append(out, o)
		}
	}
	return out
}

// Summary is the JSON-friendly aggregate of a batch.
type Summary struct {
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
	Failures  []Outcome `json:"failures,omitempty"`
}

// Summarize returns the aggregate counts of the batch.
func (b *BatchResult) Summarize() Summary {
	return Summary{
		Total:     b.Total(),
		Succeeded: b.Count(OutcomeSucceeded),
		Skipped:   b.Count(OutcomeSkipped),
		Failed:    b.Count(OutcomeFailed),
		Failures:  b.Failures(),
	}
}
