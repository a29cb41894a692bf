package backfill

import "fmt"

// Kind is the per-record result of a backfill pass.
type Kind int

const (
	// KindUpdated means a score was parsed and staged.
	KindUpdated Kind = iota + 1
	// KindLeftNull means the comment parsed but had no score; NULL was staged.
	KindLeftNull
	// KindErrored means the parser failed; nothing was staged.
	KindErrored
)

func (k Kind) String() string {
	switch k {
	case KindUpdated:
		return "updated"
	case KindLeftNull:
		return "left-null"
	case KindErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Result is the outcome for one candidate.
type Result struct {
	RecordID string
	Kind     Kind
	// Score is the staged value for KindUpdated.
	Score *int
	// Err is the parser error for KindErrored.
	Err error
}

// Outcome tallies a backfill pass. Updated+LeftNull+Errored always equals
// len(Results).
type Outcome struct {
	Results  []Result
	Updated  int
	LeftNull int
	Errored  int
}

func (o *Outcome) add(r Result) {
	o.Results = append(o.Results, r)
	switch r.Kind {
	case KindUpdated:
		o.Updated++
	case KindLeftNull:
		o.LeftNull++
	case KindErrored:
		o.Errored++
	}
}

// Total is the number of processed candidates.
func (o *Outcome) Total() int {
	return o.Updated + o.LeftNull + o.Errored
}

// Staged is the number of records with a pending write.
func (o *Outcome) Staged() int {
	return o.Updated + o.LeftNull
}

// ErroredIDs lists the records whose parse failed.
func (o *Outcome) ErroredIDs() []string {
	var ids []string
	for _, r := range o.Results {
		if r.Kind == KindErrored {
			ids = append(ids, r.RecordID)
		}
	}
	return ids
}

func (o *Outcome) String() string {
	return fmt.Sprintf("%d updated, %d left null, %d errored", o.Updated, o.LeftNull, o.Errored)
}
