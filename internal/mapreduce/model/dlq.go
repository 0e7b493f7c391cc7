package model

import "time"

// DLQAttempt is one recorded failed attempt against a DLQ item.
type DLQAttempt struct {
	Error      string    `json:"error"`
	AgentID    string    `json:"agent_id"`
	Timestamp  time.Time `json:"timestamp"`
	StderrTail string    `json:"stderr_tail,omitempty"`
}

// DLQItem is the durable record of a work item whose retry budget was
// exhausted. Re-enqueueing the same item id merges into Attempts rather
// than overwriting (spec §9 open question, resolved as merge-append).
type DLQItem struct {
	WorkItem       WorkItem     `json:"work_item"`
	FirstAttemptAt time.Time    `json:"first_attempt_at"`
	LastAttemptAt  time.Time    `json:"last_attempt_at"`
	Attempts       []DLQAttempt `json:"attempts"`
}

// DLQFilter selects a subset of DLQ items for listing or reprocessing.
type DLQFilter struct {
	// OlderThan/NewerThan bound LastAttemptAt, zero value means
	// unbounded on that side.
	OlderThan time.Time
	NewerThan time.Time

	// MinAttempts/MaxAttempts bound len(Attempts); zero MaxAttempts
	// means unbounded.
	MinAttempts int
	MaxAttempts int

	// ErrorSubstring, if non-empty, must appear in at least one
	// attempt's Error (case-insensitive).
	ErrorSubstring string
}

// Matches reports whether item satisfies the filter.
func (f DLQFilter) Matches(item DLQItem) bool {
	if !f.OlderThan.IsZero() && !item.LastAttemptAt.Before(f.OlderThan) {
		return false
	}
	if !f.NewerThan.IsZero() && item.LastAttemptAt.Before(f.NewerThan) {
		return false
	}
	if f.MinAttempts > 0 && len(item.Attempts) < f.MinAttempts {
		return false
	}
	if f.MaxAttempts > 0 && len(item.Attempts) > f.MaxAttempts {
		return false
	}
	if f.ErrorSubstring != "" {
		found := false
		for _, a := range item.Attempts {
			if containsFold(a.Error, f.ErrorSubstring) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return indexFold(haystack, needle) >= 0
}

// indexFold is a tiny case-insensitive substring search, avoiding a
// strings.ToLower allocation on both sides for the common short-filter
// case; the classifier in the agent package does the same thing for the
// transient-error list.
func indexFold(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	hn, nn := len(haystack), len(needle)
	if nn > hn {
		return -1
	}
	for i := 0; i+nn <= hn; i++ {
		match := true
		for j := 0; j < nn; j++ {
			hc, nc := haystack[i+j], needle[j]
			if 'A' <= hc && hc <= 'Z' {
				hc += 'a' - 'A'
			}
			if 'A' <= nc && nc <= 'Z' {
				nc += 'a' - 'A'
			}
			if hc != nc {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
