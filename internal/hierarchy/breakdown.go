package hierarchy

import "github.com/notifyhub/workitems/internal/domain"

// StatusShare is one row of a status breakdown.
type StatusShare struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Statistics summarizes a set of work items of one kind.
type Statistics struct {
	Kind           domain.Kind                   `json:"kind"`
	Total          int                           `json:"total"`
	ByStatus       map[domain.Status]StatusShare `json:"by_status"`
	CompletionRate float64                       `json:"completion_rate"`
}

// Breakdown counts statuses for kind. Every status of the kind appears in
// ByStatus, including those with a zero count; statuses outside the
// kind's set are ignored.
func Breakdown(kind domain.Kind, statuses []domain.Status) Statistics {
	counts := make(map[domain.Status]int, len(kind.Statuses()))
	total := 0
	for _, s := range statuses {
		if !kind.ValidStatus(s) {
			continue
		}
		counts[s]++
		total++
	}

	stats := Statistics{
		Kind:     kind,
		Total:    total,
		ByStatus: make(map[domain.Status]StatusShare, len(kind.Statuses())),
	}
	for _, s := range kind.Statuses() {
		share := StatusShare{Count: counts[s]}
		if total > 0 {
			share.Percentage = percent(counts[s], total)
		}
		stats.ByStatus[s] = share
	}
	if total > 0 {
		stats.CompletionRate = percent(counts[domain.StatusDone], total)
	}
	return stats
}
