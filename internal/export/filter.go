package export

import (
	"time"

	"github.com/calin/convohist/internal/domain"
)

const dateLayout = "2006-01-02"

// FilterByDateRange narrows a message sequence to an inclusive day-level
// window: [startDate 00:00:00.000, endDate 23:59:59.999], each bound
// applied independently when present. A nil or empty range returns the
// input unchanged. Message order is preserved, so a sequence sorted by
// timestamp stays sorted. Malformed date strings disable that bound.
func FilterByDateRange(messages []domain.Message, dr *domain.DateRange) []domain.Message {
	if dr == nil || (dr.StartDate == "" && dr.EndDate == "") {
		return messages
	}

	var start, end time.Time
	hasStart, hasEnd := false, false

	if dr.StartDate != "" {
		if t, err := time.ParseInLocation(dateLayout, dr.StartDate, time.UTC); err == nil {
			start = t
			hasStart = true
		}
	}
	if dr.EndDate != "" {
		if t, err := time.ParseInLocation(dateLayout, dr.EndDate, time.UTC); err == nil {
			end = t.AddDate(0, 0, 1).Add(-time.Millisecond)
			hasEnd = true
		}
	}
	if !hasStart && !hasEnd {
		return messages
	}

	filtered := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		ts := m.DateAdded.UTC()
		if hasStart && ts.Before(start) {
			continue
		}
		if hasEnd && ts.After(end) {
			continue
		}
		filtered = append(filtered, m)
	}

	return filtered
}
