package receipt

import "strings"

// Filter returns the records whose text fields contain query,
// case-insensitively. An empty query returns every record.
func Filter(records []*Record, query string) []*Record {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		out := make([]*Record, len(records))
		copy(out, records)
		return out
	}

	var out []*Record
	for _, r := range records {
		if matches(r, q) {
			out = append(out, r)
		}
	}
	return out
}

func matches(r *Record, q string) bool {
	fields := []string{
		r.CustomerName,
		r.CheckNumber,
		r.FileName,
		r.Date,
		r.Time,
		r.Amount,
		r.Tip,
		r.Total,
		r.ApprovalStatus,
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), q) {
			return true
		}
	}
	return false
}

// Unverified returns the records whose last verification failed or that
// were never verified.
func Unverified(records []*Record) []*Record {
	var out []*Record
	for _, r := range records {
		if r.Verification == nil || !r.Verification.IsCorrect {
			out = append(out, r)
		}
	}
	return out
}
