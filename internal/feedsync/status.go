package feedsync

import "time"

const previewLen = 100

type LatestItem struct {
	ID         string    `json:"id"`
	Delivered  bool      `json:"delivered"`
	Preview    string    `json:"preview"`
	ObservedAt time.Time `json:"observedAt"`
}

// Status is a read-only view for the HTTP and chat surfaces.
type Status struct {
	LastCheckAt time.Time    `json:"lastCheckAt"`
	Pending     int          `json:"pending"`
	Total       int          `json:"total"`
	Latest      *LatestItem  `json:"latest,omitempty"`
	Running     bool         `json:"running"`
	LastResult  *CycleResult `json:"lastResult,omitempty"`
}

func (s *Service) Status() Status {
	s.mu.RLock()
	st := s.state
	out := Status{
		LastCheckAt: st.LastCheckAt,
		Pending:     st.PendingCount(),
		Total:       len(st.Items),
		Running:     s.running.Load(),
	}
	if it, ok := st.Latest(); ok {
		out.Latest = &LatestItem{
			ID:         it.ID,
			Delivered:  it.Delivered,
			Preview:    Preview(it.Content, previewLen),
			ObservedAt: it.ObservedAt,
		}
	}
	if s.last != nil {
		r := *s.last
		out.LastResult = &r
	}
	s.mu.RUnlock()
	return out
}

// Preview returns the first n runes of s.
func Preview(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
