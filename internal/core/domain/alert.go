package domain

// Alert is a server-originated notification. Accumulated append-only for the
// session, consumed only for display.
type Alert struct {
	Type            string   `json:"type"`
	Severity        string   `json:"severity"`
	Title           string   `json:"title"`
	Message         string   `json:"message"`
	Timestamp       float64  `json:"timestamp"`
	Recommendations []string `json:"recommendations,omitempty"`
	Priority        string   `json:"priority"`
}
