package domain

import "time"

// Turn records one completed query/answer exchange within a session.
type Turn struct {
	Query     string    `json:"query"`
	Type      QueryType `json:"query_type"`
	Answer    string    `json:"answer"`
	Agents    []string  `json:"agents_involved"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is the durable conversational context scoped to one interaction
// thread. Sessions are created on first use, appended to after every
// completed turn, and never auto-deleted; retention is an external concern.
type Session struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Turns     []Turn         `json:"turns"`
	Context   map[string]any `json:"context"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
