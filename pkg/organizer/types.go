package organizer

import "time"

// Reply is the assistant's answer to a message.
type Reply struct {
	Action string `json:"action"`
	Answer string `json:"answer"`
	Branch string `json:"branch,omitempty"`
}

// SearchRequest is a question about the user's records. An empty List searches every list.
type SearchRequest struct {
	List  string `json:"list,omitempty"`
	Query string `json:"query"`
}

// Record is one retrieved note or reminder.
type Record struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Distance *float64          `json:"distance,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Aggregate is a computed value over the retrieved records.
type Aggregate struct {
	Function string  `json:"function"`
	Field    string  `json:"field"`
	Value    float64 `json:"value"`
	Records  int     `json:"records"`
	Comment  string  `json:"comment,omitempty"`
}

// Answer is the planned answer to a search.
type Answer struct {
	Answer    string     `json:"answer"`
	Branch    string     `json:"branch"`
	Count     int        `json:"count"`
	Records   []Record   `json:"records"`
	Aggregate *Aggregate `json:"aggregate,omitempty"`
}

// List is a named folder of notes.
type List struct {
	Name      string    `json:"name"`
	Config    string    `json:"config,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Period is token usage over one day or month. Remaining is -1 when unlimited.
type Period struct {
	Limit     int64      `json:"limit"`
	Used      int64      `json:"used"`
	Remaining int64      `json:"remaining"`
	ResetsAt  *time.Time `json:"resets_at,omitempty"`
	Exhausted bool       `json:"exhausted"`
}

// Usage is the provider token spend.
type Usage struct {
	Daily   Period `json:"daily"`
	Monthly Period `json:"monthly"`
}

// Health is the server health report.
type Health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
