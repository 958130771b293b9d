package analytics

import "time"

const (
	ScopeMine = "mine"
	ScopeAll  = "all"
)

// Query carries the raw query string parameters.
type Query struct {
	From   string
	To     string
	Scope  string
	Status string
}

// Filter selects the rows to aggregate. A nil UserID covers every user.
// An empty Status leaves rejected expenses out.
type Filter struct {
	UserID *int64
	From   *time.Time
	To     *time.Time
	Status string
}
