package refresh

import "time"

// ItemError is one failed item of a cycle.
type ItemError struct {
	Title    string `json:"title"`
	Location string `json:"location"`
	Message  string `json:"message"`
}

func (e ItemError) String() string {
	return e.Title + ": " + e.Message
}

// Report is the result of one refresh cycle.
//
// Every enabled item ends up in Done or Cancelled. Failed items are in Done
// and also in Errors. Disabled items are only listed in Disabled, so
// len(Done)+len(Cancelled)+len(Disabled) == Total.
type Report struct {
	Started   time.Time   `json:"started"`
	Finished  time.Time   `json:"finished"`
	Total     int         `json:"total"`
	Done      []string    `json:"done"`
	Disabled  []string    `json:"disabled,omitempty"`
	Cancelled []string    `json:"cancelled,omitempty"`
	Errors    []ItemError `json:"errors"`

	Updated     int `json:"updated"`
	NotModified int `json:"not_modified"`
	Skipped     int `json:"skipped"`
}

func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Failed reports whether any item recorded an error.
func (r *Report) Failed() bool {
	return len(r.Errors) > 0
}

// Messages returns the errors formatted as "title: message".
func (r *Report) Messages() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.String())
	}
	return out
}
