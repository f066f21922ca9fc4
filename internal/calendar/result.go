package calendar

import "fmt"

// Result reports the outcome of a mutation. A rejected request returns an
// error instead; Result describes requests that reached the store.
type Result struct {
	// Err is the persistence failure, if any. Local state is not rolled back.
	Err       error  `json:"-"`
	Message   string `json:"message"`
	EventID   string `json:"event_id,omitempty"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Skipped   int    `json:"skipped,omitempty"`
	OK        bool   `json:"ok"`
	Partial   bool   `json:"partial,omitempty"`
}

func success(msg, eventID string) Result {
	return Result{OK: true, Message: msg, EventID: eventID, Succeeded: 1}
}

func failure(msg, eventID string, err error) Result {
	return Result{Message: msg, EventID: eventID, Failed: 1, Err: err}
}

// tally aggregates a batch into success, partial success, or failure.
// done is the past tense of the action, do its infinitive.
func tally(done, do string, succeeded, failed int, errs []error) Result {
	r := Result{Succeeded: succeeded, Failed: failed}
	if len(errs) > 0 {
		r.Err = errs[0]
	}
	switch {
	case failed == 0:
		r.OK = true
		r.Message = fmt.Sprintf("%s %d %s", done, succeeded, plural(succeeded))
	case succeeded == 0:
		r.Message = fmt.Sprintf("Failed to %s %d %s", do, failed, plural(failed))
	default:
		r.Partial = true
		r.Message = fmt.Sprintf("%s %d %s, %d failed", done, succeeded, plural(succeeded), failed)
	}
	return r
}

func plural(n int) string {
	if n == 1 {
		return "event"
	}
	return "events"
}
