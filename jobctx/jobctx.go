// Package jobctx carries per-job identity and progress emission as an
// explicit value threaded through orchestrator calls, never ambient state.
package jobctx

import "time"

// Flow names double as the event-name prefix on the progress channel.
const (
	FlowSagCreation   = "sag-creation"
	FlowTokenPurchase = "token-purchase"
	FlowRepayment     = "repayment"
)

// Emitter pushes an event payload to one user's progress channel.
type Emitter interface {
	Emit(userID, event string, payload interface{})
}

// ProgressEvent is the payload of every "-progress" event.
type ProgressEvent struct {
	JobID     string                 `json:"jobId"`
	RefID     string                 `json:"refId"`
	Stage     string                 `json:"stage"`
	Progress  int                    `json:"progress"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// ErrorEvent is the payload of every "-error" event.
type ErrorEvent struct {
	JobID     string `json:"jobId"`
	RefID     string `json:"refId"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// Context identifies one running job. SetProgress, when non-nil, forwards the
// percentage to the job queue's own progress tracking.
type Context struct {
	JobID       string
	UserID      string
	Flow        string
	RefID       string
	Emitter     Emitter
	SetProgress func(percent int)
}

// Progress reports a stage transition to both the queue and the user channel.
func (c Context) Progress(stage string, percent int, message string) {
	c.ProgressDetails(stage, percent, message, nil)
}

// ProgressDetails is Progress with an extra detail payload (batch counters
// and the like).
func (c Context) ProgressDetails(stage string, percent int, message string, details map[string]interface{}) {
	if c.SetProgress != nil {
		c.SetProgress(percent)
	}
	if c.Emitter == nil {
		return
	}
	c.Emitter.Emit(c.UserID, c.Flow+"-progress", ProgressEvent{
		JobID:     c.JobID,
		RefID:     c.RefID,
		Stage:     stage,
		Progress:  percent,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Complete pushes the terminal success payload.
func (c Context) Complete(payload interface{}) {
	if c.Emitter == nil {
		return
	}
	c.Emitter.Emit(c.UserID, c.Flow+"-complete", payload)
}

// Fail pushes the terminal error event.
func (c Context) Fail(message string) {
	if c.Emitter == nil {
		return
	}
	c.Emitter.Emit(c.UserID, c.Flow+"-error", ErrorEvent{
		JobID:     c.JobID,
		RefID:     c.RefID,
		Error:     message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
