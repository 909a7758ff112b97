package simm

import (
	"encoding/json"
	"time"

	"github.com/Aidin1998/marginx_unified/internal/margin/model"
)

// AuditRecorder captures the ordered, named steps of one calculation run.
// It is owned by a single calculation and is not safe for concurrent use;
// the pipeline runs single-threaded.
type AuditRecorder struct {
	entries []model.AuditEntry
	order   int
}

// NewAuditRecorder creates an empty recorder.
func NewAuditRecorder() *AuditRecorder {
	return &AuditRecorder{}
}

// Step begins a named step with the given input payload and returns a
// function that finishes the step, recording the output payload and the
// elapsed processing time. Callers must invoke the returned function exactly
// once, including on error paths.
func (r *AuditRecorder) Step(name string, input interface{}) func(output interface{}) {
	start := time.Now()
	return func(output interface{}) {
		r.order++
		r.entries = append(r.entries, model.AuditEntry{
			StepName:         name,
			StepOrder:        r.order,
			InputData:        marshalPayload(input),
			OutputData:       marshalPayload(output),
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			CreatedAt:        time.Now(),
		})
	}
}

// Entries returns the recorded steps in order.
func (r *AuditRecorder) Entries() []model.AuditEntry {
	return r.entries
}

func marshalPayload(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return `{"marshal_error":"` + err.Error() + `"}`
	}
	return string(b)
}
