package event

import (
	"time"

	"github.com/google/uuid"
)

// HeaderDeadLetterReason carries the rejection reason on dead-lettered messages.
const HeaderDeadLetterReason = "x-dead-letter-reason"

// Dead-letter reasons.
const (
	ReasonMalformed        = "malformed"
	ReasonRetriesExhausted = "retries_exhausted"
)

// DeadLetter wraps a message moved to the holding area. Body is the original
// payload, byte for byte.
type DeadLetter struct {
	ID          string    `json:"id"`
	Reason      string    `json:"reason"`
	Error       string    `json:"error,omitempty"`
	SourceTopic string    `json:"source_topic"`
	Partition   int       `json:"partition,omitempty"`
	Offset      int64     `json:"offset,omitempty"`
	Attempts    int       `json:"attempts"`
	FailedAt    time.Time `json:"failed_at"`
	Body        []byte    `json:"body"`
}

func NewDeadLetter(sourceTopic, reason, errMsg string, attempts int, body []byte) *DeadLetter {
	return &DeadLetter{
		ID:          uuid.NewString(),
		Reason:      reason,
		Error:       errMsg,
		SourceTopic: sourceTopic,
		Attempts:    attempts,
		FailedAt:    time.Now().UTC(),
		Body:        body,
	}
}
