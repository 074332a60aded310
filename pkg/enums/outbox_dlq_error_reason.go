package enums

import "fmt"

// OutboxDLQErrorReason records why an outbox row was parked in outbox_dlq
// instead of being published.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts      OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable     OutboxDLQErrorReason = "non_retryable"
	OutboxDLQReasonUnsupportedEvent OutboxDLQErrorReason = "unsupported_event"
	OutboxDLQReasonMalformedPayload OutboxDLQErrorReason = "malformed_payload"
	OutboxDLQReasonNoPublisher      OutboxDLQErrorReason = "no_publisher"
)

var dlqReasons = map[OutboxDLQErrorReason]struct{}{
	OutboxDLQReasonMaxAttempts:      {},
	OutboxDLQReasonNonRetryable:     {},
	OutboxDLQReasonUnsupportedEvent: {},
	OutboxDLQReasonMalformedPayload: {},
	OutboxDLQReasonNoPublisher:      {},
}

func (r OutboxDLQErrorReason) IsValid() bool {
	_, ok := dlqReasons[r]
	return ok
}

func (r OutboxDLQErrorReason) String() string { return string(r) }

// Replayable reports whether an operator can requeue the row once the cause
// is fixed. Rows that never decoded cannot be replayed as-is.
func (r OutboxDLQErrorReason) Replayable() bool {
	switch r {
	case OutboxDLQReasonMaxAttempts, OutboxDLQReasonNoPublisher:
		return true
	default:
		return false
	}
}

func ParseOutboxDLQErrorReason(value string) (OutboxDLQErrorReason, error) {
	r := OutboxDLQErrorReason(value)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid outbox dlq reason %q", value)
	}
	return r, nil
}
