package domain

import "strings"

// Status is a payout lifecycle state.
type Status string

const (
	StatusInitiated  Status = "INITIATED"
	StatusPending    Status = "PENDING"
	StatusInTransit  Status = "IN_TRANSIT"
	StatusAuthorized Status = "AUTHORIZED"
	StatusExecuted   Status = "EXECUTED"
	StatusPaid       Status = "PAID"
	StatusBounced    Status = "BOUNCED"
	StatusBlocked    Status = "BLOCKED"
	StatusCancelled  Status = "CANCELLED"
)

var knownStatuses = []Status{
	StatusInitiated,
	StatusPending,
	StatusInTransit,
	StatusAuthorized,
	StatusExecuted,
	StatusPaid,
	StatusBounced,
	StatusBlocked,
	StatusCancelled,
}

// KnownStatuses returns every status in lifecycle order.
func KnownStatuses() []Status {
	out := make([]Status, len(knownStatuses))
	copy(out, knownStatuses)
	return out
}

// ParseStatus accepts only exact members of the enumeration.
func ParseStatus(value string) (Status, bool) {
	for _, s := range knownStatuses {
		if string(s) == value {
			return s, true
		}
	}
	return "", false
}

// ParseStatuses parses a configured list, ignoring blanks.
func ParseStatuses(values []string) ([]Status, error) {
	out := make([]Status, 0, len(values))
	for _, raw := range values {
		raw = strings.ToUpper(strings.TrimSpace(raw))
		if raw == "" {
			continue
		}
		s, ok := ParseStatus(raw)
		if !ok {
			return nil, BadInput("unknown payout status: "+raw, map[string]any{"status": raw})
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, BadInput("at least one payout status is required", nil)
	}
	return out, nil
}

// DefaultSimulatedStatuses is the set the processor draws from when executing a payout.
func DefaultSimulatedStatuses() []Status {
	return []Status{
		StatusAuthorized,
		StatusPaid,
		StatusBounced,
		StatusBlocked,
		StatusInTransit,
		StatusExecuted,
		StatusCancelled,
	}
}
