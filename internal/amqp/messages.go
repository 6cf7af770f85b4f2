package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/services"
)

// LedgerChangedMessage announces one applied ledger command. Consumers reload
// the state themselves; the message only says whose months moved.
type LedgerChangedMessage struct {
	User      string    `json:"user"`
	Kind      string    `json:"kind"`
	Periods   []string  `json:"periods,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerChangedMessage(c services.Change) *LedgerChangedMessage {
	periods := make([]string, 0, len(c.Periods))
	for _, p := range c.Periods {
		periods = append(periods, string(p))
	}
	ts := c.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &LedgerChangedMessage{User: c.User, Kind: c.Kind, Periods: periods, Timestamp: ts}
}

func (m *LedgerChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerChangedMessageFromJSON decodes and checks a message body.
func LedgerChangedMessageFromJSON(data []byte) (*LedgerChangedMessage, error) {
	var msg LedgerChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.User == "" {
		return nil, fmt.Errorf("message without user")
	}
	return &msg, nil
}

// AffectedPeriods parses Periods, dropping malformed entries.
func (m *LedgerChangedMessage) AffectedPeriods() []core.Period {
	out := make([]core.Period, 0, len(m.Periods))
	for _, s := range m.Periods {
		if p := core.ParsePeriod(s); p != core.InvalidPeriod {
			out = append(out, p)
		}
	}
	return out
}
