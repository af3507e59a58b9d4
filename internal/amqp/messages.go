package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kinds of resources a change event can refer to.
const (
	KindExpense  = "expense"
	KindCategory = "category"
	KindBudget   = "budget"
)

// Actions a change event can carry.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
)

// ChangeEvent announces that a stored resource changed. It carries no payload;
// consumers fetch the current record by ID. Deleted events carry a snapshot of
// what was removed in Before when the consumer needs it.
type ChangeEvent struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Action    string          `json:"action"`
	UserID    string          `json:"userId"`
	Version   int64           `json:"version"`
	Timestamp time.Time       `json:"timestamp"`
	Before    json.RawMessage `json:"before,omitempty"`
}

// NewChangeEvent stamps a change event with the current time.
func NewChangeEvent(kind, action, id, userID string, version int64) *ChangeEvent {
	return &ChangeEvent{
		ID:        id,
		Kind:      kind,
		Action:    action,
		UserID:    userID,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// RoutingKey routes events by resource kind, for example "expense.created".
func (m *ChangeEvent) RoutingKey() string {
	return m.Kind + "." + m.Action
}

func (m *ChangeEvent) Validate() error {
	switch m.Kind {
	case KindExpense, KindCategory, KindBudget:
	default:
		return fmt.Errorf("unknown kind %q", m.Kind)
	}
	switch m.Action {
	case ActionCreated, ActionUpdated, ActionDeleted:
	default:
		return fmt.Errorf("unknown action %q", m.Action)
	}
	if m.ID == "" || m.UserID == "" {
		return fmt.Errorf("event is missing id or user")
	}
	return nil
}

func (m *ChangeEvent) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeEventFromJSON decodes and validates an event.
func ChangeEventFromJSON(data []byte) (*ChangeEvent, error) {
	var msg ChangeEvent
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
