package runtime

import (
	"fmt"
	"strings"
)

// Entity is one extracted entity from the latest user message.
type Entity struct {
	Name  string `json:"entity"`
	Value any    `json:"value"`
}

// TurnContext is the read-only view of the conversation state an action
// sees: the latest message, recognized intent, entities and slot values.
type TurnContext struct {
	SenderID   string
	Text       string
	Intent     string
	Confidence float64
	Entities   []Entity
	Slots      map[string]any
	ActiveForm string
	Channel    string
}

// Slot returns a slot value as a string, empty when unset.
func (tc *TurnContext) Slot(name string) string {
	value, ok := tc.Slots[name]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// HasSlot reports whether a slot holds a non-empty value.
func (tc *TurnContext) HasSlot(name string) bool {
	return tc.Slot(name) != ""
}

// Entity returns the first value extracted for an entity name.
func (tc *TurnContext) Entity(name string) string {
	for _, e := range tc.Entities {
		if e.Name == name {
			if s, ok := e.Value.(string); ok {
				return s
			}
			return fmt.Sprint(e.Value)
		}
	}
	return ""
}

// FilledCount returns how many of the named slots hold values.
func (tc *TurnContext) FilledCount(names []string) int {
	n := 0
	for _, name := range names {
		if tc.HasSlot(name) {
			n++
		}
	}
	return n
}

// SideChannel reports whether the conversation runs on a channel that can
// receive structured events alongside text.
func (tc *TurnContext) SideChannel() bool {
	switch strings.ToLower(tc.Channel) {
	case "socketio", "websocket":
		return true
	}
	return false
}
