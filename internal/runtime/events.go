// Package runtime implements the dialogue action runtime: the turn context,
// form handling and every action the conversation engine can invoke.
package runtime

// Event is a state mutation returned to the conversation engine. The wire
// shape follows the action server protocol.
type Event map[string]any

// SetSlot sets a slot value. A nil value clears the slot.
func SetSlot(name string, value any) Event {
	return Event{"event": "slot", "name": name, "value": value}
}

// FollowupAction queues another action to run after this one.
func FollowupAction(name string) Event {
	return Event{"event": "followup", "name": name}
}

// ActivateForm starts a form loop.
func ActivateForm(name string) Event {
	return Event{"event": "active_loop", "name": name}
}

// DeactivateForm ends the running form loop.
func DeactivateForm() Event {
	return Event{"event": "active_loop", "name": nil}
}

// Message is one reply sent back to the user.
type Message struct {
	Text   string         `json:"text,omitempty"`
	Custom map[string]any `json:"custom,omitempty"`
}

// Say builds a plain text message.
func Say(text string) Message {
	return Message{Text: text}
}

// SayCustom builds a structured channel message.
func SayCustom(payload map[string]any) Message {
	return Message{Custom: payload}
}

// Output is the combined result of one action run.
type Output struct {
	Events   []Event
	Messages []Message
}

// Add appends events to the output.
func (o *Output) Add(events ...Event) {
	o.Events = append(o.Events, events...)
}

// Reply appends a plain text message.
func (o *Output) Reply(text string) {
	o.Messages = append(o.Messages, Say(text))
}

// ReplyCustom appends a structured message.
func (o *Output) ReplyCustom(payload map[string]any) {
	o.Messages = append(o.Messages, SayCustom(payload))
}
