package runtime

import (
	"context"
	"fmt"

	"concierge/internal/audit"
	"concierge/internal/validate"
)

// resettableSlots is everything a conversation restart clears.
var resettableSlots = []string{
	"service_type", "booking_date", "booking_time",
	"customer_name", "customer_email", "customer_phone",
	"booking_id", "cancellation_reason",
	"new_date", "new_time",
	"meeting_type", "meeting_date", "meeting_time", "meeting_duration",
	"attendee_name", "attendee_email",
	"callback_phone", "callback_time",
}

// importantSlots are the ones counted in interaction analytics.
var importantSlots = []string{
	"service_type", "booking_date", "booking_time",
	"meeting_type", "meeting_date", "meeting_time",
	"booking_id",
}

// handoffToHuman signals the human handoff. Channels with a side channel
// also get a structured event the frontend can react to.
func (rt *Runtime) handoffToHuman(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output

	rt.auditEvent(ctx, audit.Event{
		Action:         "handoff_request",
		ConversationID: tc.SenderID,
		Status:         audit.StatusInitiated,
		Metadata:       map[string]any{"intent": tc.Intent, "channel": tc.Channel},
	})

	out.Reply(rt.configs.Bot(ctx).HandoffMessage)
	if tc.SideChannel() {
		out.ReplyCustom(map[string]any{
			"event":           "handoff_request",
			"conversation_id": tc.SenderID,
			"context": map[string]any{
				"intent":       tc.Intent,
				"last_message": tc.Text,
			},
		})
	}
	return out, nil
}

// resetSlots clears every task slot and deactivates any running form.
func (rt *Runtime) resetSlots(_ context.Context, _ *TurnContext) (Output, error) {
	var out Output
	for _, slot := range resettableSlots {
		out.Add(SetSlot(slot, nil))
	}
	out.Add(DeactivateForm())
	out.Reply("Okay, I've cleared everything. What would you like to do?")
	return out, nil
}

// extractDate parses a date from the message and stores it in the slot the
// active flow expects.
func (rt *Runtime) extractDate(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output

	text := tc.Entity("date")
	if text == "" {
		text = tc.Text
	}
	date, err := validate.ParseDate(text, rt.now())
	if err != nil {
		out.Reply("I couldn't work out which date you mean. Try something like \"next Friday\" or \"2026-09-15\".")
		return out, nil
	}

	slot := "booking_date"
	if tc.ActiveForm == meetingForm.Name {
		slot = "meeting_date"
	}
	out.Add(SetSlot(slot, date.Format("2006-01-02")))
	return out, nil
}

// extractTime parses a time of day from the message.
func (rt *Runtime) extractTime(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output

	text := tc.Entity("time")
	if text == "" {
		text = tc.Text
	}
	hour, minute, err := validate.ParseTimeOfDay(text)
	if err != nil {
		out.Reply("I couldn't work out which time you mean. Try something like \"3 pm\" or \"15:30\".")
		return out, nil
	}

	slot := "booking_time"
	if tc.ActiveForm == meetingForm.Name {
		slot = "meeting_time"
	}
	out.Add(SetSlot(slot, validate.FormatClock(hour, minute)))
	return out, nil
}

// logInteraction records per-turn analytics. It emits no user messages.
func (rt *Runtime) logInteraction(ctx context.Context, tc *TurnContext) (Output, error) {
	if rt.audit != nil {
		rt.audit.LogInteraction(ctx, audit.Interaction{
			ConversationID: tc.SenderID,
			Intent:         tc.Intent,
			Confidence:     tc.Confidence,
			EntityCount:    len(tc.Entities),
			SlotsFilled:    tc.FilledCount(importantSlots),
		})
	}
	return Output{}, nil
}

// collectCallbackInfo validates callback details and files the request.
func (rt *Runtime) collectCallbackInfo(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output

	phone := tc.Slot("callback_phone")
	if phone == "" {
		phone = tc.Entity("phone")
	}
	if phone == "" {
		out.Reply("What's the best phone number to reach you on?")
		return out, nil
	}
	formatted, err := validate.FormatPhone(phone)
	if err != nil {
		out.Reply("I need a 10-digit phone number, like 555-123-4567.")
		out.Add(SetSlot("callback_phone", nil))
		return out, nil
	}

	callbackTime := tc.Slot("callback_time")
	result := rt.backend.RequestCallback(ctx, map[string]any{
		"phone":          formatted,
		"preferred_time": callbackTime,
		"conversation":   tc.SenderID,
	})
	if !result.Success {
		out.Reply(fallbackMessage(result.Error))
		return out, nil
	}

	rt.auditEvent(ctx, audit.Event{
		Action:         "callback_request",
		ConversationID: tc.SenderID,
		Status:         audit.StatusSuccess,
		DataHash:       audit.HashPII(formatted),
		Metadata:       map[string]any{"preferred_time": callbackTime},
	})

	message := "Thanks! Someone from our team will call you back"
	if callbackTime != "" {
		message += fmt.Sprintf(" around %s", callbackTime)
	}
	out.Reply(message + ".")
	out.Add(SetSlot("callback_phone", formatted))
	return out, nil
}
