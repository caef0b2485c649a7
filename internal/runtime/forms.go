package runtime

import (
	"context"
	"strconv"
	"strings"

	"concierge/internal/validate"
)

// Form describes a slot-filling loop: the slots it needs and how generic
// entity names map onto them.
type Form struct {
	Name        string
	Required    []string
	FieldToSlot map[string]string
}

var bookingForm = Form{
	Name: "book_service_form",
	Required: []string{
		"service_type", "booking_date", "booking_time",
		"customer_name", "customer_email", "customer_phone",
	},
	FieldToSlot: map[string]string{
		"service":    "service_type",
		"date":       "booking_date",
		"time":       "booking_time",
		"name":       "customer_name",
		"email":      "customer_email",
		"phone":      "customer_phone",
		"party_size": "party_size",
		"notes":      "notes",
	},
}

var meetingForm = Form{
	Name: "schedule_meeting_form",
	Required: []string{
		"meeting_type", "meeting_date", "meeting_time",
		"meeting_duration", "attendee_name", "attendee_email",
	},
	FieldToSlot: map[string]string{
		"meeting_type": "meeting_type",
		"date":         "meeting_date",
		"time":         "meeting_time",
		"duration":     "meeting_duration",
		"name":         "attendee_name",
		"email":        "attendee_email",
	},
}

// NextSlot returns the first required slot still unfilled, or "" when the
// form is complete.
func (f Form) NextSlot(tc *TurnContext, pending map[string]bool) string {
	for _, slot := range f.Required {
		if pending[slot] {
			continue
		}
		if !tc.HasSlot(slot) {
			return slot
		}
	}
	return ""
}

// withConfigFields resolves the form's slot list for this turn: the built-in
// minimum plus any extra fields the task config marks required. party_size
// and notes stay optional unless the config names them.
func (f Form) withConfigFields(fields []string) Form {
	required := append([]string(nil), f.Required...)
	have := make(map[string]bool, len(required))
	for _, slot := range required {
		have[slot] = true
	}
	for _, field := range fields {
		slot, ok := f.FieldToSlot[strings.ToLower(strings.TrimSpace(field))]
		if !ok || have[slot] {
			continue
		}
		required = append(required, slot)
		have[slot] = true
	}
	f.Required = required
	return f
}

func (rt *Runtime) validateBookingForm(ctx context.Context, tc *TurnContext) (Output, error) {
	form := bookingForm.withConfigFields(rt.configs.Booking(ctx).RequiredFields)
	return rt.validateForm(ctx, tc, form)
}

func (rt *Runtime) validateMeetingForm(ctx context.Context, tc *TurnContext) (Output, error) {
	form := meetingForm.withConfigFields(rt.configs.Meeting(ctx).RequiredFields)
	return rt.validateForm(ctx, tc, form)
}

// validateForm checks every candidate value the user just provided. Entity
// extractions fill their mapped slots; the raw message fills the slot the
// form asked for when no entity covered it.
func (rt *Runtime) validateForm(ctx context.Context, tc *TurnContext, form Form) (Output, error) {
	var out Output
	filled := make(map[string]bool)

	for _, entity := range tc.Entities {
		slot, ok := form.FieldToSlot[entity.Name]
		if !ok {
			continue
		}
		value := tc.Entity(entity.Name)
		validated, complaint := rt.validateSlot(ctx, slot, value)
		if validated == nil {
			out.Add(SetSlot(slot, nil))
			if complaint != "" {
				out.Reply(complaint)
			}
			continue
		}
		out.Add(SetSlot(slot, validated))
		filled[slot] = true
	}

	requested := tc.Slot("requested_slot")
	if requested != "" && !filled[requested] && tc.Text != "" {
		validated, complaint := rt.validateSlot(ctx, requested, tc.Text)
		if validated == nil {
			out.Add(SetSlot(requested, nil))
			if complaint != "" {
				out.Reply(complaint)
			}
		} else {
			out.Add(SetSlot(requested, validated))
			filled[requested] = true
		}
	}

	if next := form.NextSlot(tc, filled); next != "" {
		out.Add(SetSlot("requested_slot", next))
	} else {
		out.Add(SetSlot("requested_slot", nil))
	}
	return out, nil
}

// validateSlot validates one candidate slot value. It returns the
// normalized value, or nil plus a message asking the user to try again.
func (rt *Runtime) validateSlot(ctx context.Context, slot, value string) (any, string) {
	now := rt.now()
	switch slot {
	case "service_type":
		cfg := rt.configs.Booking(ctx)
		matched, err := validate.MatchOption(value, cfg.Services)
		if err != nil {
			return nil, "We don't offer that service. Available services: " + joinList(cfg.Services) + "."
		}
		return matched, ""

	case "booking_date":
		cfg := rt.configs.Booking(ctx)
		date, err := validate.ValidateDate(value, now, cfg.AdvanceBookingDays)
		if err != nil {
			return nil, "That date doesn't work. Please pick a day between today and the next " +
				strconv.Itoa(cfg.AdvanceBookingDays) + " days."
		}
		iso := date.Format("2006-01-02")
		if cfg.DateBlocked(iso) {
			return nil, "Sorry, we're not available on " + date.Format("January 2, 2006") +
				". Could you pick another day?"
		}
		return iso, ""

	case "booking_time":
		cfg := rt.configs.Booking(ctx)
		hour, minute, err := validate.ParseTimeOfDay(value)
		if err != nil {
			return nil, "I didn't catch that time. Try something like \"3 pm\" or \"15:30\"."
		}
		if !validate.WithinBusinessHours(hour, minute, cfg.Hours.Start, cfg.Hours.End) {
			return nil, "We take bookings between " + cfg.Hours.Start + " and " + cfg.Hours.End + "."
		}
		return validate.FormatClock(hour, minute), ""

	case "meeting_type":
		cfg := rt.configs.Meeting(ctx)
		matched, err := validate.MatchOption(value, cfg.MeetingTypes)
		if err != nil {
			return nil, "Please choose one of: " + joinList(cfg.MeetingTypes) + "."
		}
		return matched, ""

	case "meeting_date":
		date, err := validate.ValidateDate(value, now, 0)
		if err != nil {
			return nil, "That date doesn't work. Please pick today or a future date."
		}
		return date.Format("2006-01-02"), ""

	case "meeting_time":
		cfg := rt.configs.Meeting(ctx)
		hour, minute, err := validate.ParseTimeOfDay(value)
		if err != nil {
			return nil, "I didn't catch that time. Try something like \"3 pm\" or \"15:30\"."
		}
		if !validate.WithinBusinessHours(hour, minute, cfg.Hours.Start, cfg.Hours.End) {
			return nil, "Meetings run between " + cfg.Hours.Start + " and " + cfg.Hours.End + "."
		}
		return validate.FormatClock(hour, minute), ""

	case "meeting_duration":
		cfg := rt.configs.Meeting(ctx)
		matched, err := validate.MatchDuration(value, cfg.Durations)
		if err != nil {
			return nil, "Available durations: " + joinList(cfg.Durations) + "."
		}
		return matched, ""

	case "customer_name", "attendee_name":
		name, err := validate.ValidateName(value)
		if err != nil {
			return nil, "Could you give me your full name?"
		}
		return name, ""

	case "customer_email", "attendee_email":
		email, err := validate.NormalizeEmail(value)
		if err != nil {
			return nil, "That email doesn't look right. Could you re-enter it?"
		}
		return email, ""

	case "customer_phone", "callback_phone":
		phone, err := validate.FormatPhone(value)
		if err != nil {
			return nil, "I need a 10-digit phone number, like 555-123-4567."
		}
		return phone, ""

	case "booking_id":
		id, err := validate.NormalizeBookingID(value)
		if err != nil {
			return nil, "Booking references look like BK-2026-0042. Could you check yours?"
		}
		return id, ""

	case "new_date":
		date, err := validate.ValidateDate(value, now, 0)
		if err != nil {
			return nil, "That date doesn't work. Please pick today or a future date."
		}
		return date.Format("2006-01-02"), ""

	case "new_time", "callback_time":
		hour, minute, err := validate.ParseTimeOfDay(value)
		if err != nil {
			return nil, "I didn't catch that time. Try something like \"3 pm\" or \"15:30\"."
		}
		return validate.FormatClock(hour, minute), ""

	case "party_size":
		size, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || size < 1 || size > 20 {
			return nil, "How many people should I book for? Any number from 1 to 20 works."
		}
		return size, ""

	case "notes":
		return strings.TrimSpace(value), ""
	}

	// Unknown slots pass through untouched.
	return value, ""
}

func joinList(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	out := items[0]
	for _, item := range items[1 : len(items)-1] {
		out += ", " + item
	}
	return out + " or " + items[len(items)-1]
}
