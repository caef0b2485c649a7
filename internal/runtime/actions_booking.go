package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"concierge/internal/audit"
	"concierge/internal/validate"
)

// bookService submits a completed booking form to the backend.
func (rt *Runtime) bookService(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output
	if !rt.gateBooking(ctx, &out) {
		return out, nil
	}

	service := tc.Slot("service_type")
	date := tc.Slot("booking_date")
	bookingTime := tc.Slot("booking_time")
	name := tc.Slot("customer_name")
	email := tc.Slot("customer_email")
	phone := tc.Slot("customer_phone")

	if service == "" || date == "" || bookingTime == "" || email == "" {
		out.Reply("I still need a few details before I can book that for you.")
		return out, nil
	}

	rt.auditEvent(ctx, audit.Event{
		Action:         "create_booking",
		ConversationID: tc.SenderID,
		Status:         audit.StatusInitiated,
		DataHash:       audit.HashPII(email),
		Metadata:       map[string]any{"service": service, "date": date},
	})

	result := rt.backend.CreateBooking(ctx, map[string]any{
		"service":        service,
		"date":           date,
		"time":           bookingTime,
		"customer_name":  name,
		"customer_email": email,
		"customer_phone": phone,
	})
	if !result.Success {
		rt.auditEvent(ctx, audit.Event{
			Action:         "create_booking",
			ConversationID: tc.SenderID,
			Status:         audit.StatusFailed,
			Error:          result.Error,
		})
		out.Reply(fallbackMessage(result.Error))
		return out, nil
	}

	bookingID, _ := result.Data["booking_id"].(string)
	rt.auditEvent(ctx, audit.Event{
		Action:         "create_booking",
		ConversationID: tc.SenderID,
		BookingID:      bookingID,
		Status:         audit.StatusSuccess,
		DataHash:       audit.HashPII(email),
		Metadata:       map[string]any{"service": service, "date": date, "time": bookingTime},
	})

	out.Reply(fmt.Sprintf(
		"You're booked! %s on %s at %s.\nYour booking reference is %s. A confirmation email is on its way.",
		service, date, bookingTime, bookingID))
	out.Add(SetSlot("booking_id", bookingID))
	return out, nil
}

// checkAvailability lists open slots for a date and service.
func (rt *Runtime) checkAvailability(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output
	if !rt.gateBooking(ctx, &out) {
		return out, nil
	}

	date := tc.Slot("booking_date")
	if date == "" {
		date = tc.Entity("date")
	}
	if date == "" {
		out.Reply("Which date would you like to check?")
		return out, nil
	}
	service := tc.Slot("service_type")

	result := rt.backend.CheckAvailability(ctx, date, service)
	if !result.Success {
		out.Reply(fallbackMessage(result.Error))
		return out, nil
	}

	times := stringList(result.Data["available_times"])
	if len(times) == 0 {
		out.Reply(fmt.Sprintf("I'm afraid there are no open slots on %s. Would you like to try another day?", date))
		return out, nil
	}
	out.Reply(fmt.Sprintf("Available times on %s: %s.", date, summarizeTimes(times)))
	return out, nil
}

// cancelBooking cancels by reference and restates the policy.
func (rt *Runtime) cancelBooking(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output
	cfg := rt.configs.Cancel(ctx)
	if !cfg.Enabled {
		out.Reply(taskDisabledMessage)
		return out, nil
	}

	bookingID := tc.Slot("booking_id")
	if bookingID == "" {
		out.Reply("What's your booking reference? It looks like BK-2026-0042.")
		return out, nil
	}
	reason := tc.Slot("cancellation_reason")

	result := rt.backend.CancelBooking(ctx, bookingID)
	if !result.Success {
		rt.auditEvent(ctx, audit.Event{
			Action:         "cancel_booking",
			ConversationID: tc.SenderID,
			BookingID:      bookingID,
			Status:         audit.StatusFailed,
			Error:          result.Error,
		})
		out.Reply(fallbackMessage(result.Error))
		return out, nil
	}

	rt.auditEvent(ctx, audit.Event{
		Action:         "cancel_booking",
		ConversationID: tc.SenderID,
		BookingID:      bookingID,
		Status:         audit.StatusSuccess,
		Metadata:       map[string]any{"reason": reason},
	})

	message := fmt.Sprintf("Your booking %s has been cancelled.", bookingID)
	if cfg.CancellationPolicy != "" {
		message += " " + cfg.CancellationPolicy
	}
	out.Reply(message)
	out.Add(SetSlot("booking_id", nil), SetSlot("cancellation_reason", nil))
	return out, nil
}

// rescheduleBooking moves a booking, honoring the reschedule limit.
func (rt *Runtime) rescheduleBooking(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output
	cfg := rt.configs.Reschedule(ctx)
	if !cfg.Enabled {
		out.Reply(taskDisabledMessage)
		return out, nil
	}

	bookingID := tc.Slot("booking_id")
	newDate := tc.Slot("new_date")
	newTime := tc.Slot("new_time")
	if bookingID == "" || newDate == "" || newTime == "" {
		out.Reply("To reschedule I need your booking reference, the new date and the new time.")
		return out, nil
	}

	// The new slot must still satisfy the booking rules.
	booking := rt.configs.Booking(ctx)
	date, err := validate.ValidateDate(newDate, rt.now(), booking.AdvanceBookingDays)
	if err != nil {
		out.Reply("That date doesn't work for a reschedule. Please pick a day between today and the next " +
			strconv.Itoa(booking.AdvanceBookingDays) + " days.")
		out.Add(SetSlot("new_date", nil))
		return out, nil
	}
	if booking.DateBlocked(date.Format("2006-01-02")) {
		out.Reply("Sorry, we're not available on " + date.Format("January 2, 2006") + ". Could you pick another day?")
		out.Add(SetSlot("new_date", nil))
		return out, nil
	}
	hour, minute, err := validate.ParseTimeOfDay(newTime)
	if err != nil || !validate.WithinBusinessHours(hour, minute, booking.Hours.Start, booking.Hours.End) {
		out.Reply("We take bookings between " + booking.Hours.Start + " and " + booking.Hours.End + ".")
		out.Add(SetSlot("new_time", nil))
		return out, nil
	}

	existing := rt.backend.GetBooking(ctx, bookingID)
	if !existing.Success {
		out.Reply(fallbackMessage(existing.Error))
		return out, nil
	}
	if count := intValue(existing.Data["reschedule_count"]); count >= cfg.MaxReschedules {
		out.Reply(fmt.Sprintf(
			"This booking has already been rescheduled %d times, which is our limit. "+
				"You could cancel it and book a fresh appointment instead.", count))
		return out, nil
	}

	newDate = date.Format("2006-01-02")
	newTime = validate.FormatClock(hour, minute)
	result := rt.backend.RescheduleBooking(ctx, bookingID, map[string]any{
		"date": newDate,
		"time": newTime,
	})
	if !result.Success {
		rt.auditEvent(ctx, audit.Event{
			Action:         "reschedule_booking",
			ConversationID: tc.SenderID,
			BookingID:      bookingID,
			Status:         audit.StatusFailed,
			Error:          result.Error,
		})
		out.Reply(fallbackMessage(result.Error))
		return out, nil
	}

	rt.auditEvent(ctx, audit.Event{
		Action:         "reschedule_booking",
		ConversationID: tc.SenderID,
		BookingID:      bookingID,
		Status:         audit.StatusSuccess,
		Metadata:       map[string]any{"new_date": newDate, "new_time": newTime},
	})
	out.Reply(fmt.Sprintf("Done! Booking %s is now on %s at %s.", bookingID, newDate, newTime))
	out.Add(SetSlot("new_date", nil), SetSlot("new_time", nil))
	return out, nil
}

// checkBookingStatus looks up a booking and reads back its details.
func (rt *Runtime) checkBookingStatus(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output
	if !rt.configs.Check(ctx).Enabled {
		out.Reply(taskDisabledMessage)
		return out, nil
	}

	bookingID := tc.Slot("booking_id")
	if bookingID == "" {
		if id, err := validate.NormalizeBookingID(tc.Entity("booking_id")); err == nil {
			bookingID = id
		}
	}
	if bookingID == "" {
		out.Reply("What's your booking reference? It looks like BK-2026-0042.")
		return out, nil
	}

	result := rt.backend.GetBooking(ctx, bookingID)
	if !result.Success {
		out.Reply(fallbackMessage(result.Error))
		return out, nil
	}

	status, _ := result.Data["status"].(string)
	service, _ := result.Data["service"].(string)
	date, _ := result.Data["date"].(string)
	bookedTime, _ := result.Data["time"].(string)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Booking %s is %s.", bookingID, orUnknown(status))
	if service != "" {
		fmt.Fprintf(&sb, " %s", service)
	}
	if date != "" {
		fmt.Fprintf(&sb, " on %s", date)
	}
	if bookedTime != "" {
		fmt.Fprintf(&sb, " at %s", bookedTime)
	}
	sb.WriteString(" Would you like to reschedule or cancel it?")
	out.Reply(sb.String())

	// Remember the record so a follow-up reschedule or cancel has it.
	out.Add(SetSlot("booking_id", bookingID))
	if service != "" {
		out.Add(SetSlot("service_type", service))
	}
	if date != "" {
		out.Add(SetSlot("booking_date", date))
	}
	if bookedTime != "" {
		out.Add(SetSlot("booking_time", bookedTime))
	}
	return out, nil
}

// fallbackMessage keeps backend errors user-presentable.
func fallbackMessage(errText string) string {
	if errText == "" {
		return "Something went wrong talking to our booking system. Please try again shortly."
	}
	return errText + "."
}

func orUnknown(s string) string {
	if s == "" {
		return "in an unknown state"
	}
	return s
}

// summarizeTimes shows the first six options and counts the rest.
func summarizeTimes(times []string) string {
	const maxShown = 6
	if len(times) <= maxShown {
		return strings.Join(times, ", ")
	}
	return strings.Join(times[:maxShown], ", ") +
		fmt.Sprintf(" and %d more", len(times)-maxShown)
}

func stringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intValue(value any) int {
	switch v := value.(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}
