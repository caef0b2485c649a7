package runtime

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"concierge/internal/audit"
)

// scheduleMeeting submits a completed meeting form. A slot conflict sends
// the user straight to the open-times listing.
func (rt *Runtime) scheduleMeeting(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output
	if !rt.gateMeeting(ctx, &out) {
		return out, nil
	}

	meetingType := tc.Slot("meeting_type")
	date := tc.Slot("meeting_date")
	meetingTime := tc.Slot("meeting_time")
	duration := tc.Slot("meeting_duration")
	name := tc.Slot("attendee_name")
	email := tc.Slot("attendee_email")

	if meetingType == "" || date == "" || meetingTime == "" || email == "" {
		out.Reply("I still need a few details before I can schedule the meeting.")
		return out, nil
	}

	rt.auditEvent(ctx, audit.Event{
		Action:         "schedule_meeting",
		ConversationID: tc.SenderID,
		Status:         audit.StatusInitiated,
		DataHash:       audit.HashPII(email),
		Metadata:       map[string]any{"meeting_type": meetingType, "date": date},
	})

	result := rt.backend.ScheduleMeeting(ctx, map[string]any{
		"meeting_type":   meetingType,
		"date":           date,
		"time":           meetingTime,
		"duration":       duration,
		"attendee_name":  name,
		"attendee_email": email,
	})
	if !result.Success {
		rt.auditEvent(ctx, audit.Event{
			Action:         "schedule_meeting",
			ConversationID: tc.SenderID,
			Status:         audit.StatusFailed,
			Error:          result.Error,
		})
		if result.StatusCode == http.StatusConflict {
			out.Reply(fmt.Sprintf(
				"That slot on %s at %s was just taken. Let me show you what's still open.", date, meetingTime))
			out.Add(SetSlot("meeting_time", nil), FollowupAction("action_get_available_meeting_times"))
			return out, nil
		}
		out.Reply(fallbackMessage(result.Error))
		return out, nil
	}

	meetingID, _ := result.Data["meeting_id"].(string)
	rt.auditEvent(ctx, audit.Event{
		Action:         "schedule_meeting",
		ConversationID: tc.SenderID,
		MeetingID:      meetingID,
		Status:         audit.StatusSuccess,
		DataHash:       audit.HashPII(email),
		Metadata:       map[string]any{"meeting_type": meetingType, "date": date, "time": meetingTime, "duration": duration},
	})

	out.Reply(fmt.Sprintf(
		"Your %s is scheduled for %s at %s (%s). An invitation is on its way to your email.",
		strings.ToLower(meetingType), date, meetingTime, duration))
	if meetingID != "" {
		out.Add(SetSlot("meeting_id", meetingID))
	}
	return out, nil
}

// availableMeetingTimes lists open meeting slots grouped by date.
func (rt *Runtime) availableMeetingTimes(ctx context.Context, tc *TurnContext) (Output, error) {
	var out Output
	if !rt.gateMeeting(ctx, &out) {
		return out, nil
	}

	date := tc.Slot("meeting_date")
	duration := tc.Slot("meeting_duration")

	result := rt.backend.GetAvailableMeetingTimes(ctx, date, duration)
	if !result.Success {
		out.Reply(fallbackMessage(result.Error))
		return out, nil
	}

	grouped := groupSlotsByDate(result.Data["available_slots"])
	if len(grouped) == 0 {
		out.Reply("I couldn't find any open meeting slots right now. Would you like me to arrange a callback instead?")
		return out, nil
	}

	dates := make([]string, 0, len(grouped))
	for d := range grouped {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var sb strings.Builder
	sb.WriteString("Here's what's open:")
	for _, d := range dates {
		fmt.Fprintf(&sb, "\n%s: %s", d, summarizeTimes(grouped[d]))
	}
	out.Reply(sb.String())
	return out, nil
}

// groupSlotsByDate accepts a list of {date, time} objects and buckets the
// times per date.
func groupSlotsByDate(value any) map[string][]string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	grouped := make(map[string][]string)
	for _, item := range items {
		slot, ok := item.(map[string]any)
		if !ok {
			continue
		}
		date, _ := slot["date"].(string)
		at, _ := slot["time"].(string)
		if date == "" || at == "" {
			continue
		}
		grouped[date] = append(grouped[date], at)
	}
	for _, times := range grouped {
		sort.Strings(times)
	}
	return grouped
}
