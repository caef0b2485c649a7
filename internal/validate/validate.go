// Package validate normalizes and validates user-supplied slot values:
// dates, times, contact details, booking references and option matching.
package validate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var weekdays = map[string]int{
	"monday":    0,
	"tuesday":   1,
	"wednesday": 2,
	"thursday":  3,
	"friday":    4,
	"saturday":  5,
	"sunday":    6,
}

// weekdayIndex maps Go's Sunday-first weekday onto Monday-first.
func weekdayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseDate resolves a natural language or formatted date relative to now.
//
// Relative phrases: "today", "tomorrow", "yesterday", "next week" (the
// coming Monday),
// "next <weekday>" (always in the following seven days, never today) and
// "this <weekday>" (the nearest occurrence, today included).
func ParseDate(text string, now time.Time) (time.Time, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	today := startOfDay(now)

	switch normalized {
	case "":
		return time.Time{}, fmt.Errorf("empty date")
	case "today":
		return today, nil
	case "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case "yesterday":
		return today.AddDate(0, 0, -1), nil
	case "next week":
		normalized = "next monday"
	}

	if rest, ok := strings.CutPrefix(normalized, "next "); ok {
		if target, ok := weekdays[rest]; ok {
			ahead := target - weekdayIndex(now.Weekday())
			if ahead <= 0 {
				ahead += 7
			}
			return today.AddDate(0, 0, ahead), nil
		}
	}
	if rest, ok := strings.CutPrefix(normalized, "this "); ok {
		if target, ok := weekdays[rest]; ok {
			ahead := target - weekdayIndex(now.Weekday())
			if ahead < 0 {
				ahead += 7
			}
			return today.AddDate(0, 0, ahead), nil
		}
	}
	if target, ok := weekdays[normalized]; ok {
		// A bare weekday means the next occurrence, today included.
		ahead := target - weekdayIndex(now.Weekday())
		if ahead < 0 {
			ahead += 7
		}
		return today.AddDate(0, 0, ahead), nil
	}

	for _, layout := range []string{"2006-01-02", "01/02/2006", "1/2/2006"} {
		if parsed, err := time.ParseInLocation(layout, strings.TrimSpace(text), now.Location()); err == nil {
			return parsed, nil
		}
	}
	// Month-and-day forms assume the current year, rolling forward when the
	// date has already passed.
	for _, layout := range []string{"January 2", "Jan 2", "January 2, 2006", "Jan 2, 2006"} {
		parsed, err := time.ParseInLocation(layout, titleCase(normalized), now.Location())
		if err != nil {
			continue
		}
		if parsed.Year() == 0 {
			parsed = time.Date(now.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, now.Location())
			if parsed.Before(today) {
				parsed = parsed.AddDate(1, 0, 0)
			}
		}
		return parsed, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", text)
}

func titleCase(text string) string {
	words := strings.Fields(text)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// ValidateDate parses text and checks it falls within the booking window.
func ValidateDate(text string, now time.Time, advanceDays int) (time.Time, error) {
	date, err := ParseDate(text, now)
	if err != nil {
		return time.Time{}, err
	}
	today := startOfDay(now)
	if date.Before(today) {
		return time.Time{}, fmt.Errorf("date is in the past")
	}
	if advanceDays > 0 && date.After(today.AddDate(0, 0, advanceDays)) {
		return time.Time{}, fmt.Errorf("date is more than %d days ahead", advanceDays)
	}
	return date, nil
}

var (
	time12Pattern = regexp.MustCompile(`^(\d{1,2})(?::(\d{2}))?\s*(am|pm)$`)
	time24Pattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// ParseTimeOfDay resolves "3 pm", "3:30pm", "15:30" and similar into hour
// and minute.
func ParseTimeOfDay(text string) (hour, minute int, err error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.ReplaceAll(normalized, ".", "")

	if m := time12Pattern.FindStringSubmatch(normalized); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid time %q", text)
		}
		if hour == 12 {
			hour = 0
		}
		if m[3] == "pm" {
			hour += 12
		}
		return hour, minute, nil
	}
	if m := time24Pattern.FindStringSubmatch(normalized); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour > 23 || minute > 59 {
			return 0, 0, fmt.Errorf("invalid time %q", text)
		}
		return hour, minute, nil
	}
	return 0, 0, fmt.Errorf("unrecognized time %q", text)
}

// FormatClock renders hour and minute as "15:04".
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

// ParseClock parses a "15:04" business hours boundary.
func ParseClock(text string) (hour, minute int, err error) {
	if m := time24Pattern.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		hour, _ = strconv.Atoi(m[1])
		minute, _ = strconv.Atoi(m[2])
		if hour <= 24 && minute <= 59 {
			return hour, minute, nil
		}
	}
	return 0, 0, fmt.Errorf("invalid clock value %q", text)
}

// WithinBusinessHours reports whether a time falls in [start, end).
func WithinBusinessHours(hour, minute int, start, end string) bool {
	startHour, startMinute, err := ParseClock(start)
	if err != nil {
		return false
	}
	endHour, endMinute, err := ParseClock(end)
	if err != nil {
		return false
	}
	t := hour*60 + minute
	return t >= startHour*60+startMinute && t < endHour*60+endMinute
}

var digitsPattern = regexp.MustCompile(`\D`)

// FormatPhone normalizes a North American phone number. Ten digits become
// "(DDD) DDD-DDDD"; eleven digits with a leading 1 gain the +1 prefix.
func FormatPhone(text string) (string, error) {
	digits := digitsPattern.ReplaceAllString(text, "")
	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:]), nil
	case len(digits) == 11 && digits[0] == '1':
		return fmt.Sprintf("+1 (%s) %s-%s", digits[1:4], digits[4:7], digits[7:]), nil
	default:
		return "", fmt.Errorf("phone number must have 10 digits")
	}
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether text looks like an email address.
func ValidEmail(text string) bool {
	return emailPattern.MatchString(strings.TrimSpace(text))
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(text string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(text))
	if !emailPattern.MatchString(email) {
		return "", fmt.Errorf("invalid email address")
	}
	return email, nil
}

var namePattern = regexp.MustCompile(`^[\p{L}][\p{L} .'\-]+$`)

// ValidateName trims and checks a person's name.
func ValidateName(text string) (string, error) {
	name := strings.TrimSpace(text)
	if len(name) < 2 {
		return "", fmt.Errorf("name too short")
	}
	if !namePattern.MatchString(name) {
		return "", fmt.Errorf("name contains invalid characters")
	}
	return name, nil
}

var bookingIDPattern = regexp.MustCompile(`^(?i)BK-?(\d{4})-?(\d{4})$`)

// NormalizeBookingID canonicalizes a booking reference to BK-DDDD-DDDD.
func NormalizeBookingID(text string) (string, error) {
	m := bookingIDPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return "", fmt.Errorf("invalid booking reference")
	}
	return fmt.Sprintf("BK-%s-%s", m[1], m[2]), nil
}

var durationAliases = map[string]string{
	"15":           "15 minutes",
	"15 min":       "15 minutes",
	"15 mins":      "15 minutes",
	"15 minutes":   "15 minutes",
	"quarter hour": "15 minutes",
	"30":           "30 minutes",
	"30 min":       "30 minutes",
	"30 mins":      "30 minutes",
	"30 minutes":   "30 minutes",
	"half hour":    "30 minutes",
	"half an hour": "30 minutes",
	"60":           "1 hour",
	"60 min":       "1 hour",
	"60 minutes":   "1 hour",
	"1 hour":       "1 hour",
	"1hr":          "1 hour",
	"an hour":      "1 hour",
	"one hour":     "1 hour",
	"hour":         "1 hour",
}

// MatchDuration resolves text against the allowed meeting durations.
func MatchDuration(text string, options []string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	candidate := normalized
	if alias, ok := durationAliases[normalized]; ok {
		candidate = alias
	}
	for _, option := range options {
		if strings.EqualFold(candidate, option) {
			return option, nil
		}
	}
	return "", fmt.Errorf("duration %q not offered", text)
}

// MatchOption resolves text against a configured option list, first exactly
// then by containment in either direction.
func MatchOption(text string, options []string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return "", fmt.Errorf("empty value")
	}
	for _, option := range options {
		if strings.EqualFold(normalized, option) {
			return option, nil
		}
	}
	for _, option := range options {
		lower := strings.ToLower(option)
		if strings.Contains(lower, normalized) || strings.Contains(normalized, lower) {
			return option, nil
		}
	}
	return "", fmt.Errorf("%q is not one of the available options", text)
}

// ValidateDatetime combines a parsed date and time into one timestamp and
// rejects moments already in the past.
func ValidateDatetime(dateText, timeText string, now time.Time) (time.Time, error) {
	date, err := ParseDate(dateText, now)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := ParseTimeOfDay(timeText)
	if err != nil {
		return time.Time{}, err
	}
	at := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, now.Location())
	if at.Before(now) {
		return time.Time{}, fmt.Errorf("time is in the past")
	}
	return at, nil
}
