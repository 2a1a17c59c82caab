// Package schedule resolves loosely specified day/time phrases ("Monday",
// "2 PM", "14:00") into absolute calendar slots.
package schedule

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ResolvedSchedule is the absolute instant a phrase pair resolves to, plus
// flags recording whether the day and time were explicitly matched or
// defaulted.
type ResolvedSchedule struct {
	Timestamp    time.Time
	DayExplicit  bool
	TimeExplicit bool
}

// DefaultHour is the time of day used when no time phrase matches.
const DefaultHour = 9

// timePattern matches a leading hour, an optional :MM group and an optional
// meridiem marker anywhere in the phrase.
var timePattern = regexp.MustCompile(`(?i)(\d+)(?::(\d+))?\s*(AM|PM)?`)

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Resolve turns a day phrase and a time phrase into an absolute timestamp
// relative to ref. It never fails: unrecognized input falls back to ref's
// date and a 09:00 slot.
//
// The day matcher recognizes full English weekday names only; "today" and
// "tomorrow" fall through to the ref-date default even though the voice tool
// advertises them. Parsed hours are not range-checked; an hour beyond 23
// rolls into the following day through normal date arithmetic.
func Resolve(dayPhrase, timePhrase string, ref time.Time) ResolvedSchedule {
	res := ResolvedSchedule{}

	date := ref
	if target, ok := weekdays[strings.ToLower(strings.TrimSpace(dayPhrase))]; ok {
		diff := int(target) - int(ref.Weekday())
		if diff < 0 {
			diff += 7
		}
		date = ref.AddDate(0, 0, diff)
		res.DayExplicit = true
	}

	hour, minute := DefaultHour, 0
	if m := timePattern.FindStringSubmatch(timePhrase); m != nil {
		hour, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		switch strings.ToUpper(m[3]) {
		case "PM":
			if hour < 12 {
				hour += 12
			}
		case "AM":
			if hour == 12 {
				hour = 0
			}
		}
		res.TimeExplicit = true
	}

	res.Timestamp = time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, ref.Location())
	return res
}
