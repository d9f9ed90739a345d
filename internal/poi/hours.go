package poi

import "time"

// Weekday follows ISO 8601: Monday is 1, Sunday is 7.
type Weekday int

const (
	Monday Weekday = iota + 1
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// TimeSlot is a single open interval within a day, with times encoded as
// zero-padded "HH:MM" strings. A slot that wraps past midnight is
// represented with Close <= Open.
type TimeSlot struct {
	Open  string `json:"open"`
	Close string `json:"close"`
}

// Contains reports whether the "HH:MM" time falls inside the slot.
// Zero-padded times compare correctly as strings.
func (s TimeSlot) Contains(hhmm string) bool {
	if s.Open <= s.Close {
		return s.Open <= hhmm && hhmm <= s.Close
	}
	// Wraps past midnight, e.g. 22:00 to 02:00.
	return hhmm >= s.Open || hhmm <= s.Close
}

// DailyOpeningHours holds the slots for one weekday.
type DailyOpeningHours struct {
	Day    Weekday    `json:"day"`
	Slots  []TimeSlot `json:"slots,omitempty"`
	Closed bool       `json:"closed"`
}

// IsOpenAt reports whether any slot contains the "HH:MM" time.
func (d DailyOpeningHours) IsOpenAt(hhmm string) bool {
	if d.Closed {
		return false
	}
	for _, s := range d.Slots {
		if s.Contains(hhmm) {
			return true
		}
	}
	return false
}

// OpeningHours is the weekly schedule for a POI.
type OpeningHours struct {
	Periods []DailyOpeningHours `json:"periods,omitempty"`
	// RawText keeps the provider's human-readable descriptions as a backup.
	RawText []string `json:"raw_text,omitempty"`
}

// IsOpenAt reports whether the POI is open at the given instant.
func (o *OpeningHours) IsOpenAt(t time.Time) bool {
	if o == nil {
		return false
	}
	day := Weekday(isoWeekday(t.Weekday()))
	hhmm := t.Format("15:04")
	for _, p := range o.Periods {
		if p.Day == day {
			return p.IsOpenAt(hhmm)
		}
	}
	return false
}

// ForDay returns the schedule for one weekday, or nil if absent.
func (o *OpeningHours) ForDay(day Weekday) *DailyOpeningHours {
	for i := range o.Periods {
		if o.Periods[i].Day == day {
			return &o.Periods[i]
		}
	}
	return nil
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}
