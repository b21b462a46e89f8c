// Package calendar implements the Calendar Trigger (§4.5): the
// booleans that decide whether daily/weekly/monthly promotion runs.
package calendar

import (
	"time"

	"github.com/snapback/snapback2/internal/usecase"
)

// Evaluate derives do_dailies, do_weeklies, do_monthlies from the
// previous slot-0 mtime compared against now, each read in its own
// location (local time for the system clock and file mtimes). A day
// differs when the year-day or the year differs, so a missing slot0
// (zero time, year 1) always yields DoDailies=true.
func Evaluate(slot0, now time.Time) usecase.CalendarFlags {
	doDailies := slot0.YearDay() != now.YearDay() || slot0.Year() != now.Year()
	return usecase.CalendarFlags{
		DoDailies:   doDailies,
		DoWeeklies:  doDailies && now.Weekday() == time.Sunday,
		DoMonthlies: doDailies && now.Day() == 1,
	}
}
