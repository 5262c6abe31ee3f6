package schedule

import (
	"fmt"
	"time"
)

const (
	openWindow  = 60 * time.Second
	triggerBand = 5 * time.Minute

	nearPollInterval = 30 * time.Second
	idlePollInterval = 60 * time.Second
)

// Scheduler decides when the basket should be opened or closed. The open
// trigger uses a symmetric +/-60s window around the configured open time; the
// close trigger fires at or after the close time with no early tolerance, so
// a missed poll can only delay a close, never front-run it. All arithmetic is
// done in the configured timezone.
type Scheduler struct {
	openTime  dayTime
	closeTime dayTime
	loc       *time.Location

	lastTradingDay time.Time
	dayMarked      bool

	now func() time.Time
}

type dayTime struct {
	hour, min, sec int
}

// New parses "HH:MM" or "HH:MM:SS" open/close times in the named IANA
// timezone.
func New(openTime, closeTime, timezone string) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	open, err := parseDayTime(openTime)
	if err != nil {
		return nil, fmt.Errorf("open time: %w", err)
	}
	closeT, err := parseDayTime(closeTime)
	if err != nil {
		return nil, fmt.Errorf("close time: %w", err)
	}
	return &Scheduler{
		openTime:  open,
		closeTime: closeT,
		loc:       loc,
		now:       time.Now,
	}, nil
}

func parseDayTime(s string) (dayTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return dayTime{hour: t.Hour(), min: t.Minute(), sec: t.Second()}, nil
		}
	}
	return dayTime{}, fmt.Errorf("invalid time %q, expected HH:MM or HH:MM:SS", s)
}

func (d dayTime) on(day time.Time, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), d.hour, d.min, d.sec, 0, loc)
}

// CrossesMidnight reports whether the close falls on the day after the open.
func (s *Scheduler) CrossesMidnight() bool {
	return s.closeTime.before(s.openTime)
}

func (d dayTime) before(o dayTime) bool {
	if d.hour != o.hour {
		return d.hour < o.hour
	}
	if d.min != o.min {
		return d.min < o.min
	}
	return d.sec < o.sec
}

// ShouldOpen reports whether a new basket should be opened now: no basket was
// confirmed open today and the current time is within the open window.
func (s *Scheduler) ShouldOpen() bool {
	now := s.now().In(s.loc)
	if s.dayMarked && sameDay(s.lastTradingDay, now) {
		return false
	}
	diff := now.Sub(s.openTime.on(now, s.loc))
	if diff < 0 {
		diff = -diff
	}
	return diff <= openWindow
}

// ShouldClose reports whether the open basket is due to be closed. For a
// same-day schedule the close date is the trading day itself; for a
// cross-midnight schedule it is the day after. Any time past the expected
// close date closes unconditionally, covering a missed close or a restart.
func (s *Scheduler) ShouldClose() bool {
	if !s.dayMarked {
		return false
	}
	now := s.now().In(s.loc)
	closeDate := s.lastTradingDay
	if s.CrossesMidnight() {
		closeDate = closeDate.AddDate(0, 0, 1)
	}
	if dayAfter(now, closeDate) {
		return true
	}
	if !sameDay(now, closeDate) {
		return false
	}
	return !now.Before(s.closeTime.on(closeDate, s.loc))
}

// MissedClose reports whether the expected close date is already behind us,
// meaning the basket stayed open past its scheduled close.
func (s *Scheduler) MissedClose() bool {
	if !s.dayMarked {
		return false
	}
	now := s.now().In(s.loc)
	closeDate := s.lastTradingDay
	if s.CrossesMidnight() {
		closeDate = closeDate.AddDate(0, 0, 1)
	}
	return dayAfter(now, closeDate)
}

// InferTradingDay guesses which trading day an already-open basket belongs
// to. On a cross-midnight schedule, a basket found open before today's open
// time was opened the previous day.
func (s *Scheduler) InferTradingDay() time.Time {
	day := s.Today()
	if !s.CrossesMidnight() {
		return day
	}
	now := s.now().In(s.loc)
	if now.Before(s.openTime.on(now, s.loc)) {
		return day.AddDate(0, 0, -1)
	}
	return day
}

// NextPollInterval returns a short interval near either trigger to bound
// staleness, and a longer one otherwise to cut idle polling.
func (s *Scheduler) NextPollInterval() time.Duration {
	if s.nearTrigger() {
		return nearPollInterval
	}
	return idlePollInterval
}

func (s *Scheduler) nearTrigger() bool {
	now := s.now().In(s.loc)
	if within(now, s.openTime.on(now, s.loc), triggerBand) {
		return true
	}
	if !s.dayMarked {
		return false
	}
	closeDate := s.lastTradingDay
	if s.CrossesMidnight() {
		closeDate = closeDate.AddDate(0, 0, 1)
	}
	return within(now, s.closeTime.on(closeDate, s.loc), triggerBand)
}

func within(now, at time.Time, band time.Duration) bool {
	diff := now.Sub(at)
	if diff < 0 {
		diff = -diff
	}
	return diff <= band
}

// MarkTradingDay records the calendar date on which the basket was confirmed
// open. Called only by the state machine on a verified open.
func (s *Scheduler) MarkTradingDay(day time.Time) {
	day = day.In(s.loc)
	s.lastTradingDay = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	s.dayMarked = true
}

// ResetTradingDay clears the mark after a verified close.
func (s *Scheduler) ResetTradingDay() {
	s.lastTradingDay = time.Time{}
	s.dayMarked = false
}

// LastTradingDay returns the marked day, if any.
func (s *Scheduler) LastTradingDay() (time.Time, bool) {
	return s.lastTradingDay, s.dayMarked
}

// Location returns the scheduler's timezone.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// Today returns the current calendar date in the scheduler's timezone.
func (s *Scheduler) Today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

// SetClock overrides the time source. Tests only.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func dayAfter(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay > by
	}
	if am != bm {
		return am > bm
	}
	return ad > bd
}
