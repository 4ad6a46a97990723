package session

import (
	"fmt"
	"time"

	"github.com/scmhub/calendar"

	"github.com/bawsi99/StockAnalyzer-Pro-sub001/internal/models"
)

// Calendar is the session-calendar collaborator. Implementations must be
// safe for concurrent use; errors mean "calendar unavailable", which the
// clock treats as a closed market.
type Calendar interface {
	// IsTradingDay reports whether the exchange trades on the given date.
	IsTradingDay(date time.Time) (bool, error)

	// SessionWindow returns the regular session open and close for the
	// given date in the exchange's local time.
	SessionWindow(date time.Time) (open, close time.Time, err error)
}

// Regular session clock times used when the exchange library has no
// per-venue schedule. Matches the US equities cash session.
const (
	defaultOpenHour    = 9
	defaultOpenMinute  = 30
	defaultCloseHour   = 16
	defaultCloseMinute = 0
)

// ExchangeCalendar implements Calendar on top of scmhub/calendar, looked
// up by ISO 10383 MIC code (e.g. "xnys", "xlon", "xtks").
type ExchangeCalendar struct {
	mic string
	cal *calendar.Calendar
	loc *time.Location
}

// NewExchangeCalendar creates a calendar for the given MIC code.
func NewExchangeCalendar(mic string) (*ExchangeCalendar, error) {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		return nil, fmt.Errorf("unknown exchange calendar %q: %w", mic, models.ErrCalendarUnavailable)
	}

	loc := cal.Loc
	if loc == nil {
		loc = time.UTC
	}

	return &ExchangeCalendar{
		mic: mic,
		cal: cal,
		loc: loc,
	}, nil
}

// MIC returns the calendar's exchange code.
func (e *ExchangeCalendar) MIC() string {
	return e.mic
}

// Location returns the exchange's timezone.
func (e *ExchangeCalendar) Location() *time.Location {
	return e.loc
}

// IsTradingDay reports whether the exchange trades on the given date.
func (e *ExchangeCalendar) IsTradingDay(date time.Time) (bool, error) {
	if e.cal == nil {
		return false, models.ErrCalendarUnavailable
	}
	return e.cal.IsBusinessDay(date.In(e.loc)), nil
}

// SessionWindow returns the regular session bounds for the given date.
func (e *ExchangeCalendar) SessionWindow(date time.Time) (time.Time, time.Time, error) {
	if e.cal == nil {
		return time.Time{}, time.Time{}, models.ErrCalendarUnavailable
	}

	d := date.In(e.loc)
	year, month, day := d.Date()
	open := time.Date(year, month, day, defaultOpenHour, defaultOpenMinute, 0, 0, e.loc)
	close := time.Date(year, month, day, defaultCloseHour, defaultCloseMinute, 0, 0, e.loc)
	return open, close, nil
}
