package l1_service

import (
	"fmt"
	"sync"
	"time"

	"agentbacktest/internal/util"
)

// MarketCalendar decides whether the market trades on a given day.
type MarketCalendar interface {
	IsTradingDay(date time.Time) bool
}

type WeekdayCalendar struct{}

func (WeekdayCalendar) IsTradingDay(date time.Time) bool {
	return !util.IsWeekend(date)
}

// HolidayCalendar excludes fixed dates on top of another calendar.
type HolidayCalendar struct {
	Base     MarketCalendar
	holidays map[string]struct{}
}

func NewHolidayCalendar(base MarketCalendar, holidays []time.Time) HolidayCalendar {
	if base == nil {
		base = WeekdayCalendar{}
	}
	m := make(map[string]struct{}, len(holidays))
	for _, h := range holidays {
		m[h.Format(time.DateOnly)] = struct{}{}
	}
	return HolidayCalendar{Base: base, holidays: m}
}

func (c HolidayCalendar) IsTradingDay(date time.Time) bool {
	if _, ok := c.holidays[date.Format(time.DateOnly)]; ok {
		return false
	}
	return c.Base.IsTradingDay(date)
}

type TimeManagerState string

const (
	TimeNotStarted TimeManagerState = "NOT_STARTED"
	TimeIterating  TimeManagerState = "ITERATING"
	TimeExhausted  TimeManagerState = "EXHAUSTED"
)

// TimeManager walks the trading days between start and end inclusive. The
// cursor starts on the first trading day, so CurrentDate is valid before the
// first call to Next.
type TimeManager struct {
	mu          sync.Mutex
	tradingDays []time.Time
	cursor      int
	state       TimeManagerState
}

func NewTimeManager(start, end time.Time, loc *time.Location, calendar MarketCalendar) (*TimeManager, error) {
	if loc == nil {
		loc = time.UTC
	}
	if calendar == nil {
		calendar = WeekdayCalendar{}
	}
	start = util.StartOfDay(start, loc)
	end = util.StartOfDay(end, loc)
	if end.Before(start) {
		return nil, fmt.Errorf("end %s is before start %s", end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	days := []time.Time{}
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if calendar.IsTradingDay(d) {
			days = append(days, d)
		}
	}

	state := TimeNotStarted
	if len(days) == 0 {
		state = TimeExhausted
	}

	return &TimeManager{
		tradingDays: days,
		state:       state,
	}, nil
}

func (m *TimeManager) TradingDays() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time{}, m.tradingDays...)
}

func (m *TimeManager) TotalDays() int {
	return len(m.tradingDays)
}

func (m *TimeManager) State() TimeManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentDate returns the day under the cursor. Once exhausted it keeps
// returning the last trading day; for an empty range it returns the zero
// time.
func (m *TimeManager) CurrentDate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tradingDays) == 0 {
		return time.Time{}
	}
	if m.cursor >= len(m.tradingDays) {
		return m.tradingDays[len(m.tradingDays)-1]
	}
	return m.tradingDays[m.cursor]
}

// HasNext reports whether the cursor still points at an unprocessed day.
func (m *TimeManager) HasNext() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor < len(m.tradingDays)
}

// Next marks the current day as processed and moves to the following one.
// It returns the new current day, or false once every day is processed.
func (m *TimeManager) Next() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == TimeExhausted {
		return time.Time{}, false
	}

	m.cursor++
	if m.cursor >= len(m.tradingDays) {
		m.cursor = len(m.tradingDays)
		m.state = TimeExhausted
		return time.Time{}, false
	}
	m.state = TimeIterating
	return m.tradingDays[m.cursor], true
}

// Progress is the fraction of trading days already processed.
func (m *TimeManager) Progress() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tradingDays) == 0 {
		return 0
	}
	return float64(m.cursor) / float64(len(m.tradingDays))
}
