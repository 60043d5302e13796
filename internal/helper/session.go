package helper

import (
	"time"
)

// SessionCalendar — торговый календарь рынка: часы сессии и рабочие дни.
// Используется для кулдауна и отложенных SELL, не для фильтрации баров.
type SessionCalendar struct {
	Loc       *time.Location
	OpenHour  int
	OpenMin   int
	CloseHour int
	CloseMin  int
	Days      map[time.Weekday]bool
}

// DefaultCalendar — 09:00–13:30 пн-пт (как у исходного рынка).
func DefaultCalendar(loc *time.Location) *SessionCalendar {
	if loc == nil {
		loc = time.Local
	}
	return &SessionCalendar{
		Loc:       loc,
		OpenHour:  9,
		OpenMin:   0,
		CloseHour: 13,
		CloseMin:  30,
		Days: map[time.Weekday]bool{
			time.Monday:    true,
			time.Tuesday:   true,
			time.Wednesday: true,
			time.Thursday:  true,
			time.Friday:    true,
		},
	}
}

func (c *SessionCalendar) openAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.OpenHour, c.OpenMin, 0, 0, c.Loc)
}

func (c *SessionCalendar) closeAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.CloseHour, c.CloseMin, 0, 0, c.Loc)
}

// InSession — попадает ли момент в торговую сессию.
func (c *SessionCalendar) InSession(t time.Time) bool {
	t = t.In(c.Loc)
	if !c.Days[t.Weekday()] {
		return false
	}
	return !t.Before(c.openAt(t)) && !t.After(c.closeAt(t))
}

// NextOpen — открытие следующей сессии строго после t.
// Сигнал в пятницу => понедельник 09:00.
func (c *SessionCalendar) NextOpen(t time.Time) time.Time {
	t = t.In(c.Loc)
	if c.Days[t.Weekday()] && t.Before(c.openAt(t)) {
		return c.openAt(t)
	}
	day := t
	for i := 0; i < 14; i++ {
		day = day.AddDate(0, 0, 1)
		if c.Days[day.Weekday()] {
			return c.openAt(day)
		}
	}
	// календарь без рабочих дней — деградируем в сутки
	return t.Add(24 * time.Hour)
}
