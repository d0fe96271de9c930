package valueobject

import "time"

// AddBusinessDays прибавляет n рабочих дней (пн-пт), сохраняя время суток.
func AddBusinessDays(t time.Time, n int) time.Time {
	for n > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			n--
		}
	}
	return t
}
