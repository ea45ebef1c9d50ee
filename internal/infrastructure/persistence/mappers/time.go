package mappers

import "time"

// utcPtr normalises driver-returned times; MySQL and SQLite may hand back local or unnamed zones.
func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
