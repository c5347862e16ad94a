package utmp

import (
	"fmt"
	"time"
)

// Timestamp layouts. The local layout is used when the login time can be
// expressed in the monitor's local UTC offset; the general layout spells the
// offset out so the text stays unambiguous. Both sort lexicographically.
const (
	localTimeLayout   = "2006-01-02 15:04:05"
	generalTimeLayout = "2006-01-02 15:04:05 -07:00:00"
)

// LocalLocation resolves the local time zone for label rendering. It returns
// nil when the zone database cannot answer, in which case labels fall back
// to the explicit-offset layout.
func LocalLocation() *time.Location {
	loc, err := time.LoadLocation("Local")
	if err != nil {
		return nil
	}
	return loc
}

// FormatTime renders a login timestamp. With a resolvable location the time
// is shown in that zone; otherwise the stored offset is spelled out.
func FormatTime(t time.Time, loc *time.Location) string {
	if loc != nil {
		return t.In(loc).Format(localTimeLayout)
	}
	return t.Format(generalTimeLayout)
}

// Label builds the human-readable line for a session record:
// "{time} - {user} / {line}", with " @ {host}" appended for remote sessions.
func (r SessionRecord) Label(loc *time.Location) string {
	label := fmt.Sprintf("%s - %s / %s", FormatTime(r.LoginTime, loc), r.User, r.Line)
	if r.Host != "" {
		label += fmt.Sprintf(" @ %s", r.Host)
	}
	return label
}
