package licensegate

import "time"

// ExpirationLayout is the authority's expiration format. Values are always UTC.
const ExpirationLayout = "2006-01-02T15:04:05"

// ParseExpiration converts the authority's expiration string into an instant.
//
// A nil value means the authority did not grant anything, so the license is
// treated as expiring now. A value that does not match ExpirationLayout is a
// contract violation and is returned as an *ExpirationError.
func ParseExpiration(raw *string, now time.Time) (time.Time, error) {
	if raw == nil {
		return now.UTC(), nil
	}
	t, err := time.ParseInLocation(ExpirationLayout, *raw, time.UTC)
	if err != nil {
		return time.Time{}, &ExpirationError{Raw: *raw, Err: err}
	}
	return t, nil
}

// FormatExpiration renders t in ExpirationLayout, in UTC.
func FormatExpiration(t time.Time) string {
	return t.UTC().Format(ExpirationLayout)
}

// daysBetween returns the whole number of days from now until t, rounded to
// the nearest day. Provisional grants usually expire within the hour, so the
// result is zero most of the time.
func daysBetween(now, t time.Time) int {
	d := t.Sub(now)
	days := d / (24 * time.Hour)
	if rem := d % (24 * time.Hour); rem >= 12*time.Hour {
		days++
	} else if rem <= -12*time.Hour {
		days--
	}
	return int(days)
}
