package db

import "time"

// Now is the timestamp source for every stored time: UTC at microsecond
// precision, which both postgres and the sqlite test store keep exactly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
