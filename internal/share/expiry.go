package share

import "time"

// IsExpired reports whether the share's TTL has elapsed at the given instant.
// The comparison is strict: a redemption at exactly UploadedAt+TTL is still
// valid. Arithmetic is done on Unix milliseconds (int64) so large TTL values
// cannot overflow a narrower type.
func IsExpired(r *Record, now time.Time) bool {
	return now.UnixMilli() > r.ExpiresAtMillis()
}
