package share

import (
	"testing"
	"time"
)

func TestIsExpired(t *testing.T) {
	uploaded := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &Record{UploadedAt: uploaded, TTLMillis: 180000}
	expiry := uploaded.Add(180000 * time.Millisecond)

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"well before expiry", uploaded.Add(time.Minute), false},
		{"one ms before expiry", expiry.Add(-time.Millisecond), false},
		{"exactly at expiry", expiry, false},
		{"one ms past expiry", expiry.Add(time.Millisecond), true},
		{"long past expiry", expiry.Add(48 * time.Hour), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpired(rec, tt.now); got != tt.want {
				t.Fatalf("IsExpired(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

// Once a record reports expired it must stay expired for every later instant.
func TestIsExpiredMonotonic(t *testing.T) {
	uploaded := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &Record{UploadedAt: uploaded, TTLMillis: 1000}

	firstExpired := time.Time{}
	for now := uploaded; now.Before(uploaded.Add(5 * time.Second)); now = now.Add(100 * time.Millisecond) {
		expired := IsExpired(rec, now)
		if expired && firstExpired.IsZero() {
			firstExpired = now
		}
		if !expired && !firstExpired.IsZero() {
			t.Fatalf("expired at %v but not at later instant %v", firstExpired, now)
		}
	}
	if firstExpired.IsZero() {
		t.Fatal("record never expired within the scanned window")
	}
}

// Large TTL values must not wrap: the sum is computed on int64 milliseconds.
func TestIsExpiredLargeTTL(t *testing.T) {
	rec := &Record{
		UploadedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		TTLMillis:  1000 * 365 * 24 * 60 * 60 * 1000, // a thousand years
	}
	if IsExpired(rec, time.Date(2200, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatal("record with a huge TTL reported expired")
	}
}
