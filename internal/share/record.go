// Package share implements the access-control and lifecycle engine for
// ephemeral file shares: expiry evaluation, the access gate, the download
// budget ledger, and the reclamation sweep.
package share

import (
	"time"
)

// Record holds the persisted metadata for one shared file. All fields except
// RemainingDownloads and Terminal are write-once at creation time.
type Record struct {
	ID         string    `json:"id"`
	Locator    string    `json:"locator"`
	BlobKey    string    `json:"-"`
	FileName   string    `json:"fileName"`
	MediaType  string    `json:"mediaType"`
	SizeBytes  int64     `json:"sizeBytes"`
	UploadedAt time.Time `json:"uploadedAt"`
	// TTLMillis is the share lifetime in milliseconds counted from UploadedAt.
	TTLMillis int64 `json:"ttlMillis"`
	// MaxDownloads is nil for shares with an unlimited download budget.
	MaxDownloads       *int `json:"maxDownloads,omitempty"`
	RemainingDownloads *int `json:"remainingDownloads,omitempty"`
	// PasswordHash is empty when the share is not password protected.
	PasswordHash string `json:"-"`
	// Terminal is set in the same atomic step as the decrement that brings
	// RemainingDownloads to zero. A terminal record is logically gone even
	// before the sweeper physically deletes it.
	Terminal  bool      `json:"terminal"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Unlimited reports whether the share has no download budget.
func (r *Record) Unlimited() bool {
	return r.MaxDownloads == nil
}

// HasPassword reports whether a password is required to redeem the share.
func (r *Record) HasPassword() bool {
	return r.PasswordHash != ""
}

// ExpiresAtMillis returns the expiration instant as Unix milliseconds. Both
// operands are int64 so the sum cannot silently truncate.
func (r *Record) ExpiresAtMillis() int64 {
	return r.UploadedAt.UnixMilli() + r.TTLMillis
}

// Reclaimable reports whether the record is eligible for physical deletion:
// terminal, budget exhausted, or past its TTL.
func (r *Record) Reclaimable(now time.Time) bool {
	if r.Terminal {
		return true
	}
	if r.RemainingDownloads != nil && *r.RemainingDownloads <= 0 {
		return true
	}
	return IsExpired(r, now)
}
