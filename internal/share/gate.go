package share

import "time"

// DecisionKind labels the outcome of an access evaluation.
type DecisionKind string

const (
	DecisionAllowed         DecisionKind = "allowed"
	DecisionExpired         DecisionKind = "expired"
	DecisionWrongPassword   DecisionKind = "wrong_password"
	DecisionBudgetExhausted DecisionKind = "budget_exhausted"
	DecisionNotFound        DecisionKind = "not_found"
)

// Decision is the access gate's verdict for one redemption attempt. Meta is
// populated only when Kind is DecisionAllowed.
type Decision struct {
	Kind DecisionKind `json:"kind"`
	Meta *AccessMeta  `json:"meta,omitempty"`
}

// AccessMeta carries the metadata a client needs to render the share before
// committing to the actual byte transfer.
type AccessMeta struct {
	FileID             string    `json:"fileId"`
	FileName           string    `json:"fileName"`
	MediaType          string    `json:"mediaType"`
	SizeBytes          int64     `json:"sizeBytes"`
	UploadedAt         time.Time `json:"uploadedAt"`
	TTLMillis          int64     `json:"ttlMillis"`
	MaxDownloads       *int      `json:"maxDownloads,omitempty"`
	RemainingDownloads *int      `json:"remainingDownloads,omitempty"`
}

// Evaluate runs the access gate against a record. The check order is fixed
// and load-bearing: expiry before password so a dead link never leaks whether
// a guessed password was correct, then the budget check. Evaluate has no side
// effects; consuming a download unit is a separate, explicit operation.
func Evaluate(r *Record, suppliedPassword string, now time.Time, verify func(hash, plaintext string) bool) Decision {
	if r == nil {
		return Decision{Kind: DecisionNotFound}
	}
	if IsExpired(r, now) {
		return Decision{Kind: DecisionExpired}
	}
	if r.HasPassword() && !verify(r.PasswordHash, suppliedPassword) {
		return Decision{Kind: DecisionWrongPassword}
	}
	if r.Terminal || (r.RemainingDownloads != nil && *r.RemainingDownloads <= 0) {
		return Decision{Kind: DecisionBudgetExhausted}
	}
	return Decision{
		Kind: DecisionAllowed,
		Meta: &AccessMeta{
			FileID:             r.ID,
			FileName:           r.FileName,
			MediaType:          r.MediaType,
			SizeBytes:          r.SizeBytes,
			UploadedAt:         r.UploadedAt,
			TTLMillis:          r.TTLMillis,
			MaxDownloads:       r.MaxDownloads,
			RemainingDownloads: r.RemainingDownloads,
		},
	}
}
