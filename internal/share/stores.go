package share

import (
	"context"
	"io"
	"time"
)

// BlobStore is the object-storage capability the engine depends on. Keys are
// opaque to the engine; implementations map them onto buckets/paths.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// DecrementResult reports the outcome of one atomic budget decrement.
type DecrementResult struct {
	NewRemaining   int
	BecameTerminal bool
}

// RecordStore is the persistence capability for share records.
//
// ConsumeDownload must be atomic with respect to concurrent callers on the
// same id: the zero-check and the decrement happen as one indivisible step,
// and the terminal flag is set in that same step when the counter reaches
// zero. It returns ErrBudgetExhausted when nothing remains and ErrNotFound
// when the record is gone. Insert returns ErrLocatorTaken on a locator
// uniqueness conflict.
type RecordStore interface {
	Insert(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	GetByLocator(ctx context.Context, locator string) (*Record, error)
	ConsumeDownload(ctx context.Context, id string) (DecrementResult, error)
	FindReclaimable(ctx context.Context, now time.Time) ([]*Record, error)
	Delete(ctx context.Context, id string) error
}

// PasswordHasher abstracts the hashing primitive. Verify against an empty
// stored hash always succeeds (an unprotected share matches any password).
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) bool
}
