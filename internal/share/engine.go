package share

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driftshare/driftshare/internal/locator"
)

// locatorAttempts bounds retries when a freshly generated locator collides
// with an existing record. With a 21-character token collisions are
// vanishingly rare; the bound only guards against a broken generator.
const locatorAttempts = 4

// Engine orchestrates share creation, redemption, and reclamation against
// injected blob/record stores. It holds no in-process locks across store
// calls; the record store is the authority for budget synchronization.
type Engine struct {
	blobs      BlobStore
	records    RecordStore
	hasher     PasswordHasher
	policy     Policy
	log        zerolog.Logger
	now        func() time.Time
	newLocator func() string
}

// Option adjusts an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the engine's time source; tests use it to pin "now".
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocatorFunc overrides the locator generator.
func WithLocatorFunc(f func() string) Option {
	return func(e *Engine) { e.newLocator = f }
}

// NewEngine constructs an Engine.
func NewEngine(blobs BlobStore, records RecordStore, hasher PasswordHasher, policy Policy, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		blobs:      blobs,
		records:    records,
		hasher:     hasher,
		policy:     policy,
		log:        logger,
		now:        time.Now,
		newLocator: locator.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Create validates the request, stores the blob, and persists the record.
// The record is never inserted if the blob write fails; if the insert fails
// after a successful blob write the orphaned blob is deleted best-effort.
func (e *Engine) Create(ctx context.Context, req *CreateRequest) (*Record, error) {
	if err := e.policy.ValidateCreate(req); err != nil {
		return nil, err
	}

	var passwordHash string
	if req.Password != "" {
		hash, err := e.hasher.Hash(req.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		passwordHash = hash
	}

	id := uuid.NewString()
	blobKey := fmt.Sprintf("shares/%s/%s", id, filepath.Base(req.FileName))
	if err := e.blobs.Put(ctx, blobKey, req.Body, req.SizeBytes, req.MediaType); err != nil {
		return nil, fmt.Errorf("store blob: %w", err)
	}

	now := e.now().UTC()
	rec := &Record{
		ID:           id,
		BlobKey:      blobKey,
		FileName:     req.FileName,
		MediaType:    req.MediaType,
		SizeBytes:    req.SizeBytes,
		UploadedAt:   now,
		TTLMillis:    e.policy.ttlOrDefault(req),
		PasswordHash: passwordHash,
		UpdatedAt:    now,
	}
	if req.MaxDownloads != nil {
		max := *req.MaxDownloads
		remaining := max
		rec.MaxDownloads = &max
		rec.RemainingDownloads = &remaining
	}

	var insertErr error
	for attempt := 0; attempt < locatorAttempts; attempt++ {
		rec.Locator = e.newLocator()
		insertErr = e.records.Insert(ctx, rec)
		if insertErr == nil {
			e.log.Info().
				Str("id", rec.ID).
				Str("locator", rec.Locator).
				Int64("size", rec.SizeBytes).
				Int64("ttl_ms", rec.TTLMillis).
				Bool("password", rec.HasPassword()).
				Msg("share created")
			return rec, nil
		}
		if !errors.Is(insertErr, ErrLocatorTaken) {
			break
		}
	}

	// The blob landed but the record did not; clean up so no orphan survives.
	if err := e.blobs.Delete(ctx, blobKey); err != nil {
		e.log.Warn().Err(err).Str("key", blobKey).Msg("orphan blob cleanup failed")
	}
	return nil, fmt.Errorf("insert record: %w", insertErr)
}

// LookupResult is the public view of a share resolved by its locator.
type LookupResult struct {
	ID          string `json:"id"`
	TTLMillis   int64  `json:"ttlMillis"`
	HasPassword bool   `json:"hasPassword"`
}

// Lookup resolves a public locator to the minimal metadata a client needs
// before requesting access. The password hash itself is never exposed.
func (e *Engine) Lookup(ctx context.Context, loc string) (*LookupResult, error) {
	rec, err := e.records.GetByLocator(ctx, loc)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup locator: %w", err)
	}
	return &LookupResult{
		ID:          rec.ID,
		TTLMillis:   rec.TTLMillis,
		HasPassword: rec.HasPassword(),
	}, nil
}

// RequestAccess runs the access gate for a preview. It never consumes a
// download unit; clients call it before committing to the byte transfer.
func (e *Engine) RequestAccess(ctx context.Context, id, suppliedPassword string) (Decision, error) {
	rec, err := e.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Decision{Kind: DecisionNotFound}, nil
		}
		return Decision{}, fmt.Errorf("load record: %w", err)
	}
	return Evaluate(rec, suppliedPassword, e.now(), e.hasher.Verify), nil
}

// OpenDownload grants the byte transfer for a share. The budget decrement is
// applied before any byte is handed to the caller, so an aborted transfer
// still consumes one unit; that trade-off is deliberate. Unlimited shares
// skip the ledger entirely. The returned reader must be closed by the caller.
func (e *Engine) OpenDownload(ctx context.Context, id string) (io.ReadCloser, *Record, error) {
	rec, err := e.records.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("load record: %w", err)
	}
	if IsExpired(rec, e.now()) {
		return nil, nil, ErrExpired
	}
	if !rec.Unlimited() {
		res, err := e.records.ConsumeDownload(ctx, id)
		if err != nil {
			if errors.Is(err, ErrBudgetExhausted) || errors.Is(err, ErrNotFound) {
				return nil, nil, err
			}
			return nil, nil, fmt.Errorf("consume download: %w", err)
		}
		remaining := res.NewRemaining
		rec.RemainingDownloads = &remaining
		rec.Terminal = res.BecameTerminal
		e.log.Debug().
			Str("id", id).
			Int("remaining", res.NewRemaining).
			Bool("terminal", res.BecameTerminal).
			Msg("download unit consumed")
	}
	body, err := e.blobs.Get(ctx, rec.BlobKey)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch blob: %w", err)
	}
	return body, rec, nil
}
