package share

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Policy holds the configurable creation bounds. Values come from config, not
// hardcoded literals, so deployments can tighten or relax them.
type Policy struct {
	TTLMinMillis     int64
	TTLMaxMillis     int64
	TTLDefaultMillis int64
	MinDownloads     int
	MaxDownloads     int
	// MediaTypes is the allowlist of accepted media categories. Empty means
	// accept anything.
	MediaTypes []string
}

// CreateRequest carries the parameters for a new share. Body is read exactly
// once during creation.
type CreateRequest struct {
	Body      io.Reader `validate:"-"`
	SizeBytes int64     `validate:"gt=0"`
	FileName  string    `validate:"required,max=512"`
	MediaType string    `validate:"required"`
	Password  string    `validate:"omitempty,max=128"`
	// MaxDownloads nil means unlimited redemptions.
	MaxDownloads *int `validate:"omitempty,gt=0"`
	// TTLMillis nil means the policy default.
	TTLMillis *int64 `validate:"omitempty,gt=0"`
}

var structValidator = validator.New()

// ValidateCreate checks a creation request against the static shape rules and
// the configured policy bounds. It is invoked before the engine touches any
// store, returning a *ValidationError naming the first offending field.
func (p Policy) ValidateCreate(req *CreateRequest) error {
	if err := structValidator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{
				Field:  strings.ToLower(verrs[0].Field()),
				Reason: fmt.Sprintf("failed %q constraint", verrs[0].Tag()),
			}
		}
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	if len(p.MediaTypes) > 0 && !contains(p.MediaTypes, req.MediaType) {
		return &ValidationError{
			Field:  "mediatype",
			Reason: fmt.Sprintf("%q is not an accepted media type", req.MediaType),
		}
	}
	if req.MaxDownloads != nil {
		if n := *req.MaxDownloads; n < p.MinDownloads || n > p.MaxDownloads {
			return &ValidationError{
				Field:  "maxdownloads",
				Reason: fmt.Sprintf("must be between %d and %d", p.MinDownloads, p.MaxDownloads),
			}
		}
	}
	if req.TTLMillis != nil {
		if ttl := *req.TTLMillis; ttl < p.TTLMinMillis || ttl > p.TTLMaxMillis {
			return &ValidationError{
				Field:  "ttlmillis",
				Reason: fmt.Sprintf("must be between %d and %d milliseconds", p.TTLMinMillis, p.TTLMaxMillis),
			}
		}
	}
	return nil
}

// ttlOrDefault resolves the effective TTL for a request.
func (p Policy) ttlOrDefault(req *CreateRequest) int64 {
	if req.TTLMillis != nil {
		return *req.TTLMillis
	}
	return p.TTLDefaultMillis
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
