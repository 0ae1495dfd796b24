package share

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() Policy {
	return Policy{
		TTLMinMillis:     180000,
		TTLMaxMillis:     86400000,
		TTLDefaultMillis: 86400000,
		MinDownloads:     3,
		MaxDownloads:     50,
		MediaTypes:       []string{"application/pdf", "image/png"},
	}
}

func validRequest() *CreateRequest {
	return &CreateRequest{
		Body:      strings.NewReader("payload"),
		SizeBytes: 7,
		FileName:  "notes.pdf",
		MediaType: "application/pdf",
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestValidateCreateAccepts(t *testing.T) {
	p := testPolicy()

	req := validRequest()
	require.NoError(t, p.ValidateCreate(req))

	req = validRequest()
	req.MaxDownloads = intPtr(3)
	req.TTLMillis = int64Ptr(180000)
	req.Password = "abc123"
	require.NoError(t, p.ValidateCreate(req))

	req = validRequest()
	req.MaxDownloads = intPtr(50)
	req.TTLMillis = int64Ptr(86400000)
	require.NoError(t, p.ValidateCreate(req))
}

func TestValidateCreateRejects(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		name   string
		mutate func(*CreateRequest)
		field  string
	}{
		{"empty file", func(r *CreateRequest) { r.SizeBytes = 0 }, "sizebytes"},
		{"missing name", func(r *CreateRequest) { r.FileName = "" }, "filename"},
		{"missing media type", func(r *CreateRequest) { r.MediaType = "" }, "mediatype"},
		{"unlisted media type", func(r *CreateRequest) { r.MediaType = "application/x-msdownload" }, "mediatype"},
		{"downloads below minimum", func(r *CreateRequest) { r.MaxDownloads = intPtr(2) }, "maxdownloads"},
		{"downloads above maximum", func(r *CreateRequest) { r.MaxDownloads = intPtr(51) }, "maxdownloads"},
		{"ttl below minimum", func(r *CreateRequest) { r.TTLMillis = int64Ptr(179999) }, "ttlmillis"},
		{"ttl above maximum", func(r *CreateRequest) { r.TTLMillis = int64Ptr(86400001) }, "ttlmillis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(req)
			err := p.ValidateCreate(req)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateCreateEmptyAllowlistAcceptsAnything(t *testing.T) {
	p := testPolicy()
	p.MediaTypes = nil
	req := validRequest()
	req.MediaType = "application/x-anything"
	require.NoError(t, p.ValidateCreate(req))
}

func TestTTLOrDefault(t *testing.T) {
	p := testPolicy()
	req := validRequest()
	assert.Equal(t, p.TTLDefaultMillis, p.ttlOrDefault(req))
	req.TTLMillis = int64Ptr(300000)
	assert.Equal(t, int64(300000), p.ttlOrDefault(req))
}
