package auth

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func hashB64(t *testing.T, token string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(hash)
}

func newManager(t *testing.T, hash string) *Manager {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewManager(ctx, hash)
}

func TestDisabledAcceptsEverything(t *testing.T) {
	m := newManager(t, "")

	assert.False(t, m.Enabled())
	assert.True(t, m.ValidateToken(""))
	assert.True(t, m.Check("10.0.0.1", "anything"))
}

func TestValidateToken(t *testing.T) {
	m := newManager(t, hashB64(t, "s3cret"))

	assert.True(t, m.Enabled())
	assert.True(t, m.ValidateToken("s3cret"))
	assert.False(t, m.ValidateToken("wrong"))
	assert.False(t, m.ValidateToken(""))
}

func TestUndecodableHashRejectsAll(t *testing.T) {
	m := newManager(t, "%%%not-base64%%%")

	assert.True(t, m.Enabled())
	assert.False(t, m.ValidateToken("s3cret"))
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	m := newManager(t, hashB64(t, "s3cret"))
	ip := "192.168.1.20"

	for i := 0; i < MaxFailedAttempts; i++ {
		assert.False(t, m.Check(ip, "wrong"))
	}
	assert.True(t, m.IsLockedOut(ip))
	// Even the right token is refused while locked.
	assert.False(t, m.Check(ip, "s3cret"))
	// Other clients are unaffected.
	assert.True(t, m.Check("192.168.1.21", "s3cret"))
}

func TestSuccessClearsFailures(t *testing.T) {
	m := newManager(t, hashB64(t, "s3cret"))
	ip := "192.168.1.30"

	for i := 0; i < MaxFailedAttempts-1; i++ {
		m.RecordFailure(ip)
	}
	assert.True(t, m.Check(ip, "s3cret"))
	m.RecordFailure(ip)
	assert.False(t, m.IsLockedOut(ip))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc", "abc"},
		{"bearer  abc ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		assert.Equal(t, tt.want, BearerToken(r), "header %q", tt.header)
	}
}

func TestMiddleware(t *testing.T) {
	m := newManager(t, hashB64(t, "s3cret"))
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/printers/x/print", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)

	req = httptest.NewRequest(http.MethodPost, "/printers/x/print", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	for i := 0; i < MaxFailedAttempts; i++ {
		req = httptest.NewRequest(http.MethodPost, "/printers/x/print", nil)
		req.Header.Set("Authorization", "Bearer nope")
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	req = httptest.NewRequest(http.MethodPost, "/printers/x/print", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", ClientIP(r))

	r.RemoteAddr = "weird"
	assert.Equal(t, "weird", ClientIP(r))
}
