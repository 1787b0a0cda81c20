// Package auth guards print submissions with an API token and throttles
// clients that keep presenting a wrong one.
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	MaxFailedAttempts = 5
	LockoutDuration   = 5 * time.Minute
	CleanupInterval   = 5 * time.Minute
)

type failInfo struct {
	count       int
	lockedUntil time.Time
}

// Manager validates API tokens against a bcrypt hash and tracks failures per IP.
type Manager struct {
	hash     []byte
	failures map[string]failInfo
	mu       sync.RWMutex
}

// NewManager creates a token manager from a base64-encoded bcrypt hash.
// An empty hash disables authentication. The cleanup goroutine is bound to ctx.
func NewManager(ctx context.Context, hashB64 string) *Manager {
	m := &Manager{failures: make(map[string]failInfo)}
	if hashB64 != "" {
		hash, err := base64.StdEncoding.DecodeString(hashB64)
		if err != nil {
			// Undecodable hash: reject every token.
			log.Error().Err(err).Msg("[AUTH] ❌ Failed to decode token hash from base64; all tokens will be rejected")
			hash = []byte{0}
		}
		m.hash = hash
	}
	go m.cleanupLoop(ctx)
	log.Info().Bool("enabled", m.Enabled()).Msg("[AUTH] Token manager initialized")
	return m
}

// Enabled returns true if a token hash was configured.
func (m *Manager) Enabled() bool {
	return len(m.hash) > 0
}

// ValidateToken compares token with the configured hash.
func (m *Manager) ValidateToken(token string) bool {
	if !m.Enabled() {
		return true
	}
	if token == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword(m.hash, []byte(token)) == nil
}

// IsLockedOut returns true if the IP has exceeded MaxFailedAttempts.
func (m *Manager) IsLockedOut(ip string) bool {
	m.mu.RLock()
	info, exists := m.failures[ip]
	m.mu.RUnlock()
	if !exists {
		return false
	}
	return info.count >= MaxFailedAttempts && time.Now().Before(info.lockedUntil)
}

// RecordFailure increments the failure counter for an IP.
func (m *Manager) RecordFailure(ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info := m.failures[ip]
	info.count++
	if info.count >= MaxFailedAttempts {
		info.lockedUntil = time.Now().Add(LockoutDuration)
		log.Warn().Str("ip", ip).Int("attempts", info.count).Dur("lockout", LockoutDuration).
			Msg("[AUDIT] IP locked out after repeated invalid tokens")
	}
	m.failures[ip] = info
}

// ClearFailures resets the counter after a valid token.
func (m *Manager) ClearFailures(ip string) {
	m.mu.Lock()
	delete(m.failures, ip)
	m.mu.Unlock()
}

// Check validates token on behalf of ip and updates the lockout state.
func (m *Manager) Check(ip, token string) bool {
	if !m.Enabled() {
		return true
	}
	if m.IsLockedOut(ip) {
		return false
	}
	if !m.ValidateToken(token) {
		m.RecordFailure(ip)
		return false
	}
	m.ClearFailures(ip)
	return true
}

// Middleware rejects requests without a valid "Authorization: Bearer" token.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		ip := ClientIP(r)
		if m.IsLockedOut(ip) {
			writeDenied(w, http.StatusTooManyRequests, "AUTH: Too many failed attempts, try again later")
			return
		}
		if !m.Check(ip, BearerToken(r)) {
			log.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("[AUDIT] Invalid or missing API token")
			writeDenied(w, http.StatusUnauthorized, "AUTH: Invalid or missing token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken extracts the token from the Authorization header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// ClientIP returns the remote host of r without the port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeDenied(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

func (m *Manager) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("[AUTH] Cleanup goroutine stopped")
			return
		case <-ticker.C:
			m.mu.Lock()
			now := time.Now()
			for k, v := range m.failures {
				if v.count >= MaxFailedAttempts && now.After(v.lockedUntil) {
					delete(m.failures, k)
				}
			}
			m.mu.Unlock()
		}
	}
}
