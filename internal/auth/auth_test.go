package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func TestNew(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)

	_, err = New(testSecret)
	assert.NoError(t, err)
}

func TestIssueVerify(t *testing.T) {
	s, err := New(testSecret)
	require.NoError(t, err)

	token, err := s.Issue("u1", time.Hour)
	require.NoError(t, err)

	claims, err := s.Verify(token)
	assert.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 2*time.Second)

	_, err = s.Issue("", time.Hour)
	assert.Error(t, err)
}

func TestVerifyRejects(t *testing.T) {
	s, err := New(testSecret)
	require.NoError(t, err)

	token, err := s.Issue("u1", time.Hour)
	require.NoError(t, err)

	other, err := New([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	foreign, err := other.Issue("u2", time.Hour)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	foreignParts := strings.Split(foreign, ".")
	require.Len(t, foreignParts, 3)

	sig := parts[2]
	flipped := "A"
	if sig[0] == 'A' {
		flipped = "B"
	}

	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	sign := func(method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
		signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return signed
	}

	var tests = []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"not a jwt", "nope"},
		{"foreign signer", foreign},
		{"swapped payload", parts[0] + "." + foreignParts[1] + "." + sig},
		{"tampered signature", parts[0] + "." + parts[1] + "." + flipped + sig[1:]},
		{"alg none", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{Subject: "u1", ExpiresAt: exp})},
		{"other hmac alg", sign(jwt.SigningMethodHS512, testSecret, jwt.RegisteredClaims{Subject: "u1", ExpiresAt: exp})},
		{"no subject", sign(jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{ExpiresAt: exp})},
		{"no expiry", sign(jwt.SigningMethodHS256, testSecret, jwt.RegisteredClaims{Subject: "u1"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Verify(tt.token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	s, err := New(testSecret)
	require.NoError(t, err)

	now := time.Unix(1700000000, 0)
	s.now = func() time.Time { return now }

	token, err := s.Issue("u1", time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestMiddleware(t *testing.T) {
	s, err := New(testSecret)
	require.NoError(t, err)

	token, err := s.Issue("u1", time.Hour)
	require.NoError(t, err)

	h := s.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserID(r.Context())
		assert.True(t, ok)
		w.Write([]byte(userID))
	}))

	var tests = []struct {
		name     string
		header   string
		expected int
		body     string
	}{
		{"valid", "Bearer " + token, http.StatusOK, "u1"},
		{"lowercase scheme", "bearer " + token, http.StatusOK, "u1"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized, ""},
		{"garbage", "Bearer nope", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			h.ServeHTTP(rr, req)

			assert.Equal(t, tt.expected, rr.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rr.Body.String())
			}
		})
	}
}
