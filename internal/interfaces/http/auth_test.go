package http

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/field-service/internal/application/workflow"
)

func TestAuthenticator_IssueAndParse(t *testing.T) {
	auth := NewAuthenticator("s3cret", "field-service")

	token, err := auth.Issue(workflow.Operator{ID: "admin-1", Role: workflow.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	op, err := auth.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", op.ID)
	assert.True(t, op.IsAdmin())
}

func TestAuthenticator_Rejects(t *testing.T) {
	auth := NewAuthenticator("s3cret", "field-service")

	t.Run("expired", func(t *testing.T) {
		auth.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := auth.Issue(workflow.Operator{ID: "tech-1"}, time.Hour)
		auth.now = time.Now
		require.NoError(t, err)

		_, err = auth.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewAuthenticator("other", "field-service")
		token, err := other.Issue(workflow.Operator{ID: "tech-1"}, time.Hour)
		require.NoError(t, err)

		_, err = auth.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewAuthenticator("s3cret", "someone-else")
		token, err := other.Issue(workflow.Operator{ID: "tech-1"}, time.Hour)
		require.NoError(t, err)

		_, err = auth.Parse(token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "tech-1", Issuer: "field-service"},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = auth.Parse(token)
		assert.Error(t, err)
	})
}

func TestAuthenticator_DefaultsRole(t *testing.T) {
	auth := NewAuthenticator("s3cret", "")
	token, err := auth.Issue(workflow.Operator{ID: "tech-1"}, time.Hour)
	require.NoError(t, err)

	op, err := auth.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, workflow.RoleTechnician, op.Role)
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	w, resp := env.do(t, http.MethodGet, "/api/orders/7", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "missing bearer token", resp.Error)

	w, _ = env.do(t, http.MethodGet, "/api/orders/7", nil, map[string]string{"Authorization": "Bearer garbage"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := env.auth.Issue(workflow.Operator{ID: "tech-1", Role: workflow.RoleTechnician}, time.Hour)
	require.NoError(t, err)
	w, _ = env.do(t, http.MethodGet, "/api/orders/7", nil, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = env.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code, "health stays public")
}

func TestAuthenticator_DisabledIssue(t *testing.T) {
	_, err := NewAuthenticator("", "").Issue(workflow.Operator{ID: "x"}, time.Minute)
	assert.Error(t, err)
}
