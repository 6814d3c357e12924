package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodforge/internal/store"
)

func init() { gin.SetMode(gin.TestMode) }

var ctx = context.Background()

func newTestIssuer() *Issuer {
	return NewIssuer("foodforge", "test-key", time.Hour, 24*time.Hour)
}

func TestIssueAndParse(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue(ctx, "u1", "admin")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := iss.Parse(pair.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "admin", claims.Role)

	_, err = iss.Parse(pair.RefreshToken, KindAccess)
	assert.ErrorIs(t, err, ErrWrongKind)
}

func TestParseRejects(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue(ctx, "u1", "student")
	require.NoError(t, err)

	other := NewIssuer("foodforge", "another-key", time.Hour, time.Hour)
	_, err = other.Parse(pair.AccessToken, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := NewIssuer("elsewhere", "test-key", time.Hour, time.Hour)
	_, err = wrongIssuer.Parse(pair.AccessToken, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = iss.Parse("not-a-jwt", KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := newTestIssuer()
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, err := expired.Issue(ctx, "u1", "student")
	require.NoError(t, err)
	_, err = iss.Parse(old.AccessToken, KindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefresh(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue(ctx, "u1", "student")
	require.NoError(t, err)

	next, err := iss.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	claims, err := iss.Parse(next.AccessToken, KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "student", claims.Role)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = iss.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongKind)
}

// ----- Refresh token rotation and revocation -----

func TestRefreshTokenIsSingleUse(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue(ctx, "u1", "student")
	require.NoError(t, err)

	next, err := iss.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = iss.Refresh(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, ErrTokenRevoked)
	}

	// The rotated token still works, once.
	_, err = iss.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
	_, err = iss.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRefreshAfterRevoke(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue(ctx, "u1", "student")
	require.NoError(t, err)

	require.NoError(t, iss.Revoke(ctx, pair.RefreshToken))
	require.NoError(t, iss.Revoke(ctx, pair.RefreshToken))

	_, err = iss.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	assert.ErrorIs(t, iss.Revoke(ctx, "not-a-jwt"), ErrInvalidToken)
	assert.ErrorIs(t, iss.Revoke(ctx, pair.AccessToken), ErrWrongKind)
}

func TestRefreshUnknownToken(t *testing.T) {
	// Signed with the right key but never recorded by this issuer's store.
	pair, err := newTestIssuer().Issue(ctx, "u1", "student")
	require.NoError(t, err)

	_, err = newTestIssuer().Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}

func TestConcurrentRefreshOneWinner(t *testing.T) {
	iss := newTestIssuer()
	pair, err := iss.Issue(ctx, "u1", "student")
	require.NoError(t, err)

	const callers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := iss.Refresh(ctx, pair.RefreshToken); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSQLRefreshStore(t *testing.T) {
	db, err := store.NewSQLite(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	_, err = db.Client.ExecContext(ctx, db.Rebind(`
		INSERT INTO profiles (id, email, full_name, role, password_hash)
		VALUES ($1, $2, $3, 'student', 'x')
	`), "u1", "u1@example.edu", "Asha Rao")
	require.NoError(t, err)

	iss := newTestIssuer().WithRefreshStore(NewSQLRefreshStore(db))
	pair, err := iss.Issue(ctx, "u1", "student")
	require.NoError(t, err)

	next, err := iss.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = iss.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	require.NoError(t, iss.Revoke(ctx, next.RefreshToken))
	_, err = iss.Refresh(ctx, next.RefreshToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	var revoked int
	require.NoError(t, db.Client.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = 'u1' AND revoked`).Scan(&revoked))
	assert.Equal(t, 2, revoked)

	// Unknown subjects violate the profiles reference.
	_, err = iss.Issue(ctx, "ghost", "student")
	assert.Error(t, err)
}

func newRouter(iss *Issuer) *gin.Engine {
	r := gin.New()
	r.GET("/me", RequireSession(iss), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/admin", RequireSession(iss), RequireRole("admin"), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireSession(t *testing.T) {
	iss := newTestIssuer()
	r := newRouter(iss)
	pair, err := iss.Issue(ctx, "u1", "student")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{name: "missing", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "refresh token", header: "Bearer " + pair.RefreshToken, status: http.StatusUnauthorized},
		{name: "bearer", header: "Bearer " + pair.AccessToken, status: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + pair.AccessToken, status: http.StatusOK},
		{name: "query param", query: "?access_token=" + pair.AccessToken, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me"+tc.query, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "u1", w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), "AuthRequired")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	iss := newTestIssuer()
	r := newRouter(iss)

	student, err := iss.Issue(ctx, "u1", "student")
	require.NoError(t, err)
	admin, err := iss.Issue(ctx, "a1", "admin")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+student.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+admin.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}
