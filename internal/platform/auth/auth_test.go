package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/testutil"
)

var secret = []byte("test-secret-test-secret-test-secret")

func init() { gin.SetMode(gin.TestMode) }

func newRouter() *gin.Engine {
	r := gin.New()
	api := r.Group("/", RequireAuth(secret))
	api.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c), "role": Role(c)})
	})
	api.GET("/admin", RequireRole("admin"), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func do(r http.Handler, path, authz string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	r := newRouter()

	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "Basic abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "Bearer not-a-jwt").Code)

	tok := testutil.Token(t, secret, "u1", "user")
	w := do(r, "/whoami", "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u1","role":"user"}`, w.Body.String())

	// ?token= (websocket 用)
	w = do(r, "/whoami?token="+tok, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuthRejectsOtherSecretAndExpired(t *testing.T) {
	r := newRouter()

	other := testutil.Token(t, []byte("another-secret"), "u1", "user")
	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "Bearer "+other).Code)

	expired, err := IssueToken(secret, "u1", "user", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "Bearer "+expired).Code)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"})
	s, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, do(r, "/whoami", "Bearer "+s).Code)
}

func TestOptionalAuth(t *testing.T) {
	r := gin.New()
	r.GET("/maybe", OptionalAuth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": UserID(c)})
	})

	w := do(r, "/maybe", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":""}`, w.Body.String())

	tok := testutil.Token(t, secret, "u1", "user")
	w = do(r, "/maybe", "Bearer "+tok)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u1"}`, w.Body.String())

	// 無効なトークンは匿名扱い
	other := testutil.Token(t, []byte("another-secret"), "u1", "user")
	w = do(r, "/maybe", "Bearer "+other)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":""}`, w.Body.String())
}

func TestRequireRole(t *testing.T) {
	r := newRouter()
	user := testutil.Token(t, secret, "u1", "user")
	admin := testutil.Token(t, secret, "a1", "admin")

	assert.Equal(t, http.StatusForbidden, do(r, "/admin", "Bearer "+user).Code)
	assert.Equal(t, http.StatusNoContent, do(r, "/admin", "Bearer "+admin).Code)
}

func TestRegisterAndLogin(t *testing.T) {
	d := testutil.NewDB(t)
	svc := NewService(NewStore(d), secret, time.Hour)
	ctx := context.Background()

	a, err := svc.Register(ctx, " Alice@Example.com ", "correct horse", "Alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", a.Email)
	assert.NotEqual(t, "correct horse", a.PasswordHash)

	_, err = svc.Register(ctx, "alice@example.com", "another-pass", "Alice 2")
	assert.Equal(t, apierr.CodeAlreadyExists, apierr.CodeOf(err))

	_, err = svc.Register(ctx, "bad", "password1", "x")
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))
	_, err = svc.Register(ctx, "b@example.com", "short", "x")
	assert.Equal(t, apierr.CodeInvalidArgument, apierr.CodeOf(err))

	tok, acct, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, a.ID, acct.ID)

	parsed, err := jwt.Parse(tok, func(*jwt.Token) (any, error) { return secret, nil })
	require.NoError(t, err)
	sub, _ := parsed.Claims.GetSubject()
	assert.Equal(t, a.ID, sub)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrAuthFailed)
	_, _, err = svc.Login(ctx, "nobody@example.com", "whatever1")
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestLoginSuspended(t *testing.T) {
	d := testutil.NewDB(t)
	svc := NewService(NewStore(d), secret, time.Hour)
	ctx := context.Background()

	a, err := svc.Register(ctx, "bob@example.com", "password123", "Bob")
	require.NoError(t, err)
	_, err = d.Exec(`UPDATE users SET status = 'suspended' WHERE id = ?`, a.ID)
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "bob@example.com", "password123")
	assert.Equal(t, apierr.CodeForbidden, apierr.CodeOf(err))
}
