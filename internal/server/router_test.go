package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookshare-backend/internal/geo"
	"bookshare-backend/internal/platform/config"
	"bookshare-backend/internal/testutil"
)

func testConfig(mode string) *config.Config {
	return &config.Config{
		Mode:    mode,
		Auth:    config.AuthConfig{JWTSecret: "0123456789abcdef0123456789abcdef", TokenTTL: time.Hour},
		Lending: config.LendingConfig{DefaultDurationDays: 14},
	}
}

func do(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterWiring(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := testutil.NewDB(t)
	r := NewRouter(testConfig("dev"), d)

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/openapi.json", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/api/v1/books/mine", "", nil).Code)

	// register → login → 認証付きの呼び出し
	w := do(t, r, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "ada@example.com", "password": "correct horse", "name": "Ada",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "correct horse",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	w = do(t, r, http.MethodGet, "/api/v1/users/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Ada"`)

	w = do(t, r, http.MethodGet, "/api/v1/transactions?role=all", login.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, r, http.MethodGet, "/api/v1/disputes", login.Token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 一般ユーザは admin ルートに入れない
	w = do(t, r, http.MethodPost, "/api/v1/admin/users/x/recompute", login.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAnonymousReads(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := testutil.NewDB(t)
	cfg := testConfig("release")
	r := NewRouter(cfg, d)

	owner := testutil.CreateUser(t, d, testutil.UserOpts{Name: "Owner"})
	book := testutil.CreateBook(t, d, owner, testutil.BookOpts{Title: "Dune", Lat: testutil.Float(40), Lon: testutil.Float(-74)},
		geo.Encode(40, -74, geo.StoredPrecision))

	w := do(t, r, http.MethodGet, "/api/v1/books/"+book, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"Dune"`)

	w = do(t, r, http.MethodGet, "/api/v1/books/search?q=dune&lat=40.01&lon=-74.01&radius=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Items, 1)
	assert.Equal(t, book, res.Items[0].ID)

	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/v1/users/"+owner, "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, r, http.MethodGet, "/api/v1/users/"+owner+"/ratings", "", nil).Code)

	// 書き込みと本人向けの読み取りは従来どおりトークン必須
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodPost, "/api/v1/books", "", map[string]string{"title": "x"}).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, r, http.MethodGet, "/api/v1/users/"+owner+"/reputation", "", nil).Code)

	// 持ち主が検索すると自分の本は除かれる
	tok := testutil.Token(t, []byte(cfg.Auth.JWTSecret), owner, "user")
	w = do(t, r, http.MethodGet, "/api/v1/books/search?lat=40.01&lon=-74.01&radius=5", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Empty(t, res.Items)
}

func TestReleaseModeHidesDocs(t *testing.T) {
	d := testutil.NewDB(t)
	r := NewRouter(testConfig("release"), d)
	gin.SetMode(gin.TestMode)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/openapi.json", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/swagger/index.html", "", nil).Code)
}
