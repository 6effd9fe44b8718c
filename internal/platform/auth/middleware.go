package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"bookshare-backend/internal/platform/apierr"
)

const (
	CtxUserIDKey = "user_id"
	CtxRoleKey   = "role"
)

const codeUnauthenticated apierr.Code = "UNAUTHENTICATED"

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, apierr.Body(codeUnauthenticated, msg))
}

// RequireAuth: Authorization: Bearer <token> を検証して context に sub/role を詰める
// ブラウザの WebSocket はヘッダを付けられないので ?token= も受け付ける
func RequireAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "missing or invalid Authorization header")
			return
		}
		sub, role, msg := parseToken(secret, tokenStr)
		if msg != "" {
			unauthorized(c, msg)
			return
		}
		c.Set(CtxUserIDKey, sub)
		c.Set(CtxRoleKey, role)
		c.Next()
	}
}

// OptionalAuth は公開の読み取り用。有効なトークンがあれば RequireAuth と同じく詰め、
// 無い・無効なら匿名のまま通す
func OptionalAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tokenStr, ok := bearerToken(c); ok {
			if sub, role, msg := parseToken(secret, tokenStr); msg == "" {
				c.Set(CtxUserIDKey, sub)
				c.Set(CtxRoleKey, role)
			}
		}
		c.Next()
	}
}

// parseToken returns a non-empty msg when the token is rejected.
func parseToken(secret []byte, tokenStr string) (sub, role, msg string) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || token == nil || !token.Valid {
		return "", "", "invalid token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", "invalid claims"
	}

	sub, err = claims.GetSubject()
	if err != nil || sub == "" {
		return "", "", "invalid sub"
	}

	role, _ = claims["role"].(string)
	return sub, role, ""
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		if q := strings.TrimSpace(c.Query("token")); q != "" {
			return q, true
		}
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// RequireRole: 例) admin のみ許可したい時に追加
func RequireRole(roles ...string) gin.HandlerFunc {
	roleSet := make(map[string]struct{})
	for _, r := range roles {
		if r == "" {
			continue
		}
		roleSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role := Role(c)
		if role == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, apierr.Body(apierr.CodeForbidden, "missing role"))
			return
		}
		if _, allowed := roleSet[role]; !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, apierr.Body(apierr.CodeForbidden, "forbidden"))
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated actor, or "" on an anonymous OptionalAuth request.
func UserID(c *gin.Context) string {
	return c.GetString(CtxUserIDKey)
}

func Role(c *gin.Context) string {
	return c.GetString(CtxRoleKey)
}
