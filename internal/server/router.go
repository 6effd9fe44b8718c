// Package server assembles the gin engine: middleware, API groups and
// the per-domain services that back them.
package server

import (
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"bookshare-backend/internal/disputes"
	"bookshare-backend/internal/lending"
	"bookshare-backend/internal/listings"
	"bookshare-backend/internal/messaging"
	"bookshare-backend/internal/platform/apidocs"
	"bookshare-backend/internal/platform/auth"
	"bookshare-backend/internal/platform/config"
	"bookshare-backend/internal/platform/db"
	"bookshare-backend/internal/users"
)

const apiPrefix = "/api/v1"

func NewRouter(cfg *config.Config, conn *db.DB) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	_ = r.SetTrustedProxies(nil)

	if cfg.Mode == "dev" {
		// CORS（開発中のみ必要）
		r.Use(cors.New(cors.Config{
			AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Location"},
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowCredentials: true,
		}))
		apidocs.Register(r)
	}

	// ヘルス
	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	secret := []byte(cfg.Auth.JWTSecret)
	userSvc := users.NewService(conn)
	hub := messaging.NewHub()
	disputeSvc := disputes.NewService(conn, userSvc)

	api := r.Group(apiPrefix)
	auth.RegisterRoutes(api, auth.NewService(auth.NewStore(conn), secret, cfg.Auth.TokenTTL))

	listingSvc := listings.NewService(conn, cfg.Lending.DefaultDurationDays)

	public := api.Group("", auth.OptionalAuth(secret))
	listings.RegisterPublicRoutes(public, listingSvc)
	users.RegisterPublicRoutes(public, userSvc)

	authed := api.Group("", auth.RequireAuth(secret))
	listings.RegisterRoutes(authed, listingSvc)
	lending.RegisterRoutes(authed, lending.NewService(conn, userSvc))
	messaging.RegisterRoutes(authed, messaging.NewService(conn, hub))
	disputes.RegisterRoutes(authed, disputeSvc)
	users.RegisterRoutes(authed, userSvc)

	admin := authed.Group("", auth.RequireRole("admin"))
	disputes.RegisterAdminRoutes(admin, disputeSvc)
	users.RegisterAdminRoutes(admin, userSvc)

	log.Printf("[INFO] routes registered under %s (mode=%s)", apiPrefix, cfg.Mode)
	return r
}
