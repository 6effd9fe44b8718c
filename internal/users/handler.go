package users

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/auth"
	"bookshare-backend/internal/platform/httpx"
)

type Handler struct{ svc *Service }

// RegisterPublicRoutes serves profile reads that need no token.
func RegisterPublicRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/users/:id", h.Public)
	r.GET("/users/:id/ratings", h.Ratings)
}

// RegisterRoutes expects r to sit behind auth.RequireAuth.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/users/me", h.Me)
	r.PUT("/users/me", h.UpdateMe)
	r.GET("/users/:id/reputation", h.Reputation)
}

// RegisterAdminRoutes expects r to sit behind auth.RequireRole("admin").
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.POST("/admin/users/:id/recompute", h.Recompute)
}

// ---------- handlers ----------

func (h *Handler) Me(c *gin.Context) {
	res, err := h.svc.Me(c.Request.Context(), auth.UserID(c))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) UpdateMe(c *gin.Context) {
	var req UpdateMeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.UpdateMe(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Public(c *gin.Context) {
	res, err := h.svc.Public(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// GET /users/:id/reputation
func (h *Handler) Reputation(c *gin.Context) {
	res, err := h.svc.Reputation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Ratings(c *gin.Context) {
	res, err := h.svc.Ratings(c.Request.Context(), c.Param("id"), httpx.PageFromQuery(c))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Recompute(c *gin.Context) {
	res, err := h.svc.RecomputeAggregates(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
