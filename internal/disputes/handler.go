package disputes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/auth"
	"bookshare-backend/internal/platform/httpx"
)

type Handler struct{ svc *Service }

// RegisterRoutes expects r to sit behind auth.RequireAuth.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.POST("/disputes", h.File)
	r.GET("/disputes", h.ListMine)
	r.GET("/disputes/:id", h.Get)
	r.POST("/disputes/:id/evidence", h.AddEvidence)
}

// RegisterAdminRoutes expects r to sit behind auth.RequireRole("admin").
func RegisterAdminRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}
	r.PUT("/disputes/:id/status", h.SetStatus)
}

// ---------- handlers ----------

// POST /disputes
func (h *Handler) File(c *gin.Context) {
	var req FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.File(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.Header("Location", "/disputes/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListMine(c *gin.Context) {
	res, err := h.svc.ListMine(c.Request.Context(), auth.UserID(c), httpx.PageFromQuery(c))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /disputes/:id/evidence
func (h *Handler) AddEvidence(c *gin.Context) {
	var req AddEvidenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "evidence_url is required"))
		return
	}
	res, err := h.svc.AddEvidence(c.Request.Context(), c.Param("id"), auth.UserID(c), req.URL)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// PUT /disputes/:id/status (admin)
func (h *Handler) SetStatus(c *gin.Context) {
	var req SetStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "status is required"))
		return
	}
	res, err := h.svc.SetStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
