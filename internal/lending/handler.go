package lending

import (
	"context"
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

	// 1. 貸出リクエスト
	r.POST("/transactions", h.Create)
	r.GET("/transactions", h.List)
	r.GET("/transactions/:id", h.Get)

	// 2. 状態遷移（owner / borrower の権限チェックは Service 側）
	r.POST("/transactions/:id/approve", h.Approve)
	r.POST("/transactions/:id/reject", h.Reject)
	r.POST("/transactions/:id/cancel", h.Cancel)
	r.POST("/transactions/:id/confirm-pickup", h.ConfirmPickup)
	r.POST("/transactions/:id/confirm-return", h.ConfirmReturn)

	// 3. 評価
	r.POST("/transactions/:id/rate", h.Rate)
}

// ---------- handlers ----------

// POST /transactions
func (h *Handler) Create(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.Request(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.Header("Location", "/transactions/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

// GET /transactions?role=owner|borrower|all&status=&limit=&offset=
func (h *Handler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), auth.UserID(c), c.Query("role"), c.Query("status"), httpx.PageFromQuery(c))
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

func (h *Handler) Approve(c *gin.Context) { h.transition(c, h.svc.Approve) }

func (h *Handler) Cancel(c *gin.Context) { h.transition(c, h.svc.Cancel) }

func (h *Handler) ConfirmPickup(c *gin.Context) { h.transition(c, h.svc.ConfirmPickup) }

func (h *Handler) ConfirmReturn(c *gin.Context) { h.transition(c, h.svc.ConfirmReturn) }

func (h *Handler) Reject(c *gin.Context) {
	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Reject(c.Request.Context(), c.Param("id"), auth.UserID(c), req.Reason)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /transactions/:id/rate
func (h *Handler) Rate(c *gin.Context) {
	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json or missing score"))
		return
	}
	res, err := h.svc.Rate(c.Request.Context(), c.Param("id"), auth.UserID(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

type transitionFunc func(ctx context.Context, id, actorID string) (TransactionResponse, error)

func (h *Handler) transition(c *gin.Context, fn transitionFunc) {
	res, err := fn(c.Request.Context(), c.Param("id"), auth.UserID(c))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
