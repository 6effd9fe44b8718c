package messaging

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/auth"
	"bookshare-backend/internal/platform/httpx"
)

// トークンは RequireAuth で検証済みなので Origin は見ない
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Handler struct{ svc *Service }

// RegisterRoutes expects r to sit behind auth.RequireAuth.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/transactions/:id/messages", h.History)
	r.POST("/transactions/:id/messages", h.Send)
	r.GET("/transactions/:id/ws", h.Subscribe)
}

// ---------- handlers ----------

func (h *Handler) History(c *gin.Context) {
	res, err := h.svc.History(c.Request.Context(), c.Param("id"), auth.UserID(c), httpx.PageFromQuery(c))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /transactions/:id/messages（websocket が使えない時の経路）
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "Message content is required"))
		return
	}
	res, err := h.svc.Send(c.Request.Context(), c.Param("id"), auth.UserID(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GET /transactions/:id/ws?token=...
func (h *Handler) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()
	txID, userID := c.Param("id"), auth.UserID(c)
	if err := h.svc.Authorize(ctx, txID, userID); err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade が既にエラー応答を書いている
		log.Printf("[WARN] ws upgrade failed: %v", err)
		return
	}
	h.svc.hub.Serve(conn, txID, userID, func(cl *Client, in inbound) {
		h.svc.handleFrame(ctx, cl, in)
	})
}
