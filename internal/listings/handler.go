package listings

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bookshare-backend/internal/platform/apierr"
	"bookshare-backend/internal/platform/auth"
	"bookshare-backend/internal/platform/httpx"
)

type Handler struct{ svc *Service }

// RegisterPublicRoutes expects r to sit behind auth.OptionalAuth.
// A signed-in searcher gets their own books excluded and the default location fallback.
func RegisterPublicRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/books/search", h.Search)
	r.GET("/books/:id", h.Get)
}

// RegisterRoutes expects r to sit behind auth.RequireAuth.
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	r.GET("/books/mine", h.ListMine)
	r.POST("/books", h.Create)
	r.PUT("/books/:id", h.Update)
	r.DELETE("/books/:id", h.Delete)
}

// ---------- handlers ----------

// GET /books/search?q=&lat=&lon=&radius=&condition=&listing_type=
func (h *Handler) Search(c *gin.Context) {
	lat, ok1 := httpx.ParseFloatPtr(c.Query("lat"))
	lon, ok2 := httpx.ParseFloatPtr(c.Query("lon"))
	radius, ok3 := httpx.ParseFloatPtr(c.Query("radius"))
	if !ok1 || !ok2 || !ok3 {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "lat, lon and radius must be numbers"))
		return
	}

	res, err := h.svc.Search(c.Request.Context(), SearchParams{
		Query:       c.Query("q"),
		Lat:         lat,
		Lon:         lon,
		RadiusMiles: radius,
		Condition:   c.Query("condition"),
		ListingType: c.Query("listing_type"),
		SearcherID:  auth.UserID(c),
	})
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListMine(c *gin.Context) {
	res, err := h.svc.ListMine(c.Request.Context(), auth.UserID(c), httpx.PageFromQuery(c))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /books
func (h *Handler) Create(c *gin.Context) {
	var req CreateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json or missing required fields"))
		return
	}
	res, err := h.svc.Create(c.Request.Context(), auth.UserID(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.Header("Location", "/books/"+res.ID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	res, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	var req UpdateListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierr.Body(apierr.CodeInvalidArgument, "invalid json"))
		return
	}
	res, err := h.svc.Update(c.Request.Context(), c.Param("id"), auth.UserID(c), req)
	if err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), auth.UserID(c)); err != nil {
		c.JSON(apierr.ToHTTPStatus(err), apierr.FromErr(err))
		return
	}
	c.Status(http.StatusNoContent)
}
