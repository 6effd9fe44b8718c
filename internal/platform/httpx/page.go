package httpx

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

type Page struct {
	Limit  int
	Offset int
	Order  string // asc | desc
}

// PageFromQuery reads limit/offset/order and clamps them.
func PageFromQuery(c *gin.Context) Page {
	return Page{
		Limit:  ParseIntDefault(c.Query("limit"), DefaultLimit),
		Offset: ParseIntDefault(c.Query("offset"), 0),
		Order:  c.DefaultQuery("order", "desc"),
	}.Normalize()
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	if strings.ToLower(p.Order) == "asc" {
		p.Order = "ASC"
	} else {
		p.Order = "DESC"
	}
	return p
}

// NextOffset は終端なら 0
func (p Page) NextOffset(total int64) int {
	next := p.Offset + p.Limit
	if next >= int(total) {
		return 0
	}
	return next
}

func ParseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}

// ParseFloatPtr は空文字なら nil、壊れていれば ok=false
func ParseFloatPtr(s string) (v *float64, ok bool) {
	if s == "" {
		return nil, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return &f, true
}
