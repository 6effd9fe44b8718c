// Package apidocs serves the hand-maintained OpenAPI document and,
// in dev mode, a Swagger UI pointed at it.
package apidocs

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//go:embed openapi.json
var spec []byte

const specPath = "/openapi.json"

// Register mounts /openapi.json and /swagger/*any on r.
func Register(r gin.IRouter) {
	r.GET(specPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", spec)
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(specPath)))
}
