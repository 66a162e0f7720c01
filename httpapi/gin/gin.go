// Package gin provides a Gin adapter for the halopay HTTP API. It is a thin
// shim that translates gin routing to the stdlib handler surface and
// delegates all engine logic to the httpapi package.
package gin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/halopay/halopay-go/httpapi"
)

// Mount attaches the engine routes to a gin router group.
//
// Example:
//
//	r := gin.Default()
//	ginapi.Mount(r.Group("/api"), handlers)
func Mount(group *gin.RouterGroup, h *httpapi.Handlers) {
	prefix := strings.TrimSuffix(group.BasePath(), "/")
	handler := http.StripPrefix(prefix, h.Router())
	group.Any("/*path", gin.WrapH(handler))
}
