// Package web serves the interactive API documentation.
package web

import (
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const docsRoutePrefix = "/swagger"

// SwaggerServer mounts the generated API docs behind a feature flag so
// production deployments can leave them off.
type SwaggerServer struct {
	enabled bool
}

func NewSwaggerServer(enabled bool) *SwaggerServer {
	return &SwaggerServer{enabled: enabled}
}

// Enabled reports whether the docs routes will be mounted.
func (s *SwaggerServer) Enabled() bool {
	return s.enabled
}

// RegisterRoutes mounts the docs UI under /swagger. Disabled servers
// register nothing, so the paths 404 like any other unknown route.
func (s *SwaggerServer) RegisterRoutes(router *gin.Engine) {
	if !s.enabled {
		return
	}

	router.GET(docsRoutePrefix+"/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	log.Printf("Web: API docs mounted at %s/index.html", docsRoutePrefix)
}
