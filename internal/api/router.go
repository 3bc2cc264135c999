package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the engine with the REST routes and the operational
// endpoints. Other surfaces register on the returned engine.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogging())

	r.GET("/", h.Welcome)
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.POST("/strengths/", h.Strengths)
	v1.POST("/challenges/", h.Challenges)
	v1.POST("/needs/", h.Needs)
	v1.POST("/goals/", h.Goals)
	v1.POST("/means/", h.Means)
	v1.POST("/profile/full/", h.FullProfile)

	return r
}
