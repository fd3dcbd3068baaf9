package main

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"stickerserver/internal/events"
	"stickerserver/internal/mirror"
	"stickerserver/internal/packs"
)

const defaultDocument = "/web/index.html"

type routerDeps struct {
	Packs  *packs.Repo
	Mirror *mirror.Synchronizer
	Hub    *events.Hub
	Static http.Handler
}

func newRouter(d routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/__ping", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	router.GET("/__status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"mirror":     d.Mirror.Status(),
			"ws_clients": d.Hub.Count(),
		})
	})

	router.GET("/__events", events.WSHandler(d.Hub))

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusPermanentRedirect, defaultDocument)
	})

	packs.NewHandler(d.Packs, d.Static).RegisterRoutes(&router.RouterGroup)
	return router
}

// requestLogger logs one line per request and tags it with a request ID,
// reusing the caller's X-Request-ID when present.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Header("X-Request-ID", id)

		started := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"request_id": id,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"took":       time.Since(started),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Info("request")
	}
}
