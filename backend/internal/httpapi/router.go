package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"composer/backend/internal/httpapi/handlers"
	"composer/backend/internal/httpapi/middleware"
)

type RouterOptions struct {
	Secret       []byte
	AllowOrigins []string
	// WebSocket is mounted at /v1/ws when set.
	WebSocket gin.HandlerFunc
}

func NewRouter(docs *handlers.DocumentHandler, opt RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opt.AllowOrigins,
		AllowAllOrigins:  len(opt.AllowOrigins) == 0,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(opt.Secret))
	docs.Register(v1)
	if opt.WebSocket != nil {
		v1.GET("/ws", opt.WebSocket)
	}
	return r
}
