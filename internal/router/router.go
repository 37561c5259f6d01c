package router

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/ticket-bridge/api"
	"github.com/psds-microservice/ticket-bridge/internal/handler"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Health   *handler.HealthHandler
	Tickets  *handler.TicketHandler
	Messages *handler.MessageHandler
	Channels *handler.ChannelHandler
	Admin    *handler.AdminHandler
	// AdminToken защищает admin-маршруты. Пустой оставляет их открытыми.
	AdminToken string
}

func New(h Handlers) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), requestID())
	r.GET(paths.PathHealth, h.Health.Health)
	r.GET(paths.PathReady, h.Health.Ready)
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	{
		v1.GET("/tickets", h.Tickets.List)
		v1.POST("/tickets", h.Tickets.Create)
		v1.GET("/tickets/:id", h.Tickets.Get)
		v1.POST("/tickets/:id/complete", h.Tickets.Complete)
		v1.PUT("/tickets/:id/region", h.Tickets.SetRegion)

		v1.GET("/messages", h.Messages.List)
		v1.POST("/messages", h.Messages.Create)

		v1.GET("/channels", h.Channels.List)

		admin := v1.Group("", adminAuth(h.AdminToken))
		admin.POST("/sync", h.Admin.Sync)
		admin.POST("/reset", h.Admin.Reset)
	}

	return r
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin token required", "reason": "forbidden"})
			return
		}
		c.Next()
	}
}
