package api

import (
	"context"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wb-go/wbf/ginext"

	"conftickets/cmd/middleware"
	"conftickets/internal/dto"
	"conftickets/internal/service"
)

type KeyInfo interface {
	Info(ctx context.Context) ([]dto.APIKeyResponse, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

// Limiter yields a middleware per endpoint scope; nil disables limiting.
type Limiter interface {
	Middleware(scope string) gin.HandlerFunc
}

type Routers struct {
	Service    service.Service
	Keys       KeyInfo
	Tokens     service.TokenCodec
	Limiter    Limiter
	DB         Pinger
	WebsiteURL string
	GinMode    string
}

func (r *Routers) limit(scope string) gin.HandlerFunc {
	if r.Limiter == nil {
		return func(c *ginext.Context) { c.Next() }
	}
	return r.Limiter.Middleware(scope)
}

func NewRouters(r *Routers) *ginext.Engine {
	mode := r.GinMode
	if mode == "" {
		mode = "release"
	}
	app := ginext.New(mode)

	app.Use(gin.Recovery())
	app.Use(middleware.LoggingMiddleware())
	app.Use(cors.Default())

	apiGroup := app.Group("/v1")
	apiGroup.POST("/register", r.limit("register"), r.Register)
	apiGroup.POST("/webhooks/payment", r.PaymentWebhook)
	apiGroup.POST("/webhooks/email", r.EmailWebhook)
	apiGroup.GET("/admin/api-keys", r.staffOnly, r.APIKeys)

	app.POST("/api/mercadopago/webhook", r.PaymentWebhook)
	app.POST("/api/resend-emails/webhook", r.EmailWebhook)

	app.GET("/payment/:userId", r.PaymentRedirect)
	app.GET("/scan", r.limit("scan"), r.Scan)
	app.GET("/qr", r.limit("qr"), r.QR)

	app.GET("/healthz", r.Health)
	app.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return app
}
