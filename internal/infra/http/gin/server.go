package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"smajobb/internal/infra/config"
	"smajobb/internal/infra/obs"
)

type AuthHTTP interface {
	Register(c *gin.Context)
	Login(c *gin.Context)
	Me(c *gin.Context)
}

type ListingHTTP interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	ListMine(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
}

type ChatHTTP interface {
	ListMyConversations(c *gin.Context)
	GetConversation(c *gin.Context)
	CreateListingConversation(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
}

type EscrowHTTP interface {
	Accept(c *gin.Context)
	Complete(c *gin.Context)
	MarkDone(c *gin.Context)
	OnboardingStatus(c *gin.Context)
	CreateIntent(c *gin.Context)
	ConfirmPayment(c *gin.Context)
	CancelPayment(c *gin.Context)
	Decline(c *gin.Context)
}

type ReviewHTTP interface {
	Submit(c *gin.Context)
	ListForUser(c *gin.Context)
}

type ChannelHTTP interface {
	Attach(c *gin.Context)
}

type Handlers struct {
	Auth           AuthHTTP
	Listing        ListingHTTP
	Chat           ChatHTTP
	Escrow         EscrowHTTP
	Review         ReviewHTTP
	Channel        ChannelHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))
	if h.AuthMiddleware != nil {
		router.Use(h.AuthMiddleware)
	}

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.Auth != nil {
		api.POST("/auth/register", h.Auth.Register)
		api.POST("/auth/login", h.Auth.Login)
		api.GET("/auth/me", h.Auth.Me)
	}
	if h.Listing != nil {
		api.POST("/listings", h.Listing.Create)
		api.GET("/listings/:id", h.Listing.Get)
		api.PUT("/listings/:id", h.Listing.Update)
		api.DELETE("/listings/:id", h.Listing.Delete)
		api.GET("/me/listings", h.Listing.ListMine)
	}
	if h.Chat != nil {
		api.GET("/conversations", h.Chat.ListMyConversations)
		api.GET("/conversations/:id", h.Chat.GetConversation)
		api.POST("/listings/:id/conversations", h.Chat.CreateListingConversation)
		api.GET("/conversations/:id/messages", h.Chat.ListMessages)
		api.POST("/conversations/:id/messages", h.Chat.SendMessage)
		api.POST("/conversations/:id/read", h.Chat.MarkRead)
	}
	if h.Escrow != nil {
		api.POST("/listings/:id/accept", h.Escrow.Accept)
		api.POST("/listings/:id/complete", h.Escrow.Complete)
		api.POST("/listings/:id/done", h.Escrow.MarkDone)
		api.GET("/conversations/:id/payment/onboarding", h.Escrow.OnboardingStatus)
		api.POST("/conversations/:id/payment/intent", h.Escrow.CreateIntent)
		api.POST("/conversations/:id/payment/confirm", h.Escrow.ConfirmPayment)
		api.POST("/conversations/:id/payment/cancel", h.Escrow.CancelPayment)
		api.POST("/conversations/:id/decline", h.Escrow.Decline)
	}
	if h.Review != nil {
		api.POST("/reviews", h.Review.Submit)
		api.GET("/users/:id/reviews", h.Review.ListForUser)
	}
	if h.Channel != nil {
		router.GET("/ws/conversations/:id", h.Channel.Attach)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
