package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"bazaar/leadhub/internal/api/handlers"
	"bazaar/leadhub/internal/api/middleware"
	"bazaar/leadhub/internal/captcha"
	"bazaar/leadhub/internal/config"
	"bazaar/leadhub/internal/email"
	"bazaar/leadhub/internal/models"
	"bazaar/leadhub/internal/services"
)

// Deps are the services the public API is built on.
type Deps struct {
	Inquiries services.IInquiryService
	Kyc       services.IKycService
	Settings  services.ISettingsService
	Gate      services.ILeadPaymentGate
	Location  services.ILocationService
	Directory services.IDirectoryStore
	Events    handlers.EventStreamer
	Captcha   captcha.IVerifier
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, deps Deps) *gin.Engine {
	if deps.Captcha == nil {
		deps.Captcha = captcha.NewTurnstileVerifier(cfg)
	}

	r := gin.Default()
	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	r.Use(middleware.CORSMiddleware(cfg.CorsAllowedOrigin))
	r.Use(rateLimiter.Limit())

	inquiryHandler := handlers.NewInquiryHandler(deps.Inquiries, deps.Gate, deps.Location)
	kycHandler := handlers.NewKycHandler(deps.Kyc)
	settingsHandler := handlers.NewSettingsHandler(deps.Settings)
	wsHandler := handlers.NewWebsocketHandler(deps.Events, deps.Directory, cfg.JwtSecret)

	authRequired := middleware.AuthMiddleware(cfg.JwtSecret, deps.Directory)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})
		v1.GET("/ws", wsHandler.Connect)

		inquiries := v1.Group("/inquiries")
		inquiries.GET("/location", inquiryHandler.DetectLocation)
		inquiries.GET("/pricing", inquiryHandler.Pricing)
		inquiries.POST("/submit",
			authRequired,
			middleware.CaptchaMiddleware(cfg, deps.Captcha),
			rateLimiter.SoftLimit(),
			inquiryHandler.Submit)

		vendor := inquiries.Group("/vendor", authRequired, middleware.VendorMiddleware())
		registerRecipientRoutes(vendor, inquiryHandler, models.KindVendor)

		individual := inquiries.Group("/individual", authRequired, middleware.IndividualMiddleware(deps.Directory))
		registerRecipientRoutes(individual, inquiryHandler, models.KindIndividual)

		kyc := v1.Group("/kyc", authRequired)
		{
			kyc.POST("/documents/upload-url", kycHandler.UploadURL)
			kyc.POST("/documents", kycHandler.SubmitDocument)
			kyc.POST("/staff-eligibility/:user_id", middleware.VendorMiddleware(), kycHandler.StaffEligibility)
		}

		admin := v1.Group("/admin", authRequired, middleware.AdminMiddleware())
		{
			admin.GET("/kyc", kycHandler.List)
			admin.POST("/kyc/:id/review", kycHandler.Review)
			admin.PUT("/settings/:key", settingsHandler.Update)
		}
	}

	return r
}

func registerRecipientRoutes(g *gin.RouterGroup, h *handlers.InquiryHandler, kind models.RecipientKind) {
	g.GET("/list", h.List(kind))
	g.GET("/details/:id", h.Details)
	g.PUT("/response/:id", h.UpdateResponse)
	g.POST("/accept/:id", h.Accept)
	g.POST("/reject/:id", h.Reject)
	g.POST("/verify-payment/:id", h.VerifyPayment)
}

// SetupServiceRouter configures the internal service API: shutdown and, when
// mock services are on, retrieval of captured emails.
func SetupServiceRouter(rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
				log.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // [templateID, email]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 2 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [templateID, email]"})
				return
			}
			if rdb == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Redis not configured"})
				return
			}
			fetchTestEmail(c, rdb, email.MockEmailKey(args[1], args[0]))
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}

// fetchTestEmail polls briefly since the email task may not have run yet.
func fetchTestEmail(c *gin.Context, rdb *redis.Client, key string) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	for i := 0; i < 10; i++ {
		raw, err := rdb.GetDel(ctx, key).Result()
		if err == nil {
			var data map[string]interface{}
			if err := json.Unmarshal([]byte(raw), &data); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
			return
		}
		if !errors.Is(err, redis.Nil) {
			log.Printf("Service API: error reading %s: %v", key, err)
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found for key %s", key)})
}
