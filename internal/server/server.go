package server

import (
	"os"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/keyfold/keyfold/internal/handlers"
	"github.com/keyfold/keyfold/middleware"
	"github.com/keyfold/keyfold/services"
)

// Config carries the server's wiring knobs.
type Config struct {
	JWTSecret []byte
	// Now supplies the unix clock used to report operation validity.
	Now func() uint64
}

// NewRouter assembles the gin engine: CORS, correlation IDs, per-client
// rate limits, the route table, and bearer auth on the mutating account
// endpoints. Unauthenticated endpoints that create state get the strict
// limiter on top of the default one.
func NewRouter(accountService *services.AccountService, cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(configureCORS())
	router.Use(middleware.CorrelationIDMiddleware())
	router.Use(middleware.DefaultRateLimiter.Middleware())

	router.GET("/health", handlers.NewHealthHandler().Health)

	commonServices := handlers.NewCommonServices(accountService)
	accountHandler := handlers.NewAccountHandler(commonServices)
	operationHandler := handlers.NewOperationHandler(commonServices, cfg.Now)
	extensionHandler := handlers.NewExtensionHandler(commonServices)

	v1 := router.Group("/api/v1")
	{
		// Public routes: reads, digest computation, and signed flows whose
		// authorization is carried in the payload's signature.
		v1.POST("/accounts", middleware.StrictRateLimiter.Middleware(), accountHandler.CreateAccount)
		v1.POST("/accounts/predict", accountHandler.PredictAddress)
		v1.GET("/accounts", accountHandler.ListAccounts)
		v1.GET("/accounts/:address", accountHandler.GetAccount)
		v1.GET("/accounts/:address/nonce", accountHandler.GetNonce)
		v1.GET("/signers/:signer/accounts", accountHandler.ListAccountsBySigner)
		v1.POST("/accounts/:address/permissions/digest", accountHandler.PermissionGrantDigest)
		v1.POST("/accounts/:address/permissions", accountHandler.SubmitPermissionGrant)
		v1.GET("/accounts/:address/permissions/:signer", accountHandler.GetPermission)
		v1.GET("/accounts/:address/extensions", extensionHandler.ListExtensions)
		v1.POST("/operations/digest", operationHandler.OperationDigest)
		v1.POST("/operations/validate", middleware.StrictRateLimiter.Middleware(), operationHandler.ValidateOperation)

		// Protected routes: the caller's identity matters, so a bearer
		// token binds the request to an address. The account itself still
		// enforces admin checks on that address.
		protected := v1.Group("/")
		protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		{
			protected.POST("/accounts/:address/admins", accountHandler.SetAdmin)
			protected.POST("/accounts/:address/execute", operationHandler.ExecuteOperation)
			protected.POST("/accounts/:address/extensions", extensionHandler.AddExtension)
			protected.PUT("/accounts/:address/extensions", extensionHandler.ReplaceExtension)
			protected.DELETE("/accounts/:address/extensions/:name", extensionHandler.RemoveExtension)
			protected.POST("/accounts/:address/extensions/:name/functions", extensionHandler.EnableFunction)
			protected.DELETE("/accounts/:address/extensions/:name/functions/:selector", extensionHandler.DisableFunction)
		}
	}

	return router
}

func configureCORS() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()

	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv == "" {
		corsConfig.AllowOrigins = []string{"http://localhost:3000"}
	} else {
		origins := strings.Split(originsEnv, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		corsConfig.AllowOrigins = origins
	}

	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Correlation-ID"}
	corsConfig.ExposeHeaders = []string{"X-Correlation-ID"}
	corsConfig.AllowCredentials = os.Getenv("CORS_ALLOW_CREDENTIALS") == "true"

	return cors.New(corsConfig)
}
