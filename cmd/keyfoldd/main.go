package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/keyfold/keyfold/constants"
	"github.com/keyfold/keyfold/db"
	"github.com/keyfold/keyfold/factory"
	"github.com/keyfold/keyfold/gateway"
	"github.com/keyfold/keyfold/internal/server"
	"github.com/keyfold/keyfold/logger"
	"github.com/keyfold/keyfold/router"
	"github.com/keyfold/keyfold/services"
	"github.com/keyfold/keyfold/types/business"
	"go.uber.org/zap"
)

// logInvoker is the default target invoker: it records forwarded calls
// without touching any chain. Deployments that bridge to a live network
// swap in a real invoker here.
type logInvoker struct{}

func (logInvoker) Invoke(ctx context.Context, call business.Call) ([]byte, error) {
	value := "0"
	if call.Value != nil {
		value = call.Value.String()
	}
	logger.Log.Info("Forwarded call",
		zap.String("target", call.Target.Hex()),
		zap.String("value", value),
		zap.Int("data_len", len(call.Data)))
	return nil, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v\n", err)
	}

	stage := os.Getenv(constants.EnvStage)
	if stage == "" {
		stage = constants.LocalEnvironment
	}
	logger.InitLogger(stage)
	defer logger.Sync()

	secret := os.Getenv(constants.EnvJWTSecret)
	if secret == "" {
		logger.Log.Fatal("JWT_SECRET environment variable is required")
	}

	chainID := uint64(31337)
	if raw := os.Getenv(constants.EnvChainID); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			logger.Log.Fatal("Invalid CHAIN_ID", zap.String("value", raw), zap.Error(err))
		}
		chainID = parsed
	}

	store, cleanup := buildStore()
	defer cleanup()

	invoker := logInvoker{}
	implementation := common.HexToAddress(envOrDefault("ACCOUNT_IMPLEMENTATION", "0x00000000000000000000000000000000000c0de1"))
	ext, handler := gateway.NewAccountExtension(implementation, invoker)
	defaults, err := router.NewDefaultSet([]router.DefaultExtension{{Extension: ext, Handler: handler}})
	if err != nil {
		logger.Log.Fatal("Failed to build default extensions", zap.Error(err))
	}

	accountService := services.NewAccountService(factory.Config{
		Address:        common.HexToAddress(envOrDefault("FACTORY_ADDRESS", "0x00000000000000000000000000000000000fac01")),
		EntryPoint:     common.HexToAddress(envOrDefault("ENTRYPOINT_ADDRESS", "0x00000000000000000000000000000000000e9001")),
		ChainID:        chainID,
		Implementation: implementation,
		Defaults:       defaults,
		Now:            func() uint64 { return uint64(time.Now().Unix()) },
	}, store, invoker)

	engine := server.NewRouter(accountService, server.Config{
		JWTSecret: []byte(secret),
		Now:       func() uint64 { return uint64(time.Now().Unix()) },
	})

	port := os.Getenv(constants.EnvHTTPPort)
	if port == "" {
		port = "8000"
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           engine,
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	go func() {
		logger.Log.Info("Server starting", zap.String("port", port), zap.Uint64("chain_id", chainID))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exiting")
}

// buildStore connects to Postgres when DATABASE_URL is set and falls back
// to the in-memory store otherwise.
func buildStore() (db.Store, func()) {
	databaseURL := os.Getenv(constants.EnvDatabaseURL)
	if databaseURL == "" {
		logger.Log.Info("DATABASE_URL not set, using in-memory store")
		return db.NewMemoryStore(), func() {}
	}

	pool, err := pgxpool.New(context.Background(), databaseURL)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Log.Fatal("Failed to ping database", zap.Error(err))
	}
	return db.NewPostgresStore(pool), pool.Close
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
