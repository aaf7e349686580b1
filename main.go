package main

import (
	"log"
	"net/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/erdview/erd-engine/pkg/baserow"
	"github.com/erdview/erd-engine/pkg/config"
	"github.com/erdview/erd-engine/pkg/handlers"
	"github.com/erdview/erd-engine/pkg/middleware"
	"github.com/erdview/erd-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load .env if present; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := baserow.NewClient(baserow.Config{
		APIURL:   cfg.Baserow.APIURL,
		Email:    cfg.Baserow.Email,
		Password: cfg.Baserow.Password,
		Timeout:  cfg.Baserow.Timeout(),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create upstream client", zap.Error(err))
	}

	diagram := services.NewDiagramService(client, logger)
	defer diagram.Close()

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewDiagramHandler(diagram, client, logger).RegisterRoutes(mux)

	handler := middleware.RequestLogger(logger)(mux)
	handler = middleware.CORS(cfg.CORSOrigin)(handler)

	logger.Info("Starting erd-engine",
		zap.String("bind_addr", cfg.BindAddr),
		zap.String("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.String("upstream", cfg.Baserow.APIURL))
	if err := http.ListenAndServe(cfg.BindAddr+":"+cfg.Port, handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func buildLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
