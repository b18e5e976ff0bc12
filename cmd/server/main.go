package main

import (
	"flag"
	"fmt"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"claimsight/config"
	"claimsight/internal/api/handlers"
	"claimsight/internal/api/middleware"
	"claimsight/internal/core/review"
	"claimsight/internal/db"
	"claimsight/internal/db/repository"
	"claimsight/internal/integrations/damagedetect"
	"claimsight/internal/integrations/mqtt"
	"claimsight/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(cfg.Log)
	log.Info("Starting claimsight server")

	conn, err := db.Initialize(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	annotations := repository.NewAnnotationRepository(conn)
	claims := repository.NewClaimRepository(conn)
	policies := repository.NewPolicyRepository(conn)
	runs := repository.NewDetectionRunRepository(conn)

	detector := damagedetect.NewClient(cfg.Detect)
	reviews := review.NewManager(detector, annotations, claims, runs, damagedetect.DefaultParams(cfg.Detect))

	publisher, err := mqtt.NewPublisher(cfg.MQTT)
	if err != nil {
		log.Warnf("MQTT publisher unavailable, events disabled: %v", err)
		publisher, _ = mqtt.NewPublisher(config.MQTTConfig{Enabled: false})
	}
	defer publisher.Disconnect()

	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Accept-Language", "Authorization"}
	router.Use(cors.New(corsConfig))

	router.Use(middleware.I18n(cfg.I18n))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiHandler := handlers.NewAPIHandler(cfg, annotations, claims, policies, runs, reviews, publisher)
	apiHandler.RegisterRoutes(router.Group("/api"))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Infof("Listening on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
