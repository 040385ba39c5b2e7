package appServer

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/scaleserve/scaleserve/config"
	"github.com/scaleserve/scaleserve/internal/async"
	"github.com/scaleserve/scaleserve/internal/cache"
	"github.com/scaleserve/scaleserve/internal/health"
	"github.com/scaleserve/scaleserve/internal/pkg/kafka"
	"github.com/scaleserve/scaleserve/internal/pkg/processor"
	"github.com/scaleserve/scaleserve/internal/service"
	"github.com/scaleserve/scaleserve/internal/source"
	"github.com/scaleserve/scaleserve/internal/transport"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	// Initialize cache tiers
	variantCache, err := cache.NewVariantCache(&cfg.VariantCache)
	if err != nil {
		logrus.Fatalf("Failed to initialize variant cache: %v", err)
	}
	infoCache, err := cache.NewInfoCache(&cfg.InfoCache)
	if err != nil {
		logrus.Fatalf("Failed to initialize info cache: %v", err)
	}
	facade := cache.NewFacade(variantCache, infoCache)

	// Initialize source resolution
	resolver := source.NewConfigResolver(cfg.Source.Backend, cfg.Source.Path, cfg.Source.BaseURL, cfg.Source.Timeout)
	usage := source.NewUsage()

	// Initialize event producer
	var producer kafka.Producer
	if cfg.Kafka.Enabled {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		producer = kafka.NewMockProducer()
	}
	defer producer.Close()

	// Initialize async subsystem
	queue := async.NewBackgroundQueue()
	defer queue.Shutdown()
	registry := async.NewTaskRegistry(queue)
	probePool := async.NewHighConcurrencyPool(cfg.Health.ProbeConcurrency)
	defer probePool.Shutdown()
	eventPool := async.NewPool(async.PriorityLow)
	defer eventPool.Shutdown()

	checker := health.NewChecker(usage, facade, probePool, cfg.Health.Timeout)

	// Initialize services
	proc := processor.NewImagingProcessor(cfg.Processor.JPEGQuality)
	auth := service.AllowAllAuthorizer{}
	imageService := service.NewImageRequestService(resolver, usage, facade, proc, producer, eventPool)
	infoService := service.NewInformationRequestService(resolver, usage, facade)
	adminService := service.NewAdminService(facade, registry, checker, producer, eventPool)

	// Initialize handlers
	imageHandler := transport.NewImageHandler(imageService, infoService, auth, cfg.Processor.MinTileSize, cfg.Processor.MinDimension, cfg.Processor.MaxPixels)
	dziHandler := transport.NewDZIHandler(imageService, infoService, auth, cfg.Processor.MinTileSize)
	adminHandler := transport.NewAdminHandler(adminService)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, transport.InitRoutes(imageHandler, dziHandler, adminHandler)); err != nil {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	if err := srv.Shutdown(context.Background()); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}
