package server

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"gorm.io/gorm"

	"github.com/mailgate/mailgate/api"
	"github.com/mailgate/mailgate/config"
	"github.com/mailgate/mailgate/internal/logger"
	"github.com/mailgate/mailgate/internal/repository"
	"github.com/mailgate/mailgate/internal/tracing"
	"github.com/mailgate/mailgate/services"
)

type Server struct {
	config       *config.Config
	httpServer   *http.Server
	router       *gin.Engine
	services     *services.Services
	repositories *repository.Repositories
	tracerCloser io.Closer
}

func NewServer(cfg *config.Config, db *gorm.DB) (*Server, error) {
	// Initialize logger
	appLogger := logger.NewAppLogger(cfg.Logger)
	appLogger.InitLogger()

	// Initialize tracing
	tracer, closer, err := tracing.NewJaegerTracer(cfg.Tracing, appLogger)
	if err != nil {
		log.Fatalf("Could not initialize jaeger tracer: %s", err.Error())
	}
	opentracing.SetGlobalTracer(tracer)

	// Initialize repositories
	repos := repository.InitRepositories(db)

	// Initialize services
	svcs, err := services.InitServices(cfg.AppConfig.RabbitMQURL, appLogger, repos)
	if err != nil {
		return nil, err
	}

	// Initialize Gin
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	return &Server{
		config:       cfg,
		router:       router,
		services:     svcs,
		repositories: repos,
		tracerCloser: closer,
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

func (s *Server) Initialize(ctx context.Context) error {
	api.RegisterRoutes(ctx, s.router, s.services, s.repositories, s.config.AppConfig.AdminAPIKey)
	return nil
}

func (s *Server) recoverWithJaeger(name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(
			fmt.Sprintf("panic.%s", name),
		)
		defer span.Finish()

		ext.Error.Set(span, true)

		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Printf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func (s *Server) wrapGoroutine(name string, fn func()) {
	defer s.recoverWithJaeger(name)
	fn()
}

func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := s.Initialize(ctx); err != nil {
		return err
	}

	// Start HTTP server in a goroutine with panic recovery
	go s.wrapGoroutine("http_server", func() {
		log.Println("Starting HTTP server on port " + s.config.AppConfig.APIPort)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	})
	log.Println("MailGate is now running. Press Ctrl+C to exit.")

	return s.waitForShutdown()
}

func (s *Server) waitForShutdown() error {
	defer s.recoverWithJaeger("shutdown")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if err := s.services.EventsPublisher.Close(); err != nil {
		log.Printf("Events publisher shutdown error: %v", err)
	}

	if s.tracerCloser != nil {
		s.tracerCloser.Close()
	}

	return nil
}
