package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctf-session-svc/src/clients"
	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/dependency"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

type Server struct {
	cfg  *config.Configuration
	deps *dependency.Manager
	http *http.Server
}

func New(cfg *config.Configuration) (*Server, error) {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())

	mongodb, err := clients.NewMongoDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	redisClient, err := clients.NewRedisClient(&cfg.Redis)
	if err != nil {
		return nil, err
	}

	rabbitMQ, err := clients.NewRabbitMQ(&cfg.Queue)
	if err != nil {
		return nil, err
	}

	if err := rabbitMQ.SetupExchange(); err != nil {
		return nil, err
	}

	awsClients, err := clients.NewAWSClients(&cfg.Compute)
	if err != nil {
		return nil, err
	}

	deps := dependency.NewDependencyManager(router, mongodb, redisClient, rabbitMQ, awsClients, cfg)
	SetupRoutes(deps)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Database.Timeout)*time.Second)
	defer cancel()
	if err := deps.SessionRepo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}

	return &Server{
		cfg:  cfg,
		deps: deps,
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
		},
	}, nil
}

// Start runs the HTTP server and the reaper, then blocks until a shutdown
// signal arrives and the graceful teardown finishes.
func (s *Server) Start() error {
	s.deps.Reaper.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("HTTP server listening on :%s", s.cfg.Server.Port)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Infof("Received signal %s, shutting down", sig)
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}

	s.deps.Reaper.Stop()

	if err := s.deps.RabbitMQ.Close(); err != nil {
		log.WithError(err).Error("Failed to close RabbitMQ")
	}
	if err := s.deps.Redis.Close(); err != nil {
		log.WithError(err).Error("Failed to close Redis")
	}
	if err := s.deps.Mongodb.Close(ctx); err != nil {
		log.WithError(err).Error("Failed to close MongoDB")
	}

	log.Info("Shutdown complete")
	return nil
}
