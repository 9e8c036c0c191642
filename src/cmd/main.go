package main

import (
	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/logger"
	"ctf-session-svc/src/internal/server"

	"github.com/sirupsen/logrus"
)

var log = *logrus.StandardLogger()

func main() {
	cfg := config.Load()
	logger.Init(cfg)

	log.Infof("Application %s is starting....", cfg.App.Name)

	srv, err := server.New(cfg)
	if err != nil {
		log.WithError(err).Fatalf("Error initializing server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.WithError(err).Fatalf("Error starting server: %v", err)
	}
}
