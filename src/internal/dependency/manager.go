package dependency

import (
	"ctf-session-svc/src/clients"
	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/events"
	"ctf-session-svc/src/internal/problem"
	"ctf-session-svc/src/internal/provisioner"
	"ctf-session-svc/src/internal/session"
	"ctf-session-svc/src/internal/solve"

	"github.com/gin-gonic/gin"
)

type Manager struct {
	Router         *gin.Engine
	Config         *config.Configuration
	Mongodb        *clients.MongoDB
	Redis          *clients.RedisClient
	RabbitMQ       *clients.RabbitMQ
	SessionRepo    session.Repository
	SessionService session.Service
	SessionHandler session.Handler
	Provisioner    provisioner.Provisioner
	Reaper         *session.Reaper
}

func NewDependencyManager(router *gin.Engine,
	mongodb *clients.MongoDB,
	redisClient *clients.RedisClient,
	rabbitMQ *clients.RabbitMQ,
	awsClients *clients.AWSClients,
	cfg *config.Configuration) *Manager {
	publisher := events.NewPublisher(rabbitMQ.Channel, cfg)
	problemRepo := problem.NewProblemRepository(mongodb, redisClient, cfg)
	sessionRepo := session.NewSessionRepository(mongodb, cfg.Database.Collections.Sessions, problemRepo)
	prov := provisioner.NewECSProvisioner(awsClients, &cfg.Compute)
	locator := provisioner.NewEC2Locator(awsClients, &cfg.Compute)
	locker := session.NewRedisLocker(redisClient.Client, cfg)
	solveRecorder := solve.NewSolveRecorder(mongodb, cfg.Database.Collections.Solves)
	sessionService := session.NewSessionService(sessionRepo, problemRepo, prov, locator, locker, solveRecorder, publisher, cfg)
	sessionHandler := session.NewHandler(cfg, sessionService)
	reaper := session.NewReaper(sessionRepo, prov, publisher, cfg)

	return &Manager{
		Router:         router,
		Config:         cfg,
		Mongodb:        mongodb,
		Redis:          redisClient,
		RabbitMQ:       rabbitMQ,
		SessionRepo:    sessionRepo,
		SessionService: sessionService,
		SessionHandler: sessionHandler,
		Provisioner:    prov,
		Reaper:         reaper,
	}
}
