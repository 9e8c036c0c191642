package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Handler interface {
	LaunchSession(c *gin.Context)
	GetSession(c *gin.Context)
	GetSessionByID(c *gin.Context)
	StopSession(c *gin.Context)
	SubmitFlag(c *gin.Context)
}

type handler struct {
	config  *config.Configuration
	service Service
}

func NewHandler(cfg *config.Configuration, service Service) Handler {
	return &handler{
		config:  cfg,
		service: service,
	}
}

type launchBody struct {
	ProblemID int `json:"problemId" binding:"required,gt=0"`
}

type submitFlagBody struct {
	Flag string `json:"flag" binding:"required,max=128"`
}

func (h *handler) LaunchSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := callerID(c)

	var body launchBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"problem_id": body.ProblemID,
	}).Info("LaunchSession request received")

	session, err := h.service.Launch(ctx, userID, body.ProblemID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    session,
		"message": "Session created, container is starting",
	})
}

func (h *handler) GetSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	session, err := h.service.Get(ctx, callerID(c), "")
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    session,
	})
}

func (h *handler) GetSessionByID(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	session, err := h.service.Get(ctx, callerID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    session,
	})
}

func (h *handler) StopSession(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := callerID(c)
	sessionID := c.Param("id")

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"session_id": sessionID,
	}).Info("StopSession request received")

	if err := h.service.Stop(ctx, userID, sessionID, "stopped by user"); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session stopped",
	})
}

func (h *handler) SubmitFlag(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	userID := callerID(c)
	sessionID := c.Param("id")

	var body submitFlagBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"message": err.Error(),
		})
		return
	}

	logrus.WithFields(logrus.Fields{
		"user_id":    userID,
		"session_id": sessionID,
	}).Info("SubmitFlag request received")

	result, err := h.service.SubmitFlag(ctx, userID, sessionID, body.Flag)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

func (h *handler) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), time.Duration(h.config.App.Timeout)*time.Second)
}

func callerID(c *gin.Context) int {
	userID, _ := c.Get("user_id")
	id, _ := userID.(int)
	return id
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden", "message": "Session belongs to another user"})
	case errors.Is(err, models.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "message": "Session not found"})
	case errors.Is(err, models.ErrProblemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found", "message": "Problem not found"})
	case errors.Is(err, models.ErrActiveSessionExists):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflict", "message": "An active session already exists, stop it first"})
	case errors.Is(err, models.ErrAmbiguousSession):
		c.JSON(http.StatusConflict, gin.H{"error": "Conflict", "message": "Session lookup was ambiguous"})
	case errors.Is(err, models.ErrContainerNotReady):
		c.JSON(http.StatusConflict, gin.H{"error": "Not ready", "message": "Container is not ready yet, try again shortly"})
	case errors.Is(err, models.ErrNoSubnetAvailable),
		errors.Is(err, models.ErrSecurityGroupNotFound),
		errors.Is(err, models.ErrAmbiguousSecurityGroup),
		errors.Is(err, models.ErrProvisionFailed),
		errors.Is(err, models.ErrTerminateFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Upstream failure", "message": err.Error()})
	default:
		logrus.WithError(err).Error("Unhandled service error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error", "message": err.Error()})
	}
}
