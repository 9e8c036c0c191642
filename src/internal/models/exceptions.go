package models

import "errors"

var (
	ErrRedisConnection = errors.New("redis connection error")
	ErrRedisGet        = errors.New("redis get error")
	ErrRedisSet        = errors.New("redis set error")
	ErrRedisDelete     = errors.New("redis delete error")
)

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrAmbiguousSession    = errors.New("session lookup matched more than one session")
	ErrActiveSessionExists = errors.New("user already has an active session")
	ErrSessionCreating     = errors.New("error creating session")
	ErrSessionUpdating     = errors.New("error updating session")
	ErrSessionDeleting     = errors.New("error deleting session")
	ErrContainerNotReady   = errors.New("container is not ready yet")
	ErrForbidden           = errors.New("session belongs to another user")
)

var (
	ErrProblemNotFound = errors.New("problem not found")
	ErrValidation      = errors.New("invalid request")
)

var (
	ErrNoSubnetAvailable      = errors.New("no available subnet found")
	ErrAmbiguousSecurityGroup = errors.New("security group lookup was ambiguous")
	ErrSecurityGroupNotFound  = errors.New("security group not found")
	ErrInterfaceNotFound      = errors.New("network interface not found")
	ErrNoPublicAddress        = errors.New("task has no public address")
	ErrProvisionFailed        = errors.New("failed to provision compute task")
	ErrReadyTimeout           = errors.New("timed out waiting for task to become ready")
	ErrTerminateFailed        = errors.New("failed to terminate compute task")
)

var (
	ErrDatabaseConnection = errors.New("database connection error")
	ErrDatabaseQuery      = errors.New("database query error")
	ErrDatabaseInsert     = errors.New("database insert error")
	ErrDatabaseUpdate     = errors.New("database update error")
	ErrDatabaseDelete     = errors.New("database delete error")
	ErrDuplicateRecord    = errors.New("duplicate record")
)
