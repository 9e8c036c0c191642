package provisioner

import (
	"context"
	"errors"
	"strings"
	"time"

	"ctf-session-svc/src/clients"
	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

// TaskSpec describes one challenge task to launch.
type TaskSpec struct {
	TaskDefinition string
	Subnet         string
	SecurityGroup  string
	Env            map[string]string
}

// TaskDetails is the subset of a described task the orchestrator needs.
type TaskDetails struct {
	TaskArn            string
	LastStatus         string
	NetworkInterfaceID string
}

// Provisioner creates, inspects and terminates challenge compute tasks.
// TerminateTask is idempotent: stopping an already-stopped or missing task
// succeeds.
type Provisioner interface {
	CreateTask(ctx context.Context, spec *TaskSpec) (string, error)
	AwaitReady(ctx context.Context, taskArn string, timeout time.Duration) error
	DescribeTask(ctx context.Context, taskArn string) (*TaskDetails, error)
	TerminateTask(ctx context.Context, taskArn, reason string) error
}

type ecsProvisioner struct {
	client  *ecs.Client
	cluster string
}

func NewECSProvisioner(awsClients *clients.AWSClients, cfg *config.ComputeConfig) Provisioner {
	return &ecsProvisioner{
		client:  awsClients.ECS,
		cluster: cfg.Cluster,
	}
}

func (p *ecsProvisioner) CreateTask(ctx context.Context, spec *TaskSpec) (string, error) {
	var envPairs []ecstypes.KeyValuePair
	for name, value := range spec.Env {
		envPairs = append(envPairs, ecstypes.KeyValuePair{
			Name:  aws.String(name),
			Value: aws.String(value),
		})
	}

	input := &ecs.RunTaskInput{
		Cluster:        aws.String(p.cluster),
		TaskDefinition: aws.String(spec.TaskDefinition),
		LaunchType:     ecstypes.LaunchTypeFargate,
		Count:          aws.Int32(1),
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        []string{spec.Subnet},
				SecurityGroups: []string{spec.SecurityGroup},
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
		Overrides: &ecstypes.TaskOverride{
			ContainerOverrides: []ecstypes.ContainerOverride{
				{
					Name:        aws.String(containerName(spec.TaskDefinition)),
					Environment: envPairs,
				},
			},
		},
	}

	output, err := p.client.RunTask(ctx, input)
	if err != nil {
		logrus.WithError(err).WithField("task_definition", spec.TaskDefinition).Error("RunTask failed")
		return "", models.ErrProvisionFailed
	}

	if len(output.Tasks) == 0 || output.Tasks[0].TaskArn == nil {
		logrus.WithFields(logrus.Fields{
			"task_definition": spec.TaskDefinition,
			"failures":        len(output.Failures),
		}).Error("RunTask returned no task")
		return "", models.ErrProvisionFailed
	}

	return *output.Tasks[0].TaskArn, nil
}

func (p *ecsProvisioner) AwaitReady(ctx context.Context, taskArn string, timeout time.Duration) error {
	waiter := ecs.NewTasksRunningWaiter(p.client)

	input := &ecs.DescribeTasksInput{
		Cluster: aws.String(p.cluster),
		Tasks:   []string{taskArn},
	}

	if err := waiter.Wait(ctx, input, timeout); err != nil {
		logrus.WithError(err).WithField("task_arn", taskArn).Error("Task did not reach RUNNING in time")
		return models.ErrReadyTimeout
	}

	return nil
}

func (p *ecsProvisioner) DescribeTask(ctx context.Context, taskArn string) (*TaskDetails, error) {
	input := &ecs.DescribeTasksInput{
		Cluster: aws.String(p.cluster),
		Tasks:   []string{taskArn},
	}

	output, err := p.client.DescribeTasks(ctx, input)
	if err != nil {
		logrus.WithError(err).WithField("task_arn", taskArn).Error("DescribeTasks failed")
		return nil, models.ErrProvisionFailed
	}

	if len(output.Tasks) == 0 {
		return nil, models.ErrProvisionFailed
	}

	task := output.Tasks[0]
	details := &TaskDetails{TaskArn: taskArn}
	if task.LastStatus != nil {
		details.LastStatus = *task.LastStatus
	}

	for _, attachment := range task.Attachments {
		for _, kv := range attachment.Details {
			if kv.Name != nil && *kv.Name == "networkInterfaceId" && kv.Value != nil {
				details.NetworkInterfaceID = *kv.Value
			}
		}
	}

	return details, nil
}

func (p *ecsProvisioner) TerminateTask(ctx context.Context, taskArn, reason string) error {
	input := &ecs.StopTaskInput{
		Cluster: aws.String(p.cluster),
		Task:    aws.String(taskArn),
		Reason:  aws.String(reason),
	}

	_, err := p.client.StopTask(ctx, input)
	if err != nil {
		// A task that already stopped and aged out of ECS is reported as an
		// invalid parameter; that counts as terminated.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidParameterException" {
			logrus.WithField("task_arn", taskArn).Debug("Task already gone, treating stop as success")
			return nil
		}
		logrus.WithError(err).WithField("task_arn", taskArn).Error("StopTask failed")
		return models.ErrTerminateFailed
	}

	logrus.WithFields(logrus.Fields{
		"task_arn": taskArn,
		"reason":   reason,
	}).Info("Compute task terminated")

	return nil
}

// containerName derives the container override target from the task
// definition reference, e.g. "pwn-heap:3" -> "pwn-heap". Challenge task
// definitions name their single container after the family.
func containerName(taskDefinition string) string {
	family := taskDefinition
	if idx := strings.LastIndex(family, "/"); idx >= 0 {
		family = family[idx+1:]
	}
	if idx := strings.Index(family, ":"); idx >= 0 {
		family = family[:idx]
	}
	return family
}
