package provisioner

import (
	"context"

	"ctf-session-svc/src/clients"
	"ctf-session-svc/src/internal/config"
	"ctf-session-svc/src/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/sirupsen/logrus"
)

// Locator resolves where a task may be placed and where a running task ended
// up. FindSecurityGroup fails on ambiguity rather than guessing.
type Locator interface {
	FindAvailableSubnets(ctx context.Context) ([]string, error)
	FindSecurityGroup(ctx context.Context) (string, error)
	FindNetworkInterface(ctx context.Context, interfaceID string) (string, error)
}

type ec2Locator struct {
	client *ec2.Client
	cfg    *config.ComputeConfig
}

func NewEC2Locator(awsClients *clients.AWSClients, cfg *config.ComputeConfig) Locator {
	return &ec2Locator{
		client: awsClients.EC2,
		cfg:    cfg,
	}
}

func (l *ec2Locator) FindAvailableSubnets(ctx context.Context) ([]string, error) {
	input := &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("tag:" + l.cfg.SubnetTagName),
				Values: []string{l.cfg.SubnetTagValue},
			},
			{
				Name:   aws.String("state"),
				Values: []string{"available"},
			},
		},
	}

	output, err := l.client.DescribeSubnets(ctx, input)
	if err != nil {
		logrus.WithError(err).Error("DescribeSubnets failed")
		return nil, models.ErrProvisionFailed
	}

	var subnets []string
	for _, subnet := range output.Subnets {
		if subnet.SubnetId != nil {
			subnets = append(subnets, *subnet.SubnetId)
		}
	}

	if len(subnets) == 0 {
		return nil, models.ErrNoSubnetAvailable
	}

	return subnets, nil
}

func (l *ec2Locator) FindSecurityGroup(ctx context.Context) (string, error) {
	input := &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{
				Name:   aws.String("tag:" + l.cfg.SecurityGroupTagName),
				Values: []string{l.cfg.SecurityGroupTagValue},
			},
		},
	}

	output, err := l.client.DescribeSecurityGroups(ctx, input)
	if err != nil {
		logrus.WithError(err).Error("DescribeSecurityGroups failed")
		return "", models.ErrProvisionFailed
	}

	switch len(output.SecurityGroups) {
	case 0:
		return "", models.ErrSecurityGroupNotFound
	case 1:
		return *output.SecurityGroups[0].GroupId, nil
	default:
		logrus.WithField("matches", len(output.SecurityGroups)).Error("Security group tag matched more than one group")
		return "", models.ErrAmbiguousSecurityGroup
	}
}

func (l *ec2Locator) FindNetworkInterface(ctx context.Context, interfaceID string) (string, error) {
	input := &ec2.DescribeNetworkInterfacesInput{
		NetworkInterfaceIds: []string{interfaceID},
	}

	output, err := l.client.DescribeNetworkInterfaces(ctx, input)
	if err != nil {
		logrus.WithError(err).WithField("interface_id", interfaceID).Error("DescribeNetworkInterfaces failed")
		return "", models.ErrInterfaceNotFound
	}

	if len(output.NetworkInterfaces) == 0 {
		return "", models.ErrInterfaceNotFound
	}

	eni := output.NetworkInterfaces[0]
	if eni.Association == nil || eni.Association.PublicIp == nil || *eni.Association.PublicIp == "" {
		return "", models.ErrNoPublicAddress
	}

	return *eni.Association.PublicIp, nil
}
