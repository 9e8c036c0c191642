package clients

import (
	"context"
	"time"

	cfgpkg "ctf-session-svc/src/internal/config"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
)

// AWSClients holds the shared ECS/EC2 service clients. Both are safe for
// concurrent use and are constructed once at process start.
type AWSClients struct {
	ECS *ecs.Client
	EC2 *ec2.Client
}

func NewAWSClients(cfg *cfgpkg.ComputeConfig) (*AWSClients, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.WithField("region", cfg.Region).Info("Loading AWS configuration...")

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		log.WithError(err).Error("Failed to load AWS configuration")
		return nil, err
	}

	log.Infof("AWS clients initialized for region %s", cfg.Region)

	return &AWSClients{
		ECS: ecs.NewFromConfig(awsCfg),
		EC2: ec2.NewFromConfig(awsCfg),
	}, nil
}
