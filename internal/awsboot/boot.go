// Package awsboot builds the AWS SDK clients the CLI needs from one shared
// config. Only clients for configured features are created, so a purely
// local run never touches AWS credentials.
package awsboot

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/speech-enhancer/internal/config"
)

// Clients holds the AWS SDK clients used by the CLI. Fields for features
// that are not configured are nil.
type Clients struct {
	Config aws.Config

	SSM         *ssm.Client
	Dynamo      *dynamodb.Client
	EventBridge *eventbridge.Client
	S3          *s3.Client
	Presigner   *s3.PresignClient
}

// Loader loads the shared AWS config. Tests substitute a static config.
type Loader func(ctx context.Context) (aws.Config, error)

// DefaultLoader loads the default credential chain and region.
func DefaultLoader(ctx context.Context) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx)
}

// Init returns nil when no configured feature needs AWS.
func Init(ctx context.Context, cfg config.Config, load Loader) (*Clients, error) {
	if !cfg.NeedsAWS() {
		return nil, nil
	}
	if load == nil {
		load = DefaultLoader
	}

	start := time.Now()
	awsCfg, err := load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	log.Debug().Str("region", awsCfg.Region).Dur("elapsed", time.Since(start)).Msg("AWS config loaded")

	c := &Clients{Config: awsCfg}
	if cfg.SSMAPIKeyParam != "" {
		c.SSM = ssm.NewFromConfig(awsCfg)
	}
	if cfg.History == config.HistoryDynamo {
		c.Dynamo = dynamodb.NewFromConfig(awsCfg)
	}
	if cfg.EventBus != "" {
		c.EventBridge = eventbridge.NewFromConfig(awsCfg)
	}
	if cfg.ArchiveBucket != "" {
		c.S3 = s3.NewFromConfig(awsCfg)
		c.Presigner = s3.NewPresignClient(c.S3)
	}
	return c, nil
}
