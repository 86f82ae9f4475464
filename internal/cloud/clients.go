// Package cloud builds the AWS control-plane clients used by the failover runbook.
package cloud

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"go.uber.org/zap"
)

// Options selects the region and, optionally, static credentials
type Options struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Clients holds region-scoped RDS and EKS clients
type Clients struct {
	RDS    *rds.Client
	EKS    *eks.Client
	Region string
}

// NewClients loads the default AWS config for opts.Region. Static
// credentials replace the default chain when both key parts are set.
func NewClients(ctx context.Context, opts Options, logger *zap.Logger) (*Clients, error) {
	if opts.Region == "" {
		return nil, errors.New("cloud: region is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, opts.SessionToken)
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
		logger.Info("using static aws credentials", zap.String("region", opts.Region))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewClientsFromConfig(cfg), nil
}

// NewClientsFromConfig builds clients from an already loaded aws.Config
func NewClientsFromConfig(cfg aws.Config) *Clients {
	return &Clients{
		RDS:    rds.NewFromConfig(cfg),
		EKS:    eks.NewFromConfig(cfg),
		Region: cfg.Region,
	}
}
