package ha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ResultBody is returned to the invoker when the sequence completes
const ResultBody = "DR Failover Sequence Executed"

// GlobalClusterAPI is the subset of the RDS client used for promotion
type GlobalClusterAPI interface {
	DescribeGlobalClusters(ctx context.Context, params *rds.DescribeGlobalClustersInput, optFns ...func(*rds.Options)) (*rds.DescribeGlobalClustersOutput, error)
	FailoverGlobalCluster(ctx context.Context, params *rds.FailoverGlobalClusterInput, optFns ...func(*rds.Options)) (*rds.FailoverGlobalClusterOutput, error)
	RemoveFromGlobalCluster(ctx context.Context, params *rds.RemoveFromGlobalClusterInput, optFns ...func(*rds.Options)) (*rds.RemoveFromGlobalClusterOutput, error)
}

// NodegroupAPI is the subset of the EKS client used for scale-up
type NodegroupAPI interface {
	DescribeNodegroup(ctx context.Context, params *eks.DescribeNodegroupInput, optFns ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error)
	UpdateNodegroupConfig(ctx context.Context, params *eks.UpdateNodegroupConfigInput, optFns ...func(*eks.Options)) (*eks.UpdateNodegroupConfigOutput, error)
}

// Recorder receives the outcome of each invocation. Implemented by metrics.Metrics.
type Recorder interface {
	ObservePromotion(p PromotionReport)
	ObserveScale(err error)
	ObserveInvocation(d time.Duration, err error)
}

// MaxTargetCapacity is the managed node group size limit. It also keeps the
// widened max size (target+2) inside int32.
const MaxTargetCapacity = 450

// DRConfig holds disaster recovery configuration
type DRConfig struct {
	GlobalClusterID string        `yaml:"global_cluster_id"`
	EKSClusterName  string        `yaml:"eks_cluster_name"`
	NodeGroupName   string        `yaml:"node_group_name"`
	TargetCapacity  int32         `yaml:"target_capacity"`
	TargetRegion    string        `yaml:"target_region"`
	PollAttempts    int           `yaml:"poll_attempts"`
	PollInterval    time.Duration `yaml:"poll_interval"`
}

// DefaultDRConfig returns the defaults; identifiers must still be supplied
func DefaultDRConfig() *DRConfig {
	return &DRConfig{
		TargetCapacity: 2,
		PollAttempts:   6,
		PollInterval:   10 * time.Second,
	}
}

// Validate checks that every required value is present
func (c *DRConfig) Validate() error {
	var errs []error
	if c.GlobalClusterID == "" {
		errs = append(errs, errors.New("global cluster id is required"))
	}
	if c.EKSClusterName == "" {
		errs = append(errs, errors.New("eks cluster name is required"))
	}
	if c.NodeGroupName == "" {
		errs = append(errs, errors.New("node group name is required"))
	}
	if c.TargetRegion == "" {
		errs = append(errs, errors.New("target region is required"))
	}
	if c.TargetCapacity < 1 {
		errs = append(errs, fmt.Errorf("target capacity must be positive, got %d", c.TargetCapacity))
	}
	if c.TargetCapacity > MaxTargetCapacity {
		errs = append(errs, fmt.Errorf("target capacity must not exceed %d, got %d", MaxTargetCapacity, c.TargetCapacity))
	}
	if c.PollAttempts < 0 {
		errs = append(errs, fmt.Errorf("poll attempts must not be negative, got %d", c.PollAttempts))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll interval must not be negative, got %s", c.PollInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("dr config: %w", errors.Join(errs...))
	}
	return nil
}

// Result is the invocation response
type Result struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Report describes everything one invocation did
type Report struct {
	InvocationID string
	Promotion    PromotionReport
	Scaling      *ScalingChange
	Result       Result
	Duration     time.Duration
}

// WaitFunc blocks for d or until ctx is done
type WaitFunc func(ctx context.Context, d time.Duration) error

// Option configures a DROrchestrator
type Option func(*DROrchestrator)

// WithRecorder sets the outcome recorder
func WithRecorder(r Recorder) Option {
	return func(dr *DROrchestrator) { dr.recorder = r }
}

// WithWaitFunc replaces the poll delay
func WithWaitFunc(w WaitFunc) Option {
	return func(dr *DROrchestrator) { dr.wait = w }
}

// DROrchestrator runs the failover runbook: promote the regional database
// member, then scale the node group.
type DROrchestrator struct {
	config   *DRConfig
	rds      GlobalClusterAPI
	eks      NodegroupAPI
	logger   *zap.Logger
	recorder Recorder
	wait     WaitFunc
}

// NewDROrchestrator creates a new disaster recovery orchestrator
func NewDROrchestrator(config *DRConfig, rdsAPI GlobalClusterAPI, eksAPI NodegroupAPI, logger *zap.Logger, opts ...Option) (*DROrchestrator, error) {
	if config == nil {
		return nil, fmt.Errorf("config required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if rdsAPI == nil {
		return nil, fmt.Errorf("rds client required")
	}
	if eksAPI == nil {
		return nil, fmt.Errorf("eks client required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dr := &DROrchestrator{
		config: config,
		rds:    rdsAPI,
		eks:    eksAPI,
		logger: logger,
		wait:   sleepContext,
	}
	for _, opt := range opts {
		opt(dr)
	}
	return dr, nil
}

// Execute runs one failover invocation for the given trigger event. Database
// promotion failures are logged and never returned; a node group scaling
// failure is returned as the invocation error.
func (dr *DROrchestrator) Execute(ctx context.Context, event json.RawMessage) (*Report, error) {
	start := time.Now()
	report := &Report{InvocationID: uuid.NewString()}

	log := dr.logger.With(
		zap.String("invocation_id", report.InvocationID),
		zap.String("global_cluster", dr.config.GlobalClusterID),
		zap.String("region", dr.config.TargetRegion),
	)
	log.Info("received event", zap.ByteString("event", event))

	report.Promotion = dr.promote(ctx, log)

	change, err := dr.scaleNodegroup(ctx, log)
	report.Scaling = change
	report.Duration = time.Since(start)

	if dr.recorder != nil {
		dr.recorder.ObservePromotion(report.Promotion)
		dr.recorder.ObserveScale(err)
		dr.recorder.ObserveInvocation(report.Duration, err)
	}
	if err != nil {
		return report, err
	}

	report.Result = Result{StatusCode: 200, Body: ResultBody}
	log.Info("dr failover sequence executed",
		zap.String("promotion_outcome", string(report.Promotion.Outcome)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
