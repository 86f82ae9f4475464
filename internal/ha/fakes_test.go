package ha

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
)

const (
	testGlobalCluster = "orders-global"
	eastARN           = "arn:aws:rds:us-east-1:123456789012:cluster:orders-east"
	westARN           = "arn:aws:rds:us-west-2:123456789012:cluster:orders-west"
)

func member(arn string, writer bool) rdstypes.GlobalClusterMember {
	return rdstypes.GlobalClusterMember{DBClusterArn: aws.String(arn), IsWriter: aws.Bool(writer)}
}

type describeResult struct {
	members []rdstypes.GlobalClusterMember
	err     error
}

// fakeRDS replays describe results in order; the last one repeats.
type fakeRDS struct {
	mu          sync.Mutex
	describes   []describeResult
	describeN   int
	failoverErr error
	removeErr   error

	failoverCalls []*rds.FailoverGlobalClusterInput
	removeCalls   []*rds.RemoveFromGlobalClusterInput
}

func (f *fakeRDS) DescribeGlobalClusters(_ context.Context, params *rds.DescribeGlobalClustersInput, _ ...func(*rds.Options)) (*rds.DescribeGlobalClustersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.describes) == 0 {
		return &rds.DescribeGlobalClustersOutput{}, nil
	}
	idx := f.describeN
	if idx >= len(f.describes) {
		idx = len(f.describes) - 1
	}
	f.describeN++

	res := f.describes[idx]
	if res.err != nil {
		return nil, res.err
	}
	return &rds.DescribeGlobalClustersOutput{
		GlobalClusters: []rdstypes.GlobalCluster{{
			GlobalClusterIdentifier: params.GlobalClusterIdentifier,
			GlobalClusterMembers:    res.members,
		}},
	}, nil
}

func (f *fakeRDS) FailoverGlobalCluster(_ context.Context, params *rds.FailoverGlobalClusterInput, _ ...func(*rds.Options)) (*rds.FailoverGlobalClusterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failoverCalls = append(f.failoverCalls, params)
	if f.failoverErr != nil {
		return nil, f.failoverErr
	}
	return &rds.FailoverGlobalClusterOutput{}, nil
}

func (f *fakeRDS) RemoveFromGlobalCluster(_ context.Context, params *rds.RemoveFromGlobalClusterInput, _ ...func(*rds.Options)) (*rds.RemoveFromGlobalClusterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, params)
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	return &rds.RemoveFromGlobalClusterOutput{}, nil
}

func (f *fakeRDS) describeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describeN
}

type fakeEKS struct {
	scaling     *ekstypes.NodegroupScalingConfig
	describeErr error
	updateErr   error

	updates []*eks.UpdateNodegroupConfigInput
}

func (f *fakeEKS) DescribeNodegroup(_ context.Context, params *eks.DescribeNodegroupInput, _ ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	return &eks.DescribeNodegroupOutput{
		Nodegroup: &ekstypes.Nodegroup{
			ClusterName:   params.ClusterName,
			NodegroupName: params.NodegroupName,
			ScalingConfig: f.scaling,
		},
	}, nil
}

func (f *fakeEKS) UpdateNodegroupConfig(_ context.Context, params *eks.UpdateNodegroupConfigInput, _ ...func(*eks.Options)) (*eks.UpdateNodegroupConfigOutput, error) {
	f.updates = append(f.updates, params)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &eks.UpdateNodegroupConfigOutput{Update: &ekstypes.Update{Id: aws.String("update-1")}}, nil
}

func scaling(minSize, maxSize, desired int32) *ekstypes.NodegroupScalingConfig {
	return &ekstypes.NodegroupScalingConfig{
		MinSize:     aws.Int32(minSize),
		MaxSize:     aws.Int32(maxSize),
		DesiredSize: aws.Int32(desired),
	}
}

func testConfig() *DRConfig {
	cfg := DefaultDRConfig()
	cfg.GlobalClusterID = testGlobalCluster
	cfg.EKSClusterName = "orders"
	cfg.NodeGroupName = "workers"
	cfg.TargetRegion = "us-east-1"
	cfg.PollInterval = 0
	return cfg
}

type recordedWaits struct {
	mu    sync.Mutex
	waits int
}

func (r *recordedWaits) wait(ctx context.Context, _ time.Duration) error {
	r.mu.Lock()
	r.waits++
	r.mu.Unlock()
	return ctx.Err()
}
