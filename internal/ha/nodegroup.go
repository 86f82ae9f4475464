package ha

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"go.uber.org/zap"
)

// ScalingConfig is a node group's size bounds
type ScalingConfig struct {
	MinSize     int32 `json:"min_size"`
	MaxSize     int32 `json:"max_size"`
	DesiredSize int32 `json:"desired_size"`
}

// ScalingChange records the node group update that was applied
type ScalingChange struct {
	Before   ScalingConfig
	After    ScalingConfig
	UpdateID string
}

// ScaleUp widens current so that it can hold target nodes. Min and max never
// shrink; desired is set to target exactly.
func ScaleUp(current ScalingConfig, target int32) ScalingConfig {
	return ScalingConfig{
		MinSize:     max(current.MinSize, target),
		MaxSize:     max(current.MaxSize, target+2),
		DesiredSize: target,
	}
}

// currentScaling reads the node group's scaling config. Missing min is 0 and
// missing max is target+2.
func currentScaling(ng *ekstypes.Nodegroup, target int32) ScalingConfig {
	current := ScalingConfig{MinSize: 0, MaxSize: target + 2}
	if ng == nil || ng.ScalingConfig == nil {
		return current
	}
	sc := ng.ScalingConfig
	if sc.MinSize != nil {
		current.MinSize = aws.ToInt32(sc.MinSize)
	}
	if sc.MaxSize != nil {
		current.MaxSize = aws.ToInt32(sc.MaxSize)
	}
	current.DesiredSize = aws.ToInt32(sc.DesiredSize)
	return current
}

// scaleNodegroup raises the node group to the target capacity. Single
// attempt; the error is returned to fail the invocation.
func (dr *DROrchestrator) scaleNodegroup(ctx context.Context, log *zap.Logger) (*ScalingChange, error) {
	cfg := dr.config
	log = log.With(
		zap.String("eks_cluster", cfg.EKSClusterName),
		zap.String("nodegroup", cfg.NodeGroupName),
		zap.Int32("target_capacity", cfg.TargetCapacity),
	)
	log.Info("scaling up eks node group")

	out, err := dr.eks.DescribeNodegroup(ctx, &eks.DescribeNodegroupInput{
		ClusterName:   aws.String(cfg.EKSClusterName),
		NodegroupName: aws.String(cfg.NodeGroupName),
	})
	if err != nil {
		log.Error("error during eks operations", zap.Error(err))
		return nil, fmt.Errorf("describe nodegroup %s/%s: %w", cfg.EKSClusterName, cfg.NodeGroupName, err)
	}

	var ng *ekstypes.Nodegroup
	if out != nil {
		ng = out.Nodegroup
	}
	change := &ScalingChange{Before: currentScaling(ng, cfg.TargetCapacity)}
	change.After = ScaleUp(change.Before, cfg.TargetCapacity)

	updated, err := dr.eks.UpdateNodegroupConfig(ctx, &eks.UpdateNodegroupConfigInput{
		ClusterName:   aws.String(cfg.EKSClusterName),
		NodegroupName: aws.String(cfg.NodeGroupName),
		ScalingConfig: &ekstypes.NodegroupScalingConfig{
			MinSize:     aws.Int32(change.After.MinSize),
			MaxSize:     aws.Int32(change.After.MaxSize),
			DesiredSize: aws.Int32(change.After.DesiredSize),
		},
	})
	if err != nil {
		log.Error("error during eks operations", zap.Error(err))
		return nil, fmt.Errorf("update nodegroup config %s/%s: %w", cfg.EKSClusterName, cfg.NodeGroupName, err)
	}
	if updated != nil && updated.Update != nil {
		change.UpdateID = aws.ToString(updated.Update.Id)
	}

	log.Info("eks node group scaling initiated",
		zap.Int32("min_size", change.After.MinSize),
		zap.Int32("max_size", change.After.MaxSize),
		zap.Int32("desired_size", change.After.DesiredSize),
		zap.String("update_id", change.UpdateID),
	)
	return change, nil
}
