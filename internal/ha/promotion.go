package ha

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"go.uber.org/zap"
)

// ErrGlobalClusterNotFound is returned when the describe call returns no cluster
var ErrGlobalClusterNotFound = errors.New("global cluster not found")

// PromotionState is a step of the database promotion
type PromotionState string

const (
	StateUnknown            PromotionState = "unknown"
	StateLocalMemberFound   PromotionState = "local_member_found"
	StateAlreadyPrimary     PromotionState = "already_primary"
	StatePromotionAttempted PromotionState = "promotion_attempted"
	StatePromotionSucceeded PromotionState = "promotion_succeeded"
	StateFallbackAttempted  PromotionState = "fallback_attempted"
	StateFallbackSucceeded  PromotionState = "fallback_succeeded"
	StateFallbackFailed     PromotionState = "fallback_failed"
	StatePollingForWriter   PromotionState = "polling_for_writer"
	StateConfirmed          PromotionState = "confirmed"
	StateUnconfirmed        PromotionState = "unconfirmed"
)

// PromotionOutcome is the terminal result of the database half
type PromotionOutcome string

const (
	OutcomeSkipped        PromotionOutcome = "skipped"
	OutcomeAlreadyPrimary PromotionOutcome = "already_primary"
	OutcomeConfirmed      PromotionOutcome = "confirmed"
	OutcomeUnconfirmed    PromotionOutcome = "unconfirmed"
	OutcomeFailed         PromotionOutcome = "failed"
)

// PromotionPath is the promotion call that was accepted
type PromotionPath string

const (
	PathNone     PromotionPath = "none"
	PathStandard PromotionPath = "standard"
	PathFallback PromotionPath = "fallback"
)

// PromotionReport records what the promotion step did
type PromotionReport struct {
	MemberARN    string
	Outcome      PromotionOutcome
	Path         PromotionPath
	PollAttempts int
	States       []PromotionState
	Err          error
}

func (p *PromotionReport) enter(s PromotionState) {
	p.States = append(p.States, s)
}

// promote makes the member in the target region the writer of the global
// cluster. It never fails the invocation: every error ends up in the report.
func (dr *DROrchestrator) promote(ctx context.Context, log *zap.Logger) PromotionReport {
	report := PromotionReport{Path: PathNone, States: []PromotionState{StateUnknown}}

	members, err := dr.describeMembers(ctx)
	if err != nil {
		log.Error("error during rds operations", zap.Error(err))
		report.Outcome = OutcomeFailed
		report.Err = err
		return report
	}

	local, skipped, found := findLocalMember(members, dr.config.TargetRegion)
	for _, e := range skipped {
		log.Debug("ignoring global cluster member", zap.Error(e))
	}
	if !found {
		log.Error("could not find a cluster member in the target region")
		report.Outcome = OutcomeSkipped
		return report
	}

	report.MemberARN = local.ARN
	report.enter(StateLocalMemberFound)
	log = log.With(zap.String("member", local.ARN))

	if local.IsWriter {
		log.Info("local cluster is already primary, skipping rds failover")
		report.enter(StateAlreadyPrimary)
		report.Outcome = OutcomeAlreadyPrimary
		return report
	}

	log.Info("local cluster is secondary, initiating failover")
	report.enter(StatePromotionAttempted)

	if err := dr.failoverGlobalCluster(ctx, local.ARN); err != nil {
		log.Warn("standard failover failed, removing member from global cluster", zap.Error(err))
		report.enter(StateFallbackAttempted)
		report.Path = PathFallback

		if err := dr.removeFromGlobalCluster(ctx, local.ARN); err != nil {
			log.Error("error during rds operations", zap.Error(err))
			report.enter(StateFallbackFailed)
			report.Outcome = OutcomeFailed
			report.Err = err
			return report
		}
		log.Info("fallback: remove from global cluster initiated")
		report.enter(StateFallbackSucceeded)
	} else {
		log.Info("rds failover initiated")
		report.Path = PathStandard
		report.enter(StatePromotionSucceeded)
	}

	report.enter(StatePollingForWriter)
	confirmed, attempts := dr.awaitWriter(ctx, local.ARN, log)
	report.PollAttempts = attempts
	if confirmed {
		log.Info("local cluster promoted to writer", zap.Int("attempts", attempts))
		report.enter(StateConfirmed)
		report.Outcome = OutcomeConfirmed
	} else {
		log.Warn("writer promotion not confirmed yet, continuing", zap.Int("attempts", attempts))
		report.enter(StateUnconfirmed)
		report.Outcome = OutcomeUnconfirmed
	}
	return report
}

// awaitWriter polls until the member reports writer status or the attempt
// budget runs out. Describe errors count as an attempt and are ignored.
func (dr *DROrchestrator) awaitWriter(ctx context.Context, clusterARN string, log *zap.Logger) (bool, int) {
	confirmed := false
	attempts := 0
	for attempts < dr.config.PollAttempts && !confirmed {
		if err := dr.wait(ctx, dr.config.PollInterval); err != nil {
			log.Debug("stopped waiting for writer promotion", zap.Error(err))
			break
		}
		attempts++

		members, err := dr.describeMembers(ctx)
		if err != nil {
			log.Debug("transient describe error while polling", zap.Error(err), zap.Int("attempt", attempts))
			continue
		}
		confirmed = isWriter(members, clusterARN)
	}
	return confirmed, attempts
}

func (dr *DROrchestrator) describeMembers(ctx context.Context) ([]rdstypes.GlobalClusterMember, error) {
	out, err := dr.rds.DescribeGlobalClusters(ctx, &rds.DescribeGlobalClustersInput{
		GlobalClusterIdentifier: aws.String(dr.config.GlobalClusterID),
	})
	if err != nil {
		return nil, fmt.Errorf("describe global cluster %s: %w", dr.config.GlobalClusterID, err)
	}
	if out == nil || len(out.GlobalClusters) == 0 {
		return nil, fmt.Errorf("describe global cluster %s: %w", dr.config.GlobalClusterID, ErrGlobalClusterNotFound)
	}
	return out.GlobalClusters[0].GlobalClusterMembers, nil
}

func (dr *DROrchestrator) failoverGlobalCluster(ctx context.Context, clusterARN string) error {
	_, err := dr.rds.FailoverGlobalCluster(ctx, &rds.FailoverGlobalClusterInput{
		GlobalClusterIdentifier:   aws.String(dr.config.GlobalClusterID),
		TargetDbClusterIdentifier: aws.String(clusterARN),
	})
	if err != nil {
		return fmt.Errorf("failover global cluster: %w", err)
	}
	return nil
}

func (dr *DROrchestrator) removeFromGlobalCluster(ctx context.Context, clusterARN string) error {
	_, err := dr.rds.RemoveFromGlobalCluster(ctx, &rds.RemoveFromGlobalClusterInput{
		GlobalClusterIdentifier: aws.String(dr.config.GlobalClusterID),
		DbClusterIdentifier:     aws.String(clusterARN),
	})
	if err != nil {
		return fmt.Errorf("remove from global cluster: %w", err)
	}
	return nil
}
