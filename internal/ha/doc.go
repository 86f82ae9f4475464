// Package ha implements the regional disaster recovery runbook.
//
// # Overview
//
// A DROrchestrator reacts to a regional outage signal with two steps:
//   - Promote the Aurora global database member that lives in the target
//     region to writer (best effort)
//   - Raise the bounds of an EKS managed node group so the region can absorb
//     failover traffic (must succeed)
//
// # Database promotion
//
// The member is located by parsing each member ARN and comparing its region
// with the configured target region. The first match wins. A member that is
// already the writer is left alone.
//
// Promotion first calls FailoverGlobalCluster. If that is rejected (for
// example because the old primary region is unreachable) the member is
// detached with RemoveFromGlobalCluster, which leaves it as a standalone
// writable cluster. The orchestrator then polls DescribeGlobalClusters a
// bounded number of times waiting for the writer flag:
//
//	Unknown ──► LocalMemberFound ──(writer)──► AlreadyPrimary
//	                 │
//	                 ▼
//	        PromotionAttempted ──► PromotionSucceeded ─────────┐
//	                 │                                         ▼
//	                 └──► FallbackAttempted ──► FallbackSucceeded ──► PollingForWriter ──► Confirmed | Unconfirmed
//	                              │
//	                              └──► FallbackFailed
//
// Every error on this path is logged and swallowed. Unconfirmed is not an
// error: the promotion may finish after the invocation ends.
//
// # Node group scale-up
//
// The new bounds are min = max(min, T), max = max(max, T+2), desired = T.
// Bounds never shrink. A failed describe or update is returned to the caller.
//
// # Quick Start
//
//	cfg := ha.DefaultDRConfig()
//	cfg.GlobalClusterID = "orders-global"
//	cfg.EKSClusterName = "orders"
//	cfg.NodeGroupName = "workers"
//	cfg.TargetRegion = "us-west-2"
//
//	orch, err := ha.NewDROrchestrator(cfg, rdsClient, eksClient, logger)
//	report, err := orch.Execute(ctx, event)
//
// Invocations share no state and both steps are idempotent, so duplicate
// alarm deliveries are safe.
package ha
