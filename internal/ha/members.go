package ha

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
)

// ErrInvalidClusterARN is returned when a member identifier is not a usable cluster ARN
var ErrInvalidClusterARN = errors.New("invalid cluster ARN")

// ClusterARN is the parsed form of a global cluster member identifier,
// arn:partition:service:region:account:resource-type:resource-name
type ClusterARN struct {
	Partition    string
	Service      string
	Region       string
	AccountID    string
	ResourceType string
	ResourceName string
}

// ParseClusterARN parses a database cluster ARN.
func ParseClusterARN(s string) (ClusterARN, error) {
	parsed, err := arn.Parse(s)
	if err != nil {
		return ClusterARN{}, fmt.Errorf("%w: %q: %v", ErrInvalidClusterARN, s, err)
	}
	if parsed.Region == "" {
		return ClusterARN{}, fmt.Errorf("%w: %q: missing region", ErrInvalidClusterARN, s)
	}

	out := ClusterARN{
		Partition: parsed.Partition,
		Service:   parsed.Service,
		Region:    parsed.Region,
		AccountID: parsed.AccountID,
	}

	// RDS uses "cluster:name"; some services use "type/name".
	if typ, name, ok := strings.Cut(parsed.Resource, ":"); ok {
		out.ResourceType, out.ResourceName = typ, name
	} else if typ, name, ok := strings.Cut(parsed.Resource, "/"); ok {
		out.ResourceType, out.ResourceName = typ, name
	} else {
		out.ResourceName = parsed.Resource
	}
	return out, nil
}

func (a ClusterARN) String() string {
	resource := a.ResourceName
	if a.ResourceType != "" {
		resource = a.ResourceType + ":" + a.ResourceName
	}
	return arn.ARN{
		Partition: a.Partition,
		Service:   a.Service,
		Region:    a.Region,
		AccountID: a.AccountID,
		Resource:  resource,
	}.String()
}

// Member is a global cluster member as seen by the orchestrator
type Member struct {
	ARN      string
	Parsed   ClusterARN
	IsWriter bool
}

// findLocalMember returns the first member whose ARN region equals region.
// Members with unparseable ARNs never match.
func findLocalMember(members []rdstypes.GlobalClusterMember, region string) (Member, []error, bool) {
	var skipped []error
	for _, m := range members {
		raw := aws.ToString(m.DBClusterArn)
		parsed, err := ParseClusterARN(raw)
		if err != nil {
			skipped = append(skipped, err)
			continue
		}
		if parsed.Region == region {
			return Member{ARN: raw, Parsed: parsed, IsWriter: aws.ToBool(m.IsWriter)}, skipped, true
		}
	}
	return Member{}, skipped, false
}

// isWriter reports whether the member identified by clusterARN is the writer.
func isWriter(members []rdstypes.GlobalClusterMember, clusterARN string) bool {
	for _, m := range members {
		if aws.ToString(m.DBClusterArn) == clusterARN && aws.ToBool(m.IsWriter) {
			return true
		}
	}
	return false
}
