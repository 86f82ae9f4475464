package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FairForge/drfailover/internal/config"
	"github.com/FairForge/drfailover/internal/ha"
	"github.com/FairForge/drfailover/internal/metrics"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeInvoker struct {
	err    error
	events []json.RawMessage
}

func (f *fakeInvoker) Execute(_ context.Context, event json.RawMessage) (*ha.Report, error) {
	f.events = append(f.events, event)
	if f.err != nil {
		return &ha.Report{}, f.err
	}
	return &ha.Report{Result: ha.Result{StatusCode: 200, Body: ha.ResultBody}}, nil
}

// secondaryRDS keeps reporting the east member as a reader, so every
// promotion poll runs to its last attempt.
type secondaryRDS struct{}

func (secondaryRDS) DescribeGlobalClusters(ctx context.Context, _ *rds.DescribeGlobalClustersInput, _ ...func(*rds.Options)) (*rds.DescribeGlobalClustersOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &rds.DescribeGlobalClustersOutput{GlobalClusters: []rdstypes.GlobalCluster{{
		GlobalClusterMembers: []rdstypes.GlobalClusterMember{
			{DBClusterArn: aws.String("arn:aws:rds:us-west-2:123456789012:cluster:orders-west"), IsWriter: aws.Bool(true)},
			{DBClusterArn: aws.String("arn:aws:rds:us-east-1:123456789012:cluster:orders-east"), IsWriter: aws.Bool(false)},
		},
	}}}, nil
}

func (secondaryRDS) FailoverGlobalCluster(ctx context.Context, _ *rds.FailoverGlobalClusterInput, _ ...func(*rds.Options)) (*rds.FailoverGlobalClusterOutput, error) {
	return &rds.FailoverGlobalClusterOutput{}, ctx.Err()
}

func (secondaryRDS) RemoveFromGlobalCluster(ctx context.Context, _ *rds.RemoveFromGlobalClusterInput, _ ...func(*rds.Options)) (*rds.RemoveFromGlobalClusterOutput, error) {
	return &rds.RemoveFromGlobalClusterOutput{}, ctx.Err()
}

// contextEKS fails on a done context the way the SDK does.
type contextEKS struct {
	updates atomic.Int32
}

func (f *contextEKS) DescribeNodegroup(ctx context.Context, _ *eks.DescribeNodegroupInput, _ ...func(*eks.Options)) (*eks.DescribeNodegroupOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &eks.DescribeNodegroupOutput{Nodegroup: &ekstypes.Nodegroup{
		ScalingConfig: &ekstypes.NodegroupScalingConfig{MinSize: aws.Int32(0), MaxSize: aws.Int32(2), DesiredSize: aws.Int32(0)},
	}}, nil
}

func (f *contextEKS) UpdateNodegroupConfig(ctx context.Context, _ *eks.UpdateNodegroupConfigInput, _ ...func(*eks.Options)) (*eks.UpdateNodegroupConfigOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.updates.Add(1)
	return &eks.UpdateNodegroupConfigOutput{}, nil
}

func testServerConfig() *config.Config {
	cfg := config.Default()
	cfg.Failover.GlobalClusterID = "orders-global"
	cfg.Failover.EKSClusterName = "orders"
	cfg.Failover.NodeGroupName = "workers"
	cfg.Failover.TargetRegion = "us-east-1"
	cfg.Server.TriggerRate = 0
	return cfg
}

func snsBody(t *testing.T, typ, message string) []byte {
	t.Helper()
	body, err := json.Marshal(SNSEnvelope{
		Type:         typ,
		MessageID:    "5f1d0c2e",
		TopicArn:     "arn:aws:sns:us-east-1:123456789012:dr-alarms",
		Message:      message,
		SubscribeURL: "https://sns.us-east-1.amazonaws.com/?Action=ConfirmSubscription",
	})
	require.NoError(t, err)
	return body
}

func alarmMessage(t *testing.T, state string) string {
	t.Helper()
	msg, err := json.Marshal(AlarmMessage{AlarmName: "primary-health-check", NewStateValue: state})
	require.NoError(t, err)
	return string(msg)
}

func postAlarm(s *Server, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/alarms", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleAlarm(t *testing.T) {
	t.Run("alarm runs the failover", func(t *testing.T) {
		inv := &fakeInvoker{}
		m := metrics.NewMetrics()
		s := NewServer(testServerConfig(), zap.NewNop(), inv, m, m.Handler())

		body := snsBody(t, SNSNotification, alarmMessage(t, "ALARM"))
		rec := postAlarm(s, body)

		require.Equal(t, http.StatusOK, rec.Code)
		var result ha.Result
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		assert.Equal(t, ha.ResultBody, result.Body)
		require.Len(t, inv.events, 1)
		assert.JSONEq(t, string(body), string(inv.events[0]))
		assert.Equal(t, float64(1), testutil.ToFloat64(m.Triggers.WithLabelValues("200")))
	})

	t.Run("non-json message still triggers", func(t *testing.T) {
		inv := &fakeInvoker{}
		s := NewServer(testServerConfig(), zap.NewNop(), inv, nil, nil)

		rec := postAlarm(s, snsBody(t, SNSNotification, "health check failed"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, inv.events, 1)
	})

	t.Run("ok state is ignored", func(t *testing.T) {
		inv := &fakeInvoker{}
		s := NewServer(testServerConfig(), zap.NewNop(), inv, nil, nil)

		rec := postAlarm(s, snsBody(t, SNSNotification, alarmMessage(t, "OK")))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Empty(t, inv.events)
	})

	t.Run("subscription confirmation", func(t *testing.T) {
		inv := &fakeInvoker{}
		s := NewServer(testServerConfig(), zap.NewNop(), inv, nil, nil)

		rec := postAlarm(s, snsBody(t, SNSSubscriptionConfirmation, "You have chosen to subscribe"))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "subscription_pending")
		assert.Empty(t, inv.events)
	})

	t.Run("invalid envelope", func(t *testing.T) {
		inv := &fakeInvoker{}
		s := NewServer(testServerConfig(), zap.NewNop(), inv, nil, nil)

		rec := postAlarm(s, []byte(`{"Type":"Bogus","Message":"x"}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = postAlarm(s, []byte(`not json`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, inv.events)
	})

	t.Run("scaling failure is a server error", func(t *testing.T) {
		inv := &fakeInvoker{err: errors.New("update nodegroup config: throttled")}
		s := NewServer(testServerConfig(), zap.NewNop(), inv, nil, nil)

		rec := postAlarm(s, snsBody(t, SNSNotification, alarmMessage(t, "ALARM")))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "throttled")
	})

	t.Run("trigger rate limited", func(t *testing.T) {
		cfg := testServerConfig()
		cfg.Server.TriggerRate = 0.001
		cfg.Server.TriggerBurst = 1
		inv := &fakeInvoker{}
		s := NewServer(cfg, zap.NewNop(), inv, nil, nil)

		body := snsBody(t, SNSNotification, alarmMessage(t, "ALARM"))
		assert.Equal(t, http.StatusOK, postAlarm(s, body).Code)
		assert.Equal(t, http.StatusTooManyRequests, postAlarm(s, body).Code)
		assert.Len(t, inv.events, 1)
	})

	t.Run("requires token when secret set", func(t *testing.T) {
		cfg := testServerConfig()
		cfg.Server.WebhookSecret = "s3cret"
		inv := &fakeInvoker{}
		s := NewServer(cfg, zap.NewNop(), inv, nil, nil)

		rec := postAlarm(s, snsBody(t, SNSNotification, alarmMessage(t, "ALARM")))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, inv.events)
	})
}

func TestHandleAlarm_SenderDisconnect(t *testing.T) {
	cfg := testServerConfig()
	cfg.Failover.PollAttempts = 3
	cfg.Failover.PollInterval = 50 * time.Millisecond

	eksAPI := &contextEKS{}
	orch, err := ha.NewDROrchestrator(&cfg.Failover, secondaryRDS{}, eksAPI, zap.NewNop())
	require.NoError(t, err)
	s := NewServer(cfg, zap.NewNop(), orch, nil, nil)

	// The sender gives up while the writer poll is still running.
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/alarms", bytes.NewReader(snsBody(t, SNSNotification, alarmMessage(t, "ALARM"))))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req.WithContext(ctx))

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int32(1), eksAPI.updates.Load(), "node group scaled after the sender left")
}

func TestHandleAlarm_TokenInSubscriptionURL(t *testing.T) {
	cfg := testServerConfig()
	cfg.Server.WebhookSecret = "s3cret"
	token := signToken(t, "s3cret", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	body := snsBody(t, SNSNotification, alarmMessage(t, "ALARM"))

	t.Run("basic auth", func(t *testing.T) {
		inv := &fakeInvoker{}
		s := NewServer(cfg, zap.NewNop(), inv, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/alarms", bytes.NewReader(body))
		req.SetBasicAuth("sns", token)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, inv.events, 1)
	})

	t.Run("query parameter", func(t *testing.T) {
		inv := &fakeInvoker{}
		s := NewServer(cfg, zap.NewNop(), inv, nil, nil)

		req := httptest.NewRequest(http.MethodPost, "/v1/alarms?token="+token, bytes.NewReader(body))
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, inv.events, 1)
	})
}

func TestValidateEnvelope(t *testing.T) {
	assert.NoError(t, ValidateEnvelope([]byte(`{"Type":"Notification","Message":"{}"}`)))
	assert.Error(t, ValidateEnvelope([]byte(`{"Type":"Notification"}`)))
	assert.Error(t, ValidateEnvelope([]byte(`{"Type":"Notification","Message":42}`)))
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.NewMetrics()
	s := NewServer(testServerConfig(), zap.NewNop(), &fakeInvoker{}, m, m.Handler())

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "orders-global", health["global_cluster"])

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "drfailover_")
}
