package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"
)

// SNS message types
const (
	SNSNotification             = "Notification"
	SNSSubscriptionConfirmation = "SubscriptionConfirmation"
	SNSUnsubscribeConfirmation  = "UnsubscribeConfirmation"
)

const alarmStateAlarm = "ALARM"

const maxAlarmBody = 256 << 10

const snsEnvelopeSchema = `{
	"type": "object",
	"required": ["Type", "Message"],
	"properties": {
		"Type": {"enum": ["Notification", "SubscriptionConfirmation", "UnsubscribeConfirmation"]},
		"MessageId": {"type": "string"},
		"TopicArn": {"type": "string"},
		"Subject": {"type": ["string", "null"]},
		"Message": {"type": "string"},
		"SubscribeURL": {"type": "string"}
	}
}`

var envelopeSchema = gojsonschema.NewStringLoader(snsEnvelopeSchema)

// SNSEnvelope is the outer SNS HTTP delivery
type SNSEnvelope struct {
	Type         string `json:"Type"`
	MessageID    string `json:"MessageId"`
	TopicArn     string `json:"TopicArn"`
	Subject      string `json:"Subject"`
	Message      string `json:"Message"`
	SubscribeURL string `json:"SubscribeURL"`
}

// AlarmMessage is the CloudWatch alarm carried in the SNS Message field
type AlarmMessage struct {
	AlarmName      string `json:"AlarmName"`
	NewStateValue  string `json:"NewStateValue"`
	NewStateReason string `json:"NewStateReason"`
	Region         string `json:"Region"`
}

// ValidateEnvelope checks an SNS delivery body against the envelope schema
func ValidateEnvelope(body []byte) error {
	result, err := gojsonschema.Validate(envelopeSchema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *Server) handleAlarm(w http.ResponseWriter, r *http.Request) {
	status := s.serveAlarm(w, r)
	if s.observer != nil {
		s.observer.ObserveTrigger(status)
	}
}

func (s *Server) serveAlarm(w http.ResponseWriter, r *http.Request) int {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxAlarmBody))
	if err != nil {
		return writeError(w, http.StatusBadRequest, "failed to read body")
	}

	if err := ValidateEnvelope(body); err != nil {
		s.logger.Warn("rejected alarm notification", zap.Error(err))
		return writeError(w, http.StatusBadRequest, err.Error())
	}

	var env SNSEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return writeError(w, http.StatusBadRequest, "invalid JSON payload")
	}

	switch env.Type {
	case SNSSubscriptionConfirmation:
		s.logger.Info("received sns subscription confirmation, visit SubscribeURL to confirm",
			zap.String("topic_arn", env.TopicArn),
			zap.String("subscribe_url", env.SubscribeURL),
		)
		return writeStatus(w, http.StatusOK, "subscription_pending")
	case SNSUnsubscribeConfirmation:
		s.logger.Info("received sns unsubscribe confirmation", zap.String("topic_arn", env.TopicArn))
		return writeStatus(w, http.StatusOK, "unsubscribed")
	}

	// A message that is not an alarm document still triggers; only an
	// explicit non-ALARM state is ignored.
	var alarm AlarmMessage
	if err := json.Unmarshal([]byte(env.Message), &alarm); err == nil && alarm.NewStateValue != "" && alarm.NewStateValue != alarmStateAlarm {
		s.logger.Info("ignoring alarm state change",
			zap.String("alarm", alarm.AlarmName),
			zap.String("state", alarm.NewStateValue),
		)
		return writeStatus(w, http.StatusAccepted, "ignored")
	}

	if !s.limiter.Allow() {
		s.logger.Warn("alarm trigger rate exceeded", zap.String("alarm", alarm.AlarmName))
		return writeError(w, http.StatusTooManyRequests, "trigger rate exceeded")
	}

	// SNS stops waiting on a delivery long before the writer poll ends. The
	// runbook keeps going after the sender disconnects so scaling still runs.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.invocationTimeout)
	defer cancel()

	report, err := s.invoker.Execute(ctx, json.RawMessage(body))
	if err != nil {
		return writeError(w, http.StatusInternalServerError, err.Error())
	}

	writeJSON(w, report.Result.StatusCode, report.Result)
	return report.Result.StatusCode
}

func writeStatus(w http.ResponseWriter, code int, status string) int {
	writeJSON(w, code, map[string]string{"status": status})
	return code
}

func writeError(w http.ResponseWriter, code int, msg string) int {
	writeJSON(w, code, map[string]string{"error": msg})
	return code
}
