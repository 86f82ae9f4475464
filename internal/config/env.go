package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadFromEnv loads configuration from environment variables. Malformed
// numbers are errors rather than silently ignored.
func LoadFromEnv(cfg *Config) error {
	f := &cfg.Failover

	if v := os.Getenv("GLOBAL_CLUSTER_ID"); v != "" {
		f.GlobalClusterID = v
	}
	if v := os.Getenv("EKS_CLUSTER_NAME"); v != "" {
		f.EKSClusterName = v
	}
	if v := os.Getenv("EKS_NODE_GROUP_NAME"); v != "" {
		f.NodeGroupName = v
	}
	if v := os.Getenv("TARGET_CAPACITY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("TARGET_CAPACITY: %w", err)
		}
		f.TargetCapacity = int32(n)
	}

	// The target region falls back to the runtime's own region.
	f.TargetRegion = GetEnvOrDefault("TARGET_REGION", f.TargetRegion)
	if f.TargetRegion == "" {
		f.TargetRegion = os.Getenv("AWS_REGION")
	}

	if v := os.Getenv("PROMOTION_POLL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PROMOTION_POLL_ATTEMPTS: %w", err)
		}
		f.PollAttempts = n
	}
	if v := os.Getenv("PROMOTION_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PROMOTION_POLL_INTERVAL: %w", err)
		}
		f.PollInterval = d
	}

	if v := os.Getenv("DR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if v := os.Getenv("DR_HTTP_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DR_HTTP_PORT: %w", err)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("DR_WEBHOOK_SECRET"); v != "" {
		cfg.Server.WebhookSecret = v
	}
	if v := os.Getenv("DR_WEBHOOK_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DR_WEBHOOK_RATE: %w", err)
		}
		cfg.Server.TriggerRate = r
	}

	cfg.AWS.AccessKeyID = GetEnvOrDefault("DR_AWS_ACCESS_KEY_ID", cfg.AWS.AccessKeyID)
	cfg.AWS.SecretAccessKey = GetEnvOrDefault("DR_AWS_SECRET_ACCESS_KEY", cfg.AWS.SecretAccessKey)
	cfg.AWS.SessionToken = GetEnvOrDefault("DR_AWS_SESSION_TOKEN", cfg.AWS.SessionToken)

	return nil
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
