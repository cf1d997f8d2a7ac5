// Package bootstrap wires config into runtime components shared by the API
// and worker binaries.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/callflow/internal/archive"
	"github.com/kestrelhq/callflow/internal/calllog"
	appconfig "github.com/kestrelhq/callflow/internal/config"
	"github.com/kestrelhq/callflow/internal/dialer"
	"github.com/kestrelhq/callflow/internal/notify"
	"github.com/kestrelhq/callflow/internal/reconcile"
	"github.com/kestrelhq/callflow/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildGateway returns the outbound call gateway.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) (dialer.Gateway, error) {
	client, err := dialer.NewTelnyxClient(dialer.TelnyxConfig{
		APIKey:      cfg.TelnyxAPIKey,
		AssistantID: cfg.TelnyxAssistantID,
		FromNumber:  cfg.TelnyxFromNumber,
		Timeout:     cfg.GatewayTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: build call gateway: %w", err)
	}
	return client, nil
}

// BuildEmailSender selects the follow-up email provider. "auto" prefers
// SendGrid when an API key is present, then SES, then the logging stub.
func BuildEmailSender(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) (notify.EmailSender, error) {
	if logger == nil {
		logger = logging.Default()
	}

	buildSendGrid := func() notify.EmailSender {
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender == nil {
			return nil
		}
		return sender
	}
	buildSES := func() notify.EmailSender {
		if cfg.SESFromEmail == "" {
			return nil
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if sender == nil {
			return nil
		}
		return sender
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := buildSendGrid(); sender != nil {
			return sender, nil
		}
		return nil, fmt.Errorf("bootstrap: EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is not set")
	case "ses":
		if sender := buildSES(); sender != nil {
			return sender, nil
		}
		return nil, fmt.Errorf("bootstrap: EMAIL_PROVIDER=ses but SES_FROM_EMAIL is not set")
	case "stub":
		return notify.NewStubEmailSender(logger), nil
	case "auto", "":
		if sender := buildSendGrid(); sender != nil {
			logger.Info("follow-up email via SendGrid")
			return sender, nil
		}
		if sender := buildSES(); sender != nil {
			logger.Info("follow-up email via SES")
			return sender, nil
		}
		logger.Warn("no email provider configured; follow-up emails are logged, not sent")
		return notify.NewStubEmailSender(logger), nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}

// BuildCallLogStore selects the call log backend.
func BuildCallLogStore(pool *pgxpool.Pool, awsCfg aws.Config, cfg *appconfig.Config) (calllog.Store, error) {
	switch cfg.CallLogBackend {
	case "postgres":
		if pool == nil {
			return nil, fmt.Errorf("bootstrap: CALL_LOG_BACKEND=postgres requires a database connection")
		}
		return calllog.NewPostgresStore(pool), nil
	case "dynamo":
		if cfg.CallLogTable == "" {
			return nil, fmt.Errorf("bootstrap: CALL_LOG_BACKEND=dynamo requires CALL_LOG_TABLE")
		}
		return calllog.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.CallLogTable), nil
	default:
		return nil, fmt.Errorf("bootstrap: unsupported CALL_LOG_BACKEND %q", cfg.CallLogBackend)
	}
}

// BuildReplayQueue returns the follow-up replay queue, or nil when replay is
// not configured. USE_MEMORY_QUEUE serves local development.
func BuildReplayQueue(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) reconcile.Queue {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.UseMemoryQueue {
		logger.Info("replay queue: in-memory")
		return reconcile.NewMemoryQueue(0)
	}
	if strings.TrimSpace(cfg.ReplayQueueURL) == "" {
		logger.Warn("REPLAY_QUEUE_URL not set; failed follow-ups will not be replayed")
		return nil
	}
	return reconcile.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ReplayQueueURL)
}

// BuildArchiveStore returns the report archive, a no-op when no bucket is
// configured.
func BuildArchiveStore(awsCfg aws.Config, cfg *appconfig.Config, logger *logging.Logger) *archive.Store {
	if strings.TrimSpace(cfg.ArchiveBucket) == "" {
		return nil
	}
	return archive.NewStore(s3.NewFromConfig(awsCfg), cfg.ArchiveBucket, logger)
}
