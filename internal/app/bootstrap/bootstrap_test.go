package bootstrap

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	appconfig "github.com/kestrelhq/callflow/internal/config"
	"github.com/kestrelhq/callflow/internal/notify"
	"github.com/kestrelhq/callflow/internal/reconcile"
	"github.com/kestrelhq/callflow/pkg/logging"
)

func TestBuildEmailSenderStub(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "stub"}

	sender, err := BuildEmailSender(aws.Config{}, cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender, got %T", sender)
	}
}

func TestBuildEmailSenderAutoFallsBackToStub(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "auto"}

	sender, err := BuildEmailSender(aws.Config{}, cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub fallback, got %T", sender)
	}
}

func TestBuildEmailSenderAutoPrefersSendGrid(t *testing.T) {
	cfg := &appconfig.Config{
		EmailProvider:     "auto",
		SendGridAPIKey:    "sg-key",
		SendGridFromEmail: "hello@callflow.example",
		SESFromEmail:      "hello@callflow.example",
	}

	sender, err := BuildEmailSender(aws.Config{}, cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := sender.(*notify.SendGridSender); !ok {
		t.Fatalf("expected SendGrid sender, got %T", sender)
	}
}

func TestBuildEmailSenderExplicitProviderMissingConfig(t *testing.T) {
	for _, provider := range []string{"sendgrid", "ses"} {
		cfg := &appconfig.Config{EmailProvider: provider}
		if _, err := BuildEmailSender(aws.Config{}, cfg, logging.New("error")); err == nil {
			t.Errorf("provider %q: expected error without credentials", provider)
		}
	}
}

func TestBuildEmailSenderUnknownProvider(t *testing.T) {
	cfg := &appconfig.Config{EmailProvider: "carrier-pigeon"}
	if _, err := BuildEmailSender(aws.Config{}, cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestBuildCallLogStorePostgresRequiresPool(t *testing.T) {
	cfg := &appconfig.Config{CallLogBackend: "postgres"}
	if _, err := BuildCallLogStore(nil, aws.Config{}, cfg); err == nil {
		t.Fatalf("expected error without database pool")
	}
}

func TestBuildCallLogStoreDynamo(t *testing.T) {
	cfg := &appconfig.Config{CallLogBackend: "dynamo"}
	if _, err := BuildCallLogStore(nil, aws.Config{}, cfg); err == nil {
		t.Fatalf("expected error without table name")
	}

	cfg.CallLogTable = "call_logs"
	store, err := BuildCallLogStore(nil, aws.Config{}, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store == nil {
		t.Fatalf("expected dynamo store")
	}
}

func TestBuildCallLogStoreUnknownBackend(t *testing.T) {
	cfg := &appconfig.Config{CallLogBackend: "etcd"}
	if _, err := BuildCallLogStore(nil, aws.Config{}, cfg); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestBuildReplayQueueMemory(t *testing.T) {
	cfg := &appconfig.Config{UseMemoryQueue: true}

	queue := BuildReplayQueue(aws.Config{}, cfg, logging.New("error"))
	if _, ok := queue.(*reconcile.MemoryQueue); !ok {
		t.Fatalf("expected memory queue, got %T", queue)
	}
}

func TestBuildReplayQueueDisabled(t *testing.T) {
	cfg := &appconfig.Config{}

	if queue := BuildReplayQueue(aws.Config{}, cfg, logging.New("error")); queue != nil {
		t.Fatalf("expected nil queue without a URL, got %T", queue)
	}
}

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(nil, nil, logging.New("error"), false); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
	if client := BuildRedisClient(nil, &appconfig.Config{}, logging.New("error"), false); client != nil {
		t.Fatalf("expected nil client for empty addr")
	}
}

func TestBuildArchiveStoreDisabled(t *testing.T) {
	if store := BuildArchiveStore(aws.Config{}, &appconfig.Config{}, logging.New("error")); store != nil {
		t.Fatalf("expected nil archive store without a bucket")
	}
}

func TestBuildGatewayRequiresCredentials(t *testing.T) {
	cfg := &appconfig.Config{}
	if _, err := BuildGateway(cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error without telnyx credentials")
	}
}
