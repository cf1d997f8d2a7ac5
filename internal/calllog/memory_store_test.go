package calllog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStoreDuplicateCall(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &CallLog{ContactID: uuid.New(), ProviderCallID: "cc_1", InitiationStatus: "initiated"}
	if err := store.CreateDispatched(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == uuid.Nil {
		t.Error("expected generated id")
	}

	err := store.CreateDispatched(ctx, &CallLog{ContactID: uuid.New(), ProviderCallID: "cc_1"})
	if !errors.Is(err, ErrDuplicateCall) {
		t.Fatalf("expected ErrDuplicateCall, got %v", err)
	}
}

func TestMemoryStoreAttachReportOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.CreateDispatched(ctx, &CallLog{ContactID: uuid.New(), ProviderCallID: "cc_2"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	at := time.Now().UTC()
	attached, err := store.AttachReport(ctx, "cc_2", []byte(`{"outcome":"no_answer"}`), at)
	if err != nil || !attached {
		t.Fatalf("first attach: attached=%v err=%v", attached, err)
	}

	attached, err = store.AttachReport(ctx, "cc_2", []byte(`{"outcome":"scheduled"}`), at.Add(time.Second))
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if attached {
		t.Fatal("second attach should report false")
	}

	stored, err := store.GetByProviderCallID(ctx, "cc_2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(stored.Report) != `{"outcome":"no_answer"}` {
		t.Errorf("report overwritten: %s", stored.Report)
	}
}

func TestMemoryStoreUnknownCall(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetByProviderCallID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	attached, err := store.AttachReport(ctx, "missing", []byte(`{}`), time.Now())
	if err != nil {
		t.Fatalf("attach unknown: %v", err)
	}
	if attached {
		t.Fatal("attach to unknown call should report false")
	}
}
