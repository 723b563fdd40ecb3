package outcome

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	clierr "github.com/gustavo/tradeguard/internal/errors"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "outcomes.db"), filepath.Join(dir, "outcomes.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSaveGetList(t *testing.T) {
	store := openTestStore(t)

	record := Record{
		ExecutionID: "exec-1",
		Status:      RecordCompleted,
		TxHash:      "0xhash",
		SessionID:   "sess-1",
		AmountUSD:   decimal.NewFromInt(100),
	}
	if err := store.Save(record); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get("exec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TxHash != "0xhash" || got.Status != RecordCompleted {
		t.Fatalf("unexpected record: %+v", got)
	}

	// Upsert: a failure record for the same execution replaces the row.
	if err := store.Save(Record{
		ExecutionID:  "exec-1",
		Status:       RecordFailed,
		ErrorMessage: "user dismissed",
		ErrorCode:    clierr.CodeUserDismissed,
		Recoverable:  true,
	}); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}

	failed, err := store.List(RecordFailed, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(failed) != 1 {
		t.Fatalf("expected one failed record, got %d", len(failed))
	}
	if failed[0].ErrorCode != clierr.CodeUserDismissed || !failed[0].Recoverable {
		t.Fatalf("failure metadata not persisted: %+v", failed[0])
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get("missing"); err == nil {
		t.Fatal("expected missing outcome error")
	}
}

func TestStoreSaveRequiresExecutionID(t *testing.T) {
	store := openTestStore(t)
	if err := store.Save(Record{Status: RecordCompleted}); err == nil {
		t.Fatal("expected missing execution id error")
	}
}
