package storage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ammdesk/internal/model"
)

func TestJournalAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "operations.jsonl")
	journal := NewJournal(path)

	ops := []model.LiquidityOperation{
		{ID: "0x01", Type: model.OpAddLiquidity, UserAddress: "0xuser", Status: model.StatusPending, CreatedAt: time.Now().UTC()},
		{ID: "0x02", Type: model.OpRemoveLiquidity, UserAddress: "0xuser", Status: model.StatusPending, CreatedAt: time.Now().UTC()},
	}
	for _, op := range ops {
		if err := journal.Append(op); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var got []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry struct {
			RecordedAt string                   `json:"recorded_at"`
			Operation  model.LiquidityOperation `json:"operation"`
		}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("unmarshal line: %v", err)
		}
		if entry.RecordedAt == "" {
			t.Fatalf("recorded_at missing")
		}
		got = append(got, entry.Operation.ID)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != 2 || got[0] != "0x01" || got[1] != "0x02" {
		t.Fatalf("journal lines = %v", got)
	}
}
