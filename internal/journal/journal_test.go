package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"swaploop/internal/execution"
)

func TestJSONLRecorder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "swaps.jsonl")

	recorder, err := NewJSONLRecorder(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	entry := Entry{Cycle: "c1", Side: execution.Sell, TokenIn: "MEME", TokenOut: "SOL", Amount: 3, Signature: "sig"}
	recorder.Record(entry)
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	recorder.Record(entry) // dropped after close

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open recorded file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lines := 0
	for scanner.Scan() {
		lines++
		var decoded Entry
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("json decode: %v", err)
		}
		if decoded.Signature != entry.Signature || decoded.Side != entry.Side {
			t.Fatalf("unexpected decoded entry %+v", decoded)
		}
	}
	if lines != 1 {
		t.Fatalf("expected one line, got %d", lines)
	}
}

func TestLedgerConcurrentRecord(t *testing.T) {
	ledger := NewLedger(-1)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ledger.Record(Entry{Side: execution.Buy})
		}()
	}
	wg.Wait()

	snap := ledger.Snapshot()
	if len(snap) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(snap))
	}
	snap[0].Signature = "mutated"
	if ledger.Snapshot()[0].Signature == "mutated" {
		t.Fatalf("snapshot must be a copy")
	}
	if ledger.Total() != 4 {
		t.Fatalf("expected total 4, got %d", ledger.Total())
	}
}

func TestLedgerKeepsMostRecent(t *testing.T) {
	ledger := NewLedger(2)
	for _, sig := range []string{"a", "b", "c"} {
		ledger.Record(Entry{Signature: sig})
	}
	snap := ledger.Snapshot()
	if len(snap) != 2 || snap[0].Signature != "b" || snap[1].Signature != "c" {
		t.Fatalf("expected the two newest entries, got %+v", snap)
	}
	if ledger.Total() != 3 {
		t.Fatalf("expected evicted entries to stay counted, got %d", ledger.Total())
	}
}

func TestJSONLRecorderLogsWriteFailure(t *testing.T) {
	var logs bytes.Buffer
	recorder, err := NewJSONLRecorder(filepath.Join(t.TempDir(), "swaps.jsonl"), zerolog.New(&logs))
	if err != nil {
		t.Fatalf("NewJSONLRecorder error: %v", err)
	}
	_ = recorder.file.Close()

	recorder.Record(Entry{Cycle: "c1", Signature: "sig"})
	if !strings.Contains(logs.String(), "journal write failed") || !strings.Contains(logs.String(), `"sig":"sig"`) {
		t.Fatalf("expected write failure to be logged, got %q", logs.String())
	}
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewLedger(1), NewLedger(1)
	Multi{a, b, Discard}.Record(Entry{Signature: "x"})
	if len(a.Snapshot()) != 1 || len(b.Snapshot()) != 1 {
		t.Fatalf("expected both ledgers to receive the entry")
	}
}
