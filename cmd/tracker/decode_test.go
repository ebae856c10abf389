package main

import (
	"bufio"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"txTracker/internal/indexer"
	"txTracker/internal/model"
	"txTracker/internal/schema"
	"txTracker/internal/storage"
)

func rawTransferLine(t *testing.T, logIndex uint64, from, to common.Address) string {
	t.Helper()

	parsed, err := schema.TokenABI()
	if err != nil {
		t.Fatalf("token abi: %v", err)
	}
	event := parsed.Events["Transfer"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(42))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	line, err := json.Marshal(model.RawLog{
		BlockNumber: 5573400,
		BlockHash:   common.HexToHash("0x01").Hex(),
		TxHash:      common.HexToHash("0xabc").Hex(),
		LogIndex:    logIndex,
		Address:     schema.DefaultTokenAddress,
		Topics: []string{
			event.ID.Hex(),
			common.BytesToHash(from.Bytes()).Hex(),
			common.BytesToHash(to.Bytes()).Hex(),
		},
		Data: hexutil.Encode(data),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(line)
}

func readJSONLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer file.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var row map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			t.Fatalf("unmarshal %q: %v", scanner.Text(), err)
		}
		out = append(out, row)
	}
	return out
}

func TestDecodeStream(t *testing.T) {
	registry, err := buildRegistry(schema.DefaultTokenAddress, "", schema.DefaultEventsAddress, "")
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	locks, err := indexer.NewLockSet(indexer.DefaultLockAddresses)
	if err != nil {
		t.Fatalf("locks: %v", err)
	}

	lock := common.HexToAddress(indexer.DefaultLockAddresses[0])
	user := common.HexToAddress("0x1111111111111111111111111111111111111111")
	unknown := `{"block_number":5573400,"block_hash":"` + common.HexToHash("0x01").Hex() +
		`","tx_hash":"` + common.HexToHash("0xabc").Hex() + `","log_index":2,"address":"` +
		schema.DefaultEventsAddress + `","topics":["` + common.HexToHash("0xdeadbeef").Hex() + `"],"data":"0x"}`
	input := strings.Join([]string{
		rawTransferLine(t, 0, lock, user),
		"",
		"not json",
		`{"block_number":1,"tx_hash":"0x12","address":"nope"}`,
		unknown,
	}, "\n")

	dir := t.TempDir()
	out, err := storage.CreateJsonl(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("create out: %v", err)
	}
	errs, err := storage.CreateJsonl(filepath.Join(dir, "errors.jsonl"))
	if err != nil {
		t.Fatalf("create errors: %v", err)
	}

	stats, err := decodeStream(strings.NewReader(input), registry, locks, out, errs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close out: %v", err)
	}
	if err := errs.Close(); err != nil {
		t.Fatalf("close errors: %v", err)
	}

	want := decodeStats{total: 4, decoded: 1, unknown: 1, locked: 1, failed: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}

	events := readJSONLines(t, filepath.Join(dir, "events.jsonl"))
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0]["name"] != model.TransferEventName || events[0]["isLock"] != true {
		t.Fatalf("unexpected transfer event: %v", events[0])
	}
	if events[1]["name"] != model.UnknownEventName {
		t.Fatalf("unexpected unknown event: %v", events[1])
	}

	decodeErrs := readJSONLines(t, filepath.Join(dir, "errors.jsonl"))
	if len(decodeErrs) != 3 {
		t.Fatalf("expected 3 decode errors, got %d", len(decodeErrs))
	}
	stages := []string{model.StageParse, model.StageValidate, model.StageDecode}
	lines := []float64{3, 4, 5}
	for i, row := range decodeErrs {
		if row["stage"] != stages[i] || row["line"] != lines[i] {
			t.Fatalf("decode error %d = %v", i, row)
		}
	}
}

func TestCloseJsonlKeepsFirstError(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("/dev/full not available")
	}

	w, err := storage.CreateJsonl("/dev/full")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var runErr error
	closeJsonl(w, "/dev/full", &runErr)
	if runErr == nil || !strings.Contains(runErr.Error(), "/dev/full") {
		t.Fatalf("flush failure not reported: %v", runErr)
	}
}
