package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"manetbench/internal/model"
)

func TestAppendCSV_WritesHeaderOnce(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	path := filepath.Join(tmp, "history", "runs.csv")

	r1 := model.Report{CompletedAt: time.Unix(1, 0).UTC(), RunID: "a", Protocol: "dsdv", Nodes: 30}
	r2 := model.Report{CompletedAt: time.Unix(2, 0).UTC(), RunID: "b", Protocol: "aodv", Nodes: 30}

	if err := AppendCSV(path, []model.Report{r1}); err != nil {
		t.Fatalf("AppendCSV #1: %v", err)
	}
	if err := AppendCSV(path, []model.Report{r2}); err != nil {
		t.Fatalf("AppendCSV #2: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines=%d\n%s", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "completed_at,") {
		t.Fatalf("missing header: %q", lines[0])
	}
}

func TestReadCSV_RoundTrip(t *testing.T) {
	t.Parallel()

	in := model.Report{
		CompletedAt:     time.Unix(100, 0).UTC(),
		RunID:           "run-1",
		Protocol:        "aodv",
		Nodes:           30,
		Seed:            7,
		RoutingPackets:  1200,
		TxPackets:       4858,
		RxPackets:       4800,
		LostPackets:     58,
		PDR:             98.806,
		RoutingOverhead: 19.8,
		AvgDelay:        0.004512,
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, []model.Report{in}); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out, err := readCSV(&buf)
	if err != nil {
		t.Fatalf("readCSV: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("items=%d", len(out))
	}
	if out[0] != in {
		t.Fatalf("got=%+v\nwant=%+v", out[0], in)
	}
}

func TestReadCSV_ShortRecord(t *testing.T) {
	t.Parallel()

	if _, err := readCSV(strings.NewReader("2020-01-01T00:00:00Z,x\n")); err == nil {
		t.Fatalf("expected error")
	}
}
