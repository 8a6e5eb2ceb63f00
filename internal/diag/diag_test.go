package diag

import (
	"bytes"
	"strings"
	"testing"
)

func TestFaultVerdictLogsMatchAndMismatch(t *testing.T) {
	var buf bytes.Buffer
	orig := Logger.Writer()
	Logger.SetOutput(&buf)
	defer Logger.SetOutput(orig)

	FaultVerdict(true, 0x1000, 7)
	if !strings.Contains(buf.String(), "matched thread 7") {
		t.Errorf("expected matched-thread log line, got %q", buf.String())
	}

	buf.Reset()
	FaultVerdict(false, 0x2000, 0)
	if !strings.Contains(buf.String(), "matched no registered LSA") {
		t.Errorf("expected no-match log line, got %q", buf.String())
	}
}

func TestCoWSplitLogs(t *testing.T) {
	var buf bytes.Buffer
	orig := Logger.Writer()
	Logger.SetOutput(&buf)
	defer Logger.SetOutput(orig)

	CoWSplit(3)
	if !strings.Contains(buf.String(), "cow split on page index 3") {
		t.Errorf("expected cow split log line, got %q", buf.String())
	}
}

func TestSnapshotProducesOneSamplePerStat(t *testing.T) {
	stats := []DescriptorStat{
		{TID: 1, Size: 4096},
		{TID: 2, Size: 8192},
	}
	p := Snapshot(stats)
	if len(p.Sample) != len(stats) {
		t.Fatalf("expected %d samples, got %d", len(stats), len(p.Sample))
	}
	for i, s := range p.Sample {
		if s.Value[0] != stats[i].Size {
			t.Errorf("sample %d: expected value %d, got %d", i, stats[i].Size, s.Value[0])
		}
	}
}

func TestWriteSnapshotProducesOutput(t *testing.T) {
	var buf bytes.Buffer
	stats := []DescriptorStat{{TID: 1, Size: 4096}}
	if err := WriteSnapshot(&buf, stats); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected non-empty profile output")
	}
}
