package metrics

import (
	"bufio"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"jassist-go/internal/jassist"
	"jassist-go/internal/testutil"
)

func readEvents(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		events = append(events, ev)
	}
	return events
}

func TestCollector_Events(t *testing.T) {
	dir := t.TempDir()
	clock := testutil.FixedClock()
	c := NewCollector(dir, clock, nil)

	cost := jassist.CostEstimate{DurationSeconds: 120, EstimatedCostUSD: 0.012}
	key, err := c.JobStarted("alice", jassist.JobStart{
		FileName: "memo.m4a", FileSize: 2048, Duration: 120, Model: "gpt-4o-transcribe", Cost: &cost,
	})
	if err != nil {
		t.Fatalf("JobStarted() error = %v", err)
	}
	if key != "job_20240115103000_memo.m4a" {
		t.Errorf("key = %q", key)
	}

	key2, err := c.JobStarted("alice", jassist.JobStart{FileName: "memo.m4a"})
	if err != nil {
		t.Fatalf("JobStarted() error = %v", err)
	}
	if key2 == key {
		t.Errorf("second key = %q, want distinct", key2)
	}

	clock.Advance(90 * time.Second)
	if err := c.JobCompleted("alice", key, true, 512, ""); err != nil {
		t.Fatalf("JobCompleted() error = %v", err)
	}
	if err := c.JobCompleted("alice", "unknown", false, 0, "x"); err != nil {
		t.Errorf("JobCompleted(unknown) error = %v, want nil", err)
	}

	events := readEvents(t, filepath.Join(dir, "alice", "transcription_metrics_202401.jsonl"))
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	start, done := events[0], events[2]
	if start.EventType != EventJobStart || start.Data.Status != StatusStarted || start.Data.Success != nil {
		t.Errorf("start event = %+v", start)
	}
	if done.EventType != EventJobCompletion || done.Data.Status != StatusCompleted {
		t.Errorf("completion event = %+v", done)
	}
	if *done.Data.ProcessingTime != 90 || *done.Data.ResultSize != 512 || !*done.Data.Success {
		t.Errorf("completion data = %+v", done.Data)
	}
	if done.Data.EstimatedCost.EstimatedCostUSD != 0.012 {
		t.Errorf("cost = %+v", done.Data.EstimatedCost)
	}
}

func TestCollector_Report(t *testing.T) {
	dir := t.TempDir()
	clock := testutil.FixedClock()
	c := NewCollector(dir, clock, nil)

	run := func(name, model string, duration float64, took time.Duration, success bool) {
		cost := jassist.CostEstimate{EstimatedCostUSD: duration / 60 * 0.006}
		key, err := c.JobStarted("alice", jassist.JobStart{FileName: name, Duration: duration, Model: model, Cost: &cost})
		if err != nil {
			t.Fatal(err)
		}
		clock.Advance(took)
		msg := ""
		if !success {
			msg = "boom"
		}
		if err := c.JobCompleted("alice", key, success, 10, msg); err != nil {
			t.Fatal(err)
		}
	}

	run("a.mp3", "gpt-4o-transcribe", 60, 10*time.Second, true)
	run("b.mp3", "whisper-1", 120, 30*time.Second, true)
	clock.Advance(24 * time.Hour)
	run("c.mp3", "whisper-1", 0, 5*time.Second, false)

	// Garbage lines are skipped.
	f, _ := os.OpenFile(filepath.Join(dir, "alice", "transcription_metrics_202401.jsonl"), os.O_APPEND|os.O_WRONLY, 0644)
	f.WriteString("not json\n")
	f.Close()

	report, err := c.Report("alice", DateRange{})
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.TotalJobs != 3 || report.SuccessfulJobs != 2 || report.FailedJobs != 1 {
		t.Errorf("counts = %d/%d/%d", report.TotalJobs, report.SuccessfulJobs, report.FailedJobs)
	}
	if report.TotalDurationSeconds != 180 || report.TotalAudioFiles != 2 {
		t.Errorf("duration = %v over %d files", report.TotalDurationSeconds, report.TotalAudioFiles)
	}
	if report.TotalProcessingTime != 45 || report.AverageProcessingTime != 20 {
		t.Errorf("processing = %v, average %v", report.TotalProcessingTime, report.AverageProcessingTime)
	}
	if math.Abs(report.EstimatedTotalCost-0.018) > 1e-9 {
		t.Errorf("cost = %v", report.EstimatedTotalCost)
	}
	if report.JobsByModel["whisper-1"] != 2 || report.JobsByDay["2024-01-15"] != 2 || report.JobsByDay["2024-01-16"] != 1 {
		t.Errorf("by model = %v, by day = %v", report.JobsByModel, report.JobsByDay)
	}
	wantStart := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if report.DateRange.Start == nil || !report.DateRange.Start.Equal(wantStart) {
		t.Errorf("range start = %v, want %v", report.DateRange.Start, wantStart)
	}

	t.Run("range filter", func(t *testing.T) {
		start := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
		report, err := c.Report("alice", DateRange{Start: &start})
		if err != nil {
			t.Fatalf("Report() error = %v", err)
		}
		if report.TotalJobs != 1 || report.FailedJobs != 1 || report.AverageProcessingTime != 0 {
			t.Errorf("report = %+v", report)
		}
	})

	t.Run("unknown user is empty", func(t *testing.T) {
		report, err := c.Report("bob", DateRange{})
		if err != nil || report.TotalJobs != 0 {
			t.Errorf("Report(bob) = %+v, %v", report, err)
		}
	})
}
