// Package metrics keeps an append-only JSONL log of transcription jobs and reports on it.
package metrics

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"jassist-go/internal/jassist"
)

// Event types.
const (
	EventJobStart      = "job_start"
	EventJobCompletion = "job_completion"
)

// Job statuses recorded in events.
const (
	StatusStarted   = "started"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// JobData is the payload of every event. Fields that are unknown at start are nil.
type JobData struct {
	JobID          string                `json:"job_id"`
	UserID         string                `json:"user_id"`
	FileName       string                `json:"file_name"`
	FileSize       int64                 `json:"file_size"`
	Duration       *float64              `json:"duration"`
	Model          string                `json:"model"`
	StartTime      time.Time             `json:"start_time"`
	Status         string                `json:"status"`
	CompletionTime *time.Time            `json:"completion_time"`
	ProcessingTime *float64              `json:"processing_time"`
	Success        *bool                 `json:"success"`
	ResultSize     *int                  `json:"result_size"`
	Error          string                `json:"error,omitempty"`
	EstimatedCost  *jassist.CostEstimate `json:"estimated_cost"`
}

// Event is one line of a metrics file.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	UserID    string    `json:"user_id"`
	Data      JobData   `json:"data"`
}

// Collector writes events to <dir>/<user>/transcription_metrics_YYYYMM.jsonl.
// It is safe for concurrent use.
type Collector struct {
	dir    string
	clock  jassist.Clock
	logger jassist.Logger

	mu     sync.Mutex
	active map[string]*JobData
}

// NewCollector creates a Collector rooted at dir.
func NewCollector(dir string, clock jassist.Clock, logger jassist.Logger) *Collector {
	if logger == nil {
		logger = jassist.NewNopLogger()
	}
	return &Collector{
		dir:    dir,
		clock:  clock,
		logger: logger,
		active: make(map[string]*JobData),
	}
}

func (c *Collector) userDir(userID string) string {
	return filepath.Join(c.dir, userID)
}

// JobStarted records a job_start event. The returned key closes the job in JobCompleted.
func (c *Collector) JobStarted(userID string, start jassist.JobStart) (string, error) {
	now := c.clock.Now()

	c.mu.Lock()
	key := fmt.Sprintf("job_%s_%s", now.Format("20060102150405"), start.FileName)
	for n := 1; c.active[key] != nil; n++ {
		key = fmt.Sprintf("job_%s_%s_%d", now.Format("20060102150405"), start.FileName, n)
	}
	job := &JobData{
		JobID:         key,
		UserID:        userID,
		FileName:      start.FileName,
		FileSize:      start.FileSize,
		Model:         start.Model,
		StartTime:     now,
		Status:        StatusStarted,
		EstimatedCost: start.Cost,
	}
	if start.Duration > 0 {
		d := start.Duration
		job.Duration = &d
	}
	c.active[key] = job
	snapshot := *job
	c.mu.Unlock()

	if err := c.append(userID, EventJobStart, snapshot); err != nil {
		return key, err
	}
	return key, nil
}

// JobCompleted records the job_completion event for key and forgets the job.
func (c *Collector) JobCompleted(userID, key string, success bool, resultSize int, errMsg string) error {
	now := c.clock.Now()

	c.mu.Lock()
	job, ok := c.active[key]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("no active metrics job", "key", key)
		return nil
	}
	delete(c.active, key)
	c.mu.Unlock()

	job.CompletionTime = &now
	job.Status = StatusCompleted
	if !success {
		job.Status = StatusFailed
	}
	job.Success = &success
	elapsed := now.Sub(job.StartTime).Seconds()
	job.ProcessingTime = &elapsed
	job.ResultSize = &resultSize
	job.Error = errMsg

	return c.append(userID, EventJobCompletion, *job)
}

func (c *Collector) append(userID, eventType string, data JobData) error {
	now := c.clock.Now()
	dir := c.userDir(userID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}

	line, err := json.Marshal(Event{Timestamp: now, EventType: eventType, UserID: userID, Data: data})
	if err != nil {
		return fmt.Errorf("encoding metrics event: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("transcription_metrics_%s.jsonl", now.Format("200601")))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening metrics file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("writing metrics event: %w", err)
	}
	return nil
}

// DateRange bounds a report. Nil ends are open.
type DateRange struct {
	Start *time.Time `json:"start_date"`
	End   *time.Time `json:"end_date"`
}

// UsageReport aggregates the completion events in a DateRange.
// AverageProcessingTime covers successful jobs only.
type UsageReport struct {
	TotalJobs             int            `json:"total_jobs"`
	SuccessfulJobs        int            `json:"successful_jobs"`
	FailedJobs            int            `json:"failed_jobs"`
	TotalDurationSeconds  float64        `json:"total_duration_seconds"`
	TotalAudioFiles       int            `json:"total_audio_files"`
	TotalProcessingTime   float64        `json:"total_processing_time"`
	AverageProcessingTime float64        `json:"average_processing_time"`
	EstimatedTotalCost    float64        `json:"estimated_total_cost"`
	JobsByModel           map[string]int `json:"jobs_by_model"`
	JobsByDay             map[string]int `json:"jobs_by_day"`
	DateRange             DateRange      `json:"date_range"`

	successfulProcessing float64
}

// Report reads every metrics file for userID. With both ends of r nil the range starts
// at the first day of the current month.
func (c *Collector) Report(userID string, r DateRange) (*UsageReport, error) {
	if r.Start == nil && r.End == nil {
		now := c.clock.Now()
		first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		r.Start = &first
	}

	report := &UsageReport{
		JobsByModel: make(map[string]int),
		JobsByDay:   make(map[string]int),
		DateRange:   r,
	}

	files, err := filepath.Glob(filepath.Join(c.userDir(userID), "transcription_metrics_*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("listing metrics files: %w", err)
	}
	sort.Strings(files)

	for _, path := range files {
		if err := c.scan(path, r, report); err != nil {
			return nil, err
		}
	}

	if report.SuccessfulJobs > 0 {
		report.AverageProcessingTime = report.successfulProcessing / float64(report.SuccessfulJobs)
	}
	return report, nil
}

func (c *Collector) scan(path string, r DateRange, report *UsageReport) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("opening metrics file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			c.logger.Warn("skipping malformed metrics line", "file", path, "error", err)
			continue
		}
		if ev.EventType != EventJobCompletion || ev.Data.CompletionTime == nil {
			continue
		}
		at := *ev.Data.CompletionTime
		if r.Start != nil && at.Before(*r.Start) {
			continue
		}
		if r.End != nil && at.After(*r.End) {
			continue
		}
		report.add(ev.Data, at)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading metrics file: %w", err)
	}
	return nil
}

func (u *UsageReport) add(job JobData, at time.Time) {
	u.TotalJobs++
	succeeded := job.Success != nil && *job.Success
	if succeeded {
		u.SuccessfulJobs++
	} else {
		u.FailedJobs++
	}
	if job.Duration != nil && *job.Duration > 0 {
		u.TotalDurationSeconds += *job.Duration
		u.TotalAudioFiles++
	}
	if job.ProcessingTime != nil {
		u.TotalProcessingTime += *job.ProcessingTime
		if succeeded {
			u.successfulProcessing += *job.ProcessingTime
		}
	}
	if job.EstimatedCost != nil {
		u.EstimatedTotalCost += job.EstimatedCost.EstimatedCostUSD
	}
	model := job.Model
	if model == "" {
		model = "unknown"
	}
	u.JobsByModel[model]++
	u.JobsByDay[at.Format(time.DateOnly)]++
}

// Compile-time check that Collector implements jassist.MetricsRecorder interface
var _ jassist.MetricsRecorder = (*Collector)(nil)
