package jassist

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"jassist-go/internal/database/sqlc"
)

// Download run messages.
const (
	MsgDownloadSkipped    = "Download skipped - not scheduled to run now"
	MsgDownloadSucceeded  = "Download completed successfully"
	MsgDownloadWithErrors = "Download completed with errors"
)

// Status values reported for downloads.
const (
	DownloadActive    = "downloading"
	DownloadCompleted = "completed"
	DownloadFailed    = "failed"
	DownloadCancelled = "cancelled"
	DownloadNotFound  = "not_found"
)

// Scheduler decides whether a scheduled run is due.
type Scheduler interface {
	ShouldRunNow(expr string, lastRun *time.Time) bool
}

// DownloadSettings is one user's immutable drive configuration for the lifetime of a DownloadService.
type DownloadSettings struct {
	UserID              string
	Active              bool
	TargetFolders       []string
	Schedule            string
	Extensions          []string
	Exclude             []string
	DeleteAfterDownload bool
	AutoTranscribe      bool
	DryRun              bool

	// Fields copied onto TranscriptionJobs created after a download.
	Language     string
	Model        string
	ResultFormat string
}

// Validate reports a missing user or an inactive account.
func (s DownloadSettings) Validate() error {
	if s.UserID == "" {
		return Configf("drive account has no user id")
	}
	if !s.Active {
		return Configf("Drive downloads are disabled for user %s", s.UserID)
	}
	return nil
}

// DownloadStats are the per-run counters.
type DownloadStats struct {
	FoldersProcessed int `json:"folders_processed"`
	FilesFound       int `json:"files_found"`
	FilesDownloaded  int `json:"files_downloaded"`
	FilesDeleted     int `json:"files_deleted"`
	FilesTranscribed int `json:"files_transcribed"`
	Errors           int `json:"errors"`
}

// DownloadRunResult is the outcome of RunDownloads.
type DownloadRunResult struct {
	Success       bool          `json:"success"`
	Message       string        `json:"message"`
	DryRun        bool          `json:"dry_run,omitempty"`
	WouldDownload []string      `json:"would_download,omitempty"`
	Stats         DownloadStats `json:"stats"`
}

// FileDownloadResult is the outcome of downloading one file.
type FileDownloadResult struct {
	Success    bool   `json:"success"`
	FileID     string `json:"file_id,omitempty"`
	FileName   string `json:"file_name,omitempty"`
	LocalPath  string `json:"local_path,omitempty"`
	FileSize   int64  `json:"file_size,omitempty"`
	DownloadID string `json:"download_id,omitempty"`
	Deleted    bool   `json:"deleted_from_source,omitempty"`
	JobID      int64  `json:"transcription_job_id,omitempty"`
	JobStatus  string `json:"transcription_status,omitempty"`
	DryRun     bool   `json:"dry_run,omitempty"`
	Error      string `json:"error,omitempty"`
}

// DownloadStatus reports a download record.
type DownloadStatus struct {
	Status       string     `json:"status"`
	FileID       string     `json:"file_id,omitempty"`
	FileName     string     `json:"file_name,omitempty"`
	LocalPath    string     `json:"local_path,omitempty"`
	FileSize     int64      `json:"file_size,omitempty"`
	DownloadedAt *time.Time `json:"downloaded_at,omitempty"`
}

// ActiveDownload is an in-flight download tracked for cancellation.
type ActiveDownload struct {
	ID       string `json:"id"`
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
	Status   string `json:"status"`
}

// DownloadService runs the download pipeline for one user.
type DownloadService struct {
	settings DownloadSettings
	remote   RemoteFileClient
	storage  LocalStorage
	database Database
	schedule Scheduler
	jobs     *JobRunner // nil disables auto-transcription
	filter   *FileFilter
	clock    Clock
	idgen    IDGenerator
	logger   Logger

	mu     sync.Mutex
	active map[string]*ActiveDownload
}

// NewDownloadService validates settings and creates a DownloadService.
func NewDownloadService(settings DownloadSettings, remote RemoteFileClient, storage LocalStorage, database Database, schedule Scheduler, jobs *JobRunner, clock Clock, idgen IDGenerator, logger Logger) (*DownloadService, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &DownloadService{
		settings: settings,
		remote:   remote,
		storage:  storage,
		database: database,
		schedule: schedule,
		jobs:     jobs,
		filter:   NewFileFilter(settings.Extensions, settings.Exclude),
		clock:    clock,
		idgen:    idgen,
		logger:   logger,
		active:   make(map[string]*ActiveDownload),
	}, nil
}

// RunDownloads processes every target folder. Per-file failures are counted, not returned;
// an error means the run could not start or its state could not be saved. Each run keeps its
// own stats, so concurrent runs for the same user do not mix counters.
func (s *DownloadService) RunDownloads(ctx context.Context, force bool) (*DownloadRunResult, error) {
	user := s.settings.UserID
	s.logger.Info("starting drive download", "user", user, "dry_run", s.settings.DryRun, "force", force)

	if len(s.settings.TargetFolders) == 0 {
		return nil, Configf("No target folders specified for user %s", user)
	}

	stats := &DownloadStats{}

	if !force {
		lastRun, err := s.database.GetLastRun(user)
		if err != nil {
			return nil, fmt.Errorf("reading last run: %w", err)
		}
		if !s.schedule.ShouldRunNow(s.settings.Schedule, lastRun) {
			s.logger.Info("skipping download, not scheduled to run now", "user", user, "schedule", s.settings.Schedule)
			return &DownloadRunResult{Success: true, Message: MsgDownloadSkipped, Stats: *stats}, nil
		}
	}

	var would []string
	for _, folder := range s.settings.TargetFolders {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		names, err := s.processFolder(ctx, folder, stats)
		if err != nil {
			s.logger.Error("processing folder failed", "folder", folder, "error", err)
			stats.Errors++
			continue
		}
		would = append(would, names...)
	}

	if !s.settings.DryRun {
		if err := s.database.SetLastRun(user, s.clock.Now()); err != nil {
			return nil, fmt.Errorf("saving last run: %w", err)
		}
	}

	result := &DownloadRunResult{
		Success: stats.Errors == 0,
		Message: MsgDownloadSucceeded,
		DryRun:  s.settings.DryRun,
		Stats:   *stats,
	}
	if !result.Success {
		result.Message = MsgDownloadWithErrors
	}
	if s.settings.DryRun {
		result.WouldDownload = would
	}
	s.logger.Info("completed drive download", "user", user,
		"folders", stats.FoldersProcessed, "found", stats.FilesFound, "downloaded", stats.FilesDownloaded,
		"deleted", stats.FilesDeleted, "transcribed", stats.FilesTranscribed, "errors", stats.Errors)
	return result, nil
}

// processFolder downloads the filtered files of one folder. In dry run it returns the names
// that would be downloaded instead.
func (s *DownloadService) processFolder(ctx context.Context, name string, stats *DownloadStats) ([]string, error) {
	s.logger.Info("processing folder", "folder", name)

	folderID := RootFolder
	if !strings.EqualFold(name, RootFolder) {
		id, err := s.remote.FindFolder(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("finding folder: %w", err)
		}
		if id == "" {
			return nil, fmt.Errorf("folder not found: %s", name)
		}
		folderID = id
	}

	files, err := s.remote.ListFiles(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	selected := s.filter.Filter(files)
	stats.FilesFound += len(files)
	s.logger.Info("folder listed", "folder", name, "files", len(files), "selected", len(selected))

	var would []string
	for _, f := range selected {
		if s.settings.DryRun {
			s.logger.Info("dry run, would download", "file", f.Name, "id", f.ID)
			would = append(would, f.Name)
			continue
		}
		if res := s.downloadFile(ctx, f, stats); !res.Success {
			stats.Errors++
		}
	}

	stats.FoldersProcessed++
	return would, nil
}

// DownloadSpecificFile downloads one file by id, bypassing the extension filter.
func (s *DownloadService) DownloadSpecificFile(ctx context.Context, fileID string) *FileDownloadResult {
	s.logger.Info("downloading specific file", "file_id", fileID, "user", s.settings.UserID)

	file, err := s.remote.GetMetadata(ctx, fileID)
	if err != nil {
		s.logger.Error("fetching metadata failed", "file_id", fileID, "error", err)
		return &FileDownloadResult{FileID: fileID, Error: err.Error()}
	}
	if file == nil {
		return &FileDownloadResult{FileID: fileID, Error: "File not found: " + fileID}
	}
	if s.settings.DryRun {
		s.logger.Info("dry run, would download", "file", file.Name, "id", file.ID)
		return &FileDownloadResult{Success: true, FileID: file.ID, FileName: file.Name, DryRun: true}
	}
	return s.downloadFile(ctx, file, &DownloadStats{})
}

// downloadFile runs space check, download, persist, record, optional delete and optional
// transcription, counting into stats. The source is deleted only once its record is saved.
func (s *DownloadService) downloadFile(ctx context.Context, file *RemoteFile, stats *DownloadStats) *FileDownloadResult {
	res := &FileDownloadResult{FileID: file.ID, FileName: file.Name}
	tracker := s.track(file)
	fail := func(err error) *FileDownloadResult {
		s.logger.Error("download failed", "file", file.Name, "id", file.ID, "error", err)
		s.finish(tracker.ID, DownloadFailed)
		res.Error = err.Error()
		return res
	}

	path, err := s.storage.ResolveDownloadPath(file.Name)
	if err != nil {
		return fail(fmt.Errorf("resolving download path: %w", err))
	}
	discard := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing reserved path failed", "path", path, "error", err)
		}
	}

	if !s.storage.HasSufficientSpace(path, file.Size) {
		discard()
		return fail(fmt.Errorf("insufficient disk space for %s (%d bytes)", file.Name, file.Size))
	}

	s.logger.Info("downloading file", "file", file.Name, "id", file.ID)
	data, err := s.remote.Download(ctx, file.ID)
	if err != nil {
		discard()
		return fail(fmt.Errorf("downloading: %w", err))
	}
	if s.cancelled(tracker.ID) {
		discard()
		return fail(fmt.Errorf("download %s cancelled", tracker.ID))
	}

	if err := s.storage.Persist(path, data); err != nil {
		discard()
		return fail(fmt.Errorf("persisting: %w", err))
	}
	res.LocalPath = path
	res.FileSize = int64(len(data))

	rec := &sqlc.DownloadRecord{
		ID:           s.idgen.New(),
		UserID:       s.settings.UserID,
		Filename:     file.Name,
		SourceID:     file.ID,
		SourceFolder: file.SourceFolder(),
		LocalPath:    path,
		FileSize:     res.FileSize,
		DownloadedAt: s.clock.Now(),
	}
	if err := s.database.CreateDownloadRecord(rec); err != nil {
		// The source is untouched, so the next run downloads the file again.
		discard()
		res.LocalPath = ""
		return fail(fmt.Errorf("recording download of %s: %w", path, err))
	}
	res.DownloadID = rec.ID
	res.Success = true
	stats.FilesDownloaded++
	s.finish(tracker.ID, DownloadCompleted)
	s.logger.Info("downloaded file", "file", file.Name, "path", path, "bytes", res.FileSize)

	if s.settings.DeleteAfterDownload {
		s.deleteSource(ctx, file, rec, res, stats)
	}

	if s.settings.AutoTranscribe && s.jobs != nil && IsTranscribable(file.Name) {
		s.transcribe(ctx, file, rec, res, stats)
	}
	return res
}

// deleteSource removes a recorded download from the remote and flags its record.
func (s *DownloadService) deleteSource(ctx context.Context, file *RemoteFile, rec *sqlc.DownloadRecord, res *FileDownloadResult, stats *DownloadStats) {
	deleted, err := s.remote.Delete(ctx, file.ID)
	if err != nil {
		s.logger.Error("deleting from source failed", "file", file.Name, "id", file.ID, "error", err)
		return
	}
	if !deleted {
		return
	}
	res.Deleted = true
	rec.DeletedFromSource = true
	stats.FilesDeleted++
	s.logger.Info("deleted file from source after download", "file", file.Name, "id", file.ID)

	if err := s.database.MarkDownloadRecordDeleted(rec.ID); err != nil {
		s.logger.Error("flagging download record deleted failed", "download_id", rec.ID, "path", rec.LocalPath, "error", err)
	}
}

// transcribe runs a TranscriptionJob for a fresh download. Failures are recorded on the job.
func (s *DownloadService) transcribe(ctx context.Context, file *RemoteFile, rec *sqlc.DownloadRecord, res *FileDownloadResult, stats *DownloadStats) {
	job, err := s.jobs.Transcribe(ctx, NewJob{
		UserID:           s.settings.UserID,
		FileID:           file.ID,
		FileName:         file.Name,
		DownloadRecordID: rec.ID,
		Language:         s.settings.Language,
		Model:            s.settings.Model,
		ResultFormat:     s.settings.ResultFormat,
	}, rec.LocalPath)
	if err != nil {
		s.logger.Error("transcribing downloaded file failed", "file", file.Name, "error", err)
		return
	}
	res.JobID = job.ID
	res.JobStatus = job.Status
	if job.Status == JobCompleted {
		stats.FilesTranscribed++
	}
}

// GetDownloadStatus reports the download record with id recordID.
func (s *DownloadService) GetDownloadStatus(recordID string) (*DownloadStatus, error) {
	return GetDownloadStatus(s.database, recordID)
}

// GetDownloadStatus reports a download record; it needs no remote or user settings.
func GetDownloadStatus(database Database, recordID string) (*DownloadStatus, error) {
	rec, err := database.FindDownloadRecord(recordID)
	if err != nil {
		return nil, fmt.Errorf("finding download record: %w", err)
	}
	if rec == nil {
		return &DownloadStatus{Status: DownloadNotFound}, nil
	}
	at := rec.DownloadedAt
	return &DownloadStatus{
		Status:       DownloadCompleted,
		FileID:       rec.SourceID,
		FileName:     rec.Filename,
		LocalPath:    rec.LocalPath,
		FileSize:     rec.FileSize,
		DownloadedAt: &at,
	}, nil
}

func (s *DownloadService) track(file *RemoteFile) *ActiveDownload {
	d := &ActiveDownload{ID: s.idgen.New(), FileID: file.ID, FileName: file.Name, Status: DownloadActive}
	s.mu.Lock()
	s.active[d.ID] = d
	s.mu.Unlock()
	return d
}

func (s *DownloadService) finish(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.active[id]; ok && d.Status != DownloadCancelled {
		d.Status = status
	}
}

func (s *DownloadService) cancelled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.active[id]
	return ok && d.Status == DownloadCancelled
}

// ActiveDownloads lists tracked downloads.
func (s *DownloadService) ActiveDownloads() []ActiveDownload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ActiveDownload, 0, len(s.active))
	for _, d := range s.active {
		out = append(out, *d)
	}
	return out
}

// CancelDownload marks a tracked download cancelled. The transfer itself is not interrupted;
// its data is discarded when it returns.
func (s *DownloadService) CancelDownload(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.active[id]
	if !ok {
		return fmt.Errorf("download %s not found", id)
	}
	if d.Status == DownloadCompleted || d.Status == DownloadFailed {
		return fmt.Errorf("cannot cancel download in %s state", d.Status)
	}
	d.Status = DownloadCancelled
	s.logger.Info("cancelled download", "id", id)
	return nil
}
