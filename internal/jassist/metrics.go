package jassist

// JobStart describes a transcription as it begins.
type JobStart struct {
	FileName string
	FileSize int64
	Duration float64
	Model    string
	Cost     *CostEstimate
}

// MetricsRecorder appends transcription usage events.
type MetricsRecorder interface {
	// JobStarted logs a job_start event and returns the key to close it with.
	JobStarted(userID string, start JobStart) (string, error)

	// JobCompleted logs the job_completion event for a key returned by JobStarted.
	JobCompleted(userID, key string, success bool, resultSize int, errMsg string) error
}
