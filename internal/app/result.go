package app

// Result is the envelope every exposed operation reports through, on the CLI and over HTTP.
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Stats   any    `json:"stats,omitempty"`
}

// OK wraps data in a successful Result.
func OK(data any) Result {
	return Result{Success: true, Data: data}
}

// Failed wraps err in an unsuccessful Result.
func Failed(err error) Result {
	return Result{Error: err.Error()}
}

// WithStats returns r carrying stats.
func (r Result) WithStats(stats any) Result {
	r.Stats = stats
	return r
}
