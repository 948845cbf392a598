package index

import "sync"

// ProgressCallback is called with progress updates.
type ProgressCallback func(Progress)

// Progress represents indexing progress.
type Progress struct {
	Stage       string  `json:"stage"` // chunking, complete
	Current     int     `json:"current"`
	Total       int     `json:"total"`
	Percent     float64 `json:"percent"`
	CurrentFile string  `json:"current_file,omitempty"`
	Message     string  `json:"message,omitempty"`
}

// ProgressTracker serializes progress updates from concurrent workers.
type ProgressTracker struct {
	callback ProgressCallback
	mu       sync.Mutex
	done     int
}

// NewProgressTracker creates a new progress tracker. A nil callback makes
// every update a no-op.
func NewProgressTracker(callback ProgressCallback) *ProgressTracker {
	return &ProgressTracker{
		callback: callback,
	}
}

// Update updates progress.
func (t *ProgressTracker) Update(p Progress) {
	if t == nil || t.callback == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.updateLocked(p)
}

func (t *ProgressTracker) updateLocked(p Progress) {
	if p.Total > 0 && p.Percent == 0 {
		p.Percent = float64(p.Current) / float64(p.Total) * 100
	}
	t.callback(p)
}

// FileDone counts one finished file and reports it.
func (t *ProgressTracker) FileDone(total int, file string) {
	if t == nil || t.callback == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.done++
	t.updateLocked(Progress{
		Stage:       "chunking",
		Current:     t.done,
		Total:       total,
		CurrentFile: file,
		Message:     "Chunking files",
	})
}

// Complete reports completion.
func (t *ProgressTracker) Complete(indexed, skipped, failed int) {
	t.Update(Progress{
		Stage:   "complete",
		Current: indexed + skipped + failed,
		Total:   indexed + skipped + failed,
		Percent: 100,
		Message: "Chunking complete",
	})
}
