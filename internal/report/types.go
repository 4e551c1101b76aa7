package report

import "time"

// RunReport is the last-run.yaml document written after every sync run.
type RunReport struct {
	StartedAt    time.Time `yaml:"started_at"`
	FinishedAt   time.Time `yaml:"finished_at"`
	RunID        string    `yaml:"run_id"`
	Repositories []Entry   `yaml:"repositories"`
	Pruned       []string  `yaml:"pruned,omitempty"`
	PruneErrors  []string  `yaml:"prune_errors,omitempty"`
	Version      int       `yaml:"version"`
	Cancelled    bool      `yaml:"cancelled,omitempty"`
}

// Entry records how one repository fared in the run.
type Entry struct {
	Timestamp  time.Time `yaml:"timestamp"`
	Name       string    `yaml:"name"`
	Status     string    `yaml:"status"`
	Branch     string    `yaml:"branch,omitempty"`
	HeadCommit string    `yaml:"head_commit,omitempty"`
	BackupPath string    `yaml:"backup_path,omitempty"`
	Error      string    `yaml:"error,omitempty"`
	Attempts   int       `yaml:"attempts,omitempty"`
	Cloned     bool      `yaml:"cloned,omitempty"`
}

// Count returns the number of entries with the given status.
func (r *RunReport) Count(status string) int {
	n := 0
	for _, e := range r.Repositories {
		if e.Status == status {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
