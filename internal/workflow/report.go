package workflow

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// StepResult records one pipeline step.
type StepResult struct {
	Name       string `yaml:"name" json:"name"`
	Dataset    string `yaml:"dataset,omitempty" json:"dataset,omitempty"`
	Count      int    `yaml:"count" json:"count"`
	DurationMs int64  `yaml:"duration_ms" json:"duration_ms"`
}

// RunReport summarizes a workflow run.
type RunReport struct {
	RunID         string         `yaml:"run_id" json:"run_id"`
	Workflow      string         `yaml:"workflow" json:"workflow"`
	Container     string         `yaml:"container" json:"container"`
	Output        string         `yaml:"output" json:"output"`
	Tolerance     string         `yaml:"tolerance" json:"tolerance"`
	StartedAt     time.Time      `yaml:"started_at" json:"started_at"`
	FinishedAt    time.Time      `yaml:"finished_at" json:"finished_at"`
	Steps         []StepResult   `yaml:"steps" json:"steps"`
	Events        int            `yaml:"events" json:"events"`
	ZeroLength    int            `yaml:"zero_length_events" json:"zero_length_events"`
	LocErrors     map[string]int `yaml:"loc_errors,omitempty" json:"loc_errors,omitempty"`
	Exports       []string       `yaml:"exports,omitempty" json:"exports,omitempty"`
	CleanedUp     bool           `yaml:"cleaned_up" json:"cleaned_up"`
	CleanupErrors []string       `yaml:"cleanup_errors,omitempty" json:"cleanup_errors,omitempty"`
}

// Step returns the named step result, or nil.
func (r *RunReport) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// YAML serializes the report.
func (r *RunReport) YAML() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, eris.Wrap(err, "workflow: marshal report")
	}
	return data, nil
}

// WriteFile writes the report as YAML to path.
func (r *RunReport) WriteFile(path string) error {
	data, err := r.YAML()
	if err != nil {
		return err
	}
	return eris.Wrapf(os.WriteFile(path, data, 0o644), "workflow: write report %s", path)
}
