package stats

import (
	"bytes"
	"context"
	"os"
	"os/exec"

	"github.com/rotisserie/eris"
)

// Job is one program submitted to the statistics engine.
type Job struct {
	Dir         string
	ProgramPath string
	LogPath     string
	ListingPath string
}

// Output is what the engine printed for a job.
type Output struct {
	Log     string
	Listing string
}

// Runner executes a Job on a statistics engine.
type Runner interface {
	Run(ctx context.Context, job Job) (*Output, error)
}

// CommandRunner runs the engine as a batch subprocess:
//
//	<Command> <Args...> -sysin <program> -log <log> -print <listing>
type CommandRunner struct {
	Command string
	Args    []string
}

// Run implements Runner. The log and listing are returned even when the
// engine exits non-zero so they can be relayed.
func (c *CommandRunner) Run(ctx context.Context, job Job) (*Output, error) {
	if c.Command == "" {
		return nil, eris.New("stats: no stats.command configured")
	}
	args := append([]string{}, c.Args...)
	args = append(args, "-sysin", job.ProgramPath, "-log", job.LogPath, "-print", job.ListingPath)

	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Dir = job.Dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	out := &Output{
		Log:     readOptional(job.LogPath),
		Listing: readOptional(job.ListingPath),
	}
	if runErr != nil {
		return out, eris.Wrapf(runErr, "stats: run %s: %s", c.Command, bytes.TrimSpace(stderr.Bytes()))
	}
	return out, nil
}

func readOptional(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
