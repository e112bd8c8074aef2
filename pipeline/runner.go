package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CommandResult struct {
	ID       string        `json:"id"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

type RunResult struct {
	RunID    string          `json:"run_id"`
	Pipeline string          `json:"pipeline"`
	Commands []CommandResult `json:"commands"`
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Runner executes pipelines. It is the only place where command failures are handled.
type Runner struct {
	env Env
}

func NewRunner(env Env) *Runner {
	return &Runner{env: env}
}

// Run executes the commands of p in order and stops at the first failure.
// Commands after the failing one are reported as skipped.
func (r *Runner) Run(ctx context.Context, p *Pipeline) (RunResult, error) {
	runID := uuid.NewString()
	log := Logger(ctx).With("run_id", runID, "pipeline", p.ID)

	res := RunResult{RunID: runID, Pipeline: p.ID}
	log.InfoContext(ctx, "Pipeline run started", "commands", len(p.Commands))
	start := time.Now()

	var runErr error
	for _, cmd := range p.Commands {
		if runErr != nil {
			res.Commands = append(res.Commands, CommandResult{ID: cmd.ID(), Status: StatusSkipped})
			continue
		}

		cmdLog := log.With("command", cmd.ID())
		cmdStart := time.Now()
		env := r.env
		err := cmd.Run(WithLogger(ctx, cmdLog), &env)
		elapsed := time.Since(cmdStart)
		commandDurationSeconds.WithLabelValues(p.ID, cmd.ID()).Observe(elapsed.Seconds())

		cr := CommandResult{ID: cmd.ID(), Status: StatusSucceeded, Duration: elapsed}
		if err != nil {
			cr.Status = StatusFailed
			cr.Error = err.Error()
			runErr = fmt.Errorf("command %q failed: %w", cmd.ID(), err)
			cmdLog.ErrorContext(ctx, "Command failed", "error", err, "duration", elapsed)
		} else {
			cmdLog.InfoContext(ctx, "Command succeeded", "duration", elapsed)
		}
		commandRunsTotal.WithLabelValues(p.ID, cmd.ID(), cr.Status).Inc()
		res.Commands = append(res.Commands, cr)
	}

	if runErr != nil {
		log.ErrorContext(ctx, "Pipeline run failed", "error", runErr, "duration", time.Since(start))
		return res, runErr
	}
	log.InfoContext(ctx, "Pipeline run completed", "duration", time.Since(start))
	return res, nil
}
