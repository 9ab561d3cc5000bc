package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/recording-worker/internal/worker/domain"
)

// DefaultOutputFile is the name the recorder writes for every job
const DefaultOutputFile = "export.webm"

const waitDelay = 2 * time.Second

// Config describes how to launch the external recording program
type Config struct {
	// Dir is the recorder installation directory, used as working directory
	Dir string
	// Command and Args start the program; the source URL, output file and
	// duration are appended as positional arguments
	Command string
	Args    []string
	// OutputDir is where the program leaves OutputFile
	OutputDir  string
	OutputFile string
	// Timeout bounds one run; zero means no limit
	Timeout time.Duration
}

// Recorder runs the external recording program
type Recorder struct {
	config Config
	output string
	logger *slog.Logger
}

// New resolves the artifact path and returns a Recorder
func New(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("recorder command is required")
	}
	if cfg.OutputFile == "" {
		cfg.OutputFile = DefaultOutputFile
	}

	outputDir, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recorder output dir: %w", err)
	}

	return &Recorder{
		config: cfg,
		output: filepath.Join(outputDir, cfg.OutputFile),
		logger: logger,
	}, nil
}

// ArtifactPath is the absolute path every successful run produces
func (r *Recorder) ArtifactPath() string {
	return r.output
}

// Record captures durationSeconds of sourceURL and returns the artifact path.
// A zero exit status is trusted; the file itself is not inspected.
func (r *Recorder) Record(ctx context.Context, sourceURL string, durationSeconds int) (string, error) {
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	args := make([]string, 0, len(r.config.Args)+3)
	args = append(args, r.config.Args...)
	args = append(args, sourceURL, r.config.OutputFile, strconv.Itoa(durationSeconds))

	cmd := exec.CommandContext(ctx, r.config.Command, args...)
	cmd.Dir = r.config.Dir
	// children that inherited the output pipes must not outlive a canceled run
	cmd.WaitDelay = waitDelay

	r.logger.Info("Starting recorder",
		slog.String("command", r.config.Command),
		slog.String("source_url", sourceURL),
		slog.Int("duration_seconds", durationSeconds),
	)

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &domain.RecordingError{
			Output: strings.TrimSpace(string(output)),
			Err:    err,
		}
	}

	r.logger.Info("Recorder finished",
		slog.String("artifact", r.output),
		slog.Duration("elapsed", time.Since(start)),
	)

	return r.output, nil
}
