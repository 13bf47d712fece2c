package hammerdb

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/DataDog/zstd"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	hdberr "pg-tprocc-buildschema/internal/error"
	"pg-tprocc-buildschema/internal/metrics"
	"pg-tprocc-buildschema/internal/ringbuffer"
)

// Runner executes a rendered script against a HammerDB install.
type Runner interface {
	Run(ctx context.Context, script *Script) (*Result, error)
}

type Result struct {
	ExitCode    int
	Duration    time.Duration
	OutputLines int
	Tail        []string
}

type ExecRunnerConfig struct {
	Binary             string
	Dir                string
	TailLines          int
	WaitDelay          time.Duration
	FailurePatterns    []string
	TranscriptFile     string
	TranscriptEncoding string
}

// DefaultFailurePatterns match the lines hammerdbcli prints when a
// virtual user building the schema fails.
var DefaultFailurePatterns = []string{
	":FINISHED FAILED",
	"Error in Virtual User",
}

// DefaultWaitDelay bounds how long Run waits for output after hammerdbcli
// was killed, children that inherited its stdout may keep it open.
const DefaultWaitDelay = 10 * time.Second

type ExecRunner struct {
	cfg    ExecRunnerConfig
	logger *zerolog.Logger
}

func NewExecRunner(cfg ExecRunnerConfig, logger *zerolog.Logger) (*ExecRunner, error) {
	if cfg.Binary == "" {
		return nil, fmt.Errorf("hammerdbcli binary must be set")
	}
	if cfg.TailLines <= 0 {
		cfg.TailLines = 50
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	if cfg.FailurePatterns == nil {
		cfg.FailurePatterns = DefaultFailurePatterns
	}
	switch cfg.TranscriptEncoding {
	case "", "plain", "zstd":
	default:
		return nil, fmt.Errorf("unsupported transcript encoding: %s", cfg.TranscriptEncoding)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ExecRunner{cfg: cfg, logger: logger}, nil
}

func scriptArgs(dialect Dialect, path string) []string {
	if dialect == DialectPython {
		return []string{"py", "auto", path}
	}
	return []string{"auto", path}
}

func scriptExt(dialect Dialect) string {
	if dialect == DialectPython {
		return ".py"
	}
	return ".tcl"
}

func writeScriptFile(script *Script) (string, error) {
	f, err := os.CreateTemp("", "pg-tprocc-buildschema-*"+scriptExt(script.Dialect))
	if err != nil {
		return "", fmt.Errorf("failed to create script file: %w", err)
	}
	if _, err := f.Write(script.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write script file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to close script file: %w", err)
	}
	return f.Name(), nil
}

type transcript struct {
	mu     sync.Mutex
	w      io.Writer
	closer []io.Closer
}

func openTranscript(path, encoding string) (*transcript, error) {
	if path == "" {
		return &transcript{w: io.Discard}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript file: %w", err)
	}
	if encoding == "zstd" {
		zw := zstd.NewWriter(f)
		return &transcript{w: zw, closer: []io.Closer{zw, f}}, nil
	}
	return &transcript{w: f, closer: []io.Closer{f}}, nil
}

func (t *transcript) writeLine(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	io.WriteString(t.w, line)
	io.WriteString(t.w, "\n")
}

func (t *transcript) Close() error {
	var errs []error
	for _, c := range t.closer {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *ExecRunner) Run(ctx context.Context, script *Script) (*Result, error) {
	path, err := writeScriptFile(script)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	tr, err := openTranscript(r.cfg.TranscriptFile, r.cfg.TranscriptEncoding)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tr.Close(); err != nil {
			r.logger.Warn().Err(err).Msg("Failed to close transcript")
		}
	}()

	cmd := exec.CommandContext(ctx, r.cfg.Binary, scriptArgs(script.Dialect, path)...)
	cmd.Dir = r.cfg.Dir
	cmd.WaitDelay = r.cfg.WaitDelay
	// io.Pipe rather than StdoutPipe so Wait can run while the pumps read,
	// WaitDelay then also covers stuck output copying.
	stdout, stdoutW := io.Pipe()
	stderr, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	tail := ringbuffer.NewRingBuffer[string](r.cfg.TailLines)
	var failureMu sync.Mutex
	var failureLine string

	pump := func(stream string, rd io.Reader) error {
		sc := bufio.NewScanner(rd)
		sc.Buffer(make([]byte, 64*1024), 1024*1024)
		for sc.Scan() {
			line := sc.Text()
			tail.Append(line)
			tr.writeLine(line)
			metrics.HostToolOutputLines.WithLabelValues(stream).Inc()
			r.logger.Debug().Str("stream", stream).Msg(line)
			if r.matchesFailure(line) {
				failureMu.Lock()
				if failureLine == "" {
					failureLine = line
				}
				failureMu.Unlock()
			}
		}
		if err := sc.Err(); err != nil {
			// keep draining so the command never blocks on a full pipe
			io.Copy(io.Discard, rd)
			return fmt.Errorf("error reading %s: %w", stream, err)
		}
		return nil
	}

	start := time.Now()
	r.logger.Info().
		Str("binary", r.cfg.Binary).
		Str("dir", r.cfg.Dir).
		Str("script", path).
		Msg("Starting hammerdbcli")
	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return nil, fmt.Errorf("failed to start hammerdbcli: %w", err)
	}

	var g errgroup.Group
	g.Go(func() error { return pump("stdout", stdout) })
	g.Go(func() error { return pump("stderr", stderr) })
	waitErr := cmd.Wait()
	stdoutW.Close()
	stderrW.Close()
	pumpErr := g.Wait()

	res := &Result{
		ExitCode:    cmd.ProcessState.ExitCode(),
		Duration:    time.Since(start),
		OutputLines: tail.Total(),
		Tail:        tail.GetAll(nil),
	}

	if errors.Is(waitErr, exec.ErrWaitDelay) && res.ExitCode == 0 && ctx.Err() == nil {
		r.logger.Warn().Msg("hammerdbcli exited but its output stayed open, a child process may still be running")
		waitErr = nil
	}
	if waitErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("hammerdbcli interrupted: %w", ctxErr)
		}
		return res, hdberr.Wrap(waitErr, "hammerdbcli failed", res.ExitCode, res.Tail, map[string]any{
			"script": path,
		})
	}
	if pumpErr != nil {
		return res, pumpErr
	}
	if failureLine != "" {
		return res, hdberr.Wrap(nil, "schema build reported a failure", res.ExitCode, res.Tail, map[string]any{
			"line": failureLine,
		})
	}
	return res, nil
}

func (r *ExecRunner) matchesFailure(line string) bool {
	for _, p := range r.cfg.FailurePatterns {
		if p != "" && strings.Contains(line, p) {
			return true
		}
	}
	return false
}
