package hammerdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/DataDog/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hdberr "pg-tprocc-buildschema/internal/error"
)

// fakeCLI writes a shell script standing in for hammerdbcli.
func fakeCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "hammerdbcli")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func tclScript(t *testing.T) *Script {
	t.Helper()
	s := NewOptionSet()
	require.NoError(t, s.Set(CategoryDB, "db", "pg"))
	script, err := RenderScript(DialectTcl, s)
	require.NoError(t, err)
	return script
}

func TestExecRunnerSuccess(t *testing.T) {
	// echoes the mode and the script it was given
	bin := fakeCLI(t, `echo "mode=$1"; cat "$2"; echo "warn" 1>&2`)
	transcript := filepath.Join(t.TempDir(), "transcript.log")

	r, err := NewExecRunner(ExecRunnerConfig{Binary: bin, TranscriptFile: transcript}, nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), tclScript(t))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Tail, "mode=auto")
	assert.Contains(t, res.Tail, "dbset db {pg}")
	assert.Contains(t, res.Tail, "warn")
	assert.Equal(t, len(res.Tail), res.OutputLines)

	data, err := os.ReadFile(transcript)
	require.NoError(t, err)
	assert.Contains(t, string(data), "buildschema\n")
}

func TestExecRunnerPythonArgs(t *testing.T) {
	bin := fakeCLI(t, `echo "$1 $2"`)
	r, err := NewExecRunner(ExecRunnerConfig{Binary: bin}, nil)
	require.NoError(t, err)

	script, err := RenderScript(DialectPython, NewOptionSet())
	require.NoError(t, err)
	res, err := r.Run(context.Background(), script)
	require.NoError(t, err)
	assert.Equal(t, []string{"py auto"}, res.Tail)
}

func TestExecRunnerExitCode(t *testing.T) {
	bin := fakeCLI(t, `echo "connection refused"; exit 3`)
	r, err := NewExecRunner(ExecRunnerConfig{Binary: bin}, nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), tclScript(t))
	require.Error(t, err)
	var hte *hdberr.HostToolError
	require.True(t, errors.As(err, &hte))
	assert.Equal(t, 3, hte.ExitCode)
	assert.Equal(t, []string{"connection refused"}, hte.Output)
	assert.Equal(t, 3, res.ExitCode)
}

func TestExecRunnerFailurePattern(t *testing.T) {
	bin := fakeCLI(t, `echo "Vuser 1:RUNNING"; echo "Vuser 1:FINISHED FAILED"; exit 0`)
	r, err := NewExecRunner(ExecRunnerConfig{Binary: bin, TailLines: 1}, nil)
	require.NoError(t, err)

	res, err := r.Run(context.Background(), tclScript(t))
	require.Error(t, err)
	var hte *hdberr.HostToolError
	require.True(t, errors.As(err, &hte))
	assert.Equal(t, "Vuser 1:FINISHED FAILED", hte.Misc["line"])
	assert.Equal(t, []string{"Vuser 1:FINISHED FAILED"}, res.Tail)
	assert.Equal(t, 2, res.OutputLines)
}

func TestExecRunnerZstdTranscript(t *testing.T) {
	bin := fakeCLI(t, `echo "SCHEMA COMPLETE"`)
	transcript := filepath.Join(t.TempDir(), "transcript.log.zst")
	r, err := NewExecRunner(ExecRunnerConfig{Binary: bin, TranscriptFile: transcript, TranscriptEncoding: "zstd"}, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background(), tclScript(t))
	require.NoError(t, err)

	f, err := os.Open(transcript)
	require.NoError(t, err)
	defer f.Close()
	zr := zstd.NewReader(f)
	defer zr.Close()
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("SCHEMA COMPLETE\n"), plain))
}

func TestNewExecRunnerValidation(t *testing.T) {
	_, err := NewExecRunner(ExecRunnerConfig{}, nil)
	assert.Error(t, err)

	_, err = NewExecRunner(ExecRunnerConfig{Binary: "hammerdbcli", TranscriptEncoding: "lz4"}, nil)
	assert.Error(t, err)
}

func TestExecRunnerCancelWithLingeringChild(t *testing.T) {
	// the background sleep inherits stdout and outlives the killed shell
	bin := fakeCLI(t, "echo started\nsleep 30 &\nsleep 30\n")
	r, err := NewExecRunner(ExecRunnerConfig{Binary: bin, WaitDelay: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := r.Run(ctx, tclScript(t))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
	require.NotNil(t, res)
	assert.Contains(t, res.Tail, "started")
}

func TestExecRunnerWaitDelayDefault(t *testing.T) {
	r, err := NewExecRunner(ExecRunnerConfig{Binary: "hammerdbcli"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultWaitDelay, r.cfg.WaitDelay)
}
