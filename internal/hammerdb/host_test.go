package hammerdb

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	scripts []*Script
	err     error
}

func (f *fakeRunner) Run(ctx context.Context, script *Script) (*Result, error) {
	f.scripts = append(f.scripts, script)
	return &Result{ExitCode: 0, OutputLines: 1, Tail: []string{"ok"}}, f.err
}

func TestSessionBuildSchema(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{}
	s := NewSession(DialectTcl, runner, nil)

	require.NoError(t, s.DBSet(ctx, "db", "pg"))
	require.NoError(t, s.DBSet(ctx, "bm", "TPC-C"))
	require.NoError(t, s.DISet(ctx, "connection", "pg_port", "5432"))
	assert.Nil(t, s.Result())

	require.NoError(t, s.BuildSchema(ctx))
	require.Len(t, runner.scripts, 1)
	assert.Contains(t, string(runner.scripts[0].Body), "diset connection pg_port {5432}\nbuildschema\n")
	assert.Equal(t, []string{"ok"}, s.Result().Tail)

	// one build per session
	assert.ErrorIs(t, s.BuildSchema(ctx), ErrAlreadyBuilt)
	assert.ErrorIs(t, s.DISet(ctx, "tpcc", "pg_user", "tpcc"), ErrAlreadyBuilt)
	assert.Len(t, runner.scripts, 1)
}

func TestSessionRejectsMisroutedCategories(t *testing.T) {
	ctx := context.Background()
	s := NewSession(DialectTcl, &fakeRunner{}, nil)

	assert.ErrorIs(t, s.DBSet(ctx, "tpcc", "x"), ErrUnknownCategory)
	assert.ErrorIs(t, s.DISet(ctx, "db", "db", "pg"), ErrUnknownCategory)
	assert.ErrorIs(t, s.DISet(ctx, "tpch", "pg_scale_fact", "1"), ErrUnknownCategory)
	assert.Empty(t, s.Options())
}

func TestSessionRunnerError(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	s := NewSession(DialectPython, &fakeRunner{err: boom}, nil)
	require.NoError(t, s.DBSet(ctx, "db", "pg"))

	err := s.BuildSchema(ctx)
	assert.ErrorIs(t, err, boom)
	assert.NotNil(t, s.Result())
}
