package hammerdb

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var ErrAlreadyBuilt = errors.New("schema build already invoked for this session")

// Host is the configuration API a HammerDB install exposes to scripts.
type Host interface {
	DBSet(ctx context.Context, key, value string) error
	DISet(ctx context.Context, category, key, value string) error
	BuildSchema(ctx context.Context) error
}

// Session collects dbset/diset calls and applies them in a single
// hammerdbcli run when BuildSchema is called.
type Session struct {
	dialect Dialect
	runner  Runner
	logger  *zerolog.Logger

	mu      sync.Mutex
	options *OptionSet
	built   bool
	result  *Result
}

func NewSession(dialect Dialect, runner Runner, logger *zerolog.Logger) *Session {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Session{
		dialect: dialect,
		runner:  runner,
		logger:  logger,
		options: NewOptionSet(),
	}
}

func (s *Session) DBSet(ctx context.Context, key, value string) error {
	if key != CategoryDB && key != CategoryBenchmark {
		return fmt.Errorf("%w: dbset %q", ErrUnknownCategory, key)
	}
	return s.set(key, key, value)
}

func (s *Session) DISet(ctx context.Context, category, key, value string) error {
	if category == CategoryDB || category == CategoryBenchmark {
		return fmt.Errorf("%w: diset %q, use dbset", ErrUnknownCategory, category)
	}
	return s.set(category, key, value)
}

func (s *Session) set(category, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built {
		return ErrAlreadyBuilt
	}
	if err := s.options.Set(category, key, value); err != nil {
		return err
	}
	s.logger.Debug().
		Str("category", category).
		Str("key", key).
		Msg("Option set")
	return nil
}

func (s *Session) BuildSchema(ctx context.Context) error {
	s.mu.Lock()
	if s.built {
		s.mu.Unlock()
		return ErrAlreadyBuilt
	}
	s.built = true
	options := s.options
	s.mu.Unlock()

	script, err := RenderScript(s.dialect, options)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("dialect", string(script.Dialect)).
		Str("fingerprint", script.Fingerprint()).
		Int("options", options.Len()).
		Msg("Running schema build script")

	res, err := s.runner.Run(ctx, script)
	s.mu.Lock()
	s.result = res
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("schema build failed: %w", err)
	}
	return nil
}

// Options returns the options recorded so far.
func (s *Session) Options() []Option {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options.Options()
}

// Result returns the outcome of the hammerdbcli run, nil before BuildSchema.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}
