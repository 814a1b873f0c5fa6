package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/tracejit/internal/backend"
	"github.com/roach88/tracejit/internal/descr"
	"github.com/roach88/tracejit/internal/heap"
	"github.com/roach88/tracejit/internal/ir"
)

//go:embed schema.cue
var schemaCUE string

// FileName is the configuration file looked up by the CLI.
const FileName = "tracejit.cue"

// Config is the decoded file configuration.
type Config struct {
	HoleChecks     bool         `json:"hole_checks"`
	WriteBarrier   WriteBarrier `json:"write_barrier"`
	CodeCacheLimit int64        `json:"code_cache_limit"`
	MaxCallDepth   int          `json:"max_call_depth"`
	LogLevel       string       `json:"log_level"`
	EventLog       string       `json:"event_log"`
	Jobs           int          `json:"jobs"`
}

// WriteBarrier configures the write-barrier rewrite.
type WriteBarrier struct {
	Enabled bool   `json:"enabled"`
	Flag    uint64 `json:"flag"`
}

// Error is a configuration error with its source position when CUE
// reported one.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the configuration of an empty file.
func Default() Config {
	cfg, err := Parse("default", nil)
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema: %v", err))
	}
	return cfg
}

// Load reads and decodes the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return Parse(path, data)
}

// Parse unifies src with the schema, checks that the result is concrete
// and decodes it. filename is used in error positions.
func Parse(filename string, src []byte) (Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(src, cue.Filename(filename))
	if err := user.Err(); err != nil {
		return Config{}, formatCUEError(err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return Config{}, formatCUEError(err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return Config{}, formatCUEError(err)
	}
	return cfg, nil
}

// Level returns the slog level named by LogLevel.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// BackendOptions translates the configuration into CPU options. barrier is
// the collector's write barrier; when nil, a barrier that clears the flag
// on the object is used.
func (c Config) BackendOptions(barrier ir.WriteBarrierFunc) ([]backend.Option, error) {
	opts := []backend.Option{
		backend.WithHoleChecks(c.HoleChecks),
		backend.WithMaxCallDepth(c.MaxCallDepth),
		backend.WithCodeCacheLimit(c.CodeCacheLimit),
	}
	if !c.WriteBarrier.Enabled {
		return opts, nil
	}

	flag := c.WriteBarrier.Flag
	if barrier == nil {
		barrier = func(obj heap.Ref, _ ir.Value) { obj.ClearFlag(flag) }
	}
	wb, err := descr.NewWriteBarrierDescr(flag, barrier)
	if err != nil {
		return nil, &Error{Field: "write_barrier.flag", Message: err.Error()}
	}
	return append(opts, backend.WithWriteBarrier(wb)), nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	path := "config"
	if p := first.Path(); len(p) > 0 {
		path = strings.Join(p, ".")
	}
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{Field: path, Message: first.Error(), Pos: positions[0]}
	}
	return &Error{Field: path, Message: first.Error()}
}
