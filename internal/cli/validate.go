package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/tracejit/internal/backend"
	"github.com/roach88/tracejit/internal/harness"
	"github.com/roach88/tracejit/internal/tracetext"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// Issue is one problem found in a file.
type Issue struct {
	Code    string `json:"code"`
	OpIndex int    `json:"op_index"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

// FileResult is the validation outcome of one file.
type FileResult struct {
	Path   string  `json:"path"`
	Valid  bool    `json:"valid"`
	Issues []Issue `json:"issues,omitempty"`
}

// ValidateResult holds the validation outcome of every file.
type ValidateResult struct {
	Files   []FileResult `json:"files"`
	Valid   int          `json:"valid"`
	Invalid int          `json:"invalid"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check loop traces and scenario files",
		Long: `Check trace and scenario files without running them.

Files ending in .yaml or .yml are loaded as scenarios. Every other file is
parsed as a loop trace and compiled on a fresh backend, which reports
every structural violation, not just the first.

Exit codes:
  0 - All files are valid
  1 - One or more files are invalid
  2 - Command error

Examples:
  tracejit validate loop.trace
  tracejit validate scenarios/*.yaml --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	out := NewOutputFormatter(cmd, opts.RootOptions)
	cfg, err := prepare(cmd, opts.RootOptions)
	if err != nil {
		return err
	}
	cpuOpts, err := cfg.BackendOptions(nil)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	result := ValidateResult{Files: make([]FileResult, 0, len(paths))}
	for _, path := range paths {
		var fr FileResult
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			fr = validateScenario(path)
		default:
			fr = validateTrace(path, cpuOpts)
		}
		if fr.Valid {
			result.Valid++
		} else {
			result.Invalid++
		}
		result.Files = append(result.Files, fr)
	}

	if out.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		w := out.Writer
		for _, fr := range result.Files {
			fmt.Fprintf(w, "%s %s\n", out.Mark(fr.Valid), fr.Path)
			for _, is := range fr.Issues {
				if is.OpIndex >= 0 {
					fmt.Fprintf(w, "  [%s] op %d (%s): %s\n", is.Code, is.OpIndex, is.Op, is.Message)
				} else {
					fmt.Fprintf(w, "  [%s] %s\n", is.Code, is.Message)
				}
			}
		}
	}

	if result.Invalid > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d files invalid", result.Invalid, len(paths)))
	}
	return nil
}

func validateScenario(path string) FileResult {
	if _, err := harness.LoadScenario(path); err != nil {
		return FileResult{Path: path, Issues: []Issue{{Code: "SCENARIO", OpIndex: -1, Message: err.Error()}}}
	}
	return FileResult{Path: path, Valid: true}
}

func validateTrace(path string, cpuOpts []backend.Option) FileResult {
	tr, err := loadTrace(path, tracetext.NewNamespace())
	if err != nil {
		code := "PARSE"
		if GetExitCode(err) == ExitCommandError {
			code = "READ"
		}
		return FileResult{Path: path, Issues: []Issue{{Code: code, OpIndex: -1, Message: err.Error()}}}
	}

	cpu := backend.NewCPU(cpuOpts...)
	if _, err := cpu.CompileLoop(tr.Inputs, tr.Ops); err != nil {
		fr := FileResult{Path: path}
		for _, se := range backend.StructuralErrors(err) {
			fr.Issues = append(fr.Issues, Issue{Code: se.Code, OpIndex: se.OpIndex, Op: se.Op, Message: se.Message})
		}
		if len(fr.Issues) == 0 {
			fr.Issues = []Issue{{Code: "ERROR", OpIndex: -1, Message: err.Error()}}
		}
		return fr
	}
	return FileResult{Path: path, Valid: true}
}
