package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario; it names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Options configure the CPU the scenario runs on.
	Options Options `yaml:"options,omitempty"`

	// Declare lists the names the traces refer to.
	Declare Declarations `yaml:"declare,omitempty"`

	// Loops are compiled in order before the first step. A loop can refer
	// to an earlier loop by name as a jump or call_assembler target.
	Loops []LoopDef `yaml:"loops"`

	// Steps run in order after compilation.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Options mirror the configuration file fields a scenario may override.
type Options struct {
	HoleChecks   bool `yaml:"hole_checks,omitempty"`
	WriteBarrier bool `yaml:"write_barrier,omitempty"`
	MaxCallDepth int  `yaml:"max_call_depth,omitempty"`
}

// Declarations populate the trace namespace.
type Declarations struct {
	Classes   []ClassDecl  `yaml:"classes,omitempty"`
	Structs   []StructDecl `yaml:"structs,omitempty"`
	Arrays    []ArrayDecl  `yaml:"arrays,omitempty"`
	Calls     []CallDecl   `yaml:"calls,omitempty"`
	Objects   []ObjectDecl `yaml:"objects,omitempty"`
	Functions []string     `yaml:"functions,omitempty"`
}

// ClassDecl registers a heap class, usable as ConstClass(name).
type ClassDecl struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

// StructDecl lays out a struct. Each field becomes the descriptor
// "<struct>.<field>" and the struct itself the size descriptor "<struct>".
type StructDecl struct {
	Name   string      `yaml:"name"`
	Fields []FieldDecl `yaml:"fields"`
}

// FieldDecl is one struct field. Type names a predefined type such as
// Signed, Char or Ptr.
type FieldDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// ArrayDecl declares the array descriptor name with the given item type.
type ArrayDecl struct {
	Name string `yaml:"name"`
	Item string `yaml:"item"`
}

// CallDecl declares a call descriptor from kind letters, e.g. args "ii"
// and result "i".
type CallDecl struct {
	Name   string `yaml:"name"`
	Args   string `yaml:"args"`
	Result string `yaml:"result"`
}

// ObjectDecl allocates a heap object, usable as ConstPtr(name) and as a
// run input. Exactly one of Class and Str is set.
type ObjectDecl struct {
	Name  string `yaml:"name"`
	Class string `yaml:"class,omitempty"`
	Str   string `yaml:"str,omitempty"`
}

// LoopDef is a loop in trace text.
type LoopDef struct {
	Name  string `yaml:"name"`
	Trace string `yaml:"trace"`
	// Error is the structural error code compilation must fail with.
	Error string `yaml:"error,omitempty"`
}

// Step is one scenario action. Exactly one field is set.
type Step struct {
	Run      *RunStep      `yaml:"run,omitempty"`
	Bridge   *BridgeStep   `yaml:"bridge,omitempty"`
	Redirect *RedirectStep `yaml:"redirect,omitempty"`
	Free     string        `yaml:"free,omitempty"`
}

// RunStep executes a loop.
type RunStep struct {
	// Loop defaults to the first loop.
	Loop string `yaml:"loop,omitempty"`

	// Inputs are integers, floats, null, inf, -inf, nan or object names.
	Inputs []any `yaml:"inputs"`

	Expect Expect `yaml:"expect"`

	// Reference cross-checks the exit against the reference evaluator.
	// The loop must not have bridges.
	Reference bool `yaml:"reference,omitempty"`

	// Engines repeats the run on that many engines concurrently; all must
	// agree with the first run.
	Engines int `yaml:"engines,omitempty"`
}

// Expect is the outcome a run must produce.
type Expect struct {
	// Descr is the name of the exit descriptor.
	Descr string `yaml:"descr,omitempty"`

	// Values are compared after rendering; nil skips the check. Use _ for
	// a hole and an object name for a declared object.
	Values []any `yaml:"values,omitempty"`

	// Exception is the class name of the exception pending at exit.
	Exception string `yaml:"exception,omitempty"`

	// Error is the runtime error code execution must fail with.
	Error string `yaml:"error,omitempty"`
}

// BridgeStep attaches a bridge to a guard.
type BridgeStep struct {
	Loop  string `yaml:"loop,omitempty"`
	Guard string `yaml:"guard"`
	Trace string `yaml:"trace"`
	Error string `yaml:"error,omitempty"`
}

// RedirectStep redirects call_assembler sites from one loop to another.
type RedirectStep struct {
	From  string `yaml:"from"`
	To    string `yaml:"to"`
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "exit_count": exits through Descr happened exactly Count times
	// - "guard_failures": the live guard Descr failed exactly Count times
	// - "counters": compiled and freed totals
	// - "code_cache": code cache size in bytes
	Type string `yaml:"type"`

	Descr string `yaml:"descr,omitempty"`
	Count *int64 `yaml:"count,omitempty"`

	Loops        *int64 `yaml:"loops,omitempty"`
	Bridges      *int64 `yaml:"bridges,omitempty"`
	FreedLoops   *int64 `yaml:"freed_loops,omitempty"`
	FreedBridges *int64 `yaml:"freed_bridges,omitempty"`

	Bytes *int64 `yaml:"bytes,omitempty"`
}

// Assertion type constants.
const (
	AssertExitCount     = "exit_count"
	AssertGuardFailures = "guard_failures"
	AssertCounters      = "counters"
	AssertCodeCache     = "code_cache"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields so that typos do not silently skip checks
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Loops) == 0 {
		return fmt.Errorf("loops list is required and must be non-empty")
	}

	loops := make(map[string]bool)
	for i, l := range s.Loops {
		if l.Name == "" {
			return fmt.Errorf("loops[%d]: name is required", i)
		}
		if loops[l.Name] {
			return fmt.Errorf("loops[%d]: duplicate name %q", i, l.Name)
		}
		if l.Trace == "" {
			return fmt.Errorf("loops[%d]: trace is required", i)
		}
		loops[l.Name] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	known := func(name string) bool { return name == "" || loops[name] }
	for i, step := range s.Steps {
		n := 0
		if step.Run != nil {
			n++
			if !known(step.Run.Loop) {
				return fmt.Errorf("steps[%d]: unknown loop %q", i, step.Run.Loop)
			}
			if step.Run.Engines < 0 {
				return fmt.Errorf("steps[%d]: engines must be non-negative", i)
			}
		}
		if step.Bridge != nil {
			n++
			if !known(step.Bridge.Loop) {
				return fmt.Errorf("steps[%d]: unknown loop %q", i, step.Bridge.Loop)
			}
			if step.Bridge.Guard == "" || step.Bridge.Trace == "" {
				return fmt.Errorf("steps[%d]: bridge needs guard and trace", i)
			}
		}
		if step.Redirect != nil {
			n++
			if !loops[step.Redirect.From] || !loops[step.Redirect.To] {
				return fmt.Errorf("steps[%d]: redirect needs two known loops", i)
			}
		}
		if step.Free != "" {
			n++
			if !loops[step.Free] {
				return fmt.Errorf("steps[%d]: unknown loop %q", i, step.Free)
			}
		}
		if n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of run, bridge, redirect, free is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertExitCount, AssertGuardFailures:
		if a.Descr == "" {
			return fmt.Errorf("assertions[%d]: descr is required for %s", index, a.Type)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for %s", index, a.Type)
		}
	case AssertCounters:
		if a.Loops == nil && a.Bridges == nil && a.FreedLoops == nil && a.FreedBridges == nil {
			return fmt.Errorf("assertions[%d]: counters needs at least one counter", index)
		}
	case AssertCodeCache:
		if a.Bytes == nil {
			return fmt.Errorf("assertions[%d]: bytes is required for code_cache", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
