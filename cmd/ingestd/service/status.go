package service

import (
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// Device statuses produced by the default rule
const (
	StatusActive = "active"
	StatusIdle   = "idle"
)

// StatusRule evaluates a CEL expression that decides a device's dashboard
// status. The expression sees:
//
//	last_seen      timestamp of the device's newest record
//	now            evaluation time
//	recordings     number of records for the device
//	active_window  configured activity window (duration)
//
// and must return a string.
type StatusRule struct {
	expr         string
	prg          cel.Program
	activeWindow time.Duration
}

// NewStatusRule compiles expr once; evaluation is safe for concurrent use.
func NewStatusRule(expr string, activeWindow time.Duration) (*StatusRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("last_seen", cel.TimestampType),
		cel.Variable("now", cel.TimestampType),
		cel.Variable("recordings", cel.IntType),
		cel.Variable("active_window", cel.DurationType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("status rule compilation error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.StringType) {
		return nil, fmt.Errorf("status rule must return a string, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &StatusRule{
		expr:         expr,
		prg:          prg,
		activeWindow: activeWindow,
	}, nil
}

// Evaluate returns the status for a device last seen at lastSeen.
func (r *StatusRule) Evaluate(lastSeen, now time.Time, recordings int) (string, error) {
	out, _, err := r.prg.Eval(map[string]any{
		"last_seen":     lastSeen,
		"now":           now,
		"recordings":    int64(recordings),
		"active_window": r.activeWindow,
	})
	if err != nil {
		return "", fmt.Errorf("status rule evaluation error: %w", err)
	}

	status, ok := out.Value().(string)
	if !ok {
		return "", fmt.Errorf("status rule did not return string, got %T", out.Value())
	}
	return status, nil
}

// Expression returns the source of the rule
func (r *StatusRule) Expression() string {
	return r.expr
}
