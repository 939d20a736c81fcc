package filter

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/riskview/internal/domain"
)

// maxCachedExpressions bounds the compiled program cache.
const maxCachedExpressions = 256

// Engine evaluates the optional CEL expression predicate of FilterCriteria.
// Compiled programs and compile errors are cached per expression text.
// Safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	loc      *time.Location
	compiled map[string]*compiledExpression
}

type compiledExpression struct {
	source  string
	program cel.Program
	err     error
}

// NewEngine creates an engine exposing the record fields as CEL variables.
// hour is read in loc, the zone the views bucket by; nil means local time.
func NewEngine(loc *time.Location) (*Engine, error) {
	if loc == nil {
		loc = time.Local
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("is_fraud", cel.BoolType),
		cel.Variable("risk", cel.DoubleType),
		cel.Variable("has_risk", cel.BoolType),
		cel.Variable("device", cel.StringType),
		cel.Variable("os", cel.StringType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("recipient_id", cel.StringType),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		loc:      loc,
		compiled: make(map[string]*compiledExpression),
	}, nil
}

func (e *Engine) location() *time.Location {
	if e.loc == nil {
		return time.Local
	}
	return e.loc
}

// Validate reports why an expression would be skipped, or nil when it is usable.
func (e *Engine) Validate(expression string) error {
	return e.lookup(expression).err
}

// compile returns the cached program for expression, or nil when the
// expression cannot be used. A nil result means the predicate is skipped.
func (e *Engine) compile(expression string) *compiledExpression {
	c := e.lookup(expression)
	if c.err != nil {
		return nil
	}
	return c
}

func (e *Engine) lookup(expression string) *compiledExpression {
	e.mu.RLock()
	c, ok := e.compiled[expression]
	e.mu.RUnlock()
	if ok {
		return c
	}

	c, err := e.compileExpression(expression)
	if err != nil {
		slog.Debug("skipping filter expression", "expression", expression, "error", err)
		c = &compiledExpression{source: expression, err: err}
	}

	e.mu.Lock()
	if e.compiled == nil || len(e.compiled) >= maxCachedExpressions {
		e.compiled = make(map[string]*compiledExpression)
	}
	e.compiled[expression] = c
	e.mu.Unlock()

	return c
}

func (e *Engine) compileExpression(expression string) (*compiledExpression, error) {
	if e.env == nil {
		return nil, fmt.Errorf("expression engine not initialised")
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %s", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	return &compiledExpression{source: expression, program: program}, nil
}

// matches evaluates the predicate for one record. Evaluation errors keep the record.
func (c *compiledExpression) matches(r domain.TransactionRecord, loc *time.Location) bool {
	out, _, err := c.program.Eval(map[string]any{
		"amount":       r.Amount.InexactFloat64(),
		"is_fraud":     r.IsFraud,
		"risk":         r.RiskForRanking(),
		"has_risk":     r.FraudProbability != nil,
		"device":       r.DeviceModel,
		"os":           r.OSVersion,
		"customer_id":  r.CustomerID,
		"recipient_id": r.RecipientID,
		"hour":         int64(r.Timestamp.In(loc).Hour()),
	})
	if err != nil {
		slog.Debug("filter expression evaluation failed", "expression", c.source, "error", err)
		return true
	}

	b, ok := out.(types.Bool)
	if !ok {
		return true
	}
	return bool(b)
}
