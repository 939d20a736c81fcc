// Package rules provides the CEL-Go based risk factor engine of the
// development statistics backend.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/riskview/internal/domain"
)

// Engine is the CEL-based risk factor engine.
type Engine struct {
	mu             sync.RWMutex
	env            *cel.Env
	compiledRules  map[string]*CompiledRule
	velocityGetter VelocityGetter
	maxWorkers     int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RiskRule
	Program cel.Program
}

// VelocityGetter returns how many transactions a customer made in the
// window ending at the transaction being scored.
type VelocityGetter func(ctx context.Context, tx domain.TransactionRecord, windowSecs int) (int64, error)

// NewEngine creates a new risk factor engine.
func NewEngine(velocityGetter VelocityGetter, maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType), // -1 when the time is unknown
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("recipient_id", cel.StringType),
		cel.Variable("device_model", cel.StringType),
		cel.Variable("velocity_count", cel.IntType),
		// Behavioral counters of the customer, zero when unknown
		cel.Variable("device_changes", cel.IntType),
		cel.Variable("os_changes", cel.IntType),
		cel.Variable("logins_7d", cel.IntType),
		cel.Variable("logins_30d", cel.IntType),
		cel.Variable("login_shift", cel.DoubleType),
		cel.Variable("burstiness", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:            env,
		compiledRules:  make(map[string]*CompiledRule),
		velocityGetter: velocityGetter,
		maxWorkers:     maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.RiskRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := e.compileRule(cfg)
	return err
}

// LoadRules compiles and replaces the loaded rules. Disabled rules are skipped.
func (e *Engine) LoadRules(configs []*domain.RiskRule) error {
	compiled := make(map[string]*CompiledRule, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		c, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		compiled[cfg.ID] = c
	}

	e.mu.Lock()
	e.compiledRules = compiled
	e.mu.Unlock()
	return nil
}

// EvaluateInput holds the transaction and customer data for evaluation.
type EvaluateInput struct {
	Transaction    domain.TransactionRecord
	Behavior       *domain.CustomerBehavior
	VelocityWindow int // seconds
}

// EvaluateAll evaluates all loaded rules in parallel. Factors are returned
// ordered by rule ID so the output is stable.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) ([]domain.RiskFactor, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil, nil
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Config.ID < rules[j].Config.ID })

	var velocityCount int64
	if e.velocityGetter != nil && input.VelocityWindow > 0 {
		count, err := e.velocityGetter(ctx, input.Transaction, input.VelocityWindow)
		if err != nil {
			return nil, fmt.Errorf("velocity lookup for %s: %w", input.Transaction.CustomerID, err)
		}
		velocityCount = count
	}

	activation := activationFor(input, velocityCount)

	results := make([]domain.RiskFactor, len(rules))
	var wg sync.WaitGroup

	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			results[idx] = evaluateRule(r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results, nil
}

func activationFor(input *EvaluateInput, velocityCount int64) map[string]any {
	tx := input.Transaction
	amount, _ := tx.Amount.Float64()

	hour := int64(-1)
	if !tx.Timestamp.IsZero() {
		hour = int64(tx.Timestamp.Hour())
	}

	activation := map[string]any{
		"amount":         amount,
		"hour":           hour,
		"customer_id":    tx.CustomerID,
		"recipient_id":   tx.RecipientID,
		"device_model":   tx.DeviceModel,
		"velocity_count": velocityCount,
		"device_changes": int64(0),
		"os_changes":     int64(0),
		"logins_7d":      int64(0),
		"logins_30d":     int64(0),
		"login_shift":    0.0,
		"burstiness":     0.0,
	}

	if b := input.Behavior; b != nil {
		activation["device_changes"] = int64(b.DeviceChanges)
		activation["os_changes"] = int64(b.OSChanges)
		activation["logins_7d"] = int64(b.LoginsLast7Days)
		activation["logins_30d"] = int64(b.LoginsLast30Days)
		activation["login_shift"] = b.LoginFrequencyChange
		activation["burstiness"] = b.BurstinessScore
	}
	return activation
}

// evaluateRule scores a single rule. An evaluation error scores 0.
func evaluateRule(rule *CompiledRule, activation map[string]any) domain.RiskFactor {
	factor := domain.RiskFactor{
		Name:        rule.Config.Name,
		Description: rule.Config.Description,
		Weight:      rule.Config.Weight,
	}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		factor.Description = fmt.Sprintf("%s (evaluation error: %v)", rule.Config.Description, err)
		return factor
	}

	factor.Score = toScore(out)
	return factor
}

// toScore converts a CEL value to a score in [0,1].
func toScore(val ref.Val) float64 {
	var score float64
	switch v := val.(type) {
	case types.Bool:
		if v {
			score = 1.0
		}
	case types.Double:
		score = float64(v)
	case types.Int:
		score = float64(v)
	}

	switch {
	case score < 0:
		return 0
	case score > 1:
		return 1
	default:
		return score
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded rule configurations ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.RiskRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RiskRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RiskRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
