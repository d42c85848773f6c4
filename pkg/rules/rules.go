package rules

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator evaluates boolean rule expressions against a context.
type Evaluator interface {
	Evaluate(expression string, env map[string]interface{}) (bool, error)
}

// ExprEvaluator evaluates rules with expr-lang/expr, caching compiled
// programs by expression text.
type ExprEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewExprEvaluator creates an evaluator with an empty program cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

func (e *ExprEvaluator) compile(expression string, env map[string]interface{}) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if program, ok = e.cache[expression]; ok {
		return program, nil
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile rule '%s': %w", expression, err)
	}
	e.cache[expression] = program
	return program, nil
}

// Evaluate runs the expression against env. The expression must evaluate to
// a boolean.
func (e *ExprEvaluator) Evaluate(expression string, env map[string]interface{}) (bool, error) {
	program, err := e.compile(expression, env)
	if err != nil {
		return false, err
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate rule '%s': %w", expression, err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("rule '%s' did not evaluate to a boolean, got %T", expression, result)
	}
	return b, nil
}

// StopSet is an ordered list of stop conditions checked between generations.
type StopSet struct {
	expressions []string
	eval        Evaluator
}

// NewStopSet wraps the configured expressions. A nil evaluator gets a fresh
// ExprEvaluator.
func NewStopSet(expressions []string, eval Evaluator) *StopSet {
	if eval == nil {
		eval = NewExprEvaluator()
	}
	return &StopSet{expressions: append([]string(nil), expressions...), eval: eval}
}

// Validate compiles every expression against a sample environment. Broken
// rules surface before a run starts spending money, not in generation five.
func (s *StopSet) Validate(sample map[string]interface{}) error {
	for _, e := range s.expressions {
		if _, err := s.eval.Evaluate(e, sample); err != nil {
			return err
		}
	}
	return nil
}

// ShouldStop reports whether any expression fires, and which one.
func (s *StopSet) ShouldStop(env map[string]interface{}) (bool, string, error) {
	for _, e := range s.expressions {
		fired, err := s.eval.Evaluate(e, env)
		if err != nil {
			return false, "", err
		}
		if fired {
			return true, e, nil
		}
	}
	return false, "", nil
}

// Env builds the rule environment the engine exposes to stop conditions.
func Env(generation int, bestScore, totalCostUSD, elapsedMinutes float64, evaluated, populationSize int) map[string]interface{} {
	return map[string]interface{}{
		"generation":     generation,
		"bestScore":      bestScore,
		"totalCostUsd":   totalCostUSD,
		"elapsedMinutes": elapsedMinutes,
		"evaluated":      evaluated,
		"populationSize": populationSize,
	}
}
