package stored

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoEvaluator = errors.New("stored: evaluator not configured")

// Evaluate runs expr against the record snapshot. Snapshot attributes are
// bound as variables alongside now, key, name and args.
func (r *Record) Evaluate(expr string) (any, error) {
	return r.EvaluateWith(nil, expr)
}

// EvaluateWith is Evaluate with caller supplied args.
func (r *Record) EvaluateWith(args map[string]any, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("stored: expression must not be empty")
	}
	snapshot, err := r.Snapshot()
	if err != nil {
		return nil, err
	}
	evaluator, err := r.resolveEvaluator()
	if err != nil {
		return nil, err
	}
	now := r.cfg.clock()
	ctx := EvalContext{
		Snapshot: snapshot,
		Now:      &now,
		Args:     args,
		Key:      r.key,
		Name:     r.name,
	}.withDefaults()
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, evalErr := evaluator.Evaluate(ctx, expr)
	duration := time.Since(start)
	evalErr = wrapEvaluationError(engine, expr, ctx.keyLabel(), evalErr)
	r.cfg.evalLogger.LogEvaluation(EvaluatorLogEvent{
		Engine:   engine,
		Expr:     expr,
		Key:      ctx.keyLabel(),
		Duration: duration,
		Err:      evalErr,
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return value, nil
}

func (r *Record) resolveEvaluator() (Evaluator, error) {
	if r.cfg.evaluator != nil {
		return r.cfg.evaluator, nil
	}
	var exprOpts []ExprEvaluatorOption
	if r.cfg.programCache != nil {
		exprOpts = append(exprOpts, ExprWithProgramCache(r.cfg.programCache))
	}
	if r.cfg.functions != nil {
		exprOpts = append(exprOpts, ExprWithFunctionRegistry(r.cfg.functions))
	}
	defaultEvaluator := NewExprEvaluator(exprOpts...)
	if defaultEvaluator == nil {
		return nil, ErrNoEvaluator
	}
	r.cfg.evaluator = defaultEvaluator
	return defaultEvaluator, nil
}

func evaluatorEngineName(e Evaluator) string {
	if e == nil {
		return "unknown"
	}
	switch e.(type) {
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if name, ok := e.(interface{ engineName() string }); ok {
			return name.engineName()
		}
		return "custom"
	}
}
