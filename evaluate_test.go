package stored

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boundCounter(t *testing.T, current, total int, opts ...Option) *CounterRecord {
	t.Helper()
	rec := NewCounter("dashboard.counter", append([]Option{WithClock(testClock)}, opts...)...)
	rec.Bind(newFakeConfig(map[string]any{
		"dashboard": map[string]any{"counter": map[string]any{
			"current": current,
			"total":   total,
			"time":    testNow.Add(-90 * time.Second),
		}},
	}))
	return rec
}

func TestEvaluateDefaultsToExpr(t *testing.T) {
	var events []EvaluatorLogEvent
	rec := boundCounter(t, 3, 10, WithEvaluatorLogger(EvaluatorLoggerFunc(func(e EvaluatorLogEvent) {
		events = append(events, e)
	})))

	out, err := rec.Evaluate("current < total")
	require.NoError(t, err)
	assert.Equal(t, true, out)

	out, err = rec.EvaluateWith(map[string]any{"min": 5}, "current >= args.min")
	require.NoError(t, err)
	assert.Equal(t, false, out)

	out, err = rec.Evaluate("name + ':' + key")
	require.NoError(t, err)
	assert.Equal(t, "counter:dashboard.counter", out)

	require.Len(t, events, 3)
	assert.Equal(t, "expr", events[0].Engine)
	assert.Equal(t, "dashboard.counter", events[0].Key)
	assert.NoError(t, events[0].Err)
}

func TestEvaluateWrapsErrors(t *testing.T) {
	var logged EvaluatorLogEvent
	rec := boundCounter(t, 1, 2, WithEvaluatorLogger(EvaluatorLoggerFunc(func(e EvaluatorLogEvent) {
		logged = e
	})))

	_, err := rec.Evaluate("current +")
	require.Error(t, err)
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "expr", evalErr.Engine)
	assert.Equal(t, "dashboard.counter", evalErr.Key)
	assert.Equal(t, err, logged.Err)

	_, err = rec.Evaluate("")
	require.Error(t, err)

	_, err = NewCounter("x").Evaluate("1")
	assert.ErrorIs(t, err, ErrNotBound)
}

func TestEvaluateUsesProgramCache(t *testing.T) {
	cache := NewMapProgramCache()
	rec := boundCounter(t, 3, 10, WithProgramCache(cache))

	for i := 0; i < 3; i++ {
		out, err := rec.Evaluate("total - current")
		require.NoError(t, err)
		assert.Equal(t, 7, out)
	}
	assert.Equal(t, 1, cache.Len())
}

func TestEvaluateWithRecordFunctions(t *testing.T) {
	boundary := testNow.Add(-time.Hour)
	resolver := BoundaryResolverFunc(func(string) (time.Time, error) { return boundary, nil })
	rec := boundCounter(t, 3, 10, WithFunctionRegistry(RecordFunctions(resolver, testClock)))

	out, err := rec.Evaluate(`elapsed(time)`)
	require.NoError(t, err)
	assert.Equal(t, 90, out)

	out, err = rec.Evaluate(`elapsed(boundary("04:00")) > elapsed(time)`)
	require.NoError(t, err)
	assert.Equal(t, true, out)
}

func TestWithCustomFunction(t *testing.T) {
	rec := boundCounter(t, 3, 10, WithCustomFunction("double", func(args ...any) (any, error) {
		n, ok := args[0].(int)
		if !ok {
			return nil, errors.New("double expects int")
		}
		return n * 2, nil
	}))
	out, err := rec.Evaluate("double(current)")
	require.NoError(t, err)
	assert.Equal(t, 6, out)
}

func TestEvaluateWithCEL(t *testing.T) {
	cache := NewMapProgramCache()
	rec := boundCounter(t, 3, 10, WithEvaluator(NewCELEvaluator(
		CELWithProgramCache(cache),
		CELWithFunctionRegistry(RecordFunctions(nil, testClock)),
	)))

	out, err := rec.Evaluate("current + 1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), out)

	out, err = rec.Evaluate(`call("elapsed", [time])`)
	require.NoError(t, err)
	assert.Equal(t, int64(90), out)

	out, err = rec.Evaluate("current < total && name == 'counter'")
	require.NoError(t, err)
	assert.Equal(t, true, out)
	assert.Equal(t, 3, cache.Len())

	_, err = rec.Evaluate("current +")
	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "cel", evalErr.Engine)
}

func TestCompiledRulesRunAcrossRecords(t *testing.T) {
	for _, evaluator := range []Evaluator{NewExprEvaluator(), NewCELEvaluator()} {
		rule, err := evaluator.Compile("current >= total")
		require.NoError(t, err)

		for _, tc := range []struct {
			current, total int
			want           bool
		}{{1, 2, false}, {2, 2, true}} {
			snapshot, err := boundCounter(t, tc.current, tc.total).Snapshot()
			require.NoError(t, err)
			out, err := rule.Evaluate(EvalContext{Snapshot: snapshot, Key: "dashboard.counter"})
			require.NoError(t, err)
			assert.Equal(t, tc.want, out)
		}
	}
}

func TestEvaluatorEngineName(t *testing.T) {
	assert.Equal(t, "expr", evaluatorEngineName(NewExprEvaluator()))
	assert.Equal(t, "cel", evaluatorEngineName(NewCELEvaluator()))
	assert.Equal(t, "unknown", evaluatorEngineName(nil))
}

func TestJSEvaluator(t *testing.T) {
	if !jsEvaluatorAvailable() {
		t.Skip("built without js_eval")
	}
	rec := boundCounter(t, 3, 10, WithEvaluator(NewJSEvaluator()))
	out, err := rec.Evaluate("current * 2 + total")
	require.NoError(t, err)
	assert.EqualValues(t, 16, out)
	assert.Equal(t, "js", evaluatorEngineName(NewJSEvaluator()))
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	require.NoError(t, registry.Register("Add", func(args ...any) (any, error) { return len(args), nil }))
	require.Error(t, registry.Register("add", func(args ...any) (any, error) { return nil, nil }))
	require.Error(t, registry.Register("", func(args ...any) (any, error) { return nil, nil }))
	require.Error(t, registry.Register("nil", nil))

	out, err := registry.Call("ADD", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, out)
	_, err = registry.Call("missing")
	require.Error(t, err)

	clone := registry.Clone()
	require.NoError(t, clone.Register("extra", func(args ...any) (any, error) { return nil, nil }))
	assert.Equal(t, []string{"add"}, registry.Names())
	assert.Equal(t, []string{"add", "extra"}, clone.Names())

	var nilRegistry *FunctionRegistry
	assert.Nil(t, nilRegistry.Clone())
	assert.Nil(t, nilRegistry.Names())
	_, err = nilRegistry.Call("x")
	require.Error(t, err)
}

func TestRecordFunctionsValidateArguments(t *testing.T) {
	registry := RecordFunctions(nil, testClock)
	assert.Equal(t, []string{"elapsed"}, registry.Names())

	_, err := registry.Call("elapsed")
	require.Error(t, err)
	_, err = registry.Call("elapsed", "x")
	require.Error(t, err)
	out, err := registry.Call("elapsed", testNow.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 60, out)

	withBoundary := RecordFunctions(BoundaryResolverFunc(func(hhmm string) (time.Time, error) {
		return Never, nil
	}), testClock)
	_, err = withBoundary.Call("boundary", 4)
	require.Error(t, err)
	out, err = withBoundary.Call("boundary", "04:00")
	require.NoError(t, err)
	assert.Equal(t, Never, out)
}
