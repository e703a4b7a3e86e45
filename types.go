package stored

import "time"

// Config is the external collaborator a record reads from and writes to.
type Config interface {
	// Get returns the value at the dotted key, or def when any segment is absent.
	Get(key string, def any) any
	// MarkModified registers snapshot as the pending value for key,
	// replacing any earlier registration.
	MarkModified(key string, snapshot map[string]any)
	// AutoUpdate reports whether every non-batched write should flush.
	AutoUpdate() bool
	// Update persists all modified keys.
	Update() error
	// MultiSet runs fn with per-write flushing suspended and flushes once when
	// the outermost scope exits, even if fn fails.
	MultiSet(fn func() error) error
}

// BoundaryResolver returns the most recent occurrence of a daily wall-clock
// boundary written as "HH:MM".
type BoundaryResolver interface {
	LastBoundary(hhmm string) (time.Time, error)
}

// BoundaryResolverFunc adapts a function to BoundaryResolver.
type BoundaryResolverFunc func(hhmm string) (time.Time, error)

func (f BoundaryResolverFunc) LastBoundary(hhmm string) (time.Time, error) {
	return f(hhmm)
}

// Quest is a resolved daily quest.
type Quest interface {
	QuestName() string
}

// QuestResolver resolves a stored quest name. Unknown names must produce an
// error matching ErrQuestNotFound.
type QuestResolver interface {
	Resolve(name string) (Quest, error)
}

// Option configures a record.
type Option func(*recordConfig)

type recordConfig struct {
	logger       Logger
	clock        func() time.Time
	hooks        []SnapshotHook
	boundary     BoundaryResolver
	expireAt     string
	quests       QuestResolver
	evaluator    Evaluator
	programCache ProgramCache
	functions    *FunctionRegistry
	evalLogger   EvaluatorLogger
}

func applyOptions(opts []Option) recordConfig {
	cfg := recordConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = NopLogger{}
	}
	if cfg.clock == nil {
		cfg.clock = time.Now
	}
	if cfg.evalLogger == nil {
		cfg.evalLogger = noopEvaluatorLogger{}
	}
	if cfg.expireAt == "" {
		cfg.expireAt = DailyReset
	}
	return cfg
}

// SnapshotHook adjusts the snapshot every time it is read. Hooks must keep
// each value's kind.
type SnapshotHook func(snapshot map[string]Value)

// WithSnapshotHook appends a hook run on every snapshot access.
func WithSnapshotHook(hook SnapshotHook) Option {
	return func(cfg *recordConfig) {
		if hook != nil {
			cfg.hooks = append(cfg.hooks, hook)
		}
	}
}

// WithClock overrides the time source used to stamp writes.
func WithClock(clock func() time.Time) Option {
	return func(cfg *recordConfig) {
		cfg.clock = clock
	}
}

// WithBoundaryResolver configures the resolver used by expiry-aware records.
func WithBoundaryResolver(resolver BoundaryResolver) Option {
	return func(cfg *recordConfig) {
		cfg.boundary = resolver
	}
}

// WithExpireAt overrides the daily reset time, "HH:MM".
func WithExpireAt(hhmm string) Option {
	return func(cfg *recordConfig) {
		cfg.expireAt = hhmm
	}
}

// WithQuestResolver configures quest lookups for DailyQuestRecord.
func WithQuestResolver(resolver QuestResolver) Option {
	return func(cfg *recordConfig) {
		cfg.quests = resolver
	}
}

// WithEvaluator configures the rule evaluator used by Record.Evaluate.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *recordConfig) {
		cfg.evaluator = e
	}
}

// EvalContext carries inputs needed when evaluating an expression against a
// record snapshot.
type EvalContext struct {
	Snapshot map[string]any
	Now      *time.Time
	Args     map[string]any
	Key      string
	Name     string
}

func (ctx EvalContext) withDefaultNow() EvalContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx EvalContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx EvalContext) withDefaultMaps() EvalContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = map[string]any{}
	}
	return ctx
}

func (ctx EvalContext) withDefaults() EvalContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

func (ctx EvalContext) keyLabel() string {
	if ctx.Key != "" {
		return ctx.Key
	}
	return "unknown"
}

// bindings returns the variables every engine exposes besides the snapshot.
func (ctx EvalContext) bindings() map[string]any {
	return map[string]any{
		"now":  ctx.timestamp(),
		"args": ctx.Args,
		"key":  ctx.Key,
		"name": ctx.Name,
	}
}

// Evaluator executes expressions against an evaluation context.
type Evaluator interface {
	Evaluate(ctx EvalContext, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx EvalContext) (any, error)
}
