// Package configtree provides the in-memory configuration tree that records
// bind to: dotted-key reads, a modified set, auto-update and batched flushes
// into a state.Store.
package configtree

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	stored "github.com/goliatone/go-stored"
	"github.com/goliatone/go-stored/pkg/activity"
	"github.com/goliatone/go-stored/pkg/state"
	"github.com/goliatone/go-stored/tree"
)

// Tree implements stored.Config.
type Tree struct {
	mu         sync.Mutex
	data       map[string]any
	modified   map[string]map[string]any
	autoUpdate bool
	depth      int
	meta       state.Meta

	store    state.Store
	ref      state.Ref
	template map[string]any
	emitter  *activity.Emitter
	actorID  string
	logger   stored.Logger
	now      func() time.Time
	newID    func() (string, error)
}

var _ stored.Config = (*Tree)(nil)

// Option configures a Tree.
type Option func(*Tree)

// WithStore persists flushes to store under ref.
func WithStore(store state.Store, ref state.Ref) Option {
	return func(t *Tree) {
		t.store = store
		t.ref = ref
	}
}

// WithTemplate sets the defaults the stored tree is layered over on Load.
func WithTemplate(template map[string]any) Option {
	return func(t *Tree) {
		t.template = tree.Clone(template)
	}
}

// WithData seeds the tree without touching the store.
func WithData(data map[string]any) Option {
	return func(t *Tree) {
		t.data = tree.Clone(data)
	}
}

func WithAutoUpdate(enabled bool) Option {
	return func(t *Tree) {
		t.autoUpdate = enabled
	}
}

// WithEmitter emits one activity event per flushed key.
func WithEmitter(emitter *activity.Emitter) Option {
	return func(t *Tree) {
		t.emitter = emitter
	}
}

// WithActor stamps emitted events with actorID.
func WithActor(actorID string) Option {
	return func(t *Tree) {
		t.actorID = actorID
	}
}

func WithLogger(logger stored.Logger) Option {
	return func(t *Tree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(t *Tree) {
		if now != nil {
			t.now = now
		}
	}
}

// WithSnapshotIDs overrides the snapshot id generator.
func WithSnapshotIDs(next func() (string, error)) Option {
	return func(t *Tree) {
		if next != nil {
			t.newID = next
		}
	}
}

// New builds a tree. Call Load to resolve it from the store.
func New(opts ...Option) *Tree {
	t := &Tree{
		modified: map[string]map[string]any{},
		logger:   stored.NopLogger{},
		now:      time.Now,
		newID:    newSnapshotID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	if t.data == nil {
		t.data = tree.MergeLayers(t.template)
	}
	return t
}

func newSnapshotID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Load replaces the tree with the stored tree layered over the template and
// discards pending modifications.
func (t *Tree) Load(ctx context.Context) error {
	data := tree.MergeLayers(t.template)
	var meta state.Meta
	if t.store != nil {
		resolved, loaded, err := state.Resolver{Store: t.store}.Resolve(ctx, t.ref, t.template)
		if err != nil {
			return fmt.Errorf("configtree: load: %w", err)
		}
		data, meta = resolved, loaded
	}

	t.mu.Lock()
	t.data = data
	t.meta = meta
	t.modified = map[string]map[string]any{}
	t.mu.Unlock()

	t.emit(ctx, activity.BuildTreeLoadedEvent(activity.RecordEventInput{
		ActorID:    t.actorID,
		Profile:    t.ref.Profile,
		SnapshotID: meta.SnapshotID,
		OccurredAt: t.now(),
	}))
	return nil
}

// Get returns the value at the dotted key, or def when absent.
func (t *Tree) Get(key string, def any) any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tree.DeepGet(t.data, key, def)
}

// Data returns a deep copy of the whole tree.
func (t *Tree) Data() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return tree.Clone(t.data)
}

// Meta returns the metadata of the last load or flush.
func (t *Tree) Meta() state.Meta {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meta
}

// MarkModified registers snapshot as the pending value of key.
func (t *Tree) MarkModified(key string, snapshot map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modified[key] = tree.Clone(snapshot)
}

// Modified returns the pending keys in sorted order.
func (t *Tree) Modified() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedKeys(t.modified)
}

// AutoUpdate reports whether writes flush immediately. It is false inside a
// MultiSet scope.
func (t *Tree) AutoUpdate() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.autoUpdate && t.depth == 0
}

func (t *Tree) SetAutoUpdate(enabled bool) {
	t.mu.Lock()
	t.autoUpdate = enabled
	t.mu.Unlock()
}

// Update flushes pending modifications.
func (t *Tree) Update() error {
	return t.UpdateContext(context.Background())
}

// UpdateContext writes every modified snapshot into the tree, saves the tree
// under a fresh snapshot id and emits one event per key. On a store error the
// pending snapshots are restored so the flush can be retried.
func (t *Tree) UpdateContext(ctx context.Context) error {
	t.mu.Lock()
	if len(t.modified) == 0 {
		t.mu.Unlock()
		return nil
	}
	snapshotID, err := t.newID()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("configtree: snapshot id: %w", err)
	}
	pending := t.modified
	t.modified = map[string]map[string]any{}
	keys := sortedKeys(pending)
	for _, key := range keys {
		tree.DeepSet(t.data, key, tree.Clone(pending[key]))
	}
	data := tree.Clone(t.data)
	expected := t.meta.ETag
	t.mu.Unlock()

	meta := state.Meta{SnapshotID: snapshotID, ETag: expected, UpdatedAt: t.now().UTC()}
	if t.store != nil {
		saved, err := t.store.Save(ctx, t.ref, data, meta)
		if err != nil {
			t.restore(pending)
			return fmt.Errorf("configtree: update: %w", err)
		}
		meta = saved
	}

	t.mu.Lock()
	t.meta = meta
	t.mu.Unlock()

	for _, key := range keys {
		t.logger.Info(fmt.Sprintf("Save config %s", key))
		t.emit(ctx, activity.BuildRecordUpdatedEvent(activity.RecordEventInput{
			ActorID:    t.actorID,
			Key:        key,
			Profile:    t.ref.Profile,
			SnapshotID: meta.SnapshotID,
			Snapshot:   pending[key],
			OccurredAt: meta.UpdatedAt,
		}))
	}
	return nil
}

// restore puts back pending snapshots that were not re-marked meanwhile.
func (t *Tree) restore(pending map[string]map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, snapshot := range pending {
		if _, ok := t.modified[key]; !ok {
			t.modified[key] = snapshot
		}
	}
}

// MultiSet runs fn with per-write flushing suspended. The outermost scope
// flushes once on exit when anything is pending, even if fn fails or panics.
func (t *Tree) MultiSet(fn func() error) (err error) {
	t.mu.Lock()
	t.depth++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.depth--
		flush := t.depth == 0 && len(t.modified) > 0
		t.mu.Unlock()
		if !flush {
			return
		}
		if uerr := t.Update(); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}()

	if fn == nil {
		return nil
	}
	return fn()
}

func (t *Tree) emit(ctx context.Context, event activity.Event) {
	if !t.emitter.Enabled() {
		return
	}
	if err := t.emitter.Emit(ctx, event); err != nil {
		t.logger.Warning(fmt.Sprintf("activity hook failed for %s: %v", event.ObjectID, err))
	}
}

func sortedKeys(m map[string]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
