package configtree

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stored "github.com/goliatone/go-stored"
	"github.com/goliatone/go-stored/pkg/activity"
	"github.com/goliatone/go-stored/pkg/state"
	"github.com/goliatone/go-stored/pkg/state/sqlitestore"
)

type countingStore struct {
	state.Store
	saves int
	err   error
}

func (s *countingStore) Save(ctx context.Context, ref state.Ref, data map[string]any, meta state.Meta) (state.Meta, error) {
	s.saves++
	if s.err != nil {
		return state.Meta{}, s.err
	}
	return s.Store.Save(ctx, ref, data, meta)
}

var fixedNow = time.Date(2024, 3, 10, 9, 30, 15, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newTestTree(t *testing.T, opts ...Option) (*Tree, *countingStore, *activity.CaptureHook) {
	t.Helper()
	store := &countingStore{Store: state.NewMemoryStore()}
	capture := &activity.CaptureHook{}
	base := []Option{
		WithStore(store, state.Ref{}),
		WithEmitter(activity.NewEmitter(activity.Hooks{capture}, activity.Config{Enabled: true})),
		WithClock(fixedClock),
		WithAutoUpdate(true),
	}
	tr := New(append(base, opts...)...)
	require.NoError(t, tr.Load(context.Background()))
	capture.Reset()
	return tr, store, capture
}

func TestGetReadsDottedKeys(t *testing.T) {
	tr := New(WithData(map[string]any{
		"dashboard": map[string]any{"activity": map[string]any{"current": 5}},
	}))
	assert.Equal(t, 5, tr.Get("dashboard.activity.current", 0))
	assert.Equal(t, "def", tr.Get("dashboard.missing", "def"))
	assert.Equal(t, map[string]any{"current": 5}, tr.Get("dashboard.activity", nil))
}

func TestAutoUpdateFlushesEachSet(t *testing.T) {
	tr, store, capture := newTestTree(t)
	rec := stored.NewInt("dashboard.stamina", stored.WithClock(fixedClock))
	rec.Bind(tr)

	require.NoError(t, rec.SetValue(7))
	require.NoError(t, rec.SetValue(8))

	assert.Equal(t, 2, store.saves)
	assert.Empty(t, tr.Modified())
	assert.Equal(t, 8, tr.Get("dashboard.stamina.value", nil))
	assert.Equal(t, fixedNow, tr.Get("dashboard.stamina.time", nil))

	events := capture.Events()
	require.Len(t, events, 2)
	assert.Equal(t, activity.VerbRecordUpdated, events[0].Verb)
	assert.Equal(t, "dashboard.stamina", events[0].ObjectID)
	assert.Equal(t, activity.DefaultChannel, events[0].Channel)
	assert.NotEmpty(t, events[0].Metadata["snapshot_id"])
	assert.NotEqual(t, events[0].Metadata["snapshot_id"], events[1].Metadata["snapshot_id"])
	assert.Equal(t, tr.Meta().SnapshotID, events[1].Metadata["snapshot_id"])
}

func TestWithoutAutoUpdateWritesStayPending(t *testing.T) {
	tr, store, _ := newTestTree(t, WithAutoUpdate(false))
	rec := stored.NewInt("dashboard.stamina")
	rec.Bind(tr)

	require.NoError(t, rec.SetValue(3))
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, []string{"dashboard.stamina"}, tr.Modified())
	assert.Nil(t, tr.Get("dashboard.stamina", nil))

	require.NoError(t, tr.Update())
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 3, tr.Get("dashboard.stamina.value", nil))
}

func TestMultiSetFlushesOnceAtOutermostExit(t *testing.T) {
	tr, store, capture := newTestTree(t)
	counter := stored.NewCounter("dashboard.counter")
	activityRec := stored.NewDailyActivity("dashboard.activity")
	counter.Bind(tr)
	activityRec.Bind(tr)

	err := tr.MultiSet(func() error {
		assert.False(t, tr.AutoUpdate())
		if err := counter.SetBoth(3, 10); err != nil {
			return err
		}
		if err := activityRec.SetBoth(120); err != nil {
			return err
		}
		assert.Equal(t, 0, store.saves)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, tr.AutoUpdate())

	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 3, tr.Get("dashboard.counter.current", nil))
	assert.Equal(t, 10, tr.Get("dashboard.counter.total", nil))
	assert.Equal(t, 120, tr.Get("dashboard.activity.current", nil))
	assert.Equal(t, stored.DailyActivityTotal, tr.Get("dashboard.activity.total", nil))

	events := capture.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "dashboard.activity", events[0].ObjectID)
	assert.Equal(t, "dashboard.counter", events[1].ObjectID)
	assert.Equal(t, events[0].Metadata["snapshot_id"], events[1].Metadata["snapshot_id"])
}

func TestSingleBatchedRecordWriteFlushesOnce(t *testing.T) {
	tr, store, _ := newTestTree(t)
	quests := stored.NewDailyQuest("dashboard.daily")
	quests.Bind(tr)

	require.NoError(t, quests.WriteQuestNames("a", "b"))
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, "b", tr.Get("dashboard.daily.quest2", nil))
	assert.Equal(t, "", tr.Get("dashboard.daily.quest6", nil))
}

func TestMultiSetNestedScopes(t *testing.T) {
	tr, store, _ := newTestTree(t)
	rec := stored.NewInt("a.b")
	rec.Bind(tr)

	err := tr.MultiSet(func() error {
		return tr.MultiSet(func() error {
			if err := rec.SetValue(1); err != nil {
				return err
			}
			return tr.MultiSet(func() error { return rec.SetValue(2) })
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 2, tr.Get("a.b.value", nil))
}

func TestMultiSetFlushesOnError(t *testing.T) {
	tr, store, _ := newTestTree(t)
	rec := stored.NewInt("a.b")
	rec.Bind(tr)
	boom := errors.New("boom")

	err := tr.MultiSet(func() error {
		require.NoError(t, rec.SetValue(4))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 4, tr.Get("a.b.value", nil))
}

func TestMultiSetFlushesOnPanic(t *testing.T) {
	tr, store, _ := newTestTree(t)
	rec := stored.NewInt("a.b")
	rec.Bind(tr)

	func() {
		defer func() {
			assert.Equal(t, "kaboom", recover())
		}()
		_ = tr.MultiSet(func() error {
			_ = rec.SetValue(9)
			panic("kaboom")
		})
	}()
	assert.Equal(t, 1, store.saves)
	assert.Equal(t, 9, tr.Get("a.b.value", nil))
	assert.True(t, tr.AutoUpdate())
}

func TestMultiSetWithoutWritesDoesNotFlush(t *testing.T) {
	tr, store, capture := newTestTree(t)
	require.NoError(t, tr.MultiSet(func() error { return nil }))
	require.NoError(t, tr.MultiSet(nil))
	assert.Equal(t, 0, store.saves)
	assert.Empty(t, capture.Events())
}

func TestUpdateKeepsPendingOnStoreError(t *testing.T) {
	tr, store, capture := newTestTree(t)
	rec := stored.NewInt("a.b")
	rec.Bind(tr)
	store.err = errors.New("disk full")

	err := rec.SetValue(1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configtree: update")
	assert.Equal(t, []string{"a.b"}, tr.Modified())
	assert.Empty(t, capture.Events())

	store.err = nil
	require.NoError(t, tr.Update())
	assert.Empty(t, tr.Modified())
	assert.Len(t, capture.Events(), 1)
}

func TestSnapshotIDGeneratorFailure(t *testing.T) {
	tr, store, _ := newTestTree(t, WithAutoUpdate(false), WithSnapshotIDs(func() (string, error) {
		return "", errors.New("no entropy")
	}))
	tr.MarkModified("x", map[string]any{"v": 1})
	require.Error(t, tr.Update())
	assert.Equal(t, 0, store.saves)
	assert.Equal(t, []string{"x"}, tr.Modified())
}

func TestLoadLayersTemplateAndPersistsAcrossReload(t *testing.T) {
	dir := t.TempDir()
	store, err := state.NewFileStore(dir, state.FormatYAML)
	require.NoError(t, err)
	template := map[string]any{
		"dashboard": map[string]any{
			"dungeon": map[string]any{"calyx": 0, "relic": 0},
		},
		"settings": map[string]any{"server": "cn"},
	}

	first := New(WithStore(store, state.Ref{}), WithTemplate(template), WithAutoUpdate(true))
	require.NoError(t, first.Load(context.Background()))
	assert.Equal(t, "cn", first.Get("settings.server", nil))

	dungeon := stored.NewDungeonDouble("dashboard.dungeon")
	dungeon.Bind(first)
	require.NoError(t, dungeon.SetCalyx(3))

	second := New(WithStore(store, state.Ref{}), WithTemplate(template))
	require.NoError(t, second.Load(context.Background()))
	assert.Equal(t, first.Meta().SnapshotID, second.Meta().SnapshotID)
	assert.Equal(t, "cn", second.Get("settings.server", nil))

	reloaded := stored.NewDungeonDouble("dashboard.dungeon")
	reloaded.Bind(second)
	calyx, err := reloaded.Calyx()
	require.NoError(t, err)
	relic, err := reloaded.Relic()
	require.NoError(t, err)
	assert.Equal(t, 3, calyx)
	assert.Equal(t, 0, relic)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := sqlitestore.Open(filepath.Join(t.TempDir(), "stored.db"))
	require.NoError(t, err)
	defer store.Close()

	first := New(WithStore(store, state.Ref{Profile: "alt"}), WithAutoUpdate(true))
	require.NoError(t, first.Load(context.Background()))
	counter := stored.NewCounter("dashboard.counter")
	counter.Bind(first)
	require.NoError(t, counter.SetBoth(2, 5))

	second := New(WithStore(store, state.Ref{Profile: "alt"}))
	require.NoError(t, second.Load(context.Background()))
	reloaded := stored.NewCounter("dashboard.counter")
	reloaded.Bind(second)
	formatted, err := reloaded.Formatted()
	require.NoError(t, err)
	assert.Equal(t, "2/5", formatted)
}

func TestConcurrentTreesConflictOnETag(t *testing.T) {
	store := state.NewMemoryStore()
	ctx := context.Background()
	_, err := store.Save(ctx, state.Ref{}, map[string]any{"seed": 1}, state.Meta{})
	require.NoError(t, err)

	a := New(WithStore(store, state.Ref{}))
	b := New(WithStore(store, state.Ref{}))
	require.NoError(t, a.Load(ctx))
	require.NoError(t, b.Load(ctx))

	a.MarkModified("x", map[string]any{"v": 1})
	require.NoError(t, a.Update())

	b.MarkModified("x", map[string]any{"v": 2})
	err = b.Update()
	require.Error(t, err)
	assert.True(t, errors.Is(err, state.ErrETagMismatch))

	require.NoError(t, b.Load(ctx))
	assert.Empty(t, b.Modified())
	assert.Equal(t, map[string]any{"v": 1}, b.Get("x", nil))
}

func TestLoadEmitsTreeLoadedEvent(t *testing.T) {
	capture := &activity.CaptureHook{}
	tr := New(
		WithEmitter(activity.NewEmitter(activity.Hooks{capture}, activity.Config{Enabled: true})),
		WithActor("cli"),
	)
	require.NoError(t, tr.Load(context.Background()))
	events := capture.Events()
	require.Len(t, events, 1)
	assert.Equal(t, activity.VerbTreeLoaded, events[0].Verb)
	assert.Equal(t, "cli", events[0].ActorID)
}

type recordingLogger struct {
	warnings []string
	infos    []string
}

func (l *recordingLogger) Attr(string, any) {}
func (l *recordingLogger) Warning(msg string) { l.warnings = append(l.warnings, msg) }
func (l *recordingLogger) Info(msg string) { l.infos = append(l.infos, msg) }

func TestHookFailureIsLoggedNotReturned(t *testing.T) {
	logger := &recordingLogger{}
	failing := activity.HookFunc(func(context.Context, activity.Event) error { return errors.New("sink down") })
	tr := New(
		WithEmitter(activity.NewEmitter(activity.Hooks{failing}, activity.Config{Enabled: true})),
		WithLogger(logger),
	)
	tr.MarkModified("a", map[string]any{"v": 1})
	require.NoError(t, tr.Update())
	require.Len(t, logger.warnings, 1)
	assert.Contains(t, logger.warnings[0], "sink down")
	assert.Equal(t, []string{"Save config a"}, logger.infos)
}
