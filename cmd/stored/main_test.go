package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp().run(args, &out, io.Discard)
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func decodeObject(t *testing.T, out string) map[string]any {
	t.Helper()
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	return got
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	v, err := loadConfig(t.TempDir())
	require.NoError(t, err)

	s, err := resolveSettings(v)
	require.NoError(t, err)
	assert.Equal(t, storeFile, s.Store)
	assert.Equal(t, "yaml", s.Format)
	assert.Equal(t, "04:00", s.ResetTime)
	assert.True(t, s.AutoUpdate)
	assert.Nil(t, templateFrom(v))
}

func TestLoadConfigReadsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stored.yaml"), `
store: sqlite
path: state.db
server_tz: "+08:00"
auto_update: false
reset_time: "05:00"
template:
  dashboard:
    stamina:
      current: 1
`)

	v, err := loadConfig(dir)
	require.NoError(t, err)
	s, err := resolveSettings(v)
	require.NoError(t, err)

	assert.Equal(t, storeSQLite, s.Store)
	assert.Equal(t, "state.db", s.Path)
	assert.Equal(t, "+08:00", s.ServerTZ)
	assert.False(t, s.AutoUpdate)
	assert.Equal(t, "05:00", s.ResetTime)
	assert.Contains(t, templateFrom(v), "dashboard")
}

func TestEnvironmentOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stored.yaml"), "store: sqlite\nreset_time: \"05:00\"\n")
	t.Setenv("STORED_STORE", "memory")

	v, err := loadConfig(dir)
	require.NoError(t, err)
	s, err := resolveSettings(v)
	require.NoError(t, err)
	assert.Equal(t, storeMemory, s.Store)
	assert.Equal(t, "05:00", s.ResetTime)
}

func TestEnvironmentParseError(t *testing.T) {
	t.Setenv("STORED_AUTO_UPDATE", "not-a-bool")

	v, err := loadConfig(t.TempDir())
	require.NoError(t, err)
	_, err = resolveSettings(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env:")
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, settings{Store: "SQLite"}.validate())
	assert.Error(t, settings{Store: "redis"}.validate())
}

func TestSetThenShowPersistsToFileStore(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--config-dir", dir, "--path", filepath.Join(dir, "data"), "--json"}

	out, err := runCLI(t, append(base, "set", "counter", "dashboard.stamina", "current=3", "total=10")...)
	require.NoError(t, err)
	got := decodeObject(t, out)
	assert.Equal(t, float64(3), got["current"])
	assert.Equal(t, float64(10), got["total"])

	_, err = os.Stat(filepath.Join(dir, "data", "profile", "default.yaml"))
	require.NoError(t, err)

	out, err = runCLI(t, append(base, "show", "counter", "dashboard.stamina")...)
	require.NoError(t, err)
	got = decodeObject(t, out)
	assert.Equal(t, float64(3), got["current"])
	assert.Equal(t, float64(10), got["total"])
	assert.Contains(t, got, "time")
}

func TestSetRejectsUnknownAttributeAndBadValue(t *testing.T) {
	base := []string{"--config-dir", t.TempDir(), "--store", "memory"}

	_, err := runCLI(t, append(base, "set", "counter", "a.b", "missing=1")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown attribute")

	_, err = runCLI(t, append(base, "set", "counter", "a.b", "current=three")...)
	require.Error(t, err)

	_, err = runCLI(t, append(base, "set", "counter", "a.b", "current")...)
	require.Error(t, err)
}

func TestUnknownRecordType(t *testing.T) {
	_, err := runCLI(t, "--config-dir", t.TempDir(), "--store", "memory", "show", "widget", "a.b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestShowUsesTemplateDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "stored.yaml"), `
store: memory
template:
  dashboard:
    stamina:
      current: 120
      total: 240
`)

	out, err := runCLI(t, "--config-dir", dir, "--json", "show", "counter", "dashboard.stamina")
	require.NoError(t, err)
	got := decodeObject(t, out)
	assert.Equal(t, float64(120), got["current"])
	assert.Equal(t, float64(240), got["total"])

	out, err = runCLI(t, "--config-dir", dir, "--json", "dump", "--key", "dashboard.stamina.total")
	require.NoError(t, err)
	assert.Equal(t, "240\n", out)
}

func TestExpiredNeverWrittenRecord(t *testing.T) {
	out, err := runCLI(t, "--config-dir", t.TempDir(), "--store", "memory", "--json",
		"expired", "dungeon_double", "dungeon.double")
	require.NoError(t, err)
	got := decodeObject(t, out)
	assert.Equal(t, true, got["expired"])
	assert.Equal(t, "TimeError", got["bucket"])
}

func TestQuestsWriteAndLoad(t *testing.T) {
	dir := t.TempDir()
	questsPath := filepath.Join(dir, "quests.yaml")
	writeFile(t, questsPath, `
- Complete_Daily_Login
- name: Use_Consumable
  aliases: [consumable]
`)
	base := []string{"--config-dir", dir, "--path", filepath.Join(dir, "data"), "--quests", questsPath, "--json"}

	out, err := runCLI(t, append(base, "quests", "daily.quests", "--write", "Complete_Daily_Login,Destroy_Destructible,consumable")...)
	require.NoError(t, err)
	var raw []string
	require.NoError(t, json.Unmarshal([]byte(out), &raw))
	assert.Equal(t, []string{"Complete_Daily_Login", "Destroy_Destructible", "consumable", "", "", ""}, raw)

	out, err = runCLI(t, append(base, "quests", "daily.quests")...)
	require.NoError(t, err)
	var resolved []string
	require.NoError(t, json.Unmarshal([]byte(out), &resolved))
	assert.Equal(t, []string{"Complete_Daily_Login", "Use_Consumable"}, resolved)
}

func TestEvalAgainstStoredRecord(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--config-dir", dir, "--path", filepath.Join(dir, "data"), "--json"}

	_, err := runCLI(t, append(base, "set", "counter", "stats.runs", "current=3", "total=10")...)
	require.NoError(t, err)

	out, err := runCLI(t, append(base, "eval", "counter", "stats.runs", "current < total")...)
	require.NoError(t, err)
	assert.Equal(t, "true\n", out)

	out, err = runCLI(t, append(base, "eval", "counter", "stats.runs", "--arg", "label=runs", `args.label + ":" + string(current)`)...)
	require.NoError(t, err)
	assert.Equal(t, "\"runs:3\"\n", out)

	_, err = runCLI(t, append(base, "eval", "--engine", "lua", "counter", "stats.runs", "current")...)
	require.Error(t, err)
}

func TestTypesListsRegisteredSchemas(t *testing.T) {
	out, err := runCLI(t, "--json", "types")
	require.NoError(t, err)

	var got map[string][]map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Contains(t, got, "daily")
	assert.Len(t, got["daily"], 7)
	assert.Equal(t, "time", got["counter"][0]["path"])
}

func TestTypesOpenAPI(t *testing.T) {
	out, err := runCLI(t, "--json", "types", "--openapi")
	require.NoError(t, err)

	got := decodeObject(t, out)
	assert.Equal(t, "3.0.3", got["openapi"])
	schemas := got["components"].(map[string]any)["schemas"].(map[string]any)
	assert.Contains(t, schemas, "CounterRecord")
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	base := []string{"--config-dir", dir, "--store", "sqlite", "--path", filepath.Join(dir, "db", "stored.db"), "--json"}

	_, err := runCLI(t, append(base, "set", "dungeon_double", "dungeon.double", "calyx=2", "relic=1")...)
	require.NoError(t, err)

	out, err := runCLI(t, append(base, "show", "dungeon_double", "dungeon.double")...)
	require.NoError(t, err)
	got := decodeObject(t, out)
	assert.Equal(t, float64(2), got["calyx"])
	assert.Equal(t, float64(1), got["relic"])
}
