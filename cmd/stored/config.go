// Config loading for the stored CLI.
package main

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "stored"
	configFileType = "yaml"

	cfgKeyStore      = "store"
	cfgKeyPath       = "path"
	cfgKeyFormat     = "format"
	cfgKeyProfile    = "profile"
	cfgKeyServerTZ   = "server_tz"
	cfgKeyAutoUpdate = "auto_update"
	cfgKeyResetTime  = "reset_time"
	cfgKeyQuests     = "quests"
	cfgKeyTemplate   = "template"

	storeFile   = "file"
	storeSQLite = "sqlite"
	storeMemory = "memory"

	defaultDataDir = ".stored"
	defaultDBFile  = "stored.db"
)

// settings is the resolved CLI configuration. Precedence, lowest first:
// defaults, stored.yaml, STORED_* environment, flags.
type settings struct {
	Store      string `env:"STORED_STORE"`
	Path       string `env:"STORED_PATH"`
	Format     string `env:"STORED_FORMAT"`
	Profile    string `env:"STORED_PROFILE"`
	ServerTZ   string `env:"STORED_SERVER_TZ"`
	AutoUpdate bool   `env:"STORED_AUTO_UPDATE"`
	ResetTime  string `env:"STORED_RESET_TIME"`
	Quests     string `env:"STORED_QUESTS"`
}

// loadConfig reads stored.yaml from configDir. A missing file is not an
// error.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyStore, storeFile)
	v.SetDefault(cfgKeyFormat, "yaml")
	v.SetDefault(cfgKeyResetTime, "04:00")
	v.SetDefault(cfgKeyAutoUpdate, true)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// resolveSettings reads the file values from v and overlays the environment.
func resolveSettings(v *viper.Viper) (settings, error) {
	s := settings{
		Store:      v.GetString(cfgKeyStore),
		Path:       v.GetString(cfgKeyPath),
		Format:     v.GetString(cfgKeyFormat),
		Profile:    v.GetString(cfgKeyProfile),
		ServerTZ:   v.GetString(cfgKeyServerTZ),
		AutoUpdate: v.GetBool(cfgKeyAutoUpdate),
		ResetTime:  v.GetString(cfgKeyResetTime),
		Quests:     v.GetString(cfgKeyQuests),
	}
	if err := parseEnv(&s); err != nil {
		return settings{}, err
	}
	return s, nil
}

// parseEnv overlays STORED_* variables; unset variables leave fields alone.
func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// templateFrom returns the template tree declared under the template key.
// Viper lowercases map keys.
func templateFrom(v *viper.Viper) map[string]any {
	if !v.IsSet(cfgKeyTemplate) {
		return nil
	}
	return v.GetStringMap(cfgKeyTemplate)
}

// apply overrides s with the flags explicitly set on cmd.
func (f *flagValues) apply(cmd *cobra.Command, s *settings) {
	flags := cmd.Flags()
	if flags.Changed("store") {
		s.Store = f.store
	}
	if flags.Changed("path") {
		s.Path = f.path
	}
	if flags.Changed("format") {
		s.Format = f.format
	}
	if flags.Changed("profile") {
		s.Profile = f.profile
	}
	if flags.Changed("server-tz") {
		s.ServerTZ = f.serverTZ
	}
	if flags.Changed("auto-update") {
		s.AutoUpdate = f.autoUpdate
	}
	if flags.Changed("reset-time") {
		s.ResetTime = f.resetTime
	}
	if flags.Changed("quests") {
		s.Quests = f.quests
	}
}

func (s settings) validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Store)) {
	case storeFile, storeSQLite, storeMemory:
	default:
		return fmt.Errorf("unknown store %q (valid: file, sqlite, memory)", s.Store)
	}
	return nil
}
