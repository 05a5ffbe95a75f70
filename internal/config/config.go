// Package config loads lazystage settings from YAML, git config and
// command-line overrides, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	lserrors "github.com/chmouel/lazystage/internal/errors"
	"github.com/chmouel/lazystage/internal/models"
	"github.com/chmouel/lazystage/internal/utils"
	"gopkg.in/yaml.v3"
)

const appName = "lazystage"

// AppConfig defines the global lazystage configuration options.
type AppConfig struct {
	DebugLog          string
	DraftStore        string
	DraftDir          string
	SQLitePath        string
	RedisAddr         string
	RedisPrefix       string
	AuthorName        string
	AuthorEmail       string
	AutoRefresh       bool
	RefreshDebounceMS int
	SSHKey            string
	GitPath           string
	ConfigPath        string
}

// DefaultConfig returns the default configuration values.
func DefaultConfig() *AppConfig {
	dataDir := filepath.Join(getDataDir(), appName)
	return &AppConfig{
		DraftStore:        "file",
		DraftDir:          dataDir,
		SQLitePath:        filepath.Join(dataDir, models.DraftsDatabaseFilename),
		RedisAddr:         "localhost:6379",
		RedisPrefix:       appName,
		AutoRefresh:       true,
		RefreshDebounceMS: 300,
		GitPath:           "git",
	}
}

func coerceBool(value any, defaultVal bool) bool {
	if value == nil {
		return defaultVal
	}

	switch v := value.(type) {
	case bool:
		return v
	case int:
		return v != 0
	case string:
		text := strings.ToLower(strings.TrimSpace(v))
		switch text {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return defaultVal
}

func coerceInt(value any, defaultVal int) int {
	if value == nil {
		return defaultVal
	}

	switch v := value.(type) {
	case bool:
		return defaultVal
	case int:
		return v
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return defaultVal
		}
		if i, err := strconv.Atoi(text); err == nil {
			return i
		}
	}
	return defaultVal
}

// coerceString takes the last value of a multi-valued key.
func coerceString(value any, defaultVal string) string {
	switch v := value.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	case []any:
		if len(v) > 0 {
			return coerceString(v[len(v)-1], defaultVal)
		}
	case int, bool:
		return fmt.Sprint(v)
	}
	return defaultVal
}

func coercePath(value any, defaultVal string) string {
	raw := coerceString(value, "")
	if raw == "" {
		return defaultVal
	}
	expanded, err := utils.ExpandPath(raw)
	if err != nil {
		return defaultVal
	}
	return expanded
}

func parseConfig(data map[string]any) *AppConfig {
	cfg := DefaultConfig()

	cfg.DebugLog = coercePath(data["debug_log"], cfg.DebugLog)
	cfg.DraftStore = strings.ToLower(coerceString(data["draft_store"], cfg.DraftStore))
	if dir := coercePath(data["draft_dir"], ""); dir != "" {
		cfg.DraftDir = dir
		// the database follows the draft directory unless set explicitly
		cfg.SQLitePath = filepath.Join(dir, models.DraftsDatabaseFilename)
	}
	cfg.SQLitePath = coercePath(data["sqlite_path"], cfg.SQLitePath)
	cfg.RedisAddr = coerceString(data["redis_addr"], cfg.RedisAddr)
	cfg.RedisPrefix = coerceString(data["redis_prefix"], cfg.RedisPrefix)
	cfg.AuthorName = coerceString(data["author_name"], cfg.AuthorName)
	cfg.AuthorEmail = coerceString(data["author_email"], cfg.AuthorEmail)
	cfg.AutoRefresh = coerceBool(data["auto_refresh"], cfg.AutoRefresh)
	if debounce := coerceInt(data["refresh_debounce_ms"], cfg.RefreshDebounceMS); debounce >= 0 {
		cfg.RefreshDebounceMS = debounce
	}
	cfg.SSHKey = coercePath(data["ssh_key"], cfg.SSHKey)
	cfg.GitPath = coerceString(data["git_path"], cfg.GitPath)

	return cfg
}

func getConfigDir() string {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return xdgConfigHome
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config")
}

func getDataDir() string {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share")
}

// readYAML returns the raw settings map from configPath, or from the
// default locations when configPath is empty. A missing file yields nil.
func readYAML(configPath string) (map[string]any, string, error) {
	const op = lserrors.Op("config.readYAML")

	configBase := filepath.Clean(filepath.Join(getConfigDir(), appName))

	var paths []string
	if configPath != "" {
		expanded, err := utils.ExpandPath(configPath)
		if err != nil {
			return nil, "", lserrors.E(op, lserrors.KindConfig, err)
		}
		absPath, err := filepath.Abs(expanded)
		if err != nil {
			return nil, "", lserrors.E(op, lserrors.KindConfig, err)
		}
		if !utils.IsPathWithin(configBase, absPath) {
			return nil, "", lserrors.E(op, lserrors.KindConfig, fmt.Sprintf("config path must reside inside %s", configBase))
		}
		paths = []string{absPath}
	} else {
		paths = []string{
			filepath.Join(configBase, "config.yaml"),
			filepath.Join(configBase, "config.yml"),
		}
	}

	for _, path := range paths {
		// #nosec G304 -- path is constrained to the config directory after validation
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, path, lserrors.E(op, lserrors.KindConfig, err)
		}

		var yamlData map[string]any
		if err := yaml.Unmarshal(data, &yamlData); err != nil {
			return nil, path, lserrors.E(op, lserrors.KindConfig, fmt.Errorf("failed to parse %s: %w", path, err))
		}
		return yamlData, path, nil
	}
	return nil, "", nil
}

// LoadConfig reads the application configuration from a YAML file.
func LoadConfig(configPath string) (*AppConfig, error) {
	data, path, err := readYAML(configPath)
	if err != nil {
		return DefaultConfig(), err
	}
	cfg := parseConfig(data)
	cfg.ConfigPath = path
	return cfg, nil
}

// Load layers the YAML file, global and repository git config
// (lazystage.*) and CLI overrides (lazystage.key=value).
func Load(configPath, repoPath string, overrides []string) (*AppConfig, error) {
	const op = lserrors.Op("config.Load")

	data, path, err := readYAML(configPath)
	if err != nil {
		return DefaultConfig(), err
	}
	merged := map[string]any{}
	mergeInto(merged, data)

	global, err := loadGitConfig(true, "")
	if err != nil {
		return DefaultConfig(), lserrors.E(op, lserrors.KindConfig, err)
	}
	mergeInto(merged, global)

	if repoPath != "" {
		local, err := loadGitConfig(false, repoPath)
		if err != nil {
			return DefaultConfig(), lserrors.E(op, lserrors.KindConfig, err)
		}
		mergeInto(merged, local)
	}

	cli, err := parseCLIConfigOverrides(overrides)
	if err != nil {
		return DefaultConfig(), lserrors.E(op, lserrors.KindConfig, err)
	}
	mergeInto(merged, cli)

	cfg := parseConfig(merged)
	cfg.ConfigPath = path
	return cfg, nil
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
