package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/vigil/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Workspace WorkspaceConfig `koanf:"workspace"`
	Safety    SafetyConfig    `koanf:"safety"`
	Executor  ExecutorConfig  `koanf:"executor"`
	Audit     AuditConfig     `koanf:"audit"`
	Store     StoreConfig     `koanf:"store"`
	Retention RetentionConfig `koanf:"retention"`
}

type LogConfig struct {
	Level string `koanf:"level"`
}

// WorkspaceConfig locates the directory plans operate on and the state directory
// vigil keeps plans, audit files, backups and run summaries in.
type WorkspaceConfig struct {
	Root    string `koanf:"root"`
	DataDir string `koanf:"data_dir"`
}

type SafetyConfig struct {
	Tier                   string   `koanf:"tier"`
	ExtraForbiddenPaths    []string `koanf:"extra_forbidden_paths"`
	ExtraAllowedExtensions []string `koanf:"extra_allowed_extensions"`
	ExtraDangerousPatterns []string `koanf:"extra_dangerous_patterns"`
	AuditEnabled           bool     `koanf:"audit_enabled"`
	BackupEnabled          bool     `koanf:"backup_enabled"`
	RollbackEnabled        bool     `koanf:"rollback_enabled"`
}

type ExecutorConfig struct {
	ActionTimeout  string `koanf:"action_timeout"`
	CommandTimeout string `koanf:"command_timeout"`
	StopOnError    bool   `koanf:"stop_on_error"`
	Shell          string `koanf:"shell"`
}

type AuditConfig struct {
	RecentCriticalLimit int      `koanf:"recent_critical_limit"`
	RedactPatterns      []string `koanf:"redact_patterns"`
	VerifyOnStart       bool     `koanf:"verify_on_start"`
}

type StoreConfig struct {
	LockTimeout  string `koanf:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry"`
}

type RetentionConfig struct {
	Schedule      string `koanf:"schedule"`
	BackupMaxAge  string `koanf:"backup_max_age"`
	SummaryMaxAge string `koanf:"summary_max_age"`
}

const (
	DefaultLogLevel                 = "info"
	DefaultWorkspaceRoot            = "."
	DefaultWorkspaceDataDir         = ".vigil"
	DefaultSafetyTier               = "standard"
	DefaultSafetyAuditEnabled       = true
	DefaultSafetyBackupEnabled      = true
	DefaultSafetyRollbackEnabled    = true
	DefaultExecutorActionTimeout    = "60s"
	DefaultExecutorCommandTimeout   = "300s"
	DefaultExecutorStopOnError      = true
	DefaultExecutorShell            = ""
	DefaultAuditRecentCriticalLimit = 50
	DefaultAuditVerifyOnStart       = false
	DefaultStoreLockTimeout         = "30s"
	DefaultStoreLockRetry           = "100ms"
	DefaultStoreLockMaxRetry        = 300
	DefaultRetentionSchedule        = "@daily"
	DefaultRetentionBackupMaxAge    = "720h"
	DefaultRetentionSummaryMaxAge   = "2160h"
)

// DefaultRedactPatterns mask obvious credentials before they reach the audit chain.
var DefaultRedactPatterns = []string{
	`(?i)(api[_-]?key|token|secret|password)\s*[=:]\s*\S+`,
	`(?i)authorization:\s*bearer\s+\S+`,
}

// Load layers hardcoded defaults, the YAML config file, VIGIL_ environment
// variables and command-line flags, in that order.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"log.level":                       DefaultLogLevel,
		"workspace.root":                  DefaultWorkspaceRoot,
		"workspace.data_dir":              DefaultWorkspaceDataDir,
		"safety.tier":                     DefaultSafetyTier,
		"safety.extra_forbidden_paths":    []string{},
		"safety.extra_allowed_extensions": []string{},
		"safety.extra_dangerous_patterns": []string{},
		"safety.audit_enabled":            DefaultSafetyAuditEnabled,
		"safety.backup_enabled":           DefaultSafetyBackupEnabled,
		"safety.rollback_enabled":         DefaultSafetyRollbackEnabled,
		"executor.action_timeout":         DefaultExecutorActionTimeout,
		"executor.command_timeout":        DefaultExecutorCommandTimeout,
		"executor.stop_on_error":          DefaultExecutorStopOnError,
		"executor.shell":                  DefaultExecutorShell,
		"audit.recent_critical_limit":     DefaultAuditRecentCriticalLimit,
		"audit.redact_patterns":           DefaultRedactPatterns,
		"audit.verify_on_start":           DefaultAuditVerifyOnStart,
		"store.lock_timeout":              DefaultStoreLockTimeout,
		"store.lock_retry":                DefaultStoreLockRetry,
		"store.lock_max_retry":            DefaultStoreLockMaxRetry,
		"retention.schedule":              DefaultRetentionSchedule,
		"retention.backup_max_age":        DefaultRetentionBackupMaxAge,
		"retention.summary_max_age":       DefaultRetentionSummaryMaxAge,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	// Config file loading
	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if globalPath, err := DefaultConfigPath(); err == nil {
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	// Environment Variables
	k.Load(env.Provider("VIGIL_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "VIGIL_")), "__", ".", -1)
	}), nil)

	// CLI Flags
	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	if err := normalizePathFields(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// DefaultConfigPath is ~/.vigil/config.yaml.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vigil", "config.yaml"), nil
}

// DataPath resolves the state directory. A relative data_dir lives under the workspace root.
func (c *Config) DataPath() string {
	if filepath.IsAbs(c.Workspace.DataDir) {
		return c.Workspace.DataDir
	}
	return filepath.Join(c.Workspace.Root, c.Workspace.DataDir)
}

func normalizePathFields(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	root, err := expandConfiguredPath(cfg.Workspace.Root)
	if err != nil {
		return err
	}
	if root == "" {
		root = DefaultWorkspaceRoot
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	cfg.Workspace.Root = absRoot

	dataDir, err := expandConfiguredPath(cfg.Workspace.DataDir)
	if err != nil {
		return err
	}
	if dataDir == "" {
		dataDir = DefaultWorkspaceDataDir
	}
	cfg.Workspace.DataDir = dataDir

	return nil
}

func expandConfiguredPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return "", err
	}
	return expanded, nil
}
