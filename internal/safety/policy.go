package safety

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/risk"
)

type Tier string

const (
	TierPermissive Tier = "permissive"
	TierStandard   Tier = "standard"
	TierStrict     Tier = "strict"
	TierParanoid   Tier = "paranoid"
)

// Tiers lists the tiers from least to most restrictive.
var Tiers = []Tier{TierPermissive, TierStandard, TierStrict, TierParanoid}

func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(Tiers, t) {
		return t, nil
	}
	return "", vigilErrors.InvalidInput(fmt.Sprintf("unknown safety tier %q", s))
}

const mib = 1024 * 1024

// DefaultAllowedExtensions is the extension allow-list for every tier except paranoid.
var DefaultAllowedExtensions = []string{
	".py", ".js", ".ts", ".html", ".css", ".md", ".txt", ".json", ".yaml", ".yml",
	".toml", ".cfg", ".ini", ".xml", ".sql", ".sh", ".bat", ".ps1", ".dockerfile", ".gitignore",
}

var paranoidAllowedExtensions = []string{".py", ".txt", ".md", ".json"}

// DefaultForbiddenPaths are doublestar globs matched against slash-separated, cleaned paths.
var DefaultForbiddenPaths = []string{
	"/etc/**", "/usr/**", "/bin/**", "/sbin/**", "/boot/**",
	"**/node_modules/**", "**/.git/**", "**/venv/**", "**/__pycache__/**", "**/.vigil/**",
	"**/*.pyc", "**/*.exe", "**/*.dll", "**/*.so", "**/*.dylib",
}

// Policy is an immutable snapshot of the limits in force. Use the Store to change tiers.
type Policy struct {
	Tier                  Tier          `json:"tier" yaml:"tier"`
	MaxFileSizeBytes      int64         `json:"max_file_size_bytes" yaml:"max_file_size_bytes"`
	MaxActionsPerPlan     int           `json:"max_actions_per_plan" yaml:"max_actions_per_plan"`
	MaxTotalDuration      time.Duration `json:"max_total_duration" yaml:"max_total_duration"`
	MaxComplexityScore    int           `json:"max_complexity_score" yaml:"max_complexity_score"`
	BackupRetention       time.Duration `json:"backup_retention" yaml:"backup_retention"`
	ConfirmationThreshold risk.Level    `json:"confirmation_threshold" yaml:"confirmation_threshold"`
	AllowedExtensions     []string      `json:"allowed_extensions" yaml:"allowed_extensions"`
	ForbiddenPaths        []string      `json:"forbidden_paths" yaml:"forbidden_paths"`
	AuditEnabled          bool          `json:"audit_enabled" yaml:"audit_enabled"`
	BackupEnabled         bool          `json:"backup_enabled" yaml:"backup_enabled"`
	RollbackEnabled       bool          `json:"rollback_enabled" yaml:"rollback_enabled"`
	ConfirmationPrompts   bool          `json:"confirmation_prompts" yaml:"confirmation_prompts"`
	ContentScanning       bool          `json:"content_scanning" yaml:"content_scanning"`
	DryRunDefault         bool          `json:"dry_run_default" yaml:"dry_run_default"`
}

// Overrides are operator additions applied on top of the tier table. They are
// re-applied on every tier switch, never accumulated.
type Overrides struct {
	ExtraForbiddenPaths    []string
	ExtraAllowedExtensions []string
	DisableAudit           bool
	DisableBackup          bool
	DisableRollback        bool
}

func standard() Policy {
	return Policy{
		Tier:                  TierStandard,
		MaxFileSizeBytes:      10 * mib,
		MaxActionsPerPlan:     50,
		MaxTotalDuration:      300 * time.Second,
		MaxComplexityScore:    100,
		BackupRetention:       30 * 24 * time.Hour,
		ConfirmationThreshold: risk.Medium,
		AllowedExtensions:     slices.Clone(DefaultAllowedExtensions),
		ForbiddenPaths:        slices.Clone(DefaultForbiddenPaths),
		AuditEnabled:          true,
		BackupEnabled:         true,
		RollbackEnabled:       true,
		ConfirmationPrompts:   true,
		ContentScanning:       true,
	}
}

// ForTier builds the policy for tier from the fixed tier table plus overrides.
func ForTier(tier Tier, o Overrides) (Policy, error) {
	p := standard()

	switch tier {
	case TierStandard:
	case TierPermissive:
		p.MaxFileSizeBytes = 100 * mib
		p.MaxActionsPerPlan = 200
		p.MaxTotalDuration = 1800 * time.Second
		p.ConfirmationPrompts = false
		p.ContentScanning = false
	case TierStrict:
		p.MaxFileSizeBytes = 5 * mib
		p.MaxActionsPerPlan = 20
		p.MaxTotalDuration = 120 * time.Second
		p.ConfirmationThreshold = risk.Low
		p.DryRunDefault = true
	case TierParanoid:
		p.MaxFileSizeBytes = 1 * mib
		p.MaxActionsPerPlan = 5
		p.MaxTotalDuration = 60 * time.Second
		p.ConfirmationThreshold = risk.Minimal
		p.DryRunDefault = true
		p.AllowedExtensions = slices.Clone(paranoidAllowedExtensions)
	default:
		return Policy{}, vigilErrors.InvalidInput(fmt.Sprintf("unknown safety tier %q", tier))
	}
	p.Tier = tier

	for _, pattern := range o.ExtraForbiddenPaths {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !doublestar.ValidatePattern(pattern) {
			return Policy{}, vigilErrors.InvalidInput(fmt.Sprintf("invalid forbidden path pattern %q", pattern))
		}
		if !slices.Contains(p.ForbiddenPaths, pattern) {
			p.ForbiddenPaths = append(p.ForbiddenPaths, pattern)
		}
	}
	for _, ext := range o.ExtraAllowedExtensions {
		ext = normalizeExt(ext)
		if ext != "" && !slices.Contains(p.AllowedExtensions, ext) {
			p.AllowedExtensions = append(p.AllowedExtensions, ext)
		}
	}
	p.AuditEnabled = !o.DisableAudit
	p.BackupEnabled = !o.DisableBackup
	p.RollbackEnabled = !o.DisableRollback

	return p, nil
}

// ShouldRequireConfirmation reports whether level needs an operator prompt.
func (p Policy) ShouldRequireConfirmation(level risk.Level) bool {
	if !p.ConfirmationPrompts {
		return false
	}
	return level.AtLeast(p.ConfirmationThreshold)
}

// ExtensionAllowed checks ext (with or without the leading dot) against the allow-list.
func (p Policy) ExtensionAllowed(ext string) bool {
	ext = normalizeExt(ext)
	if ext == "" {
		return true
	}
	return slices.Contains(p.AllowedExtensions, ext)
}

// MatchForbidden returns the first forbidden glob matching target.
func (p Policy) MatchForbidden(target string) (string, bool) {
	name := CleanSlashPath(target)
	if name == "" {
		return "", false
	}
	for _, pattern := range p.ForbiddenPaths {
		if ok, _ := doublestar.Match(pattern, name); ok {
			return pattern, true
		}
	}
	return "", false
}

// Clone returns a deep copy.
func (p Policy) Clone() Policy {
	p.AllowedExtensions = slices.Clone(p.AllowedExtensions)
	p.ForbiddenPaths = slices.Clone(p.ForbiddenPaths)
	return p
}

// CleanSlashPath converts target to a cleaned, slash-separated path for glob matching.
func CleanSlashPath(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}
	return path.Clean(strings.ReplaceAll(target, `\`, "/"))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
