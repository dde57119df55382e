package safety

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/risk"
)

func TestTierTable(t *testing.T) {
	standardPolicy, err := ForTier(TierStandard, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, int64(10*mib), standardPolicy.MaxFileSizeBytes)
	assert.Equal(t, 50, standardPolicy.MaxActionsPerPlan)
	assert.Equal(t, 300*time.Second, standardPolicy.MaxTotalDuration)
	assert.Equal(t, risk.Medium, standardPolicy.ConfirmationThreshold)
	assert.False(t, standardPolicy.DryRunDefault)

	paranoid, err := ForTier(TierParanoid, Overrides{})
	require.NoError(t, err)
	assert.Equal(t, int64(1*mib), paranoid.MaxFileSizeBytes)
	assert.Equal(t, 5, paranoid.MaxActionsPerPlan)
	assert.Equal(t, 60*time.Second, paranoid.MaxTotalDuration)
	assert.Equal(t, risk.Minimal, paranoid.ConfirmationThreshold)
	assert.True(t, paranoid.DryRunDefault)
	assert.ElementsMatch(t, []string{".py", ".txt", ".md", ".json"}, paranoid.AllowedExtensions)

	permissive, err := ForTier(TierPermissive, Overrides{})
	require.NoError(t, err)
	assert.False(t, permissive.ConfirmationPrompts)
	assert.False(t, permissive.ContentScanning)
}

func TestTiersAreMonotonic(t *testing.T) {
	var prev *Policy
	for _, tier := range Tiers {
		p, err := ForTier(tier, Overrides{})
		require.NoError(t, err)
		if prev != nil {
			assert.LessOrEqual(t, p.MaxFileSizeBytes, prev.MaxFileSizeBytes, tier)
			assert.LessOrEqual(t, p.MaxActionsPerPlan, prev.MaxActionsPerPlan, tier)
			assert.LessOrEqual(t, p.MaxTotalDuration, prev.MaxTotalDuration, tier)
		}
		prev = &p
	}
}

func TestUnknownTier(t *testing.T) {
	_, err := ForTier("reckless", Overrides{})
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)

	_, err = ParseTier("reckless")
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)

	tier, err := ParseTier(" Strict ")
	require.NoError(t, err)
	assert.Equal(t, TierStrict, tier)
}

func TestShouldRequireConfirmation(t *testing.T) {
	p, err := ForTier(TierStandard, Overrides{})
	require.NoError(t, err)
	assert.False(t, p.ShouldRequireConfirmation(risk.Low))
	assert.True(t, p.ShouldRequireConfirmation(risk.Medium))
	assert.True(t, p.ShouldRequireConfirmation(risk.Critical))

	paranoid, err := ForTier(TierParanoid, Overrides{})
	require.NoError(t, err)
	assert.True(t, paranoid.ShouldRequireConfirmation(risk.Minimal))

	permissive, err := ForTier(TierPermissive, Overrides{})
	require.NoError(t, err)
	assert.False(t, permissive.ShouldRequireConfirmation(risk.Critical))
}

func TestMatchForbidden(t *testing.T) {
	p, err := ForTier(TierStandard, Overrides{ExtraForbiddenPaths: []string{"secrets/**"}})
	require.NoError(t, err)

	for _, target := range []string{
		"/etc/passwd",
		".git/config",
		"./src/.git/HEAD",
		"web/node_modules/left-pad/index.js",
		"build/app.exe",
		"lib/native.so",
		"secrets/prod.env",
	} {
		_, ok := p.MatchForbidden(target)
		assert.True(t, ok, target)
	}

	for _, target := range []string{"src/main.py", "README.md", "docs/git-notes.md", ""} {
		_, ok := p.MatchForbidden(target)
		assert.False(t, ok, target)
	}
}

func TestOverrides(t *testing.T) {
	p, err := ForTier(TierParanoid, Overrides{
		ExtraAllowedExtensions: []string{"go", ".MOD"},
		DisableBackup:          true,
	})
	require.NoError(t, err)
	assert.True(t, p.ExtensionAllowed(".go"))
	assert.True(t, p.ExtensionAllowed("mod"))
	assert.False(t, p.ExtensionAllowed(".js"))
	assert.True(t, p.ExtensionAllowed(""))
	assert.False(t, p.BackupEnabled)
	assert.True(t, p.AuditEnabled)

	_, err = ForTier(TierStandard, Overrides{ExtraForbiddenPaths: []string{"[unclosed"}})
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)
}

func TestCloneIsDeep(t *testing.T) {
	p, err := ForTier(TierStandard, Overrides{})
	require.NoError(t, err)
	c := p.Clone()
	c.AllowedExtensions[0] = ".changed"
	assert.NotEqual(t, ".changed", p.AllowedExtensions[0])
}
