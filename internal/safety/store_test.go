package safety

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSwitchTierIsDeterministic(t *testing.T) {
	overrides := Overrides{ExtraForbiddenPaths: []string{"private/**"}}
	s, err := NewStore(TierStandard, overrides)
	require.NoError(t, err)

	initial := s.Current()

	_, err = s.SwitchTier(TierParanoid)
	require.NoError(t, err)
	_, err = s.SwitchTier(TierPermissive)
	require.NoError(t, err)
	back, err := s.SwitchTier(TierStandard)
	require.NoError(t, err)

	assert.Equal(t, initial, back)
	assert.Equal(t, initial, s.Current())
	assert.Equal(t, TierStandard, s.Tier())
}

func TestStoreRejectsUnknownTier(t *testing.T) {
	s, err := NewStore(TierStrict, Overrides{})
	require.NoError(t, err)

	_, err = s.SwitchTier("yolo")
	assert.Error(t, err)
	assert.Equal(t, TierStrict, s.Tier())

	_, err = NewStore("yolo", Overrides{})
	assert.Error(t, err)
}

func TestStoreOnChange(t *testing.T) {
	s, err := NewStore(TierStandard, Overrides{})
	require.NoError(t, err)

	var mu sync.Mutex
	var seen [][2]Tier
	s.OnChange(func(prev, next Policy) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, [2]Tier{prev.Tier, next.Tier})
	})

	_, err = s.SwitchTier(TierStrict)
	require.NoError(t, err)

	assert.Equal(t, [][2]Tier{{TierStandard, TierStrict}}, seen)
}

func TestStoreCurrentReturnsCopy(t *testing.T) {
	s, err := NewStore(TierStandard, Overrides{})
	require.NoError(t, err)

	p := s.Current()
	p.ForbiddenPaths = nil
	p.MaxActionsPerPlan = 1

	assert.NotEmpty(t, s.Current().ForbiddenPaths)
	assert.Equal(t, 50, s.Current().MaxActionsPerPlan)
}
