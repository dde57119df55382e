package risk

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for name, want := range map[string]Level{
		"minimal":  Minimal,
		"none":     Minimal,
		"LOW":      Low,
		" medium ": Medium,
		"high":     High,
		"Critical": Critical,
	} {
		got, err := Parse(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := Parse("extreme")
	assert.Error(t, err)
}

func TestLevelJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Risk Level `json:"risk"`
	}{Risk: High})
	require.NoError(t, err)
	assert.JSONEq(t, `{"risk":"high"}`, string(data))

	var out struct {
		Risk Level `json:"risk"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"risk":"critical"}`), &out))
	assert.Equal(t, Critical, out.Risk)

	assert.Error(t, json.Unmarshal([]byte(`{"risk":"spicy"}`), &out))
}

func TestOrdering(t *testing.T) {
	assert.True(t, High.AtLeast(Medium))
	assert.True(t, Medium.AtLeast(Medium))
	assert.False(t, Low.AtLeast(Medium))
	assert.Equal(t, Critical, Max(Low, Critical, Medium))
	assert.Equal(t, Minimal, Max())
}
