package pathutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	t.Setenv("HOME", "/home/ops")
	t.Setenv("VIGIL_PATH_TEST", "/srv/data")

	cases := map[string]string{
		"":                        "",
		"   ":                     "",
		"~":                       "/home/ops",
		"~/.vigil/config.yaml":    "/home/ops/.vigil/config.yaml",
		"$VIGIL_PATH_TEST/plans/": "/srv/data/plans",
		"relative/./dir":          "relative/dir",
	}
	for in, want := range cases {
		got, err := Expand(in)
		require.NoError(t, err, in)
		assert.Equal(t, filepath.FromSlash(want), got, in)
	}
}

func TestExpand_UnresolvedHome(t *testing.T) {
	t.Setenv("HOME", "~")

	_, err := Expand("~/.vigil")
	assert.Error(t, err)
}

func TestWithin(t *testing.T) {
	base := filepath.FromSlash("/work/space")

	got, err := Within(base, "notes/today.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "notes", "today.txt"), got)

	got, err = Within(base, "/etc/../tmp/x")
	require.NoError(t, err)
	assert.Equal(t, filepath.FromSlash("/tmp/x"), got)

	for _, bad := range []string{"../outside", "a/../../b", ""} {
		_, err := Within(base, bad)
		assert.ErrorIs(t, err, ErrEscapesBase, bad)
	}
}
