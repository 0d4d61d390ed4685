package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "NI", r.Canonical[0].Name)
	assert.Len(t, r.AvailabilityNo, 2)
	assert.GreaterOrEqual(t, len(r.Exclusions), 15)
	assert.Contains(t, r.ExclusionSet(), "UK Biobank")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	blob := []byte(`
canonical:
  - pattern: 'foo'
    name: Foo Database
exclusions:
  - "  Bar  "
`)
	require.NoError(t, os.WriteFile(path, blob, 0o644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bar"}, r.Exclusions)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		blob string
	}{
		{name: "empty", blob: `exclusions: [a]`},
		{name: "bad regexp", blob: "canonical:\n  - pattern: '('\n    name: X\n"},
		{name: "duplicate name", blob: "canonical:\n  - pattern: a\n    name: X\n  - pattern: b\n    name: X\n"},
		{name: "unknown flag", blob: "canonical:\n  - pattern: a\n    name: X\ndatatype_overrides:\n  - name: X\n    flags: [imaging]\n"},
		{name: "unknown field", blob: "canonical:\n  - pattern: a\n    name: X\nvalue_overrides:\n  - name: X\n    field: email\n    value: y\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.blob))
			assert.Error(t, err)
		})
	}
}
