package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupBuiltin(t *testing.T) {
	t.Parallel()

	p, err := Lookup("st_nucleo_l1")
	require.NoError(t, err)

	base, err := p.Base()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x20000000), base)

	size, err := p.Size()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x14000), size)

	_, err = Lookup("no_such_board")
	assert.Error(t, err)
}

func TestLoadProfilesPartialOverride(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	// override only the SRAM size of a builtin profile, add a new board
	content := `{
		"st_nucleo_l1": {"sram_size": "0x8000"},
		"custom_board": {
			"interface": "interface/jlink.cfg",
			"target": "target/stm32f1x.cfg",
			"sram_base": "0x20000000",
			"sram_size": "0x5000"
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	profiles, err := LoadProfiles(path)
	require.NoError(t, err)

	l1 := profiles["st_nucleo_l1"]
	size, err := l1.Size()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x8000), size, "override should replace the builtin size")
	assert.Equal(t, "board/st_nucleo_l1.cfg", *l1.Target, "unset fields keep builtin values")

	custom := profiles["custom_board"]
	base, err := custom.Base()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x20000000), base)
}

func TestLoadProfilesRejectsIncomplete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"broken": {"sram_base": "0x20000000"}}`), 0644))

	_, err := LoadProfiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestLoadProfilesRequiresJSONExtension(t *testing.T) {
	t.Parallel()

	_, err := LoadProfiles("profiles.yaml")
	require.Error(t, err)
}

func TestParseNum(t *testing.T) {
	t.Parallel()

	v, err := ParseNum("0x20000000")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x20000000), v)

	// bare values are decimal, not hex
	v, err = ParseNum("4096")
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), v)

	_, err = ParseNum("0xnope")
	assert.Error(t, err)

	_, err = ParseNum("0x100000000")
	assert.Error(t, err, "values must fit in 32 bits")
}
