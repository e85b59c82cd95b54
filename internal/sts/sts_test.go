package sts

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hwsec-lab/sramlab/internal/execx"
	"github.com/hwsec-lab/sramlab/internal/fsutil"
)

func TestConfigRender(t *testing.T) {
	t.Parallel()

	out, err := DefaultConfig("data/readout.bin").Render()
	require.NoError(t, err)
	assert.Equal(t, "0\ndata/readout.bin\n1\n0\n1\n1\n", out)

	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	assert.Len(t, lines, 6, "assess expects exactly six answers")

	ascii := Config{DataFile: "bits.txt", TestSelection: "1", Streams: 10}
	out, err = ascii.Render()
	require.NoError(t, err)
	assert.Equal(t, "0\nbits.txt\n1\n0\n10\n0\n", out)
}

func TestConfigRenderValidation(t *testing.T) {
	t.Parallel()

	_, err := Config{TestSelection: "1", Streams: 1}.Render()
	assert.Error(t, err, "missing data file")

	_, err = Config{DataFile: "f", Streams: 1}.Render()
	assert.Error(t, err, "missing test selection")

	_, err = Config{DataFile: "f", TestSelection: "1"}.Render()
	assert.Error(t, err, "zero streams")

	_, err = Config{DataFile: "a\nb", TestSelection: "1", Streams: 1}.Render()
	assert.Error(t, err, "newline would desynchronise the prompt answers")
}

func TestInstallRunsToolchain(t *testing.T) {
	t.Parallel()

	b := execx.NewMockBuilder()
	fs := fsutil.NewMemoryFileSystem()
	s := NewSuite("third_party/sts", b, fs)

	require.NoError(t, s.Install())

	require.Len(t, b.Commands, 3)
	assert.Equal(t, "curl", b.Commands[0].Name)
	assert.Contains(t, b.Commands[0].Args, DefaultURL)
	assert.Equal(t, "unzip", b.Commands[1].Name)
	assert.Equal(t, "make", b.Commands[2].Name)
	assert.Contains(t, b.Commands[2].Args, filepath.Join("third_party/sts", "sts-2.1.2/sts-2.1.2"))
}

func TestInstallSkipsWhenBuilt(t *testing.T) {
	t.Parallel()

	b := execx.NewMockBuilder()
	fs := fsutil.NewMemoryFileSystem()
	s := NewSuite("third_party/sts", b, fs)
	require.NoError(t, fs.WriteFile(s.AssessPath(), []byte("binary"), 0755))

	require.NoError(t, s.Install())
	assert.Empty(t, b.Commands)
}

func TestInstallAbortsOnFirstFailure(t *testing.T) {
	t.Parallel()

	b := execx.NewMockBuilder()
	b.SetNextExecutor(&execx.MockExecutor{Err: errors.New("curl: (6) could not resolve host")})
	s := NewSuite("third_party/sts", b, fsutil.NewMemoryFileSystem())

	err := s.Install()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "curl failed")
	assert.Len(t, b.Commands, 1, "unzip and make must not run after curl fails")
}

func TestAssess(t *testing.T) {
	t.Parallel()

	b := execx.NewMockBuilder()
	s := NewSuite("third_party/sts", b, fsutil.NewMemoryFileSystem())

	require.NoError(t, s.Assess(655360, DefaultConfig("/data/readout.bin")))

	cmd := b.LastCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, s.AssessPath(), cmd.Name)
	assert.Equal(t, []string{"655360"}, cmd.Args)

	exe := b.LastExecutor()
	require.NotNil(t, exe)
	assert.Equal(t, "0\n/data/readout.bin\n1\n0\n1\n1\n", string(exe.Stdin))
	assert.Equal(t, filepath.Join("third_party/sts", "sts-2.1.2/sts-2.1.2"), exe.Dir)

	err := s.Assess(0, DefaultConfig("x"))
	assert.Error(t, err)
}

const sampleReport = `
------------------------------------------------------------------------------
RESULTS FOR THE UNIFORMITY OF P-VALUES AND THE PROPORTION OF PASSING SEQUENCES
------------------------------------------------------------------------------
   generator is <data/readout.bin>
------------------------------------------------------------------------------
 C1  C2  C3  C4  C5  C6  C7  C8  C9 C10  P-VALUE  PROPORTION  STATISTICAL TEST
------------------------------------------------------------------------------
  1   2   0   1   1   1   1   1   1   1  0.739918     10/10    Frequency
  0   1   2   1   2   0   1   2   0   1  0.534146      9/10    BlockFrequency
  2   1   0   1   1   2   0   2   0   1  0.213309*     8/10*   Runs
  1   1   1   1   1   1   1   1   1   1  ----          10/10   Universal
  0   2   1   1   1   1   1   1   1   1  0.911413     10/10    Serial
  0   2   1   1   1   1   1   1   1   1  0.350485     10/10    Serial
`

func TestParseReport(t *testing.T) {
	t.Parallel()

	entries, err := ParseReport([]byte(sampleReport))
	require.NoError(t, err)
	require.Len(t, entries, 6)

	assert.Equal(t, "Frequency", entries[0].Test)
	assert.InDelta(t, 0.739918, entries[0].PValue, 1e-9)
	assert.Equal(t, 10, entries[0].Passed)
	assert.Equal(t, 10, entries[0].Streams)
	assert.True(t, entries[0].Uniformity)

	assert.Equal(t, "BlockFrequency", entries[1].Test)
	assert.Equal(t, 9, entries[1].Passed)

	assert.Equal(t, "Runs", entries[2].Test)
	assert.False(t, entries[2].Uniformity, "starred p-value marks a uniformity failure")
	assert.Equal(t, 8, entries[2].Passed)

	assert.Equal(t, "Universal", entries[3].Test)
	assert.Zero(t, entries[3].PValue, "dashed p-value parses as zero")

	_, err = ParseReport([]byte("no rows here\n"))
	assert.Error(t, err)
}

func TestSummaryFlagsFailures(t *testing.T) {
	t.Parallel()

	entries, err := ParseReport([]byte(sampleReport))
	require.NoError(t, err)

	summary := Summary(entries)
	assert.Contains(t, summary, "Frequency")
	for _, line := range strings.Split(summary, "\n") {
		if strings.Contains(line, "Runs") {
			assert.Contains(t, line, "<-", "failing rows are flagged")
		}
		if strings.Contains(line, "Frequency") && !strings.Contains(line, "Block") {
			assert.NotContains(t, line, "<-")
		}
	}
}
