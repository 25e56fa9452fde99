package artifact

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/biogo/hts/bgzf"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/fingerprint"
)

const location = "https://files.example.org/member/42/genome.zip"

func withHash(h string) []Artifact {
	return []Artifact{
		{TempFilename: "23andMe-genotyping.txt", Metadata: Metadata{OrigFileHash: h}},
		{TempFilename: "23andMe-genotyping.vcf.gz", Metadata: Metadata{OrigFileHash: h}},
	}
}

func TestShouldUpdate(t *testing.T) {
	fp, err := fingerprint.New(location)
	require.NoError(t, err)
	other, err := fingerprint.New("https://files.example.org/member/42/genome_v5.zip")
	require.NoError(t, err)

	t.Run("no prior artifacts", func(t *testing.T) {
		assert.True(t, ShouldUpdate(nil, location, nil))
		assert.True(t, ShouldUpdate([]Artifact{}, location, nil))
	})

	t.Run("missing fingerprint", func(t *testing.T) {
		prior := withHash(fp)
		prior[1].Metadata.OrigFileHash = ""
		assert.True(t, ShouldUpdate(prior, location, nil))
	})

	t.Run("changed source", func(t *testing.T) {
		assert.True(t, ShouldUpdate(withHash(other), location, nil))
		prior := withHash(fp)
		prior[0].Metadata.OrigFileHash = other
		assert.True(t, ShouldUpdate(prior, location, nil))
	})

	t.Run("no current location", func(t *testing.T) {
		assert.True(t, ShouldUpdate(withHash(fp), "", nil))
	})

	t.Run("unchanged source is skipped and logged", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		entry := logger.WithField("user", "jane").WithField("source", "twenty_three_and_me")

		assert.False(t, ShouldUpdate(withHash(fp), location, entry))
		assert.False(t, ShouldUpdate(withHash(fp), location, entry), "idempotent")

		require.Len(t, hook.AllEntries(), 2)
		last := hook.LastEntry()
		assert.Equal(t, log.InfoLevel, last.Level)
		assert.Equal(t, "jane", last.Data["user"])
	})
}

func TestAssemble(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	a := NewAssembler(dir)
	a.Now = func() time.Time { return time.Date(2026, time.October, 19, 8, 30, 0, 0, time.UTC) }

	cleaned := []byte("# header\nrs123\t1\t1000\tAG\n")
	vcf := []byte("##fileformat=VCFv4.1\n1\t1000\trs123\tA\tG\t.\t.\t.\tGT\t0/1\n")

	artifacts, err := a.Assemble(cleaned, vcf, "$b2$fp")
	require.NoError(t, err)
	require.Len(t, artifacts, 2)

	assert.Equal(t, Artifact{
		TempFilename: "23andMe-genotyping.txt",
		Metadata: Metadata{
			Description:  "23andMe full genotyping data, original format",
			Tags:         []string{"23andMe", "genotyping"},
			OrigFileHash: "$b2$fp",
			CreationDate: "2026-10-19T08:30:00Z",
		},
	}, artifacts[0])
	assert.Equal(t, "23andMe-genotyping.vcf.gz", artifacts[1].TempFilename)
	assert.Equal(t, []string{"23andMe", "genotyping", "vcf"}, artifacts[1].Metadata.Tags)
	assert.Equal(t, "23andMe full genotyping data, VCF format", artifacts[1].Metadata.Description)

	raw, err := os.ReadFile(filepath.Join(dir, artifacts[0].TempFilename))
	require.NoError(t, err)
	assert.Equal(t, cleaned, raw)

	f, err := os.Open(filepath.Join(dir, artifacts[1].TempFilename))
	require.NoError(t, err)
	defer f.Close()
	bg, err := bgzf.NewReader(f, 1)
	require.NoError(t, err)
	defer bg.Close()
	got, err := io.ReadAll(bg)
	require.NoError(t, err)
	assert.Equal(t, vcf, got)
}

func TestAssembleWithoutFingerprint(t *testing.T) {
	artifacts, err := NewAssembler(t.TempDir()).Assemble([]byte{}, []byte{}, "")
	require.NoError(t, err)
	for _, a := range artifacts {
		assert.Empty(t, a.Metadata.OrigFileHash)
		assert.NotEmpty(t, a.Metadata.CreationDate)
	}
}

func TestAssembleFailureKeepsPreviousSet(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(dir)
	fp, err := fingerprint.New(location)
	require.NoError(t, err)

	prior, err := a.Assemble([]byte("old raw\n"), []byte("old vcf\n"), fp)
	require.NoError(t, err)
	require.NoError(t, WriteManifest(dir, prior))

	// a directory where the VCF goes makes the swap fail
	vcfPath := filepath.Join(dir, prior[1].TempFilename)
	require.NoError(t, os.Remove(vcfPath))
	require.NoError(t, os.MkdirAll(filepath.Join(vcfPath, "blocker"), 0o755))

	_, err = a.Assemble([]byte("new raw\n"), []byte("new vcf\n"), fp)
	require.Error(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, prior[0].TempFilename))
	require.NoError(t, err)
	assert.Equal(t, "old raw\n", string(raw), "raw file not replaced alone")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{prior[0].TempFilename, prior[1].TempFilename}, names, "staged files cleaned up")

	after, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.True(t, ShouldUpdate(after, location, nil), "failed run is redone")
}

func TestManifest(t *testing.T) {
	dir := t.TempDir()

	prior, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Empty(t, prior)

	want := withHash("$b2$abc")
	want[0].Metadata.Tags = []string{"23andMe", "genotyping"}
	require.NoError(t, WriteManifest(dir, want))

	got, err := ReadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("{"), 0o644))
	_, err = ReadManifest(dir)
	assert.Error(t, err)
}
