package convert

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/brentp/vcfgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/reference"
)

const refTable = "1\t1000\tA\n" +
	"MT\t50\tC\n" +
	"X\t2700157\tG\n" +
	"22\t17000\tT\n" +
	"2\t17001\tC\n" +
	"3\t3000\tC\n"

func testGenome(t *testing.T) *reference.Genome {
	g, err := reference.Load(strings.NewReader(refTable))
	require.NoError(t, err)
	return g
}

func fixedNow() time.Time {
	return time.Date(2026, time.March, 7, 10, 0, 0, 0, time.UTC)
}

func TestParseRawRecord(t *testing.T) {
	rec, err := ParseRawRecord("rs123\t1\t1000\tAG\r\n")
	require.NoError(t, err)
	assert.Equal(t, RawRecord{ID: "rs123", Chromosome: "1", Position: 1000, Genotype: "AG"}, rec)
	assert.Equal(t, "rs123\t1\t1000\tAG", rec.String())

	_, err = ParseRawRecord("rs123\t1\t1000")
	assert.ErrorIs(t, err, ErrShortLine)

	_, err = ParseRawRecord("rs123\t1\tx\tAG")
	assert.Error(t, err)
}

func TestIsBaseCall(t *testing.T) {
	for gt, want := range map[string]bool{
		"A": true, "AG": true, "TT": true,
		"": false, "--": false, "DI": false, "II": false, "A-": false, "AGT": false, "NN": false,
	} {
		assert.Equal(t, want, RawRecord{Genotype: gt}.IsBaseCall(), gt)
	}
}

func TestEncodeRecord(t *testing.T) {
	for _, tc := range []struct {
		name string
		rec  RawRecord
		ref  string
		want string
	}{
		{
			name: "heterozygous rsid",
			rec:  RawRecord{"rs123", "1", 1000, "AG"},
			ref:  "A",
			want: "1\t1000\trs123\tA\tG\t.\t.\t.\tGT\t0/1",
		},
		{
			name: "reference call with internal id",
			rec:  RawRecord{"i700001", "1", 1000, "AA"},
			ref:  "A",
			want: "1\t1000\t.\tA\t.\t.\t.\tEND=1000\tGT\t0/0",
		},
		{
			name: "mitochondrial label",
			rec:  RawRecord{"rs999", "MT", 50, "CC"},
			ref:  "C",
			want: "M\t50\trs999\tC\t.\t.\t.\tEND=50\tGT\t0/0",
		},
		{
			name: "alt first in call",
			rec:  RawRecord{"rs5", "3", 3000, "TC"},
			ref:  "C",
			want: "3\t3000\trs5\tC\tT\t.\t.\t.\tGT\t1/0",
		},
		{
			name: "two different alts keep call order",
			rec:  RawRecord{"rs6", "3", 3000, "TG"},
			ref:  "C",
			want: "3\t3000\trs6\tC\tT,G\t.\t.\t.\tGT\t1/2",
		},
		{
			name: "homozygous alt",
			rec:  RawRecord{"rs7", "3", 3000, "GG"},
			ref:  "C",
			want: "3\t3000\trs7\tC\tG\t.\t.\t.\tGT\t1/1",
		},
		{
			name: "haploid call",
			rec:  RawRecord{"rs777", "X", 2700157, "A"},
			ref:  "G",
			want: "X\t2700157\trs777\tG\tA\t.\t.\t.\tGT\t1",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, EncodeRecord(tc.rec, tc.ref).String())
		})
	}
}

func TestEncodeRecordProperties(t *testing.T) {
	bases := []string{"A", "C", "G", "T"}
	for _, ref := range bases {
		for _, a := range bases {
			for _, b := range append([]string{""}, bases...) {
				gt := a + b
				v := EncodeRecord(RawRecord{"rs1", "1", 1, gt}, ref)

				seen := map[string]bool{}
				for _, alt := range v.Alt {
					assert.False(t, seen[alt], "duplicate alt in %s/%s", gt, ref)
					assert.NotEqual(t, ref, alt)
					seen[alt] = true
				}
				// first occurrence order
				var order []string
				for _, c := range gt {
					if s := string(c); s != ref && !contains(order, s) {
						order = append(order, s)
					}
				}
				assert.Equal(t, order, v.Alt)

				alleles := append([]string{ref}, v.Alt...)
				idx := strings.Split(v.Sample, "/")
				require.Len(t, idx, len(gt))
				for i, s := range idx {
					n := int(s[0] - '0')
					assert.True(t, n >= 0 && n < len(alleles))
					assert.Equal(t, string(gt[i]), alleles[n])
				}
			}
		}
	}
}

func TestEncoderHeader(t *testing.T) {
	e := NewEncoder(testGenome(t), EncoderOptions{Now: fixedNow})

	assert.Equal(t, []string{
		"##fileformat=VCFv4.1",
		"##fileDate=20260307",
		"##source=open_humans_data_processing.twenty_three_and_me",
		"##reference=http://hgdownload-test.cse.ucsc.edu/goldenPath/hg19/bigZips/hg19.2bit",
		`##FORMAT=<ID=GT,Number=1,Type=String,Description="Genotype">`,
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\t23ANDME_DATA",
	}, e.Header())
}

func TestEncode(t *testing.T) {
	e := NewEncoder(testGenome(t), EncoderOptions{Now: fixedNow})
	cleaned := "# This data file generated by 23andMe at: Thu Oct 23 14:03:16 2014\r\n" +
		"# rsid\tchromosome\tposition\tgenotype\n" +
		"rs123\t1\t1000\tAG\n" +
		"rs888\t1\t999999\tAG\n" +
		"i700001\t1\t1000\tAA\r\n" +
		"i5000\t22\t17000\t--\n" +
		"i5001\t2\t17001\tDI\n" +
		"rs999\tMT\t50\tCC"

	var out bytes.Buffer
	stats, err := e.Encode(strings.NewReader(cleaned), &out)
	require.NoError(t, err)

	assert.Equal(t, EncodeStats{Records: 3, NoCall: 2, NoReference: 1}, stats)

	lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
	header := e.Header()
	require.Len(t, lines, len(header)+3)
	assert.Equal(t, header, lines[:len(header)])
	assert.Equal(t, []string{
		"1\t1000\trs123\tA\tG\t.\t.\t.\tGT\t0/1",
		"1\t1000\t.\tA\t.\t.\t.\tEND=1000\tGT\t0/0",
		"M\t50\trs999\tC\t.\t.\t.\tEND=50\tGT\t0/0",
	}, lines[len(header):])
	assert.NotContains(t, out.String(), "999999")
}

func TestEncodeReadsBackAsVCF(t *testing.T) {
	e := NewEncoder(testGenome(t), EncoderOptions{Now: fixedNow, SampleName: "jane"})
	var out bytes.Buffer
	_, err := e.Encode(strings.NewReader("rs123\t1\t1000\tAG\nrs5\t3\t3000\tTG\n"), &out)
	require.NoError(t, err)

	rdr, err := vcfgo.NewReader(&out, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"jane"}, rdr.Header.SampleNames)

	v := rdr.Read()
	require.NotNil(t, v)
	assert.Equal(t, "1", v.Chromosome)
	assert.Equal(t, uint64(1000), v.Pos)
	assert.Equal(t, "A", v.Reference)
	assert.Equal(t, []string{"G"}, v.Alternate)

	v = rdr.Read()
	require.NotNil(t, v)
	assert.Equal(t, "3", v.Chromosome)
	assert.Equal(t, []string{"T", "G"}, v.Alternate)

	assert.Nil(t, rdr.Read())
}
