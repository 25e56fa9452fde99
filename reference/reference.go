/*
Package reference holds the reference bases used to decide REF and ALT
for each 23andMe call.

The table is loaded once per process and never changes afterwards, so a
single Genome is shared by every conversion running in the process.
*/
package reference

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/brentp/vcfgo"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/archive"
)

// Genome maps chromosome, then 1-based position, to the reference base
type Genome struct {
	bases map[string]map[uint64]string
	size  int
}

func newGenome() *Genome {
	return &Genome{bases: map[string]map[uint64]string{}}
}

func (g *Genome) add(chrom string, pos uint64, base string) {
	byPos, ok := g.bases[chrom]
	if !ok {
		byPos = map[uint64]string{}
		g.bases[chrom] = byPos
	}
	if _, dup := byPos[pos]; !dup {
		g.size++
	}
	byPos[pos] = strings.ToUpper(base)
}

// Lookup returns the reference base at chrom:pos. A missing position is
// common and is not an error.
func (g *Genome) Lookup(chrom string, pos uint64) (string, bool) {
	base, ok := g.bases[chrom][pos]
	return base, ok
}

// Len is the number of positions held
func (g *Genome) Len() int {
	return g.size
}

// Chromosomes lists the chromosome labels present, sorted
func (g *Genome) Chromosomes() []string {
	chroms := make([]string, 0, len(g.bases))
	for c := range g.bases {
		chroms = append(chroms, c)
	}
	sort.Strings(chroms)
	return chroms
}

// Load reads a tab separated chromosome, position, base table
func Load(r io.Reader) (*Genome, error) {
	g := newGenome()
	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r\n ")
		if line == "" || line[0] == '#' {
			continue
		}
		data := strings.Split(line, "\t")
		if len(data) < 3 || data[0] == "" || data[2] == "" {
			return nil, fmt.Errorf("reference line %d: expected chromosome, position and base", lineNo)
		}
		pos, err := strconv.ParseUint(data[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("reference line %d: bad position %q: %w", lineNo, data[1], err)
		}
		g.add(data[0], pos, data[2])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading reference: %w", err)
	}
	return g, nil
}

// LoadVCF takes CHROM, POS and REF from every record of a reference VCF.
// Chromosome names are brought to 23andMe labels: no "chr" prefix, MT for
// the mitochondrion.
func LoadVCF(r io.Reader) (*Genome, error) {
	rdr, err := vcfgo.NewReader(r, true)
	if err != nil {
		return nil, fmt.Errorf("error creating vcfgo.Reader: %w", err)
	}

	g := newGenome()
	for {
		variant := rdr.Read()
		if variant == nil {
			break
		}
		if variant.Reference == "" {
			continue
		}
		g.add(normalizeChrom(variant.Chromosome), variant.Pos, variant.Reference)
	}
	return g, nil
}

func normalizeChrom(chrom string) string {
	chrom = strings.TrimPrefix(chrom, "chr")
	if chrom == "M" {
		return "MT"
	}
	return chrom
}

// LoadFile loads a reference from disk. Compressed files are accepted and
// files named *.vcf or *.vcf.gz are read as VCF.
func LoadFile(path string) (*Genome, error) {
	rc, err := archive.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening reference file: %w", err)
	}
	defer rc.Close()

	if strings.HasSuffix(path, ".vcf") || strings.HasSuffix(path, ".vcf.gz") {
		return LoadVCF(rc)
	}
	return Load(rc)
}
