package convert

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrShortLine is returned for body lines with fewer than four columns
var ErrShortLine = errors.New("expected id, chromosome, position and genotype")

// RawRecord is one body line of a 23andMe export
type RawRecord struct {
	ID         string // rsid or internal id
	Chromosome string
	Position   uint64 // one based
	Genotype   string
}

func (r RawRecord) String() string {
	return fmt.Sprintf("%s\t%s\t%d\t%s", r.ID, r.Chromosome, r.Position, r.Genotype)
}

// ParseRawRecord splits a tab separated body line
func ParseRawRecord(line string) (RawRecord, error) {
	s := strings.Split(strings.TrimRight(line, "\r\n"), "\t")
	if len(s) < 4 {
		return RawRecord{}, ErrShortLine
	}
	pos, err := strconv.ParseUint(s[2], 10, 64)
	if err != nil {
		return RawRecord{}, fmt.Errorf("error parsing pos %q: %w", s[2], err)
	}
	return RawRecord{ID: s[0], Chromosome: s[1], Position: pos, Genotype: s[3]}, nil
}

// IsBaseCall reports whether the genotype is one or two of A, C, G, T.
// Indels and no-calls have no single base to compare with the reference.
func (r RawRecord) IsBaseCall() bool {
	if len(r.Genotype) < 1 || len(r.Genotype) > 2 {
		return false
	}
	for i := 0; i < len(r.Genotype); i++ {
		switch r.Genotype[i] {
		case 'A', 'C', 'G', 'T':
		default:
			return false
		}
	}
	return true
}

const (
	missing  = "."
	gtFormat = "GT"
)

// VcfRecord is one data line of the produced VCF
type VcfRecord struct {
	Chrom  string
	Pos    uint64
	ID     string
	Ref    string
	Alt    []string
	Qual   string
	Filter string
	Info   string
	Format string
	Sample string
}

func (v VcfRecord) String() string {
	alt := missing
	if len(v.Alt) > 0 {
		alt = strings.Join(v.Alt, ",")
	}
	return strings.Join([]string{
		v.Chrom,
		strconv.FormatUint(v.Pos, 10),
		v.ID,
		v.Ref,
		alt,
		v.Qual,
		v.Filter,
		v.Info,
		v.Format,
		v.Sample,
	}, "\t")
}

// EncodeRecord turns a base call into a VCF record against the reference
// base ref
func EncodeRecord(rec RawRecord, ref string) VcfRecord {
	v := VcfRecord{
		Chrom:  vcfChrom(rec.Chromosome),
		Pos:    rec.Position,
		ID:     missing,
		Ref:    ref,
		Qual:   missing,
		Filter: missing,
		Info:   missing,
		Format: gtFormat,
	}
	if strings.HasPrefix(rec.ID, "rs") {
		v.ID = rec.ID
	}

	v.Alt = altAlleles(rec.Genotype, ref)
	if len(v.Alt) == 0 {
		v.Info = "END=" + strconv.FormatUint(rec.Position, 10)
	}
	v.Sample = getGenotypeString(genotypeIndices(rec.Genotype, append([]string{ref}, v.Alt...)))
	return v
}

func vcfChrom(chrom string) string {
	if chrom == "MT" {
		return "M"
	}
	return chrom
}

// alleles differing from ref, in first-seen order, without repeats
func altAlleles(gt string, ref string) []string {
	var alts []string
	for _, c := range gt {
		allele := string(c)
		if allele == ref || contains(alts, allele) {
			continue
		}
		alts = append(alts, allele)
	}
	return alts
}

func contains(list []string, s string) bool {
	for _, l := range list {
		if l == s {
			return true
		}
	}
	return false
}

func genotypeIndices(gt string, alleles []string) []int {
	answer := make([]int, 0, len(gt))
	for _, c := range gt {
		for i, allele := range alleles {
			if string(c) == allele {
				answer = append(answer, i)
				break
			}
		}
	}
	return answer
}

func getGenotypeString(gts []int) string {
	alleles := make([]string, len(gts))
	for i, gt := range gts {
		alleles[i] = strconv.Itoa(gt)
	}
	return strings.Join(alleles, "/")
}
