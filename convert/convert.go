package convert

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/reference"
)

// Header values and sample column used when EncoderOptions leave them empty
const (
	DefaultSource       = "open_humans_data_processing.twenty_three_and_me"
	DefaultReferenceURL = "http://hgdownload-test.cse.ucsc.edu/goldenPath/hg19/bigZips/hg19.2bit"
	DefaultSampleName   = "23ANDME_DATA"
)

var vcfFields = []string{"CHROM", "POS", "ID", "REF", "ALT", "QUAL", "FILTER", "INFO", "FORMAT"}

// SampleFormat describes one FORMAT tag in the VCF header
type SampleFormat struct {
	Id          string
	Number      string
	Type        string
	Description string
}

func (f SampleFormat) String() string {
	return fmt.Sprintf("<ID=%s,Number=%s,Type=%s,Description=\"%s\">", f.Id, f.Number, f.Type, f.Description)
}

func getSampleFormatGT() SampleFormat {
	return SampleFormat{
		Id:          gtFormat,
		Number:      "1",
		Type:        "String",
		Description: "Genotype",
	}
}

// EncoderOptions set the descriptive header lines and the sample column
type EncoderOptions struct {
	Source       string
	ReferenceURL string
	SampleName   string
	Now          func() time.Time
	Logger       *log.Entry
}

// EncodeStats counts what happened to each body line
type EncodeStats struct {
	Records     int
	NoCall      int
	NoReference int
}

// Encoder writes cleaned 23andMe calls as VCF 4.1
type Encoder struct {
	genome  *reference.Genome
	formats []SampleFormat
	opts    EncoderOptions
}

// NewEncoder returns an Encoder reading reference bases from genome
func NewEncoder(genome *reference.Genome, opts EncoderOptions) *Encoder {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.ReferenceURL == "" {
		opts.ReferenceURL = DefaultReferenceURL
	}
	if opts.SampleName == "" {
		opts.SampleName = DefaultSampleName
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	return &Encoder{
		genome:  genome,
		formats: []SampleFormat{getSampleFormatGT()},
		opts:    opts,
	}
}

// Header returns the meta-information lines and the column header line
func (e *Encoder) Header() []string {
	today := e.opts.Now()
	header := []string{
		"##fileformat=VCFv4.1",
		fmt.Sprintf("##fileDate=%d%02d%02d", today.Year(), today.Month(), today.Day()),
		"##source=" + e.opts.Source,
		"##reference=" + e.opts.ReferenceURL,
	}
	for _, f := range e.formats {
		header = append(header, "##FORMAT="+f.String())
	}
	columns := append(append([]string{}, vcfFields...), e.opts.SampleName)
	return append(header, "#"+strings.Join(columns, "\t"))
}

// Record encodes one raw record. It reports false for calls that are not
// plain bases and for positions missing from the reference.
func (e *Encoder) Record(rec RawRecord) (VcfRecord, bool) {
	if !rec.IsBaseCall() {
		return VcfRecord{}, false
	}
	ref, ok := e.genome.Lookup(rec.Chromosome, rec.Position)
	if !ok {
		return VcfRecord{}, false
	}
	return EncodeRecord(rec, ref), true
}

// Encode reads a cleaned export from r and writes the VCF to w, keeping
// input order
func (e *Encoder) Encode(r io.Reader, w io.Writer) (EncodeStats, error) {
	var stats EncodeStats
	bw := bufio.NewWriter(w)

	for _, line := range e.Header() {
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return stats, err
		}
	}

	scanner := bufio.NewScanner(r)
	const maxCapacity = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxCapacity)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := ParseRawRecord(line)
		if err != nil {
			e.opts.Logger.WithError(err).Debug("skipping unparseable line")
			continue
		}
		if !rec.IsBaseCall() {
			stats.NoCall++
			continue
		}
		v, ok := e.Record(rec)
		if !ok {
			stats.NoReference++
			continue
		}
		if _, err := bw.WriteString(v.String() + "\n"); err != nil {
			return stats, err
		}
		stats.Records++
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("reading cleaned data: %w", err)
	}
	return stats, bw.Flush()
}
