/*
Package pipeline runs one 23andMe conversion from start to finish:

	change check -> clean -> VCF encode -> write artifacts

A run is sequential and owns all of its data. The reference genome is the
only thing shared between runs and it is read-only, so one Pipeline may
serve many sources at once.
*/
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/alert"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/archive"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/artifact"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/convert"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/fingerprint"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/reference"
)

// SourceName identifies this data source in logs and alerts
const SourceName = "twenty_three_and_me"

// ErrNoInput is returned when a source has neither a local file nor a URL
var ErrNoInput = errors.New("run with either input_file or file_url")

// Source is one member's uploaded export
type Source struct {
	// local copy of the export, may be compressed
	InputFile string
	// where the export was uploaded; fingerprinted for change detection
	FileURL  string
	Username string
}

// Location is the value fingerprinted for change detection
func (s Source) Location() string {
	return s.FileURL
}

// Options configure a Pipeline
type Options struct {
	Genome    *reference.Genome
	Templates convert.HeaderTemplates
	Reporter  alert.Reporter
	Encoder   convert.EncoderOptions
	Fetcher   *archive.Fetcher
	Logger    *log.Entry
}

// Pipeline converts sources against one reference genome
type Pipeline struct {
	genome    *reference.Genome
	templates convert.HeaderTemplates
	reporter  alert.Reporter
	encoder   convert.EncoderOptions
	fetcher   *archive.Fetcher
	logger    *log.Entry
}

// Result is what a run hands to the storage side
type Result struct {
	RunID     uuid.UUID
	Skipped   bool
	Artifacts []artifact.Artifact
	Cleaned   convert.Cleaned
	Encoded   convert.EncodeStats
}

// New returns a Pipeline. Templates default to the compiled-in revisions,
// the reporter to logging.
func New(opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = log.NewEntry(log.StandardLogger())
	}
	if opts.Templates == nil {
		opts.Templates = convert.DefaultHeaderTemplates()
	}
	if opts.Reporter == nil {
		opts.Reporter = alert.LogReporter{Logger: opts.Logger}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = archive.NewFetcher()
	}
	return &Pipeline{
		genome:    opts.Genome,
		templates: opts.Templates,
		reporter:  alert.Safe(opts.Reporter),
		encoder:   opts.Encoder,
		fetcher:   opts.Fetcher,
		logger:    opts.Logger,
	}
}

func (p *Pipeline) sourceLogger(src Source) *log.Entry {
	return p.logger.WithField("user", src.Username).WithField("source", SourceName)
}

// ShouldUpdate reports whether src must be converted given the artifacts
// of the previous run
func (p *Pipeline) ShouldUpdate(prior []artifact.Artifact, src Source) bool {
	return artifact.ShouldUpdate(prior, src.Location(), p.sourceLogger(src))
}

// Update converts src into outDir unless the previous artifacts show the
// source is unchanged
func (p *Pipeline) Update(prior []artifact.Artifact, src Source, outDir string) (*Result, error) {
	if src.InputFile == "" && src.FileURL == "" {
		return nil, ErrNoInput
	}
	if !p.ShouldUpdate(prior, src) {
		return &Result{RunID: uuid.New(), Skipped: true}, nil
	}
	return p.Run(src, outDir)
}

// Run converts src and writes both artifacts into outDir
func (p *Pipeline) Run(src Source, outDir string) (*Result, error) {
	if src.InputFile == "" && src.FileURL == "" {
		return nil, ErrNoInput
	}
	if p.genome == nil {
		return nil, errors.New("pipeline has no reference genome")
	}

	res := &Result{RunID: uuid.New()}
	logger := p.sourceLogger(src).WithField("run_id", res.RunID)

	input := src.InputFile
	if input == "" {
		tmp, err := os.MkdirTemp("", "ohdata-")
		if err != nil {
			return nil, err
		}
		defer os.RemoveAll(tmp)
		if input, err = p.fetcher.Fetch(src.FileURL, tmp); err != nil {
			return nil, fmt.Errorf("fetching source: %w", err)
		}
	}

	fp := ""
	if src.Location() != "" {
		var err error
		if fp, err = fingerprint.New(src.Location()); err != nil {
			return nil, err
		}
	}

	rc, err := archive.Open(input)
	if err != nil {
		return nil, fmt.Errorf("opening source: %w", err)
	}
	cleaner := convert.NewCleaner(p.templates, p.reporter, logger)
	cleaned, err := cleaner.Clean(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}
	res.Cleaned = *cleaned
	logger.WithFields(log.Fields{
		"accepted": cleaned.Accepted,
		"rejected": cleaned.Rejected,
		"template": cleaned.Template,
	}).Info("cleaned raw 23andMe data")

	encOpts := p.encoder
	encOpts.Logger = logger
	var vcf bytes.Buffer
	res.Encoded, err = convert.NewEncoder(p.genome, encOpts).Encode(bytes.NewReader(cleaned.Data), &vcf)
	if err != nil {
		return nil, fmt.Errorf("encoding vcf: %w", err)
	}
	logger.WithFields(log.Fields{
		"records":      res.Encoded.Records,
		"no_call":      res.Encoded.NoCall,
		"no_reference": res.Encoded.NoReference,
	}).Info("encoded vcf")

	res.Artifacts, err = artifact.NewAssembler(outDir).Assemble(cleaned.Data, vcf.Bytes(), fp)
	if err != nil {
		return nil, err
	}
	return res, nil
}
