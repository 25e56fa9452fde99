/*ohdata cleans 23andMe raw genotype exports and converts them into VCF
 */
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/errgroup"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/alert"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/archive"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/artifact"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/config"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/convert"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/pipeline"
	"github.com/PersonalGenomesOrg/open-humans-data-extraction/reference"

	kingpin "gopkg.in/alecthomas/kingpin.v2"
)

var (
	app        = kingpin.New("ohdata", "clean raw 23andMe genotype exports and convert them into vcf format")
	configFile = app.Flag("config", "YAML configuration file").Short('c').Envar("OHDATA_CONFIG").String()
	logLevel   = app.Flag("log-level", "log level: debug, info, warn, error").String()

	conv      = app.Command("conv", "clean raw data and convert it to vcf format")
	inFiles   = conv.Arg("input-data", "paths to 23andMe exports, zip, gzip or ascii").Required().ExistingFiles()
	fileURL   = conv.Flag("file-url", "url the export was uploaded to, used to detect changed uploads").Short('u').String()
	username  = conv.Flag("user", "member the export belongs to").Default("").String()
	outDir    = conv.Flag("out-dir", "directory for output data").Short('o').String()
	vcfRef    = conv.Flag("reference", "relative path to reference data, tab separated or vcf, optionally compressed").Short('r').String()
	force     = conv.Flag("force", "convert even when the previous output is up to date").Short('f').Bool()
	webhook   = conv.Flag("alert-url", "post format anomalies to this url").String()
	parallel  = conv.Flag("concurrency", "number of exports converted at once").Int()
	quietConv = conv.Flag("quiet", "no spinner").Short('q').Bool()

	check       = app.Command("check", "validate a raw export without converting it")
	checkFile   = check.Arg("input-data", "path to a 23andMe export").Required().ExistingFile()
	checkHeader = check.Flag("header-template", "header template file, repeatable").ExistingFiles()
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

func main() {
	app.UsageTemplate(kingpin.CompactUsageTemplate).Version("1.0.0")
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	cfg, err := config.Load(*configFile)
	app.FatalIfError(err, "configuration")
	applyFlags(cfg)
	app.FatalIfError(cfg.Validate(), "configuration")

	log.SetOutput(os.Stderr)
	log.SetLevel(cfg.Level())

	switch command {
	case conv.FullCommand():
		app.FatalIfError(RunConv(cfg), "conv")
	case check.FullCommand():
		app.FatalIfError(RunCheck(cfg), "check")
	}
}

func applyFlags(cfg *config.Config) {
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *vcfRef != "" {
		cfg.Reference.Path = *vcfRef
	}
	if *webhook != "" {
		cfg.Alert.WebhookURL = *webhook
	}
	if *parallel > 0 {
		cfg.Concurrency = *parallel
	}
	if len(*checkHeader) > 0 {
		cfg.HeaderTemplates = *checkHeader
	}
}

func reporter(cfg *config.Config) alert.Reporter {
	reporters := []alert.Reporter{alert.LogReporter{}}
	if cfg.Alert.WebhookURL != "" {
		reporters = append(reporters, alert.NewWebhookReporter(cfg.Alert.WebhookURL, cfg.Alert.Service))
	}
	return alert.Multi(reporters...)
}

// RunConv converts every input, each into its own directory under the output dir
func RunConv(cfg *config.Config) error {
	if *fileURL != "" && len(*inFiles) > 1 {
		kingpin.FatalUsage("--file-url names a single upload, give exactly one input with it")
	}

	var s *spinner.Spinner
	if !*quietConv {
		s = spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Prefix = "loading reference   "
		s.Start()
		defer s.Stop()
	}

	genome, err := reference.LoadFile(cfg.Reference.Path)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"positions":   genome.Len(),
		"chromosomes": genome.Chromosomes(),
	}).Debug("reference loaded")

	templates, err := cfg.Templates()
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Options{
		Genome:    genome,
		Templates: templates,
		Reporter:  reporter(cfg),
		Encoder: convert.EncoderOptions{
			Source:       cfg.Vcf.Source,
			ReferenceURL: cfg.Reference.URL,
			SampleName:   cfg.Vcf.SampleName,
		},
		Logger: log.NewEntry(log.StandardLogger()),
	})

	if s != nil {
		s.Prefix = "converting raw data to vcf   "
	}

	dirs := make([]string, len(*inFiles))
	seen := map[string]string{}
	for i, in := range *inFiles {
		dir, err := outputDir(cfg.Output.Dir, in)
		if err != nil {
			return err
		}
		if first, dup := seen[dir]; dup {
			return fmt.Errorf("%s and %s are the same export", first, in)
		}
		seen[dir] = in
		dirs[i] = dir
	}

	skipped := make([]bool, len(*inFiles))
	done := make([]bool, len(*inFiles))
	var g errgroup.Group
	g.SetLimit(cfg.Concurrency)
	for i, in := range *inFiles {
		i, in := i, in
		g.Go(func() error {
			var err error
			skipped[i], err = convertOne(p, dirs[i], convRequest{
				Input:    in,
				FileURL:  *fileURL,
				Username: *username,
				Force:    *force,
			})
			done[i] = err == nil
			return err
		})
	}
	err = g.Wait()

	if s != nil {
		s.Stop()
	}
	for i, in := range *inFiles {
		switch {
		case !done[i]:
		case skipped[i]:
			fmt.Printf("\n%s: %s\n", in, yellow("unchanged, skipped"))
		default:
			fmt.Printf("\n%s: output at %s\n", in, cyan(dirs[i]))
		}
	}
	return err
}

type convRequest struct {
	Input    string
	FileURL  string
	Username string
	Force    bool
}

// outputDir names the directory of one input after its file name plus a
// short digest of its absolute path, so equally named exports never share it
func outputDir(root string, input string) (string, error) {
	abs, err := filepath.Abs(input)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256([]byte(abs))
	return filepath.Join(root, inputName(input)+"-"+hex.EncodeToString(sum[:4])), nil
}

// convertOne converts one export into dir and records the manifest. It
// reports true when the previous output was still current.
func convertOne(p *pipeline.Pipeline, dir string, req convRequest) (bool, error) {
	location := req.FileURL
	if location == "" {
		abs, err := filepath.Abs(req.Input)
		if err != nil {
			return false, err
		}
		location = "file://" + filepath.ToSlash(abs)
	}
	src := pipeline.Source{InputFile: req.Input, FileURL: location, Username: req.Username}

	prior, err := artifact.ReadManifest(dir)
	if err != nil {
		return false, err
	}
	if req.Force {
		prior = nil
	}
	res, err := p.Update(prior, src, dir)
	if err != nil {
		return false, fmt.Errorf("%s: %w", req.Input, err)
	}
	if res.Skipped {
		return true, nil
	}
	return false, artifact.WriteManifest(dir, res.Artifacts)
}

// RunCheck validates one export and prints what the cleaner found
func RunCheck(cfg *config.Config) error {
	templates, err := cfg.Templates()
	if err != nil {
		return err
	}
	rc, err := archive.Open(*checkFile)
	if err != nil {
		return err
	}
	defer rc.Close()

	rec := &alert.Recorder{}
	res, err := convert.NewCleaner(templates, alert.Multi(rec, alert.LogReporter{}), nil).Clean(rc)
	if err != nil {
		return err
	}

	template := res.Template
	if !res.HeaderMatched {
		template = red("none")
	}
	fmt.Printf("header template: %s\n", template)
	fmt.Printf("body lines kept: %s\n", cyan(res.Accepted))
	if res.Rejected > 0 {
		fmt.Printf("body lines rejected: %s\n", red(res.Rejected))
	}
	for _, m := range rec.Messages() {
		fmt.Println(yellow(m))
	}
	return nil
}

func inputName(inputFile string) string {
	base := filepath.Base(inputFile)
	for _, ext := range []string{".gz", ".bz2", ".zip", ".txt"} {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}
