package convert

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/PersonalGenomesOrg/open-humans-data-extraction/alert"
)

// Anomaly messages handed to the alert reporter, at most once each per file
const (
	HeaderAnomaly = "23andMe header did not conform to expected format."
	BodyAnomaly   = "23andMe body did not conform to expected format."
)

//go:embed templates/header-v1.txt templates/header-v2.txt
var templateFS embed.FS

var (
	reDateline = regexp.MustCompile(`[A-Z][a-z]{2} [A-Z][a-z]{2} [ 0-3][0-9] [0-9]{2}:[0-9]{2}:[0-9]{2} 2[0-9]{3}`)
	reBodyLine = regexp.MustCompile(`^(?:rs|i)[0-9]+\t(?:(?:[1-9]|1[0-9]|2[0-2]|X|Y)T?|MT)\t[0-9]+\t[ACGTID-]{1,2}$`)
)

const (
	datelineIn  = "Mon Jan _2 15:04:05 2006"
	datelineOut = "Mon Jan 02 15:04:05 2006"
)

// HeaderTemplate is one known revision of the 23andMe comment header
type HeaderTemplate struct {
	Name  string
	lines []string
}

// NewHeaderTemplate builds a template from header text
func NewHeaderTemplate(name string, text string) HeaderTemplate {
	return HeaderTemplate{Name: name, lines: splitLines(text)}
}

// HeaderTemplates is the fixed set of accepted headers
type HeaderTemplates []HeaderTemplate

// DefaultHeaderTemplates returns the two header revisions compiled into the binary
func DefaultHeaderTemplates() HeaderTemplates {
	var ts HeaderTemplates
	for _, name := range []string{"header-v1.txt", "header-v2.txt"} {
		b, err := templateFS.ReadFile("templates/" + name)
		if err != nil {
			panic(err)
		}
		ts = append(ts, NewHeaderTemplate(strings.TrimSuffix(name, ".txt"), string(b)))
	}
	return ts
}

// LoadHeaderTemplates reads one template per file
func LoadHeaderTemplates(paths ...string) (HeaderTemplates, error) {
	var ts HeaderTemplates
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading header template: %w", err)
		}
		ts = append(ts, NewHeaderTemplate(strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)), string(b)))
	}
	return ts, nil
}

// Match returns the name of the template whose lines equal those of block
func (ts HeaderTemplates) Match(block string) (string, bool) {
	lines := splitLines(block)
	for _, t := range ts {
		if equalLines(lines, t.lines) {
			return t.Name, true
		}
	}
	return "", false
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Cleaned is a validated copy of a 23andMe export
type Cleaned struct {
	Data          []byte
	Dated         bool
	HeaderMatched bool
	Template      string
	HeaderLines   int
	Accepted      int
	Rejected      int
}

// Cleaner re-states a 23andMe export keeping only lines of known shape.
// Format problems go to the reporter; they never stop the pass.
type Cleaner struct {
	templates HeaderTemplates
	reporter  alert.Reporter
	logger    *log.Entry
}

// NewCleaner returns a Cleaner. A nil reporter discards anomalies and a nil
// logger uses the standard logrus logger.
func NewCleaner(templates HeaderTemplates, reporter alert.Reporter, logger *log.Entry) *Cleaner {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Cleaner{
		templates: templates,
		reporter:  alert.Safe(reporter),
		logger:    logger,
	}
}

type lineReader struct {
	r    *bufio.Reader
	line int
}

func (lr *lineReader) next() (string, bool, error) {
	s, err := lr.r.ReadString('\n')
	if err == io.EOF {
		if s == "" {
			return "", false, nil
		}
		err = nil
	}
	if err != nil {
		return "", false, err
	}
	lr.line++
	return s, true, nil
}

// Clean reads the whole export and returns the cleaned copy. Only read
// errors are returned.
func (c *Cleaner) Clean(r io.Reader) (*Cleaned, error) {
	lr := &lineReader{r: bufio.NewReaderSize(r, 64*1024)}
	res := &Cleaned{}
	var out bytes.Buffer

	line, ok, err := lr.next()
	if err != nil {
		return nil, fmt.Errorf("reading dateline: %w", err)
	}
	if ok {
		if stamp, dated := normalizeDateline(line); dated {
			fmt.Fprintf(&out, "# This data file generated by 23andMe at: %s\r\n", stamp)
			res.Dated = true
		} else {
			c.logger.Debug("first line carries no generation date, dropping it")
		}
		line, ok, err = lr.next()
	}

	var header strings.Builder
	for ok && err == nil && strings.HasPrefix(line, "#") {
		header.WriteString(line)
		res.HeaderLines++
		line, ok, err = lr.next()
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	if name, matched := c.templates.Match(header.String()); matched {
		res.HeaderMatched = true
		res.Template = name
	} else {
		c.reporter.Report(HeaderAnomaly)
		c.logger.WithField("header_lines", res.HeaderLines).Warn("header matches no known template")
	}
	out.WriteString(header.String())

	for ok {
		if reBodyLine.MatchString(strings.TrimRight(line, "\r\n")) {
			out.WriteString(line)
			res.Accepted++
		} else {
			if res.Rejected == 0 {
				c.reporter.Report(BodyAnomaly)
			}
			res.Rejected++
			c.logger.WithField("line", lr.line).Warnf("Bad format: %q", strings.TrimRight(line, "\r\n"))
		}
		line, ok, err = lr.next()
		if err != nil {
			return nil, fmt.Errorf("reading line %d: %w", lr.line+1, err)
		}
	}

	res.Data = out.Bytes()
	return res, nil
}

func normalizeDateline(line string) (string, bool) {
	m := reDateline.FindString(line)
	if m == "" {
		return "", false
	}
	t, err := time.Parse(datelineIn, m)
	if err != nil {
		return "", false
	}
	return t.Format(datelineOut), true
}
