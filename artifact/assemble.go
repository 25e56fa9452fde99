package artifact

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/biogo/hts/bgzf"
)

const (
	DefaultFilenameBase = "23andMe-genotyping"

	rawDescription = "23andMe full genotyping data, original format"
	vcfDescription = "23andMe full genotyping data, VCF format"
)

var (
	rawTags = []string{"23andMe", "genotyping"}
	vcfTags = []string{"23andMe", "genotyping", "vcf"}
)

// Assembler writes the cleaned export and its VCF into Dir
type Assembler struct {
	Dir          string
	FilenameBase string
	Now          func() time.Time
}

// NewAssembler returns an Assembler writing 23andMe-genotyping.* files into dir
func NewAssembler(dir string) *Assembler {
	return &Assembler{
		Dir:          dir,
		FilenameBase: DefaultFilenameBase,
		Now:          time.Now,
	}
}

// Assemble writes the raw text uncompressed and the VCF block-gzipped, and
// returns one Artifact for each in that order. Both files are staged in Dir
// and replace the previous pair only once both are complete. The previous
// manifest is dropped before the swap so an interrupted swap is never taken
// for an up to date set.
func (a *Assembler) Assemble(cleaned []byte, vcf []byte, fp string) ([]Artifact, error) {
	if err := os.MkdirAll(a.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	created := a.Now().UTC().Format(time.RFC3339)
	rawFilename := a.FilenameBase + ".txt"
	vcfFilename := a.FilenameBase + ".vcf.gz"

	rawTmp, err := a.stage(rawFilename, func(f *os.File) error {
		_, err := f.Write(cleaned)
		return err
	})
	if err != nil {
		return nil, err
	}
	defer os.Remove(rawTmp)

	vcfTmp, err := a.stage(vcfFilename, func(f *os.File) error {
		return writeBgzf(f, vcf)
	})
	if err != nil {
		return nil, err
	}
	defer os.Remove(vcfTmp)

	if err := os.Remove(filepath.Join(a.Dir, ManifestName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("dropping previous manifest: %w", err)
	}
	if err := os.Rename(vcfTmp, filepath.Join(a.Dir, vcfFilename)); err != nil {
		return nil, fmt.Errorf("writing %s: %w", vcfFilename, err)
	}
	if err := os.Rename(rawTmp, filepath.Join(a.Dir, rawFilename)); err != nil {
		return nil, fmt.Errorf("writing %s: %w", rawFilename, err)
	}

	return []Artifact{
		{
			TempFilename: rawFilename,
			Metadata: Metadata{
				Description:  rawDescription,
				Tags:         append([]string(nil), rawTags...),
				OrigFileHash: fp,
				CreationDate: created,
			},
		},
		{
			TempFilename: vcfFilename,
			Metadata: Metadata{
				Description:  vcfDescription,
				Tags:         append([]string(nil), vcfTags...),
				OrigFileHash: fp,
				CreationDate: created,
			},
		},
	}, nil
}

// stage writes a hidden temporary sibling of name and returns its path
func (a *Assembler) stage(name string, write func(*os.File) error) (string, error) {
	f, err := os.CreateTemp(a.Dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	err = write(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(f.Name(), 0o644)
	}
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return f.Name(), nil
}

func writeBgzf(w io.Writer, data []byte) error {
	bgzfOut, err := bgzf.NewWriterLevel(w, gzip.BestCompression, 1)
	if err != nil {
		return err
	}
	if _, err := bgzfOut.Write(data); err != nil {
		bgzfOut.Close()
		return err
	}
	return bgzfOut.Close()
}
