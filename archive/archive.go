/*
Package archive opens raw genotype exports however they were delivered:
plain text, or a zip, gzip or bzip2 archive, local or behind an http URL.
*/
package archive

import (
	"archive/zip"
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/h2non/filetype.v1"
)

// ErrEmptyZip is returned for a zip archive holding no files
var ErrEmptyZip = errors.New("zip archive contains no files")

// Kind sniffs the container type of the file at path: "zip", "gz", "bz2"
// or "" for anything else
func Kind(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	return kindOf(head[:n]), nil
}

func kindOf(head []byte) string {
	kind, err := filetype.Match(head)
	if err != nil {
		return ""
	}
	switch kind.Extension {
	case "zip", "gz", "bz2":
		return kind.Extension
	}
	return ""
}

// Open returns a reader over the decompressed content of path. For zip
// archives the first entry is read.
func Open(path string) (io.ReadCloser, error) {
	kind, err := Kind(path)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "zip":
		return openZip(path)
	case "gz":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		gz, err := gzip.NewReader(bufio.NewReader(f))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading gzip input %s: %w", path, err)
		}
		return &stacked{Reader: gz, closers: []io.Closer{gz, f}}, nil
	case "bz2":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		return &stacked{Reader: bzip2.NewReader(bufio.NewReader(f)), closers: []io.Closer{f}}, nil
	default:
		return os.Open(path)
	}
}

func openZip(path string) (io.ReadCloser, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("reading zip input %s: %w", path, err)
	}
	if len(zr.File) == 0 {
		zr.Close()
		return nil, ErrEmptyZip
	}
	entry, err := zr.File[0].Open()
	if err != nil {
		zr.Close()
		return nil, fmt.Errorf("opening %s in %s: %w", zr.File[0].Name, path, err)
	}
	return &stacked{Reader: entry, closers: []io.Closer{entry, zr}}, nil
}

type stacked struct {
	io.Reader
	closers []io.Closer
}

func (s *stacked) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
