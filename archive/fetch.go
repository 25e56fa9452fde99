package archive

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	log "github.com/sirupsen/logrus"
)

// Fetcher downloads remote exports into a local directory
type Fetcher struct {
	Client     *http.Client
	MaxRetries uint64
	Logger     *log.Entry
}

// NewFetcher returns a Fetcher with a generous timeout for large exports
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client:     &http.Client{Timeout: 10 * time.Minute},
		MaxRetries: 4,
	}
}

// Fetch downloads location into dir and returns the local path. The file
// keeps the base name of the URL path so later sniffing sees the same name.
func (f *Fetcher) Fetch(location string, dir string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parsing file url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported file url scheme %q", u.Scheme)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "download"
	}
	local := filepath.Join(dir, name)

	logger := f.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	download := func() error {
		resp, err := client.Get(location)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetching %s: %s", u.Path, resp.Status)
		}

		out, err := os.Create(local)
		if err != nil {
			return err
		}
		n, err := io.Copy(out, resp.Body)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		logger.WithField("bytes", n).WithField("path", u.Path).Debug("fetched source file")
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.WithError(err).WithField("retry_in", wait).Warn("fetch failed")
	}
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.MaxRetries)
	if err := backoff.RetryNotify(download, b, notify); err != nil {
		return "", err
	}
	return local, nil
}
