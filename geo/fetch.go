package geo

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/carbocation/exprnorm/table"
	"github.com/carbocation/pfx"
)

// NCBIBaseURL is where GEO publishes dataset SOFT files.
const NCBIBaseURL = "https://ftp.ncbi.nlm.nih.gov/geo/datasets"

// Fetcher produces the expression table of a dataset.
type Fetcher interface {
	Fetch(ctx context.Context, id string, opts FetchOptions) (*table.Table, error)
}

// SOFTURL is the location of a dataset's SOFT file under base, e.g.
// <base>/GDS1nnn/GDS1210/soft/GDS1210.soft.gz.
func SOFTURL(base, id string) string {
	num := strings.TrimPrefix(id, "GDS")
	group := "GDSnnn"
	if len(num) > 3 {
		group = "GDS" + num[:len(num)-3] + "nnn"
	}
	return fmt.Sprintf("%s/%s/%s/soft/%s%s", strings.TrimSuffix(base, "/"), group, id, id, SOFTSuffix)
}

// Downloader copies SOFT files into a local cache.
type Downloader struct {
	Cache   LocalCache
	BaseURL string
	Client  *http.Client

	// Retries is the number of additional attempts after a failed download.
	Retries int
	Backoff time.Duration

	Logger *log.Logger
}

func (d *Downloader) logf(format string, v ...interface{}) {
	if d.Logger != nil {
		d.Logger.Printf(format, v...)
		return
	}
	log.Printf(format, v...)
}

// Download fetches the dataset unless it is already cached.
func (d *Downloader) Download(ctx context.Context, id string) error {
	if ok, err := d.Cache.Exists(ctx, id); err != nil {
		return err
	} else if ok {
		return nil
	}

	base := d.BaseURL
	if base == "" {
		base = NCBIBaseURL
	}
	url := SOFTURL(base, id)

	backoff := d.Backoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	var err error
	for attempt := 0; attempt <= d.Retries; attempt++ {
		if attempt > 0 {
			d.logf("Download of %s failed (%v). Retrying in %s\n", id, err, backoff*time.Duration(attempt))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}

		if err = d.get(ctx, url, d.Cache.Path(id)); err == nil {
			d.logf("Downloaded %s\n", url)
			return nil
		}
	}

	return fmt.Errorf("downloading %s: %w", id, err)
}

func (d *Downloader) get(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pfx.Err(err)
	}

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return pfx.Err(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return pfx.Err(err)
	}

	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return pfx.Err(err)
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return pfx.Err(err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return pfx.Err(err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		return pfx.Err(err)
	}

	return nil
}

// SOFTFetcher reads datasets from a cache, downloading missing ones first
// when a Downloader is configured.
type SOFTFetcher struct {
	Cache      Cache
	Downloader *Downloader
}

// Parse returns the parsed SOFT file of a dataset.
func (f *SOFTFetcher) Parse(ctx context.Context, id string) (*SOFT, error) {
	if f.Downloader != nil {
		if err := f.Downloader.Download(ctx, id); err != nil {
			return nil, err
		}
	}

	rc, err := f.Cache.Open(ctx, id)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	s, err := ParseSOFT(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return s, nil
}

func (f *SOFTFetcher) Fetch(ctx context.Context, id string, opts FetchOptions) (*table.Table, error) {
	s, err := f.Parse(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.Table(opts)
}
