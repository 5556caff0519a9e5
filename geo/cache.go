package geo

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/exprnorm"
	"github.com/carbocation/pfx"
	"google.golang.org/api/iterator"
)

// SOFTSuffix is appended to a dataset ID to name its cached file.
const SOFTSuffix = ".soft.gz"

// Cache holds downloaded dataset files.
type Cache interface {
	// Exists reports whether the dataset's file is cached.
	Exists(ctx context.Context, id string) (bool, error)

	// Count is the number of cached datasets.
	Count(ctx context.Context) (int, error)

	// Open returns the decompressed content of a cached dataset file.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// LocalCache keeps files as <Dir>/<id>.soft.gz.
type LocalCache struct {
	Dir string
}

func (c LocalCache) Path(id string) string {
	return filepath.Join(exprnorm.ExpandHome(c.Dir), id+SOFTSuffix)
}

func (c LocalCache) Exists(ctx context.Context, id string) (bool, error) {
	_, err := os.Stat(c.Path(id))
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, pfx.Err(err)
	}
	return true, nil
}

func (c LocalCache) Count(ctx context.Context) (int, error) {
	matches, err := filepath.Glob(filepath.Join(exprnorm.ExpandHome(c.Dir), "GDS*"+SOFTSuffix))
	if err != nil {
		return 0, pfx.Err(err)
	}
	return len(matches), nil
}

func (c LocalCache) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	return exprnorm.OpenSource(ctx, c.Path(id), nil)
}

// IDs lists the dataset IDs with a cached file, in lexical order.
func (c LocalCache) IDs() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(exprnorm.ExpandHome(c.Dir), "GDS*"+SOFTSuffix))
	if err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, strings.TrimSuffix(filepath.Base(m), SOFTSuffix))
	}
	return out, nil
}

// GSCache reads dataset files from gs://<Bucket>/<Prefix>/<id>.soft.gz.
type GSCache struct {
	Client *storage.Client
	Bucket string
	Prefix string
}

func (c GSCache) object(id string) string {
	return path.Join(c.Prefix, id+SOFTSuffix)
}

// URL is the gs:// location of a dataset's file.
func (c GSCache) URL(id string) string {
	return "gs://" + c.Bucket + "/" + c.object(id)
}

func (c GSCache) Exists(ctx context.Context, id string) (bool, error) {
	return exprnorm.ObjectExists(ctx, c.Client, c.URL(id))
}

func (c GSCache) Count(ctx context.Context) (int, error) {
	prefix := path.Join(c.Prefix, "GDS")

	n := 0
	it := c.Client.Bucket(c.Bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		_, err := it.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return 0, pfx.Err(err)
		}
		n++
	}

	return n, nil
}

func (c GSCache) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	return exprnorm.OpenSource(ctx, c.URL(id), c.Client)
}
