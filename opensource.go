package exprnorm

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
)

// SplitGSPath splits a gs://bucket/path/to/object URL into its bucket and
// object name.
func SplitGSPath(path string) (bucket, object string, err error) {
	if !strings.HasPrefix(path, "gs://") {
		return "", "", fmt.Errorf("%s is not a Google Storage path", path)
	}

	pathParts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}

// OpenSource opens a local file or, if client is non-nil and the path begins
// with gs://, a Google Storage object. Compressed inputs are transparently
// decompressed. The caller must close the returned reader.
func OpenSource(ctx context.Context, path string, client *storage.Client) (io.ReadCloser, error) {
	if client != nil && strings.HasPrefix(path, "gs://") {
		bucketName, pathName, err := SplitGSPath(path)
		if err != nil {
			return nil, err
		}

		rdr, err := client.Bucket(bucketName).Object(pathName).NewReader(ctx)
		if err != nil {
			return nil, pfx.Err(fmt.Errorf("%s: %w", path, err))
		}

		return MaybeDecompressReadCloser(rdr)
	}

	f, err := os.Open(ExpandHome(path))
	if err != nil {
		return nil, pfx.Err(err)
	}

	rc, err := MaybeDecompressReadCloserFromFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	if rc == io.ReadCloser(f) {
		return f, nil
	}

	return &readCloser{Reader: rc, closer: multiCloser{rc, f}}, nil
}

// ObjectExists reports whether a Google Storage object exists.
func ObjectExists(ctx context.Context, client *storage.Client, path string) (bool, error) {
	bucketName, pathName, err := SplitGSPath(path)
	if err != nil {
		return false, err
	}

	_, err = client.Bucket(bucketName).Object(pathName).Attrs(ctx)
	if err == storage.ErrObjectNotExist {
		return false, nil
	} else if err != nil {
		return false, pfx.Err(err)
	}

	return true, nil
}
