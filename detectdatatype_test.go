package exprnorm

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetectDataType(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write([]byte("ID_REF\tGSM1\n"))
	w.Close()

	for _, v := range []struct {
		Input    []byte
		Expected DataType
	}{
		{gz.Bytes(), DataTypeGzip},
		{[]byte("ID_REF\tGSM1\n"), DataTypeNoCompression},
		{[]byte{0x42, 0x5a, 0x68, 0x39}, DataTypeBZip2},
		{[]byte{0x1f}, DataTypeNoCompression},
		{nil, DataTypeNoCompression},
	} {
		dt, err := DetectDataType(bytes.NewReader(v.Input))
		if err != nil {
			t.Fatal(err)
		}
		if dt != v.Expected {
			t.Errorf("Expected %s, got %s", v.Expected, dt)
		}
	}
}

func TestMaybeDecompressReadCloserFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.tsv.gz")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := gzip.NewWriter(f)
	w.Write([]byte("#ID_REF\tGSM1\nA\t1\n"))
	w.Close()
	f.Close()

	rc, err := OpenSource(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	out, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(string(out), "#ID_REF") {
		t.Errorf("Expected decompressed content, got %q", out)
	}
}

func TestMaybeDecompressReadCloser(t *testing.T) {
	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	w.Write([]byte("hello"))
	w.Close()

	for _, input := range [][]byte{gz.Bytes(), []byte("hello")} {
		rc, err := MaybeDecompressReadCloser(io.NopCloser(bytes.NewReader(input)))
		if err != nil {
			t.Fatal(err)
		}
		out, err := io.ReadAll(rc)
		if err != nil {
			t.Fatal(err)
		}
		rc.Close()
		if string(out) != "hello" {
			t.Errorf("Expected hello, got %q", out)
		}
	}
}

func TestDetermineDelimiter(t *testing.T) {
	for _, v := range []struct {
		Input    string
		Expected rune
	}{
		{"a\tb\tc\n1\t2\t3\n", '\t'},
		{"a,b,c\n1,2,3\n4,5,6\n", ','},
	} {
		if d := DetermineDelimiterBytes([]byte(v.Input)); d != v.Expected {
			t.Errorf("Expected %q, got %q for %q", v.Expected, d, v.Input)
		}
	}
}

func TestSplitGSPath(t *testing.T) {
	bucket, object, err := SplitGSPath("gs://my-bucket/geo/GDS1210.soft.gz")
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "my-bucket" || object != "geo/GDS1210.soft.gz" {
		t.Errorf("Unexpected split %s %s", bucket, object)
	}

	for _, bad := range []string{"/local/path", "gs://bucket-only", "gs:///object"} {
		if _, _, err := SplitGSPath(bad); err == nil {
			t.Errorf("Expected an error for %s", bad)
		}
	}
}
