package exprnorm

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"io"
	"os"

	"github.com/carbocation/pfx"
	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

func (d DataType) String() string {
	switch d {
	case DataTypeNoCompression:
		return "uncompressed"
	case DataTypeGzip:
		return "gzip"
	case DataTypeZip:
		return "zip"
	case DataTypeXZ:
		return "xz"
	case DataTypeZ:
		return "zlib"
	case DataTypeBZip2:
		return "bzip2"
	}

	return "invalid"
}

var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x1f, 0x9d},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataTypeBytes matches the leading bytes of a stream against the known
// compression signatures. Byte code signatures from
// https://stackoverflow.com/a/19127748/199475
func DetectDataTypeBytes(head []byte) DataType {
Outer:
	for dt, sig := range byteCodeSigs {
		if len(head) < len(sig) {
			continue
		}
		for position := range sig {
			if head[position] != sig[position] {
				continue Outer
			}
		}
		return dt
	}

	return DataTypeNoCompression
}

// DetectDataType attempts to detect the data type of a stream by checking
// against a set of known data types. It consumes up to 6 bytes of r.
func DetectDataType(r io.Reader) (DataType, error) {
	buff := make([]byte, 6)
	n, err := io.ReadFull(r, buff)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			// An empty file is a valid, if useless, uncompressed file.
			return DataTypeNoCompression, nil
		}
		return DataTypeInvalid, err
	}

	return DetectDataTypeBytes(buff[:n]), nil
}

// MaybeDecompressReadCloserFromFile returns a reader over the decompressed
// contents of f. Uncompressed files are returned as-is, rewound to the start.
func MaybeDecompressReadCloserFromFile(f *os.File) (io.ReadCloser, error) {
	dt, err := DetectDataType(f)
	if err != nil {
		return nil, pfx.Err(err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, pfx.Err(err)
	}

	if dt == DataTypeNoCompression {
		return f, nil
	}

	return decompress(dt, f)
}

// MaybeDecompressReadCloser is MaybeDecompressReadCloserFromFile for streams
// that cannot seek, such as objects read from Google Storage. Closing the
// returned reader closes rc.
func MaybeDecompressReadCloser(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, pfx.Err(err)
	}

	dt := DetectDataTypeBytes(head)
	if dt == DataTypeNoCompression {
		return &readCloser{Reader: br, closer: rc}, nil
	}

	dr, err := decompress(dt, br)
	if err != nil {
		return nil, err
	}

	return &readCloser{Reader: dr, closer: multiCloser{dr, rc}}, nil
}

func decompress(dt DataType, r io.Reader) (io.ReadCloser, error) {
	switch dt {
	case DataTypeGzip:
		return gzip.NewReader(r)
	case DataTypeZip:
		// Only the first entry of an archive is read.
		zr := zipstream.NewReader(r)
		if _, err := zr.Next(); err != nil {
			return nil, pfx.Err(err)
		}
		return io.NopCloser(zr), nil
	case DataTypeBZip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case DataTypeXZ:
		reader, err := xz.NewReader(r, 0)
		if err != nil {
			return nil, pfx.Err(err)
		}
		return io.NopCloser(reader), nil
	case DataTypeZ:
		return zlib.NewReader(r)
	}

	return io.NopCloser(r), nil
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (c *readCloser) Close() error {
	return c.closer.Close()
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
