package outputs

import (
	"os"
	"path/filepath"

	"github.com/carbocation/exprnorm"
	"github.com/carbocation/exprnorm/table"
	"github.com/carbocation/pfx"
)

// TSVSink writes each channel to <Dir>/<channel identifier>.tsv in the table
// file format. A nil table removes the file.
type TSVSink struct {
	Dir string
}

// Path is the file a channel is written to.
func (s TSVSink) Path(channel string) string {
	return filepath.Join(exprnorm.ExpandHome(s.Dir), Identifier(channel)+".tsv")
}

func (s TSVSink) Receive(channel string, t *table.Table) error {
	path := s.Path(channel)

	if t == nil {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return pfx.Err(err)
		}
		return nil
	}

	// Write to a sibling file first so readers never see a partial table.
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return pfx.Err(err)
	}

	if err := table.Write(f, t); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return pfx.Err(err)
	}

	if err := os.Rename(tmp, path); err != nil {
		return pfx.Err(err)
	}

	return nil
}
