package compileinfo

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
)

// CompileInfo describes the binary as recorded by the Go toolchain.
type CompileInfo struct {
	Package    string `json:"package"`
	Module     string `json:"module"`
	Version    string `json:"version"`
	GoVersion  string `json:"go_version"`
	Commit     string `json:"commit,omitempty"`
	CommitTime string `json:"commit_time,omitempty"`
	Modified   bool   `json:"modified"`
}

func (c CompileInfo) String() string {
	mod := ""
	if c.Modified {
		mod = " Files in the repo were modified after that commit."
	}

	commit := c.Commit
	if commit == "" {
		commit = "(unknown)"
	}

	return fmt.Sprintf("This %s binary (%s %s) was built with %s at commit %v at time %v.%s", c.Package, c.Module, c.Version, c.GoVersion, commit, c.CommitTime, mod)
}

func Get() CompileInfo {
	out := CompileInfo{}

	z, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	out.GoVersion = z.GoVersion
	out.Package = z.Path
	out.Module = z.Main.Path
	out.Version = z.Main.Version
	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}

// Fprint writes the build description of the running binary to w.
func Fprint(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s\n", Get())
	return err
}

func PrintToStdErr() {
	Fprint(os.Stderr)
}
