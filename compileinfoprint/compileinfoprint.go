// compileinfoprint is imported for the side effect of printing the build
// description of the running command to os.Stderr
package compileinfoprint

import "github.com/carbocation/exprnorm/compileinfo"

func init() {
	compileinfo.PrintToStdErr()
}
