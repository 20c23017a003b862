//go:build !unix

package walker

import "os"

func fileIdentity(p string, _ os.FileInfo) string {
	return "path:" + p
}
