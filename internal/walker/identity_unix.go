//go:build unix

package walker

import (
	"fmt"
	"os"
	"syscall"
)

// fileIdentity keys a file by device and inode so hard links to one file
// share an identity. info comes from Lstat, so a symlink is keyed by its own
// inode. Falls back to the path.
func fileIdentity(p string, info os.FileInfo) string {
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return fmt.Sprintf("inode:%d:%d", uint64(stat.Dev), stat.Ino)
	}
	return "path:" + p
}
