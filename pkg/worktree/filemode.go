package worktree

import (
	"os"

	"github.com/odvcencio/pocket/pkg/object"
)

// ModeFromFileInfo maps permission bits to a tree mode.
func ModeFromFileInfo(info os.FileInfo) string {
	if info.Mode()&0o111 != 0 {
		return object.TreeModeExecutable
	}
	return object.TreeModeFile
}

// NormalizeFileMode folds unknown modes to TreeModeFile.
func NormalizeFileMode(mode string) string {
	if mode == object.TreeModeExecutable {
		return object.TreeModeExecutable
	}
	return object.TreeModeFile
}
