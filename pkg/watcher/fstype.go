package watcher

import (
	"os"
	"path/filepath"
)

// FilesystemType is a coarse classification of the filesystem holding the
// watched file. Remote filesystems do not deliver change events reliably,
// so the watcher polls on them.
type FilesystemType int

const (
	FSTypeUnknown FilesystemType = iota
	FSTypeLocal
	FSTypeNFS
	FSTypeSMB
	FSTypeSSHFS
	FSTypeFUSE
)

var fsTypeNames = [...]string{
	FSTypeUnknown: "unknown",
	FSTypeLocal:   "local",
	FSTypeNFS:     "nfs",
	FSTypeSMB:     "smb",
	FSTypeSSHFS:   "sshfs",
	FSTypeFUSE:    "fuse",
}

func (t FilesystemType) String() string {
	if t < 0 || int(t) >= len(fsTypeNames) {
		return "unknown"
	}
	return fsTypeNames[t]
}

// detectFilesystemTypeFunc is replaced in tests.
var detectFilesystemTypeFunc = detectFilesystemType

// DetectFilesystemType classifies the filesystem of path. A path that does
// not exist yet is classified by its closest existing parent.
func DetectFilesystemType(path string) FilesystemType {
	if path == "" {
		return FSTypeUnknown
	}
	return detectFilesystemTypeFunc(path)
}

func existingAncestor(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

func isRemoteFilesystem(t FilesystemType) bool {
	switch t {
	case FSTypeNFS, FSTypeSMB, FSTypeSSHFS, FSTypeFUSE:
		return true
	}
	return false
}
