//go:build !linux

package watcher

func detectFilesystemType(path string) FilesystemType {
	_ = existingAncestor(path)
	return FSTypeUnknown
}
