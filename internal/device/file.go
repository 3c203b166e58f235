package device

import "path"

// FileType classifies a directory listing entry
type FileType int

const (
	File FileType = iota
	Directory
	Symlink
	Other
	Error // Listing failed, Message holds the reason
	Tip   // Backend is not ready, Message holds the hint
)

func (t FileType) String() string {
	switch t {
	case File:
		return "file"
	case Directory:
		return "dir"
	case Symlink:
		return "link"
	case Other:
		return "other"
	case Error:
		return "error"
	case Tip:
		return "tip"
	default:
		return "unknown"
	}
}

// FileEntry is one row of a directory listing
type FileEntry struct {
	Name        string
	ParentPath  string
	Path        string
	Type        FileType
	Size        string
	ModTime     string
	Permissions string
	Message     string
}

// NewFileEntry joins parent and name into Path
func NewFileEntry(parent, name string, typ FileType) FileEntry {
	return FileEntry{Name: name, ParentPath: parent, Path: path.Join(parent, name), Type: typ}
}

// ErrorEntry is the single entry of a listing that failed
func ErrorEntry(parent, message string) FileEntry {
	return FileEntry{ParentPath: parent, Path: parent, Type: Error, Message: message}
}

// TipEntry is the single entry of a listing the backend could not serve yet
func TipEntry(parent, message string) FileEntry {
	return FileEntry{ParentPath: parent, Path: parent, Type: Tip, Message: message}
}

// IsDir reports whether the entry can be descended into
func (f FileEntry) IsDir() bool {
	return f.Type == Directory
}
