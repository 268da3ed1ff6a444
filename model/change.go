package model

import "strings"

type ChangeType int

const (
	_ ChangeType = iota

	ChangeAdd
	ChangeModify
	ChangeDelete
	ChangeRename
	ChangeCopy
	ChangeTypeChange
	ChangeUnknown
)

func (t ChangeType) String() string {
	switch t {
	case ChangeAdd:
		return "ADD"
	case ChangeModify:
		return "MODIFY"
	case ChangeDelete:
		return "DELETE"
	case ChangeRename:
		return "RENAME"
	case ChangeCopy:
		return "COPY"
	case ChangeTypeChange:
		return "TYPE_CHANGE"
	case ChangeUnknown:
		return "UNKNOWN"
	case 0:
		return "<INVALID>"
	default:
		return "<UNKNOWN>"
	}
}

// ChangeTypeFromStatus maps a git name-status letter to a ChangeType. Rename
// and copy statuses carry a similarity score ("R086"), which is ignored.
func ChangeTypeFromStatus(s string) ChangeType {
	if s == "" {
		return ChangeUnknown
	}
	switch s[0] {
	case 'A':
		return ChangeAdd
	case 'M':
		return ChangeModify
	case 'D':
		return ChangeDelete
	case 'R':
		return ChangeRename
	case 'C':
		return ChangeCopy
	case 'T':
		return ChangeTypeChange
	}
	return ChangeUnknown
}

// Change is a single file-level change within a commit.
type Change struct {
	Path string
	// SrcPath is the previous path for renames and copies.
	SrcPath string
	Type    ChangeType
}

// Extension returns the text after the last "." of the final path element,
// or "" if there is none.
func (c *Change) Extension() string {
	return Extension(c.Path)
}

func Extension(p string) string {
	name := p
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		name = p[i+1:]
	}
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[i+1:]
}
