//go:build !linux

package hostfs

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("host inspection is only supported on linux")

// OS is unavailable outside Linux; every lookup fails and scanners skip.
type OS struct {
	Root string
}

func NewOS(root string) *OS { return &OS{Root: root} }

func (o *OS) Exists(string) bool                     { return false }
func (o *OS) Stat(string) (FileInfo, error)          { return FileInfo{}, errUnsupported }
func (o *OS) Lstat(string) (FileInfo, error)         { return FileInfo{}, errUnsupported }
func (o *OS) Readlink(string) (string, error)        { return "", errUnsupported }
func (o *OS) ListChildren(string) ([]string, error)  { return nil, errUnsupported }
func (o *OS) ReadFileLines(string) ([]string, error) { return nil, errUnsupported }

// CurrentPrincipal describes the process running the audit.
func CurrentPrincipal() Principal {
	uid := os.Geteuid()
	if uid <= 0 {
		return AnyUnprivileged()
	}
	return Principal{UID: uint32(uid), GIDs: []uint32{uint32(os.Getegid())}}
}
