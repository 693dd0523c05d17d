// Package hostfs provides read-only access to host filesystem metadata.
//
// Every scanner consumes an Inspector instead of touching the os package, so
// the same detection code runs against the live host, a mounted image under a
// different root, or an in-memory MemFS in tests. Failures are returned as
// plain errors and callers treat them as "skip this item".
package hostfs

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// ErrSymlinkLoop is returned when resolving a path takes too many hops.
var ErrSymlinkLoop = errors.New("too many levels of symbolic links")

// NullDevice is the target of masked systemd units.
const NullDevice = "/dev/null"

const maxSymlinkHops = 40

// Inspector answers read-only questions about absolute host paths.
type Inspector interface {
	// Exists reports whether path resolves to an existing object.
	Exists(path string) bool
	// Stat describes path, following symbolic links.
	Stat(path string) (FileInfo, error)
	// Lstat describes path itself, without following a final symbolic link.
	Lstat(path string) (FileInfo, error)
	// Readlink returns the raw target of a symbolic link.
	Readlink(path string) (string, error)
	// ListChildren returns the sorted names of the entries in dir.
	ListChildren(dir string) ([]string, error)
	// ReadFileLines returns the lines of a text file without line terminators.
	ReadFileLines(path string) ([]string, error)
}

// FileInfo is the subset of inode metadata the scanners reason about.
type FileInfo struct {
	Path string
	Mode fs.FileMode
	UID  uint32
	GID  uint32
	Dev  uint64
	Ino  uint64
	Size int64
}

// SameFile reports whether both describe the same inode.
func SameFile(a, b FileInfo) bool {
	return a.Ino != 0 && a.Dev == b.Dev && a.Ino == b.Ino
}

func (fi FileInfo) IsDir() bool        { return fi.Mode.IsDir() }
func (fi FileInfo) IsRegular() bool    { return fi.Mode.IsRegular() }
func (fi FileInfo) IsSymlink() bool    { return fi.Mode&fs.ModeSymlink != 0 }
func (fi FileInfo) IsSetuid() bool     { return fi.Mode&fs.ModeSetuid != 0 }
func (fi FileInfo) IsSetgid() bool     { return fi.Mode&fs.ModeSetgid != 0 }
func (fi FileInfo) IsSticky() bool     { return fi.Mode&fs.ModeSticky != 0 }
func (fi FileInfo) IsExecutable() bool { return fi.Mode.Perm()&0o111 != 0 }

// WorldWritable reports the S_IWOTH bit.
func (fi FileInfo) WorldWritable() bool { return fi.Mode.Perm()&0o002 != 0 }

// GroupWritable reports the S_IWGRP bit.
func (fi FileInfo) GroupWritable() bool { return fi.Mode.Perm()&0o020 != 0 }

// WorldReadable reports the S_IROTH bit.
func (fi FileInfo) WorldReadable() bool { return fi.Mode.Perm()&0o004 != 0 }

// WritableByNonRoot reports whether some unprivileged account can modify the
// object through its permission bits: world-writable, or group-writable by a
// group other than root's own.
func WritableByNonRoot(fi FileInfo) bool {
	if fi.WorldWritable() {
		return true
	}
	return fi.GroupWritable() && fi.GID != 0
}

// HasPathPrefix reports whether p equals prefix or lies beneath it.
func HasPathPrefix(p, prefix string) bool {
	p = filepath.Clean(p)
	prefix = filepath.Clean(prefix)
	if prefix == "/" {
		return strings.HasPrefix(p, "/")
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

// resolvePath walks path component by component, following every symbolic
// link, and returns the final physical path. lstat and readlink operate on
// already-resolved physical paths.
func resolvePath(p string, lstat func(string) (FileInfo, error), readlink func(string) (string, error)) (string, error) {
	pending := splitPath(p)
	resolved := "/"
	hops := 0

	for len(pending) > 0 {
		name := pending[0]
		pending = pending[1:]

		if name == ".." {
			resolved = filepath.Dir(resolved)
			continue
		}

		next := filepath.Join(resolved, name)
		fi, err := lstat(next)
		if err != nil {
			return "", err
		}
		if !fi.IsSymlink() {
			resolved = next
			continue
		}

		hops++
		if hops > maxSymlinkHops {
			return "", &fs.PathError{Op: "stat", Path: p, Err: ErrSymlinkLoop}
		}
		target, err := readlink(next)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(target, "/") {
			resolved = "/"
		}
		pending = append(splitPath(target), pending...)
	}
	return resolved, nil
}

// resolveParent resolves every component of p except the last one.
func resolveParent(p string, lstat func(string) (FileInfo, error), readlink func(string) (string, error)) (string, error) {
	clean := filepath.Clean("/" + p)
	if clean == "/" {
		return "/", nil
	}
	dir, err := resolvePath(filepath.Dir(clean), lstat, readlink)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(clean)), nil
}

func splitPath(p string) []string {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." {
			continue
		}
		parts = append(parts, s)
	}
	return parts
}
