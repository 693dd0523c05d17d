//go:build linux

package hostfs

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/sys/unix"
)

var _ Inspector = (*OS)(nil)

// OS inspects the live host. When Root is set every absolute path is looked
// up beneath it, symbolic links included, so an image mounted at Root is
// audited as if it were "/".
type OS struct {
	Root string
}

// NewOS returns an inspector for the host filesystem rooted at root, "" or
// "/" for the live system.
func NewOS(root string) *OS {
	if root == "" || filepath.Clean(root) == "/" {
		return &OS{}
	}
	return &OS{Root: filepath.Clean(root)}
}

func (o *OS) chrooted() bool {
	return o.Root != "" && o.Root != "/"
}

func (o *OS) hostPath(p string) string {
	if !o.chrooted() {
		return filepath.Clean("/" + p)
	}
	return filepath.Join(o.Root, filepath.Clean("/"+p))
}

func (o *OS) rawLstat(p string) (FileInfo, error) {
	var st unix.Stat_t
	if err := unix.Lstat(o.hostPath(p), &st); err != nil {
		return FileInfo{}, &fs.PathError{Op: "lstat", Path: p, Err: err}
	}
	return fromStat(p, &st), nil
}

func (o *OS) rawReadlink(p string) (string, error) {
	return os.Readlink(o.hostPath(p))
}

// physical maps a host path to the path that really gets opened.
func (o *OS) physical(p string, followLast bool) (string, error) {
	if !o.chrooted() {
		return o.hostPath(p), nil
	}
	var (
		real string
		err  error
	)
	if followLast {
		real, err = resolvePath(p, o.rawLstat, o.rawReadlink)
	} else {
		real, err = resolveParent(p, o.rawLstat, o.rawReadlink)
	}
	if err != nil {
		return "", err
	}
	return o.hostPath(real), nil
}

func (o *OS) Exists(path string) bool {
	_, err := o.Stat(path)
	return err == nil
}

func (o *OS) Stat(path string) (FileInfo, error) {
	real, err := o.physical(path, true)
	if err != nil {
		return FileInfo{}, err
	}
	var st unix.Stat_t
	if err := unix.Stat(real, &st); err != nil {
		return FileInfo{}, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	return fromStat(filepath.Clean("/"+path), &st), nil
}

func (o *OS) Lstat(path string) (FileInfo, error) {
	real, err := o.physical(path, false)
	if err != nil {
		return FileInfo{}, err
	}
	var st unix.Stat_t
	if err := unix.Lstat(real, &st); err != nil {
		return FileInfo{}, &fs.PathError{Op: "lstat", Path: path, Err: err}
	}
	return fromStat(filepath.Clean("/"+path), &st), nil
}

func (o *OS) Readlink(path string) (string, error) {
	real, err := o.physical(path, false)
	if err != nil {
		return "", err
	}
	return os.Readlink(real)
}

func (o *OS) ListChildren(dir string) ([]string, error) {
	real, err := o.physical(dir, true)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(real)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	slices.Sort(names)
	return names, nil
}

func (o *OS) ReadFileLines(path string) ([]string, error) {
	real, err := o.physical(path, true)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(real)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

func fromStat(p string, st *unix.Stat_t) FileInfo {
	return FileInfo{
		Path: p,
		Mode: fromUnixMode(st.Mode),
		UID:  st.Uid,
		GID:  st.Gid,
		Dev:  uint64(st.Dev),
		Ino:  st.Ino,
		Size: st.Size,
	}
}

// fromUnixMode converts a st_mode value into an fs.FileMode.
func fromUnixMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0o777)
	switch m & unix.S_IFMT {
	case unix.S_IFDIR:
		mode |= fs.ModeDir
	case unix.S_IFLNK:
		mode |= fs.ModeSymlink
	case unix.S_IFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFBLK:
		mode |= fs.ModeDevice
	case unix.S_IFIFO:
		mode |= fs.ModeNamedPipe
	case unix.S_IFSOCK:
		mode |= fs.ModeSocket
	}
	if m&unix.S_ISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&unix.S_ISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&unix.S_ISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

// CurrentPrincipal describes the process running the audit. Root audits
// on behalf of any unprivileged user.
func CurrentPrincipal() Principal {
	euid := unix.Geteuid()
	if euid == 0 {
		return AnyUnprivileged()
	}
	gids := []uint32{uint32(unix.Getegid())}
	if groups, err := unix.Getgroups(); err == nil {
		for _, g := range groups {
			if !slices.Contains(gids, uint32(g)) {
				gids = append(gids, uint32(g))
			}
		}
	}
	return Principal{UID: uint32(euid), GIDs: gids}
}
