package hostfs

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

var _ Inspector = (*MemFS)(nil)

// DefaultDevice is the device id MemFS assigns to its root filesystem.
const DefaultDevice uint64 = 1

type memNode struct {
	info    FileInfo
	target  string
	content string
	denied  bool
}

// MemFS is an in-memory simulated host. It records ownership, permission
// bits, devices, symbolic links and file contents, which is everything the
// scanners inspect. Parent directories are created on demand as root:root 0755.
// MemFS is safe for concurrent readers once populated.
type MemFS struct {
	mu      sync.RWMutex
	nodes   map[string]*memNode
	lastIno uint64
}

// NewMemFS returns a simulated host holding only the root directory.
func NewMemFS() *MemFS {
	m := &MemFS{nodes: make(map[string]*memNode), lastIno: 2}
	m.nodes["/"] = &memNode{info: FileInfo{Path: "/", Mode: fs.ModeDir | 0o755, Dev: DefaultDevice, Ino: 2}}
	return m
}

// AddDir creates a directory. mode may carry fs.ModeSticky, fs.ModeSetgid and friends.
func (m *MemFS) AddDir(path string, mode fs.FileMode, uid, gid uint32) *MemFS {
	m.put(path, &memNode{info: FileInfo{Mode: fs.ModeDir | mode, UID: uid, GID: gid}})
	return m
}

// AddFile creates a regular file with the given content.
func (m *MemFS) AddFile(path string, mode fs.FileMode, uid, gid uint32, content string) *MemFS {
	m.put(path, &memNode{
		info:    FileInfo{Mode: mode &^ fs.ModeType, UID: uid, GID: gid, Size: int64(len(content))},
		content: content,
	})
	return m
}

// AddSymlink creates a symbolic link owned by root pointing at target.
func (m *MemFS) AddSymlink(path, target string) *MemFS {
	m.put(path, &memNode{info: FileInfo{Mode: fs.ModeSymlink | 0o777}, target: target})
	return m
}

// AddDevice creates a character device node, e.g. /dev/null.
func (m *MemFS) AddDevice(path string, mode fs.FileMode) *MemFS {
	m.put(path, &memNode{info: FileInfo{Mode: fs.ModeDevice | fs.ModeCharDevice | mode}})
	return m
}

// SetDevice moves path and everything already beneath it to another device,
// simulating a separate mount.
func (m *MemFS) SetDevice(path string, dev uint64) *MemFS {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	for p, n := range m.nodes {
		if HasPathPrefix(p, clean) {
			n.info.Dev = dev
		}
	}
	return m
}

// Chmod replaces the permission and special bits of path, keeping its type.
func (m *MemFS) Chmod(path string, mode fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[filepath.Clean(path)]
	if !ok {
		return &fs.PathError{Op: "chmod", Path: path, Err: fs.ErrNotExist}
	}
	n.info.Mode = n.info.Mode.Type() | (mode &^ fs.ModeType)
	return nil
}

// Chown changes the owner and group of path.
func (m *MemFS) Chown(path string, uid, gid uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[filepath.Clean(path)]
	if !ok {
		return &fs.PathError{Op: "chown", Path: path, Err: fs.ErrNotExist}
	}
	n.info.UID, n.info.GID = uid, gid
	return nil
}

// Deny makes every read of path fail with a permission error.
func (m *MemFS) Deny(path string) *MemFS {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[filepath.Clean(path)]; ok {
		n.denied = true
	}
	return m
}

// Remove deletes path and everything beneath it.
func (m *MemFS) Remove(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clean := filepath.Clean(path)
	for p := range m.nodes {
		if p != "/" && HasPathPrefix(p, clean) {
			delete(m.nodes, p)
		}
	}
}

func (m *MemFS) put(path string, n *memNode) {
	m.mu.Lock()
	defer m.mu.Unlock()

	clean := filepath.Clean("/" + path)
	m.mkdirAll(filepath.Dir(clean))
	n.info.Path = clean
	n.info.Dev = m.nodes[filepath.Dir(clean)].info.Dev
	if old, ok := m.nodes[clean]; ok {
		n.info.Ino = old.info.Ino
	} else {
		m.lastIno++
		n.info.Ino = m.lastIno
	}
	m.nodes[clean] = n
}

func (m *MemFS) mkdirAll(dir string) {
	if _, ok := m.nodes[dir]; ok {
		return
	}
	m.mkdirAll(filepath.Dir(dir))
	m.lastIno++
	m.nodes[dir] = &memNode{info: FileInfo{
		Path: dir,
		Mode: fs.ModeDir | 0o755,
		Dev:  m.nodes[filepath.Dir(dir)].info.Dev,
		Ino:  m.lastIno,
	}}
}

func (m *MemFS) rawLstat(p string) (FileInfo, error) {
	n, ok := m.nodes[p]
	if !ok {
		return FileInfo{}, &fs.PathError{Op: "lstat", Path: p, Err: fs.ErrNotExist}
	}
	return n.info, nil
}

func (m *MemFS) rawReadlink(p string) (string, error) {
	n, ok := m.nodes[p]
	if !ok {
		return "", &fs.PathError{Op: "readlink", Path: p, Err: fs.ErrNotExist}
	}
	if !n.info.IsSymlink() {
		return "", &fs.PathError{Op: "readlink", Path: p, Err: fs.ErrInvalid}
	}
	return n.target, nil
}

func (m *MemFS) resolve(p string) (string, error) {
	return resolvePath(p, m.rawLstat, m.rawReadlink)
}

func (m *MemFS) Exists(path string) bool {
	_, err := m.Stat(path)
	return err == nil
}

func (m *MemFS) Stat(path string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	real, err := m.resolve(path)
	if err != nil {
		return FileInfo{}, err
	}
	fi, err := m.rawLstat(real)
	if err != nil {
		return FileInfo{}, err
	}
	// Report the path that was asked for, like os.Stat does.
	fi.Path = filepath.Clean("/" + path)
	return fi, nil
}

func (m *MemFS) Lstat(path string) (FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	real, err := resolveParent(path, m.rawLstat, m.rawReadlink)
	if err != nil {
		return FileInfo{}, err
	}
	fi, err := m.rawLstat(real)
	if err != nil {
		return FileInfo{}, err
	}
	fi.Path = filepath.Clean("/" + path)
	return fi, nil
}

func (m *MemFS) Readlink(path string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	real, err := resolveParent(path, m.rawLstat, m.rawReadlink)
	if err != nil {
		return "", err
	}
	return m.rawReadlink(real)
}

func (m *MemFS) ListChildren(dir string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	real, err := m.resolve(dir)
	if err != nil {
		return nil, err
	}
	n := m.nodes[real]
	if !n.info.IsDir() {
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: fs.ErrInvalid}
	}
	if n.denied {
		return nil, &fs.PathError{Op: "readdir", Path: dir, Err: fs.ErrPermission}
	}

	prefix := real + "/"
	if real == "/" {
		prefix = "/"
	}
	var names []string
	for p := range m.nodes {
		if p == real || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (m *MemFS) ReadFileLines(path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	real, err := m.resolve(path)
	if err != nil {
		return nil, err
	}
	n := m.nodes[real]
	if !n.info.IsRegular() {
		return nil, &fs.PathError{Op: "read", Path: path, Err: fs.ErrInvalid}
	}
	if n.denied {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
	}
	return splitLines(n.content), nil
}

func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
