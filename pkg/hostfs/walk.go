package hostfs

import (
	"context"
	"iter"
	"path/filepath"
	"slices"
)

// DefaultPrune lists pseudo filesystems that are never worth walking.
var DefaultPrune = []string{"/proc", "/sys", "/dev", "/run"}

// WalkOptions bounds a traversal.
type WalkOptions struct {
	// Prune paths are neither yielded nor descended into.
	Prune []string
	// MountPoints are yielded but not descended into.
	MountPoints []string
	// CrossDevices allows descending into directories on another device than root.
	CrossDevices bool
}

func (o WalkOptions) pruned(p string) bool {
	return slices.ContainsFunc(o.Prune, func(prefix string) bool { return HasPathPrefix(p, prefix) })
}

func (o WalkOptions) isMountPoint(p string) bool {
	return slices.Contains(o.MountPoints, p)
}

// Walk returns a lazy sequence of every object under root in lexical order.
// A symbolic link at root is followed; below it objects are described with
// Lstat, so symbolic links are yielded but never followed. Directories that
// cannot be listed are yielded and skipped. The sequence ends early when ctx
// is cancelled.
func Walk(ctx context.Context, in Inspector, root string, opts WalkOptions) iter.Seq[FileInfo] {
	root = filepath.Clean(root)
	return func(yield func(FileInfo) bool) {
		if opts.pruned(root) {
			return
		}
		fi, err := in.Stat(root)
		if err != nil {
			return
		}
		w := walker{ctx: ctx, in: in, opts: opts, dev: fi.Dev, yield: yield}
		w.visit(fi, true)
	}
}

type walker struct {
	ctx   context.Context
	in    Inspector
	opts  WalkOptions
	dev   uint64
	yield func(FileInfo) bool
}

// visit yields fi and descends into it when allowed. It returns false once
// the consumer or the context asked to stop.
func (w *walker) visit(fi FileInfo, isRoot bool) bool {
	if w.ctx.Err() != nil {
		return false
	}
	if !w.yield(fi) {
		return false
	}
	if !fi.IsDir() {
		return true
	}
	if !isRoot {
		if !w.opts.CrossDevices && fi.Dev != w.dev {
			return true
		}
		if w.opts.isMountPoint(fi.Path) {
			return true
		}
	}

	names, err := w.in.ListChildren(fi.Path)
	if err != nil {
		return true
	}
	for _, name := range names {
		child := filepath.Join(fi.Path, name)
		if w.opts.pruned(child) {
			continue
		}
		cfi, err := w.in.Lstat(child)
		if err != nil {
			continue
		}
		if !w.visit(cfi, false) {
			return false
		}
	}
	return true
}
