// Package sysinfo collects the static host description embedded in reports.
package sysinfo

import (
	"os"
	"os/user"
	"runtime"
	"strconv"
	"strings"

	"github.com/user/privaudit/pkg/engine"
	"github.com/user/privaudit/pkg/hostfs"
)

// OSReleasePath is the os-release file consulted for the distribution name.
const OSReleasePath = "/etc/os-release"

// Collect describes the audited host. Distribution details are read
// through in, so an image mounted under another root reports its own name.
func Collect(in hostfs.Inspector) engine.HostSnapshot {
	snap := engine.HostSnapshot{
		UID:          os.Geteuid(),
		Architecture: runtime.GOARCH,
		OS:           runtime.GOOS,
	}
	snap.IsRoot = snap.UID == 0

	if u, err := user.Current(); err == nil {
		snap.User = u.Username
	} else {
		snap.User = strconv.Itoa(snap.UID)
	}
	if h, err := os.Hostname(); err == nil {
		snap.Hostname = h
	}

	un := uname()
	if un.machine != "" {
		snap.Architecture = un.machine
	}
	snap.Kernel = un.release

	if lines, err := in.ReadFileLines(OSReleasePath); err == nil {
		if name := PrettyName(lines); name != "" {
			snap.OS = name
		}
	}
	return snap
}

// PrettyName extracts PRETTY_NAME, falling back to NAME, from os-release lines.
func PrettyName(lines []string) string {
	var name string
	for _, line := range lines {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, `"'`)
		switch key {
		case "PRETTY_NAME":
			return value
		case "NAME":
			name = value
		}
	}
	return name
}
