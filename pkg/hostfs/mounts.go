package hostfs

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMountInfo is the kernel's per-process mount table.
const DefaultMountInfo = "/proc/self/mountinfo"

// MountPoints returns the mount points listed in a mountinfo file, excluding
// the root mount. Field five of each line is the mount point, with spaces and
// other special characters octal-escaped.
func MountPoints(in Inspector, mountinfoPath string) ([]string, error) {
	lines, err := in.ReadFileLines(mountinfoPath)
	if err != nil {
		return nil, fmt.Errorf("read mountinfo: %w", err)
	}

	var points []string
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		mp := filepath.Clean(unescapeOctal(fields[4]))
		if mp == "/" {
			continue
		}
		points = append(points, mp)
	}
	return points, nil
}

// unescapeOctal decodes the \NNN sequences the kernel writes for whitespace
// and backslashes in mount paths.
func unescapeOctal(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+4 <= len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+4], 8, 8); err == nil {
				sb.WriteByte(byte(v))
				i += 3
				continue
			}
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
