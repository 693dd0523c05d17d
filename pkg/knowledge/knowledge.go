// Package knowledge holds the static exploit lookup tables: GTFOBins-style
// techniques per binary name and known local privilege-escalation CVEs per
// kernel major.minor version.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

//go:embed data/gtfobins.json
var defaultGTFOBins []byte

//go:embed data/kernel_cves.json
var defaultKernelCVEs []byte

// KernelEntry describes the exposure of one kernel major.minor series.
type KernelEntry struct {
	Risk string   `yaml:"risk" json:"risk"`
	CVEs []string `yaml:"cves" json:"cves"`
	Note string   `yaml:"note" json:"note"`
}

// Base is the loaded knowledge base. It is never modified after loading and
// is safe for concurrent use.
type Base struct {
	techniques map[string]string
	kernels    map[string]KernelEntry
}

// Empty returns a knowledge base without entries.
func Empty() *Base {
	return &Base{techniques: map[string]string{}, kernels: map[string]KernelEntry{}}
}

// Default returns the knowledge base shipped with the binary.
func Default() (*Base, error) {
	b := Empty()
	var errs []error
	if err := yaml.Unmarshal(defaultGTFOBins, &b.techniques); err != nil {
		b.techniques = map[string]string{}
		errs = append(errs, fmt.Errorf("parse embedded gtfobins: %w", err))
	}
	if err := yaml.Unmarshal(defaultKernelCVEs, &b.kernels); err != nil {
		b.kernels = map[string]KernelEntry{}
		errs = append(errs, fmt.Errorf("parse embedded kernel cves: %w", err))
	}
	return b, errors.Join(errs...)
}

// Load reads both tables from JSON or YAML files. An empty path selects the
// embedded table. A missing file yields an empty table without error. A
// malformed file yields an empty table and an error describing it, while the
// other table still loads; callers log the error and carry on.
func Load(gtfobinsPath, kernelPath string) (*Base, error) {
	def, defErr := Default()
	b := Empty()
	var errs []error

	if gtfobinsPath == "" {
		b.techniques = def.techniques
	} else if err := loadFile(gtfobinsPath, &b.techniques); err != nil {
		b.techniques = map[string]string{}
		errs = append(errs, err)
	}

	if kernelPath == "" {
		b.kernels = def.kernels
	} else if err := loadFile(kernelPath, &b.kernels); err != nil {
		b.kernels = map[string]KernelEntry{}
		errs = append(errs, err)
	}

	if defErr != nil && (gtfobinsPath == "" || kernelPath == "") {
		errs = append(errs, defErr)
	}
	return b, errors.Join(errs...)
}

func loadFile[T any](path string, out *map[string]T) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var m map[string]T
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if m != nil {
		*out = m
	}
	return nil
}

// Technique returns the escalation technique known for a binary base name.
func (b *Base) Technique(binary string) (string, bool) {
	t, ok := b.techniques[binary]
	return t, ok
}

// Kernel returns the entry for a "major.minor" kernel series.
func (b *Base) Kernel(majorMinor string) (KernelEntry, bool) {
	e, ok := b.kernels[majorMinor]
	if ok {
		e.CVEs = slices.Clone(e.CVEs)
	}
	return e, ok
}

// Binaries returns the sorted binary names with a known technique.
func (b *Base) Binaries() []string {
	return slices.Sorted(maps.Keys(b.techniques))
}

// KernelVersions returns the sorted kernel series with known CVEs.
func (b *Base) KernelVersions() []string {
	return slices.Sorted(maps.Keys(b.kernels))
}

// Counts returns the number of binaries and kernel series.
func (b *Base) Counts() (binaries, kernels int) {
	return len(b.techniques), len(b.kernels)
}
