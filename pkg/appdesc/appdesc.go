// Package appdesc describes a built application image set: the flash
// segments to program, the partition table they assume, and the flash
// settings the device expects. Descriptors are loaded from YAML files
// produced by the build system and are read-only to the rest of the
// harness.
package appdesc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// HexUint32 is a uint32 that also accepts "0x"-prefixed strings in YAML,
// matching the way build tooling emits partition offsets.
type HexUint32 uint32

// UnmarshalYAML parses either a plain integer or a string accepted by
// strconv.ParseUint with base 0 (e.g. "0x9000").
func (h *HexUint32) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var n uint32
		if err := value.Decode(&n); err != nil {
			return fmt.Errorf("invalid offset/size value: %s", value.Value)
		}
		*h = HexUint32(n)
		return nil
	}
	n, err := strconv.ParseUint(raw, 0, 32)
	if err != nil {
		return fmt.Errorf("invalid offset/size value %q: %w", raw, err)
	}
	*h = HexUint32(n)
	return nil
}

// Segment is one flash image: the file to program and the offset it
// belongs at.
type Segment struct {
	Offset HexUint32 `yaml:"offset"`
	Path   string    `yaml:"path"`
}

// Partition is one entry of the partition table.
type Partition struct {
	Offset HexUint32 `yaml:"offset"`
	Size   HexUint32 `yaml:"size"`
}

// FlashSettings carries the transfer parameters the device was built for.
type FlashSettings struct {
	Size string `yaml:"flash_size"`
	Mode string `yaml:"flash_mode"`
	Freq string `yaml:"flash_freq"`
}

// App is a loaded application descriptor.
type App struct {
	Name       string               `yaml:"name"`
	Segments   []Segment            `yaml:"images"`
	Partitions map[string]Partition `yaml:"partitions"`
	Flash      FlashSettings        `yaml:"flash"`
	LogDir     string               `yaml:"log_dir"`

	// baseDir is the directory the descriptor was loaded from; relative
	// image paths resolve against it.
	baseDir string
}

// Parse decodes and validates a descriptor from YAML bytes.
func Parse(data []byte) (*App, error) {
	var app App
	if err := yaml.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("failed to parse app descriptor: %w", err)
	}
	if err := app.Validate(); err != nil {
		return nil, err
	}
	return &app, nil
}

// Load reads and parses a descriptor file. Relative image and log paths
// in the descriptor resolve against the file's directory.
func Load(path string) (*App, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read app descriptor: %w", err)
	}
	app, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	app.baseDir = filepath.Dir(path)
	return app, nil
}

// Validate checks the structural invariants the flash path relies on:
// every segment has a path, every partition has a positive size, and no
// two partitions overlap.
func (a *App) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("app descriptor: name is required")
	}
	for i, seg := range a.Segments {
		if seg.Path == "" {
			return fmt.Errorf("app descriptor: image %d has no path", i)
		}
	}

	type span struct {
		name       string
		start, end uint64 // end exclusive
	}
	spans := make([]span, 0, len(a.Partitions))
	for name, p := range a.Partitions {
		if p.Size == 0 {
			return fmt.Errorf("app descriptor: partition %q has zero size", name)
		}
		start := uint64(p.Offset)
		spans = append(spans, span{name: name, start: start, end: start + uint64(p.Size)})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return fmt.Errorf("app descriptor: partitions %q and %q overlap",
				spans[i-1].name, spans[i].name)
		}
	}
	return nil
}

// Partition looks up a partition table entry by name.
func (a *App) Partition(name string) (Partition, error) {
	p, ok := a.Partitions[name]
	if !ok {
		return Partition{}, fmt.Errorf("no partition %q in partition table", name)
	}
	return p, nil
}

// SegmentPath resolves a segment's image path. Relative paths are joined
// to the descriptor's directory.
func (a *App) SegmentPath(seg Segment) string {
	if filepath.IsAbs(seg.Path) || a.baseDir == "" {
		return seg.Path
	}
	return filepath.Join(a.baseDir, seg.Path)
}

// LogFolder returns the directory harness output (capture logs, flash
// dumps) is written to. Relative log dirs resolve like image paths.
func (a *App) LogFolder() string {
	dir := a.LogDir
	if dir == "" {
		dir = "log"
	}
	if filepath.IsAbs(dir) || a.baseDir == "" {
		return dir
	}
	return filepath.Join(a.baseDir, dir)
}
