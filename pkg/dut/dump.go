package dut

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openhil/dutkit/pkg/bootrom"
)

// DumpRequest selects the flash range to read back: either a partition
// by name, or an explicit address and non-zero size. Naming a partition
// takes precedence when both are set.
type DumpRequest struct {
	Partition string
	Address   uint32
	Size      uint32
}

// resolve maps the request onto a concrete range. An incomplete request
// is a configuration error and is rejected here, before any device I/O.
func (r DumpRequest) resolve(d *DUT) (offset, size uint32, err error) {
	if r.Partition != "" {
		part, err := d.app.Partition(r.Partition)
		if err != nil {
			return 0, 0, &ToolError{Op: "cannot dump partition", Err: err}
		}
		return uint32(part.Offset), uint32(part.Size), nil
	}
	if r.Size != 0 {
		return r.Address, r.Size, nil
	}
	return 0, 0, &ToolError{Op: "dump request must name a partition or give both address and size"}
}

// DumpFlash reads the requested flash range inside an exclusive control
// session and writes the raw bytes to output. Relative output paths
// resolve against the app descriptor's log folder.
func (d *DUT) DumpFlash(output string, req DumpRequest) error {
	offset, size, err := req.resolve(d)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(output) {
		output = filepath.Join(d.app.LogFolder(), output)
	}
	return d.runExclusive("dump-flash", func(p bootrom.Client) error {
		data, err := p.ReadRegion(offset, size)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return fmt.Errorf("failed to create dump directory: %w", err)
		}
		if err := os.WriteFile(output, data, 0o644); err != nil {
			return fmt.Errorf("failed to write dump file: %w", err)
		}
		d.log.Info().Str("file", output).Uint32("offset", offset).
			Uint32("size", size).Msg("flash region dumped")
		return nil
	})
}
