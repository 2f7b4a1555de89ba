package dut

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/openhil/dutkit/pkg/appdesc"
	"github.com/openhil/dutkit/pkg/bootrom"
)

// flashBaudRates is the descending speed ladder for flashing: the
// preferred high speed, then one conservative fallback. Negotiation
// exhaustion after both is a defined failure, never a third attempt.
var flashBaudRates = []int{921600, 115200}

// eraseByte is the value raw flash reads as when unwritten. Erasing a
// region means filling it with this, never an arbitrary value.
const eraseByte = 0xFF

// nvsPartition names the persistent-storage partition flashing may erase.
const nvsPartition = "nvs"

// FlashConfig controls one flash operation.
type FlashConfig struct {
	// EraseNVS wipes the persistent-storage partition alongside the
	// image, so the app starts from factory state.
	EraseNVS bool
}

// Flash programs the application image set onto the device inside an
// exclusive control session.
func (d *DUT) Flash(cfg FlashConfig) error {
	return d.runExclusive("flash", func(p bootrom.Client) error {
		return flashDevice(p, d.app, cfg, d.log)
	})
}

// planEntry is one region of a flash plan: a seekable data source and
// the offset it is programmed at. closer is nil for in-memory sources.
type planEntry struct {
	offset uint32
	src    io.ReadSeeker
	closer io.Closer
}

// buildPlan assembles the ordered flash plan: the descriptor's image
// segments, plus a synthesized all-0xFF region covering the NVS
// partition when eraseNVS is set. On error, sources opened so far are
// closed before returning.
func buildPlan(app *appdesc.App, eraseNVS bool) ([]planEntry, error) {
	var plan []planEntry
	for _, seg := range app.Segments {
		f, err := os.Open(app.SegmentPath(seg))
		if err != nil {
			closePlan(plan)
			return nil, fmt.Errorf("failed to open flash image: %w", err)
		}
		plan = append(plan, planEntry{offset: uint32(seg.Offset), src: f, closer: f})
	}
	if eraseNVS {
		part, err := app.Partition(nvsPartition)
		if err != nil {
			closePlan(plan)
			return nil, &ToolError{Op: "cannot erase persistent storage", Err: err}
		}
		fill := bytes.NewReader(bytes.Repeat([]byte{eraseByte}, int(part.Size)))
		plan = append(plan, planEntry{offset: uint32(part.Offset), src: fill})
	}
	return plan, nil
}

func closePlan(plan []planEntry) {
	for _, e := range plan {
		if e.closer != nil {
			e.closer.Close()
		}
	}
}

// rewindPlan seeks every source back to its start, so a fallback-speed
// attempt transfers the full regions again.
func rewindPlan(plan []planEntry) error {
	for _, e := range plan {
		if _, err := e.src.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("failed to rewind flash source: %w", err)
		}
	}
	return nil
}

// flashDevice writes the plan through the connected client, negotiating
// the fastest working transfer speed. Only negotiation-class failures
// trigger the fallback attempt; data and protocol errors propagate
// unchanged. All plan sources are closed exactly once before returning,
// success or failure.
func flashDevice(p bootrom.Client, app *appdesc.App, cfg FlashConfig, log zerolog.Logger) error {
	plan, err := buildPlan(app, cfg.EraseNVS)
	if err != nil {
		return err
	}
	defer closePlan(plan)

	opts := bootrom.FlashOptions{
		Size:     app.Flash.Size,
		Mode:     app.Flash.Mode,
		Freq:     app.Flash.Freq,
		Compress: true,
	}

	var lastErr error
	for _, baud := range flashBaudRates {
		if err := rewindPlan(plan); err != nil {
			return err
		}
		err := writePlan(p, plan, baud, opts)
		if err == nil {
			return nil
		}
		if !errors.Is(err, bootrom.ErrNegotiation) {
			return err
		}
		log.Warn().Int("baud", baud).Err(err).Msg("flash attempt failed to negotiate")
		lastErr = err
	}
	return &ToolError{Op: "unable to negotiate a working transfer speed", Err: lastErr}
}

func writePlan(p bootrom.Client, plan []planEntry, baud int, opts bootrom.FlashOptions) error {
	if err := p.ChangeSpeed(baud); err != nil {
		return err
	}
	for _, e := range plan {
		if err := p.WriteRegion(e.offset, e.src, opts); err != nil {
			return err
		}
	}
	return nil
}

// ErasePartition overwrites the named partition's byte range with the
// flash erase-state value.
func (d *DUT) ErasePartition(name string) error {
	part, err := d.app.Partition(name)
	if err != nil {
		return &ToolError{Op: "cannot erase partition", Err: err}
	}
	return d.runExclusive("erase-partition", func(p bootrom.Client) error {
		fill := bytes.NewReader(bytes.Repeat([]byte{eraseByte}, int(part.Size)))
		return p.WriteRegion(uint32(part.Offset), fill, bootrom.FlashOptions{
			Size: d.app.Flash.Size,
			Mode: d.app.Flash.Mode,
			Freq: d.app.Flash.Freq,
		})
	})
}
