package appdesc

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDescriptor = `
name: hello_world
images:
  - offset: 0x1000
    path: bootloader.bin
  - offset: 0x8000
    path: partition-table.bin
  - offset: 0x10000
    path: hello_world.bin
partitions:
  nvs:
    offset: 0x9000
    size: 0x6000
  phy_init:
    offset: 0xf000
    size: 0x1000
  factory:
    offset: 0x10000
    size: 1048576
flash:
  flash_size: 4MB
  flash_mode: dio
  flash_freq: 40m
log_dir: logs
`

func TestParse(t *testing.T) {
	app, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)

	assert.Equal(t, "hello_world", app.Name)
	require.Len(t, app.Segments, 3)
	assert.Equal(t, HexUint32(0x1000), app.Segments[0].Offset)
	assert.Equal(t, "bootloader.bin", app.Segments[0].Path)

	nvs, err := app.Partition("nvs")
	require.NoError(t, err)
	assert.Equal(t, HexUint32(0x9000), nvs.Offset)
	assert.Equal(t, HexUint32(0x6000), nvs.Size)

	// Decimal sizes parse too.
	factory, err := app.Partition("factory")
	require.NoError(t, err)
	assert.Equal(t, HexUint32(1048576), factory.Size)

	assert.Equal(t, "dio", app.Flash.Mode)
}

func TestParse_UnknownPartition(t *testing.T) {
	app, err := Parse([]byte(sampleDescriptor))
	require.NoError(t, err)

	_, err = app.Partition("ota_0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ota_0")
}

func TestValidate_ZeroSizePartition(t *testing.T) {
	bad := strings.Replace(sampleDescriptor, "size: 0x6000", "size: 0", 1)
	_, err := Parse([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zero size")
}

func TestValidate_OverlappingPartitions(t *testing.T) {
	bad := strings.Replace(sampleDescriptor, "offset: 0xf000", "offset: 0xa000", 1)
	_, err := Parse([]byte(bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overlap")
}

func TestValidate_MissingImagePath(t *testing.T) {
	bad := strings.Replace(sampleDescriptor, "path: bootloader.bin", `path: ""`, 1)
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}

func TestParse_BadOffset(t *testing.T) {
	bad := strings.Replace(sampleDescriptor, "offset: 0x1000", "offset: notanumber", 1)
	_, err := Parse([]byte(bad))
	require.Error(t, err)
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDescriptor), 0o644))

	app, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "bootloader.bin"), app.SegmentPath(app.Segments[0]))
	assert.Equal(t, filepath.Join(dir, "logs"), app.LogFolder())

	// Absolute segment paths pass through untouched.
	abs := Segment{Offset: 0, Path: "/firmware/app.bin"}
	assert.Equal(t, "/firmware/app.bin", app.SegmentPath(abs))
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
