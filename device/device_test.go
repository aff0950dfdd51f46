package device

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testImageSize = 64 * 1024

// writeImage creates a zero-filled disk image with the given bytes
// patched in at offset.
func writeImage(t *testing.T, patch []byte, offset int) string {
	t.Helper()

	buf := make([]byte, testImageSize)
	copy(buf[offset:], patch)

	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("failed to write image: %s", err)
	}

	return path
}

// gptImage creates a zero-filled disk image carrying a well-formed GPT
// header at LBA 1 for the given sector size, with an all-empty
// partition entry array at LBA 2. Header and entry CRCs are computed so
// the table validates.
func gptImage(t *testing.T, sector int) string {
	t.Helper()

	const (
		headerSize = 92
		entryCount = 128
		entrySize  = 128
	)

	buf := make([]byte, testImageSize)
	entries := buf[2*sector : 2*sector+entryCount*entrySize]

	h := make([]byte, headerSize)
	copy(h, "EFI PART")
	copy(h[8:], []byte{0x00, 0x00, 0x01, 0x00}) // revision 1.0
	binary.LittleEndian.PutUint32(h[12:], headerSize)
	binary.LittleEndian.PutUint64(h[24:], 1) // this header
	binary.LittleEndian.PutUint64(h[32:], uint64(testImageSize/sector-1))
	binary.LittleEndian.PutUint64(h[40:], 34)
	binary.LittleEndian.PutUint64(h[48:], uint64(testImageSize/sector-34))
	binary.LittleEndian.PutUint64(h[72:], 2) // entry array LBA
	binary.LittleEndian.PutUint32(h[80:], entryCount)
	binary.LittleEndian.PutUint32(h[84:], entrySize)
	binary.LittleEndian.PutUint32(h[88:], crc32.ChecksumIEEE(entries))
	binary.LittleEndian.PutUint32(h[16:], crc32.ChecksumIEEE(h))

	copy(buf[sector:], h)

	path := filepath.Join(t.TempDir(), "disk.img")
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("failed to write image: %s", err)
	}

	return path
}

func TestInspectBlankDevice(t *testing.T) {
	ast := assert.New(t)

	path := writeImage(t, nil, 0)

	info, err := Inspect(path)
	ast.NoError(err)
	ast.Equal(path, info.Path)
	ast.Equal(uint64(testImageSize), info.Size)
	ast.Equal(TableNone, info.Table)
}

func TestInspectMBR(t *testing.T) {
	ast := assert.New(t)

	// an otherwise empty sector with the boot signature is a valid
	// MBR with no partitions
	path := writeImage(t, []byte{0x55, 0xAA}, 510)

	info, err := Inspect(path)
	ast.NoError(err)
	ast.Equal(TableMBR, info.Table)
}

func TestInspectGPT(t *testing.T) {
	ast := assert.New(t)

	// both probe offsets: 512-byte and 4K sectors
	for _, sector := range []int{sectorSize512, sectorSize4k} {
		info, err := Inspect(gptImage(t, sector))
		ast.NoError(err)
		ast.Equal(TableGPT, info.Table, "sector size %d", sector)
	}
}

func TestInspectMissingDevice(t *testing.T) {
	ast := assert.New(t)

	_, err := Inspect(filepath.Join(t.TempDir(), "nonexistent"))
	ast.Error(err)
}

func TestEnsureUnused(t *testing.T) {
	ast := assert.New(t)

	ast.NoError(EnsureUnused(writeImage(t, nil, 0)))

	err := EnsureUnused(writeImage(t, []byte{0x55, 0xAA}, 510))
	ast.Error(err)
	ast.Contains(err.Error(), "mbr partition table")

	err = EnsureUnused(gptImage(t, sectorSize512))
	ast.Error(err)
	ast.Contains(err.Error(), "gpt partition table")
}

func TestDevSize(t *testing.T) {
	ast := assert.New(t)

	fp, err := os.Open(writeImage(t, nil, 0))
	ast.NoError(err)

	defer fp.Close()

	size, err := devSize(fp)
	ast.NoError(err)
	ast.Equal(uint64(testImageSize), size)
}

func TestTableTypeString(t *testing.T) {
	ast := assert.New(t)

	ast.Equal("none", TableNone.String())
	ast.Equal("gpt", TableGPT.String())
	ast.Equal("mbr", TableMBR.String())
}
