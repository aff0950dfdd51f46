// Package device inspects block devices before they are handed to LVM
// as physical volumes. Its one job is to notice a device that still
// carries a partition table so vgcreate does not silently clobber it.
package device

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/rekby/gpt"
	"github.com/rekby/mbr"
)

// TableType enumerates partition table types found on a device.
type TableType int

const (
	// TableNone - no recognizable partition table.
	TableNone TableType = iota

	// TableGPT - a GUID partition table.
	TableGPT

	// TableMBR - a legacy MBR partition table.
	TableMBR
)

func (t TableType) String() string {
	switch t {
	case TableGPT:
		return "gpt"
	case TableMBR:
		return "mbr"
	}

	return "none"
}

const (
	sectorSize512 = 512
	sectorSize4k  = 4096
)

// Info is what Inspect learned about a device.
type Info struct {
	// Path is the device path that was inspected.
	Path string

	// Size is the device size in bytes.
	Size uint64

	// Table is the partition table type found, if any.
	Table TableType
}

// Inspect opens the device read-only, measures it and probes for a GPT
// or MBR partition table.
func Inspect(path string) (Info, error) {
	info := Info{Path: path}

	fp, err := os.Open(path) //nolint:gosec
	if err != nil {
		return info, errors.Wrapf(err, "failed to open %q", path)
	}
	defer fp.Close()

	if info.Size, err = devSize(fp); err != nil {
		return info, errors.Wrapf(err, "failed to size %q", path)
	}

	info.Table, err = findTable(fp)

	return info, err
}

// EnsureUnused fails when the device still carries a partition table;
// creating an LVM PV over it would destroy whatever the table
// describes.
func EnsureUnused(path string) error {
	info, err := Inspect(path)
	if err != nil {
		return err
	}

	if info.Table != TableNone {
		return errors.Errorf("device %q carries a %s partition table",
			path, info.Table)
	}

	return nil
}

// devSize measures via seek, which works for block devices and plain
// files alike.
func devSize(fp *os.File) (uint64, error) {
	cur, err := fp.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	end, err := fp.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}

	if _, err := fp.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}

	return uint64(end), nil
}

func findTable(fp io.ReadSeeker) (TableType, error) {
	const noGptFound = "Bad GPT signature"

	for _, size := range []uint64{sectorSize512, sectorSize4k} {
		if _, err := fp.Seek(int64(size), io.SeekStart); err != nil {
			return TableNone, err
		}

		if _, err := gpt.ReadTable(fp, size); err != nil {
			if err.Error() == noGptFound {
				continue
			}

			return TableNone, err
		}

		return TableGPT, nil
	}

	if _, err := fp.Seek(0, io.SeekStart); err != nil {
		return TableNone, err
	}

	if _, err := mbr.Read(fp); err != nil {
		if err == mbr.ErrorBadMbrSign {
			return TableNone, nil
		}

		return TableNone, err
	}

	return TableMBR, nil
}
