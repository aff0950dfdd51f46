package lvm

import (
	"strconv"

	"github.com/pkg/errors"

	"machinerun.io/sanlvm"
	"machinerun.io/sanlvm/run"
)

// Output schemas for the inventory commands. lvs and bare vgs print
// aligned columns (whitespace-run separated); the wider pvs and vgs
// queries are invoked with an explicit ':' separator.
var (
	lvSchema     = sanlvm.Schema{Name: "lvs", Fields: 3}
	lvSizeSchema = sanlvm.Schema{Name: "lvs", Fields: 1}
	pvSchema     = sanlvm.Schema{Name: "pvs", Fields: 4, Separator: ":"}
	vgSchema     = sanlvm.Schema{Name: "vgs", Fields: 5, Separator: ":"}
	vgNameSchema = sanlvm.Schema{Name: "vgs", Fields: 1}
)

// AllVolumes lists LVs system-wide, or only those in vgName when it is
// non-empty. Usable without a VolumeGroup instance.
func AllVolumes(r run.Runner, vgName string) ([]sanlvm.LV, error) {
	argv := []string{"lvs", "--noheadings", "-o", "vg_name,name,size"}
	if vgName != "" {
		argv = append(argv, vgName)
	}

	stdout, _, err := r.Run(argv, true)
	if err != nil {
		return nil, err
	}

	records, err := sanlvm.ParseTable(stdout, lvSchema)
	if err != nil {
		return nil, err
	}

	lvs := []sanlvm.LV{}

	for _, rec := range records {
		size, err := sanlvm.ParseQuantity(rec[2])
		if err != nil {
			return nil, errors.Wrapf(err, "bad lv size for %s/%s", rec[0], rec[1])
		}

		lvs = append(lvs, sanlvm.LV{Group: rec[0], Name: rec[1], Size: size})
	}

	return lvs, nil
}

// AllPhysicalVolumes lists PVs system-wide, or only those in vgName
// when it is non-empty.
func AllPhysicalVolumes(r run.Runner, vgName string) ([]sanlvm.PV, error) {
	argv := []string{
		"pvs", "--noheadings",
		"-o", "vg_name,name,size,free",
		"--separator", pvSchema.Separator,
	}
	if vgName != "" {
		argv = append(argv, vgName)
	}

	stdout, _, err := r.Run(argv, true)
	if err != nil {
		return nil, err
	}

	records, err := sanlvm.ParseTable(stdout, pvSchema)
	if err != nil {
		return nil, err
	}

	pvs := []sanlvm.PV{}

	for _, rec := range records {
		size, err := sanlvm.ParseQuantity(rec[2])
		if err != nil {
			return nil, errors.Wrapf(err, "bad pv size for %s", rec[1])
		}

		free, err := sanlvm.ParseQuantity(rec[3])
		if err != nil {
			return nil, errors.Wrapf(err, "bad pv free size for %s", rec[1])
		}

		pvs = append(pvs, sanlvm.PV{
			Group: rec[0],
			Name:  rec[1],
			Size:  size,
			Free:  free,
		})
	}

	return pvs, nil
}

// AllVolumeGroups lists VG summaries system-wide, or only vgName when
// it is non-empty.
func AllVolumeGroups(r run.Runner, vgName string) ([]sanlvm.VGInfo, error) {
	argv := []string{
		"vgs", "--noheadings",
		"-o", "name,size,free,lv_count,uuid",
		"--separator", vgSchema.Separator,
	}
	if vgName != "" {
		argv = append(argv, vgName)
	}

	stdout, _, err := r.Run(argv, true)
	if err != nil {
		return nil, err
	}

	records, err := sanlvm.ParseTable(stdout, vgSchema)
	if err != nil {
		return nil, err
	}

	vgs := []sanlvm.VGInfo{}

	for _, rec := range records {
		size, err := sanlvm.ParseQuantity(rec[1])
		if err != nil {
			return nil, errors.Wrapf(err, "bad vg size for %s", rec[0])
		}

		free, err := sanlvm.ParseQuantity(rec[2])
		if err != nil {
			return nil, errors.Wrapf(err, "bad vg free size for %s", rec[0])
		}

		count, err := strconv.Atoi(rec[3])
		if err != nil {
			return nil, errors.Wrapf(err, "bad vg lv_count for %s", rec[0])
		}

		vgs = append(vgs, sanlvm.VGInfo{
			Name:    rec[0],
			Size:    size,
			Free:    free,
			LVCount: count,
			UUID:    rec[4],
		})
	}

	return vgs, nil
}

// vgExists checks the system VG list for an exact name match.
func vgExists(r run.Runner, vgName string) (bool, error) {
	stdout, _, err := r.Run([]string{"vgs", "--noheadings", "-o", "name"}, true)
	if err != nil {
		return false, err
	}

	records, err := sanlvm.ParseTable(stdout, vgNameSchema)
	if err != nil {
		return false, err
	}

	for _, rec := range records {
		if rec[0] == vgName {
			return true, nil
		}
	}

	return false, nil
}
