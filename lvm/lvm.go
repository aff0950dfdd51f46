// Package lvm manages the logical volumes of one LVM volume group. A
// VolumeGroup is bound to its group name for life and composes a
// run.Runner (local or remote) with the tabular output parsing in the
// root package. It keeps no authoritative state: every query re-fetches
// from the system, and the short-lived cache only serves repeated reads
// of the last fetch.
package lvm

import (
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"machinerun.io/sanlvm"
	"machinerun.io/sanlvm/device"
	"machinerun.io/sanlvm/logging"
	"machinerun.io/sanlvm/run"
)

const (
	cacheTTL    = 15 * time.Second
	cacheSweep  = time.Minute
	cacheLVs    = "lvs"
	cachePVs    = "pvs"
	cacheVGInfo = "vginfo"
)

// Options controls construction of a VolumeGroup.
type Options struct {
	// CreateVG creates the volume group over PhysicalVolumes before
	// binding to it.
	CreateVG bool

	// PhysicalVolumes is the device list for CreateVG.
	PhysicalVolumes []string

	// CheckDevices refuses to vgcreate over a device that still carries
	// a partition table. Only meaningful with local execution, where
	// the device nodes are visible to this process.
	CheckDevices bool
}

// VolumeGroup manages one volume group. Construct with New; the zero
// value is not usable.
type VolumeGroup struct {
	name   string
	runner run.Runner
	cache  *cache.Cache
	log    zerolog.Logger

	info sanlvm.VGInfo
}

// New binds a manager to vgName, optionally creating the group first.
// Construction confirms the group exists and fails fast with
// *sanlvm.VolumeGroupNotFoundError when it does not.
func New(r run.Runner, vgName string, opts Options) (*VolumeGroup, error) {
	vg := &VolumeGroup{
		name:   vgName,
		runner: r,
		cache:  cache.New(cacheTTL, cacheSweep),
		log:    logging.WithVG(logging.WithComponent("lvm"), vgName),
	}

	if opts.CreateVG && len(opts.PhysicalVolumes) > 0 {
		if err := vg.createVG(opts); err != nil {
			vg.log.Error().Err(err).Msg("volume group creation failed")
			return nil, err
		}
	}

	exists, err := vgExists(r, vgName)
	if err != nil {
		return nil, err
	}

	if !exists {
		vg.log.Error().Msg("unable to locate volume group")
		return nil, &sanlvm.VolumeGroupNotFoundError{Name: vgName}
	}

	return vg, nil
}

// Name returns the volume group name the manager is bound to.
func (vg *VolumeGroup) Name() string {
	return vg.name
}

func (vg *VolumeGroup) createVG(opts Options) error {
	if opts.CheckDevices {
		for _, dev := range opts.PhysicalVolumes {
			if err := device.EnsureUnused(dev); err != nil {
				return err
			}
		}
	}

	_, _, err := vg.runner.Run(
		[]string{"vgcreate", vg.name, strings.Join(opts.PhysicalVolumes, ",")},
		true)

	return err
}

// CreateVolume creates a logical volume. Thin volumes get the given
// virtual size; others allocate it directly. A positive mirrorCount
// adds that many mirrors with no initial sync, and mirrors of 1.5
// tebibytes or more get an explicit region size. Name collisions are
// left to the tool and surface as *sanlvm.ExecutionError.
func (vg *VolumeGroup) CreateVolume(name, size string, kind sanlvm.VolumeKind, mirrorCount int) error {
	q, err := sanlvm.ParseQuantity(size)
	if err != nil {
		return err
	}

	argv := []string{"lvcreate", "-n", name, vg.name}

	if kind == sanlvm.KindThin {
		argv = append(argv, "-T", "-V", size)
	} else {
		argv = append(argv, "-L", size)
	}

	if mirrorCount > 0 {
		argv = append(argv, "-m", strconv.Itoa(mirrorCount), "--nosync")

		terabytes, err := q.Terabytes()
		if err != nil {
			return err
		}

		if region, ok := sanlvm.MirrorRegionSize(terabytes); ok {
			argv = append(argv, "-R", strconv.Itoa(region))
		}
	}

	vg.log.Debug().Str("lv", name).Str("size", size).
		Stringer("kind", kind).Int("mirrors", mirrorCount).
		Msg("creating logical volume")

	_, _, err = vg.runner.Run(argv, true)

	return err
}

// CreateSnapshot creates a point-in-time snapshot of sourceLV. The
// source keeps working independently; a missing source fails before
// any command is issued. Non-thin snapshots reserve the source's
// current size.
func (vg *VolumeGroup) CreateSnapshot(name, sourceLV string, kind sanlvm.VolumeKind) error {
	source, found, err := vg.Volume(sourceLV)
	if err != nil {
		return err
	}

	if !found {
		return &sanlvm.LogicalVolumeNotFoundError{Group: vg.name, Name: sourceLV}
	}

	argv := []string{
		"lvcreate", "--name", name,
		"--snapshot", vg.name + "/" + sourceLV,
	}

	if kind != sanlvm.KindThin {
		argv = append(argv, "-L", source.Size.String())
	}

	vg.log.Debug().Str("snapshot", name).Str("source", sourceLV).
		Msg("creating snapshot")

	_, _, err = vg.runner.Run(argv, true)

	return err
}

// Delete force-removes the named LV. Whether a not-found failure from
// the tool is fatal or a soft warning is the caller's call; it arrives
// as an *sanlvm.ExecutionError either way.
func (vg *VolumeGroup) Delete(name string) error {
	vg.log.Debug().Str("lv", name).Msg("removing logical volume")

	_, _, err := vg.runner.Run(
		[]string{"lvremove", "-f", vg.name + "/" + name}, true)

	return err
}

// Revert merges snapshotName back into its origin volume. The merge is
// asynchronous on the LVM side: it may only complete the next time the
// origin is deactivated and reactivated. This method reports whether
// the merge request was accepted and does not poll for completion.
func (vg *VolumeGroup) Revert(snapshotName string) error {
	_, found, err := vg.Volume(snapshotName)
	if err != nil {
		return err
	}

	if !found {
		return &sanlvm.LogicalVolumeNotFoundError{Group: vg.name, Name: snapshotName}
	}

	vg.log.Debug().Str("snapshot", snapshotName).Msg("merging snapshot into origin")

	_, _, err = vg.runner.Run(
		[]string{"lvconvert", "--merge", vg.name + "/" + snapshotName}, true)

	return err
}

// Volumes re-fetches the LVs of this group and refreshes the cache.
func (vg *VolumeGroup) Volumes() ([]sanlvm.LV, error) {
	lvs, err := AllVolumes(vg.runner, vg.name)
	if err != nil {
		return nil, err
	}

	vg.cache.Set(cacheLVs, lvs, cache.DefaultExpiration)

	return lvs, nil
}

// Volume does an exact-name lookup in a freshly fetched LV list.
// Absence is reported through the bool, not an error.
func (vg *VolumeGroup) Volume(name string) (sanlvm.LV, bool, error) {
	lvs, err := vg.Volumes()
	if err != nil {
		return sanlvm.LV{}, false, err
	}

	for _, lv := range lvs {
		if lv.Name == name {
			return lv, true, nil
		}
	}

	return sanlvm.LV{}, false, nil
}

// HasVolume reports whether the named LV currently exists.
func (vg *VolumeGroup) HasVolume(name string) bool {
	_, found, err := vg.Volume(name)
	return err == nil && found
}

// PhysicalVolumes re-fetches the PVs backing this group and refreshes
// the cache.
func (vg *VolumeGroup) PhysicalVolumes() ([]sanlvm.PV, error) {
	pvs, err := AllPhysicalVolumes(vg.runner, vg.name)
	if err != nil {
		return nil, err
	}

	vg.cache.Set(cachePVs, pvs, cache.DefaultExpiration)

	return pvs, nil
}

// VolumeSize asks the tool for the current size of one LV expressed in
// the given unit suffix and returns the trimmed quantity string.
func (vg *VolumeGroup) VolumeSize(name, unit string) (string, error) {
	stdout, _, err := vg.runner.Run([]string{
		"lvs", "--noheadings",
		"-o", "lv_size",
		"--units", unit,
		vg.name + "/" + name,
	}, true)
	if err != nil {
		return "", err
	}

	records, err := sanlvm.ParseTable(stdout, lvSizeSchema)
	if err != nil {
		return "", err
	}

	if len(records) == 0 {
		return "", &sanlvm.LogicalVolumeNotFoundError{Group: vg.name, Name: name}
	}

	return records[0][0], nil
}

// UpdateInfo re-fetches the group summary (size, free space, lv count,
// uuid) and refreshes the cached copy. A single named group can only
// match one record; more than one is logged as an invariant violation
// and the first record is used.
func (vg *VolumeGroup) UpdateInfo() (sanlvm.VGInfo, error) {
	vgs, err := AllVolumeGroups(vg.runner, vg.name)
	if err != nil {
		return sanlvm.VGInfo{}, err
	}

	if len(vgs) == 0 {
		return sanlvm.VGInfo{}, &sanlvm.VolumeGroupNotFoundError{Name: vg.name}
	}

	if len(vgs) > 1 {
		vg.log.Error().Int("records", len(vgs)).
			Msg("vgs returned multiple records for a single named group")
	}

	vg.info = vgs[0]
	vg.cache.Set(cacheVGInfo, vg.info, cache.DefaultExpiration)

	return vg.info, nil
}

// Info returns the last summary fetched by UpdateInfo. It is advisory:
// it reflects the system only as of that fetch.
func (vg *VolumeGroup) Info() sanlvm.VGInfo {
	return vg.info
}

// CachedVolumes returns the LV list from the last fetch if it is still
// within the cache TTL. Use Volumes for a fresh view.
func (vg *VolumeGroup) CachedVolumes() ([]sanlvm.LV, bool) {
	if v, ok := vg.cache.Get(cacheLVs); ok {
		return v.([]sanlvm.LV), true
	}

	return nil, false
}

// CachedPhysicalVolumes returns the PV list from the last fetch if it
// is still within the cache TTL.
func (vg *VolumeGroup) CachedPhysicalVolumes() ([]sanlvm.PV, bool) {
	if v, ok := vg.cache.Get(cachePVs); ok {
		return v.([]sanlvm.PV), true
	}

	return nil, false
}
