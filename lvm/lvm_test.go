package lvm_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"machinerun.io/sanlvm"
	"machinerun.io/sanlvm/lvm"
	"machinerun.io/sanlvm/mockrun"
	"machinerun.io/sanlvm/run"
)

func newVG(t *testing.T, r *mockrun.Runner, name string, pvs ...string) *lvm.VolumeGroup {
	t.Helper()

	if len(pvs) == 0 {
		pvs = []string{"/dev/sda1", "/dev/sdb1"}
	}

	vg, err := lvm.New(r, name, lvm.Options{
		CreateVG:        true,
		PhysicalVolumes: pvs,
	})
	if err != nil {
		t.Fatalf("failed to create vg %s: %s", name, err)
	}

	return vg
}

func TestNewMissingVG(t *testing.T) {
	ast := assert.New(t)

	_, err := lvm.New(mockrun.New(), "nosuchvg", lvm.Options{})
	ast.Error(err)

	vgErr, ok := err.(*sanlvm.VolumeGroupNotFoundError)
	ast.True(ok, "expected *VolumeGroupNotFoundError, got %T", err)
	ast.Equal("nosuchvg", vgErr.Name)
}

func TestNewCreateVG(t *testing.T) {
	ast := assert.New(t)

	r := mockrun.New()
	vg := newVG(t, r, "vg0")

	ast.Equal("vg0", vg.Name())

	pvs, err := vg.PhysicalVolumes()
	ast.NoError(err)
	ast.Len(pvs, 2)

	for _, pv := range pvs {
		ast.Equal("vg0", pv.Group)
	}
}

func TestCreateVolumeRoundTrip(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	ast.NoError(vg.CreateVolume("lvA", "10.00g", sanlvm.KindDefault, 0))

	lv, found, err := vg.Volume("lvA")
	ast.NoError(err)
	ast.True(found)
	ast.Equal("lvA", lv.Name)
	ast.Equal("vg0", lv.Group)
	ast.Equal(10.0, lv.Size.Value)
	ast.Equal("g", lv.Size.Unit)
}

func TestCreateVolumeDuplicateName(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	ast.NoError(vg.CreateVolume("lvA", "10.00g", sanlvm.KindDefault, 0))

	err := vg.CreateVolume("lvA", "10.00g", sanlvm.KindDefault, 0)
	ast.Error(err)

	execErr, ok := err.(*sanlvm.ExecutionError)
	ast.True(ok, "expected *ExecutionError, got %T", err)
	ast.NotZero(execErr.ExitCode)
}

func TestCreateVolumeBadSize(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	ast.Error(vg.CreateVolume("lvA", "10", sanlvm.KindDefault, 0))
}

func TestVolumeExactNameMatch(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	ast.NoError(vg.CreateVolume("vol", "1.00g", sanlvm.KindDefault, 0))
	ast.NoError(vg.CreateVolume("vol-backup", "1.00g", sanlvm.KindDefault, 0))

	lv, found, err := vg.Volume("vol")
	ast.NoError(err)
	ast.True(found)
	ast.Equal("vol", lv.Name)

	_, found, err = vg.Volume("vol-b")
	ast.NoError(err)
	ast.False(found, "prefix of an existing name must not match")
}

func TestVolumeAbsent(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	_, found, err := vg.Volume("ghost")
	ast.NoError(err, "absence is not an error")
	ast.False(found)
}

func TestAllVolumesScopedByGroup(t *testing.T) {
	ast := assert.New(t)

	r := mockrun.New()
	vg0 := newVG(t, r, "vg0", "/dev/sda1")
	vg1 := newVG(t, r, "vg1", "/dev/sdb1")

	ast.NoError(vg0.CreateVolume("a", "1.00g", sanlvm.KindDefault, 0))
	ast.NoError(vg1.CreateVolume("b", "1.00g", sanlvm.KindDefault, 0))
	ast.NoError(vg1.CreateVolume("c", "1.00g", sanlvm.KindDefault, 0))

	scoped, err := lvm.AllVolumes(r, "vg1")
	ast.NoError(err)
	ast.Len(scoped, 2)

	for _, lv := range scoped {
		ast.Equal("vg1", lv.Group)
	}

	all, err := lvm.AllVolumes(r, "")
	ast.NoError(err)
	ast.Len(all, 3)
}

func TestDeleteMissingVolume(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	err := vg.Delete("ghost")
	ast.Error(err)

	execErr, ok := err.(*sanlvm.ExecutionError)
	ast.True(ok, "expected *ExecutionError, got %T", err)
	ast.Contains(execErr.Stderr, "Failed to find")
}

func TestSnapshotAndRevert(t *testing.T) {
	ast := assert.New(t)

	r := mockrun.New()
	vg := newVG(t, r, "vg0")

	ast.NoError(vg.CreateVolume("data", "8.00g", sanlvm.KindDefault, 0))
	ast.NoError(vg.CreateSnapshot("data-snap", "data", sanlvm.KindDefault))

	// both source and snapshot stay active and visible
	ast.True(vg.HasVolume("data"))

	snap, found, err := vg.Volume("data-snap")
	ast.NoError(err)
	ast.True(found)
	ast.Equal(8.0, snap.Size.Value, "non-thin snapshot reserves the source size")

	ast.NoError(vg.Revert("data-snap"))

	// the model applies the merge immediately: snapshot consumed,
	// origin still present
	ast.False(vg.HasVolume("data-snap"))
	ast.True(vg.HasVolume("data"))
}

func TestSnapshotMissingSource(t *testing.T) {
	ast := assert.New(t)

	rec := &recorder{next: mockrun.New()}

	vg, err := lvm.New(rec, "vg0", lvm.Options{
		CreateVG:        true,
		PhysicalVolumes: []string{"/dev/sda1"},
	})
	ast.NoError(err)

	err = vg.CreateSnapshot("snap", "ghost", sanlvm.KindDefault)
	ast.Error(err)

	lvErr, ok := err.(*sanlvm.LogicalVolumeNotFoundError)
	ast.True(ok, "expected *LogicalVolumeNotFoundError, got %T", err)
	ast.Equal("ghost", lvErr.Name)
	ast.Equal("vg0", lvErr.Group)

	ast.Zero(rec.count("lvcreate"), "no create command may be issued")
}

func TestRevertMissingSnapshot(t *testing.T) {
	ast := assert.New(t)

	rec := &recorder{next: mockrun.New()}

	vg, err := lvm.New(rec, "vg0", lvm.Options{
		CreateVG:        true,
		PhysicalVolumes: []string{"/dev/sda1"},
	})
	ast.NoError(err)

	err = vg.Revert("ghost")
	ast.Error(err)

	_, ok := err.(*sanlvm.LogicalVolumeNotFoundError)
	ast.True(ok, "expected *LogicalVolumeNotFoundError, got %T", err)

	ast.Zero(rec.count("lvconvert"), "no merge command may be issued")
}

func TestUpdateInfo(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	ast.NoError(vg.CreateVolume("a", "1.00g", sanlvm.KindDefault, 0))
	ast.NoError(vg.CreateVolume("b", "1.00g", sanlvm.KindDefault, 0))

	info, err := vg.UpdateInfo()
	ast.NoError(err)
	ast.Equal("vg0", info.Name)
	ast.Equal(2, info.LVCount)
	ast.NotEmpty(info.UUID)

	ast.Equal(info, vg.Info())
}

func TestVolumeSize(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	ast.NoError(vg.CreateVolume("lvA", "10.00g", sanlvm.KindDefault, 0))

	size, err := vg.VolumeSize("lvA", "g")
	ast.NoError(err)
	ast.Equal("10.00g", size)

	_, err = vg.VolumeSize("ghost", "g")
	ast.Error(err)
}

func TestCachedVolumes(t *testing.T) {
	ast := assert.New(t)

	vg := newVG(t, mockrun.New(), "vg0")

	_, ok := vg.CachedVolumes()
	ast.False(ok, "nothing cached before the first fetch")

	ast.NoError(vg.CreateVolume("lvA", "10.00g", sanlvm.KindDefault, 0))

	fresh, err := vg.Volumes()
	ast.NoError(err)

	cached, ok := vg.CachedVolumes()
	ast.True(ok)
	ast.Equal(fresh, cached)
}

// recorder wraps another runner and keeps every argv it saw.
type recorder struct {
	next  run.Runner
	argvs [][]string
}

func (r *recorder) Run(argv []string, privileged bool) (string, string, error) {
	r.argvs = append(r.argvs, argv)
	return r.next.Run(argv, privileged)
}

func (r *recorder) count(command string) int {
	n := 0

	for _, argv := range r.argvs {
		if len(argv) > 0 && argv[0] == command {
			n++
		}
	}

	return n
}

func (r *recorder) last(command string) []string {
	for i := len(r.argvs) - 1; i >= 0; i-- {
		if len(r.argvs[i]) > 0 && r.argvs[i][0] == command {
			return r.argvs[i]
		}
	}

	return nil
}

func TestCreateVolumeThinFlags(t *testing.T) {
	ast := assert.New(t)

	rec := &recorder{next: mockrun.New()}

	vg, err := lvm.New(rec, "vg0", lvm.Options{
		CreateVG:        true,
		PhysicalVolumes: []string{"/dev/sda1"},
	})
	ast.NoError(err)

	ast.NoError(vg.CreateVolume("thin0", "100.00g", sanlvm.KindThin, 0))

	argv := strings.Join(rec.last("lvcreate"), " ")
	ast.Contains(argv, "-T -V 100.00g")
	ast.NotContains(argv, "-L")
}

func TestCreateVolumeMirrorRegionFlags(t *testing.T) {
	ast := assert.New(t)

	cases := []struct {
		size   string
		region string // "" means no -R expected
	}{
		{"512.00g", ""},      // 0.5 TiB: tool default region
		{"2048.00g", "-R 2"}, // 2 TiB
		{"3072.00g", "-R 4"}, // 3 TiB: ceil(log2(3)) == 2
	}

	for _, c := range cases {
		rec := &recorder{next: mockrun.New()}

		vg, err := lvm.New(rec, "vg0", lvm.Options{
			CreateVG:        true,
			PhysicalVolumes: []string{"/dev/sda1"},
		})
		ast.NoError(err)

		ast.NoError(vg.CreateVolume("mirr", c.size, sanlvm.KindDefault, 2))

		argv := strings.Join(rec.last("lvcreate"), " ")
		ast.Contains(argv, "-m 2 --nosync", "size %s", c.size)

		if c.region == "" {
			ast.NotContains(argv, "-R", "size %s", c.size)
		} else {
			ast.Contains(argv, c.region, "size %s", c.size)
		}
	}
}

func TestCreateVolumeNoMirrorFlags(t *testing.T) {
	ast := assert.New(t)

	rec := &recorder{next: mockrun.New()}

	vg, err := lvm.New(rec, "vg0", lvm.Options{
		CreateVG:        true,
		PhysicalVolumes: []string{"/dev/sda1"},
	})
	ast.NoError(err)

	ast.NoError(vg.CreateVolume("plain", "10.00g", sanlvm.KindDefault, 0))

	argv := strings.Join(rec.last("lvcreate"), " ")
	ast.NotContains(argv, "-m")
	ast.NotContains(argv, "--nosync")
}
