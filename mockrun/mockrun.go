// Package mockrun is a run.Runner backed by an in-memory LVM model
// instead of a real host. It interprets the same vgs/lvs/pvs/lvcreate
// command lines the lvm package builds and answers with the text the
// real tools would print. Capacity accounting is not modeled: group
// and PV sizes stay as the layout declared them.
package mockrun

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	uuid "github.com/satori/go.uuid"

	"machinerun.io/sanlvm"
)

// LV is one logical volume in the model.
type LV struct {
	Name string `json:"name"`

	// Size is the quantity string lvs reports, e.g. "4.00g".
	Size string `json:"size"`

	// Origin is set on snapshots to their source LV name.
	Origin string `json:"origin,omitempty"`
}

// PV is one physical volume in the model.
type PV struct {
	Name string `json:"name"`
	Size string `json:"size"`
	Free string `json:"free"`
}

// VG is one volume group in the model.
type VG struct {
	Name string `json:"name"`
	UUID string `json:"uuid"`
	Size string `json:"size"`
	Free string `json:"free"`
	PVs  []PV   `json:"pvs"`
	LVs  []LV   `json:"lvs"`
}

// Runner replays lvm tool behavior from the model. It is safe for
// concurrent use.
type Runner struct {
	mu  sync.Mutex
	vgs map[string]*VG
}

// New returns a Runner with no volume groups.
func New() *Runner {
	return &Runner{vgs: map[string]*VG{}}
}

// Load returns a Runner pre-populated from a JSON layout file.
func Load(layout string) *Runner {
	raw, err := os.ReadFile(layout) //nolint:gosec
	if err != nil {
		panic(err)
	}

	var vgs []*VG
	if err := json.Unmarshal(raw, &vgs); err != nil {
		panic(err)
	}

	r := New()
	for _, vg := range vgs {
		r.vgs[vg.Name] = vg
	}

	return r
}

// VolumeGroups exposes the model for test assertions.
func (r *Runner) VolumeGroups() map[string]*VG {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := map[string]*VG{}
	for n, vg := range r.vgs {
		out[n] = vg
	}

	return out
}

// Run implements run.Runner.
func (r *Runner) Run(argv []string, privileged bool) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(argv) == 0 {
		return "", "", fail(argv, 127, "empty command")
	}

	cmd := parseArgv(argv)

	switch argv[0] {
	case "vgs":
		return r.runVgs(cmd)
	case "lvs":
		return r.runLvs(cmd)
	case "pvs":
		return r.runPvs(cmd)
	case "vgcreate":
		return r.runVgcreate(cmd)
	case "lvcreate":
		return r.runLvcreate(cmd)
	case "lvremove":
		return r.runLvremove(cmd)
	case "lvconvert":
		return r.runLvconvert(cmd)
	}

	return "", "", fail(argv, 127, fmt.Sprintf("%s: command not found", argv[0]))
}

// command is the decoded form of one tool invocation.
type command struct {
	argv      []string
	flags     map[string]string
	bools     map[string]bool
	positions []string
}

// valueFlags take an argument; everything else starting with '-' is a
// boolean switch.
var valueFlags = map[string]bool{
	"-o": true, "--separator": true, "--units": true,
	"-n": true, "--name": true, "--snapshot": true,
	"-L": true, "-V": true, "-m": true, "-R": true,
}

func parseArgv(argv []string) command {
	cmd := command{
		argv:  argv,
		flags: map[string]string{},
		bools: map[string]bool{},
	}

	for i := 1; i < len(argv); i++ {
		arg := argv[i]

		switch {
		case valueFlags[arg] && i+1 < len(argv):
			cmd.flags[arg] = argv[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			cmd.bools[arg] = true
		default:
			cmd.positions = append(cmd.positions, arg)
		}
	}

	return cmd
}

func fail(argv []string, rc int, stderr string) error {
	return &sanlvm.ExecutionError{Argv: argv, ExitCode: rc, Stderr: stderr}
}

// filtered returns the groups selected by the trailing positional
// argument, or all groups.
func (r *Runner) filtered(cmd command) ([]*VG, error) {
	if len(cmd.positions) == 0 {
		vgs := []*VG{}
		for _, vg := range r.vgs {
			vgs = append(vgs, vg)
		}

		return vgs, nil
	}

	name := cmd.positions[0]

	vg, ok := r.vgs[name]
	if !ok {
		return nil, fail(cmd.argv, 5,
			fmt.Sprintf("Volume group %q not found", name))
	}

	return []*VG{vg}, nil
}

func (r *Runner) runVgs(cmd command) (string, string, error) {
	vgs, err := r.filtered(cmd)
	if err != nil {
		return "", "", err
	}

	var out strings.Builder

	switch cmd.flags["-o"] {
	case "name":
		for _, vg := range vgs {
			fmt.Fprintf(&out, "  %s\n", vg.Name)
		}
	case "name,size,free,lv_count,uuid":
		sep := cmd.flags["--separator"]
		for _, vg := range vgs {
			fmt.Fprintf(&out, "  %s\n", strings.Join([]string{
				vg.Name, vg.Size, vg.Free,
				fmt.Sprintf("%d", len(vg.LVs)), vg.UUID,
			}, sep))
		}
	default:
		return "", "", fail(cmd.argv, 3,
			fmt.Sprintf("unsupported vgs field list %q", cmd.flags["-o"]))
	}

	return out.String(), "", nil
}

func (r *Runner) runLvs(cmd command) (string, string, error) {
	// lv_size queries address a single vg/lv path.
	if cmd.flags["-o"] == "lv_size" {
		return r.runLvSize(cmd)
	}

	vgs, err := r.filtered(cmd)
	if err != nil {
		return "", "", err
	}

	var out strings.Builder

	for _, vg := range vgs {
		for _, lv := range vg.LVs {
			fmt.Fprintf(&out, "  %s  %s  %s\n", vg.Name, lv.Name, lv.Size)
		}
	}

	return out.String(), "", nil
}

func (r *Runner) runLvSize(cmd command) (string, string, error) {
	if len(cmd.positions) != 1 {
		return "", "", fail(cmd.argv, 3, "lv_size query needs one vg/lv path")
	}

	vgName, lvName, ok := splitLvPath(cmd.positions[0])
	if !ok {
		return "", "", fail(cmd.argv, 3,
			fmt.Sprintf("bad lv path %q", cmd.positions[0]))
	}

	vg, ok := r.vgs[vgName]
	if !ok {
		return "", "", fail(cmd.argv, 5,
			fmt.Sprintf("Volume group %q not found", vgName))
	}

	if lv := vg.findLV(lvName); lv != nil {
		return fmt.Sprintf("  %s\n", lv.Size), "", nil
	}

	return "", "", fail(cmd.argv, 5,
		fmt.Sprintf("Failed to find logical volume %q", cmd.positions[0]))
}

func (r *Runner) runPvs(cmd command) (string, string, error) {
	vgs, err := r.filtered(cmd)
	if err != nil {
		return "", "", err
	}

	sep := cmd.flags["--separator"]
	if sep == "" {
		sep = "  "
	}

	var out strings.Builder

	for _, vg := range vgs {
		for _, pv := range vg.PVs {
			fmt.Fprintf(&out, "  %s\n", strings.Join(
				[]string{vg.Name, pv.Name, pv.Size, pv.Free}, sep))
		}
	}

	return out.String(), "", nil
}

func (r *Runner) runVgcreate(cmd command) (string, string, error) {
	if len(cmd.positions) != 2 {
		return "", "", fail(cmd.argv, 3, "vgcreate needs a name and a device list")
	}

	name := cmd.positions[0]

	if _, ok := r.vgs[name]; ok {
		return "", "", fail(cmd.argv, 5,
			fmt.Sprintf("A volume group called %q already exists", name))
	}

	vg := &VG{
		Name: name,
		UUID: uuid.NewV4().String(),
		Size: "20.00g",
		Free: "20.00g",
	}

	for _, dev := range strings.Split(cmd.positions[1], ",") {
		vg.PVs = append(vg.PVs, PV{Name: dev, Size: "10.00g", Free: "10.00g"})
	}

	r.vgs[name] = vg

	return "", "", nil
}

func (r *Runner) runLvcreate(cmd command) (string, string, error) {
	if src, ok := cmd.flags["--snapshot"]; ok {
		return r.runSnapshot(cmd, src)
	}

	name := cmd.flags["-n"]
	if name == "" {
		name = cmd.flags["--name"]
	}

	if name == "" || len(cmd.positions) != 1 {
		return "", "", fail(cmd.argv, 3, "lvcreate needs a name and a volume group")
	}

	vg, ok := r.vgs[cmd.positions[0]]
	if !ok {
		return "", "", fail(cmd.argv, 5,
			fmt.Sprintf("Volume group %q not found", cmd.positions[0]))
	}

	if vg.findLV(name) != nil {
		return "", "", fail(cmd.argv, 5, fmt.Sprintf(
			"Logical Volume %q already exists in volume group %q", name, vg.Name))
	}

	size := cmd.flags["-L"]
	if size == "" {
		size = cmd.flags["-V"]
	}

	if size == "" {
		return "", "", fail(cmd.argv, 3, "lvcreate needs a size")
	}

	vg.LVs = append(vg.LVs, LV{Name: name, Size: size})

	return "", "", nil
}

func (r *Runner) runSnapshot(cmd command, src string) (string, string, error) {
	vgName, lvName, ok := splitLvPath(src)
	if !ok {
		return "", "", fail(cmd.argv, 3, fmt.Sprintf("bad snapshot source %q", src))
	}

	vg, ok := r.vgs[vgName]
	if !ok {
		return "", "", fail(cmd.argv, 5,
			fmt.Sprintf("Volume group %q not found", vgName))
	}

	source := vg.findLV(lvName)
	if source == nil {
		return "", "", fail(cmd.argv, 5,
			fmt.Sprintf("Failed to find logical volume %q", src))
	}

	name := cmd.flags["--name"]
	if name == "" {
		return "", "", fail(cmd.argv, 3, "snapshot needs a name")
	}

	if vg.findLV(name) != nil {
		return "", "", fail(cmd.argv, 5, fmt.Sprintf(
			"Logical Volume %q already exists in volume group %q", name, vg.Name))
	}

	size := cmd.flags["-L"]
	if size == "" {
		size = source.Size
	}

	vg.LVs = append(vg.LVs, LV{Name: name, Size: size, Origin: lvName})

	return "", "", nil
}

func (r *Runner) runLvremove(cmd command) (string, string, error) {
	if len(cmd.positions) != 1 {
		return "", "", fail(cmd.argv, 3, "lvremove needs one vg/lv path")
	}

	vgName, lvName, ok := splitLvPath(cmd.positions[0])
	if !ok {
		return "", "", fail(cmd.argv, 3,
			fmt.Sprintf("bad lv path %q", cmd.positions[0]))
	}

	vg, ok := r.vgs[vgName]
	if !ok {
		return "", "", fail(cmd.argv, 5,
			fmt.Sprintf("Volume group %q not found", vgName))
	}

	for i, lv := range vg.LVs {
		if lv.Name == lvName {
			vg.LVs = append(vg.LVs[:i], vg.LVs[i+1:]...)
			return "", "", nil
		}
	}

	return "", "", fail(cmd.argv, 5,
		fmt.Sprintf("Failed to find logical volume %q", cmd.positions[0]))
}

// runLvconvert handles --merge. The real merge is asynchronous and
// completes on the next origin activation; the model applies it
// immediately by consuming the snapshot.
func (r *Runner) runLvconvert(cmd command) (string, string, error) {
	if !cmd.bools["--merge"] || len(cmd.positions) != 1 {
		return "", "", fail(cmd.argv, 3, "only lvconvert --merge vg/lv is modeled")
	}

	vgName, lvName, ok := splitLvPath(cmd.positions[0])
	if !ok {
		return "", "", fail(cmd.argv, 3,
			fmt.Sprintf("bad lv path %q", cmd.positions[0]))
	}

	vg, ok := r.vgs[vgName]
	if !ok {
		return "", "", fail(cmd.argv, 5,
			fmt.Sprintf("Volume group %q not found", vgName))
	}

	for i, lv := range vg.LVs {
		if lv.Name == lvName {
			if lv.Origin == "" {
				return "", "", fail(cmd.argv, 5, fmt.Sprintf(
					"%q is not a mergeable logical volume", cmd.positions[0]))
			}

			vg.LVs = append(vg.LVs[:i], vg.LVs[i+1:]...)

			return "", "", nil
		}
	}

	return "", "", fail(cmd.argv, 5,
		fmt.Sprintf("Failed to find logical volume %q", cmd.positions[0]))
}

func (vg *VG) findLV(name string) *LV {
	for i := range vg.LVs {
		if vg.LVs[i].Name == name {
			return &vg.LVs[i]
		}
	}

	return nil
}

func splitLvPath(p string) (string, string, bool) {
	toks := strings.SplitN(p, "/", 2)
	if len(toks) != 2 || toks[0] == "" || toks[1] == "" {
		return "", "", false
	}

	return toks[0], toks[1], true
}
