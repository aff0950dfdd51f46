package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"machinerun.io/sanlvm"
	"machinerun.io/sanlvm/lvm"
)

//nolint:gochecknoglobals
var vgsCommand = cli.Command{
	Name:   "vgs",
	Usage:  "List volume groups. Optionally give a vg name.",
	Action: doVgs,
}

func doVgs(c *cli.Context) error {
	r, err := getRunner(c)
	if err != nil {
		return err
	}

	vgs, err := lvm.AllVolumeGroups(r, c.Args().First())
	if err != nil {
		return err
	}

	rows := [][]string{{"NAME", "SIZE", "FREE", "LVS", "UUID"}}
	for _, vg := range vgs {
		rows = append(rows, []string{
			vg.Name, vg.Size.String(), vg.Free.String(),
			strconv.Itoa(vg.LVCount), vg.UUID,
		})
	}

	printTextTable(rows)

	return nil
}

//nolint:gochecknoglobals
var lvsCommand = cli.Command{
	Name:   "lvs",
	Usage:  "List logical volumes. Optionally give a vg name.",
	Action: doLvs,
}

func doLvs(c *cli.Context) error {
	r, err := getRunner(c)
	if err != nil {
		return err
	}

	lvs, err := lvm.AllVolumes(r, c.Args().First())
	if err != nil {
		return err
	}

	rows := [][]string{{"VG", "NAME", "SIZE"}}
	for _, lv := range lvs {
		rows = append(rows, []string{lv.Group, lv.Name, lv.Size.String()})
	}

	printTextTable(rows)

	return nil
}

//nolint:gochecknoglobals
var pvsCommand = cli.Command{
	Name:   "pvs",
	Usage:  "List physical volumes. Optionally give a vg name.",
	Action: doPvs,
}

func doPvs(c *cli.Context) error {
	r, err := getRunner(c)
	if err != nil {
		return err
	}

	pvs, err := lvm.AllPhysicalVolumes(r, c.Args().First())
	if err != nil {
		return err
	}

	rows := [][]string{{"VG", "NAME", "SIZE", "FREE"}}
	for _, pv := range pvs {
		rows = append(rows, []string{
			pv.Group, pv.Name, pv.Size.String(), pv.Free.String(),
		})
	}

	printTextTable(rows)

	return nil
}

//nolint:gochecknoglobals
var createCommand = cli.Command{
	Name:      "create",
	Usage:     "Create a logical volume",
	ArgsUsage: "<vg> <name> <size>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "thin", Usage: "thin-provision the volume"},
		&cli.IntFlag{Name: "mirrors", Usage: "number of mirrors"},
	},
	Action: doCreate,
}

func doCreate(c *cli.Context) error {
	if c.Args().Len() != 3 {
		return fmt.Errorf("expected <vg> <name> <size>, got %d args", c.Args().Len())
	}

	vg, err := getVG(c, c.Args().Get(0))
	if err != nil {
		return err
	}

	kind := sanlvm.KindDefault
	if c.Bool("thin") {
		kind = sanlvm.KindThin
	}

	return vg.CreateVolume(c.Args().Get(1), c.Args().Get(2), kind, c.Int("mirrors"))
}

//nolint:gochecknoglobals
var snapshotCommand = cli.Command{
	Name:      "snapshot",
	Usage:     "Snapshot a logical volume",
	ArgsUsage: "<vg> <name> <source-lv>",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "thin", Usage: "snapshot of a thin volume"},
	},
	Action: doSnapshot,
}

func doSnapshot(c *cli.Context) error {
	if c.Args().Len() != 3 {
		return fmt.Errorf("expected <vg> <name> <source-lv>, got %d args", c.Args().Len())
	}

	vg, err := getVG(c, c.Args().Get(0))
	if err != nil {
		return err
	}

	kind := sanlvm.KindDefault
	if c.Bool("thin") {
		kind = sanlvm.KindThin
	}

	return vg.CreateSnapshot(c.Args().Get(1), c.Args().Get(2), kind)
}

//nolint:gochecknoglobals
var revertCommand = cli.Command{
	Name:      "revert",
	Usage:     "Merge a snapshot back into its origin (asynchronous)",
	ArgsUsage: "<vg> <snapshot>",
	Action:    doRevert,
}

func doRevert(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("expected <vg> <snapshot>, got %d args", c.Args().Len())
	}

	vg, err := getVG(c, c.Args().Get(0))
	if err != nil {
		return err
	}

	return vg.Revert(c.Args().Get(1))
}

//nolint:gochecknoglobals
var deleteCommand = cli.Command{
	Name:      "delete",
	Usage:     "Force-remove a logical volume",
	ArgsUsage: "<vg> <name>",
	Action:    doDelete,
}

func doDelete(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return fmt.Errorf("expected <vg> <name>, got %d args", c.Args().Len())
	}

	vg, err := getVG(c, c.Args().Get(0))
	if err != nil {
		return err
	}

	return vg.Delete(c.Args().Get(1))
}

func getVG(c *cli.Context, name string) (*lvm.VolumeGroup, error) {
	r, err := getRunner(c)
	if err != nil {
		return nil, err
	}

	return lvm.New(r, name, lvm.Options{})
}
