// Package sanlvm provides management of LVM volume groups and logical
// volumes on a storage host. The host may be the local machine or a SAN
// device reached over SSH; the same operations work against either, with
// the choice made once at configuration time.
package sanlvm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PV describes an LVM physical volume as reported by pvs. It is a
// read-only snapshot of tool output taken at query time.
type PV struct {
	// Group is the name of the volume group the PV belongs to.
	Group string `json:"group"`

	// Name is the device name of the PV.
	Name string `json:"name"`

	// Size is the total size of the PV.
	Size Quantity `json:"size"`

	// Free is the unallocated size of the PV.
	Free Quantity `json:"free"`
}

// LV describes an LVM logical volume as reported by lvs.
type LV struct {
	// Group is the name of the volume group the LV was allocated from.
	Group string `json:"group"`

	// Name is the name of the LV, unique within its group.
	Name string `json:"name"`

	// Size is the size of the LV.
	Size Quantity `json:"size"`
}

// VGInfo is the summary record for one volume group as reported by vgs.
type VGInfo struct {
	// Name is the name of the volume group.
	Name string `json:"name"`

	// Size is the total capacity of the group.
	Size Quantity `json:"size"`

	// Free is the remaining unallocated capacity.
	Free Quantity `json:"free"`

	// LVCount is the number of logical volumes in the group.
	LVCount int `json:"lvCount"`

	// UUID is the group's LVM UUID.
	UUID string `json:"uuid"`
}

// VolumeKind selects the provisioning mode for a new logical volume.
type VolumeKind int

const (
	// KindDefault - thickly provisioned volume, extents allocated up front.
	KindDefault VolumeKind = iota

	// KindThin - thinly provisioned volume with a virtual size.
	KindThin
)

func (k VolumeKind) String() string {
	switch k {
	case KindDefault:
		return "default"
	case KindThin:
		return "thin"
	}

	return fmt.Sprintf("unknown-%d", int(k))
}

// MarshalJSON serializes the kind as its string name.
func (k VolumeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts either the integer value or the string name.
func (k *VolumeKind) UnmarshalJSON(data []byte) error {
	var num int
	if err := json.Unmarshal(data, &num); err == nil {
		*k = VolumeKind(num)
		return nil
	}

	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}

	switch strings.ToLower(name) {
	case "default", "":
		*k = KindDefault
	case "thin":
		*k = KindThin
	default:
		return fmt.Errorf("unknown volume kind %q", name)
	}

	return nil
}
