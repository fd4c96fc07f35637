package tree

import (
	"encoding/binary"
	"fmt"
)

// Sentinel values shared by every record variant, taken verbatim from
// mlst_network.h (0xff for "no known distance", parent id 0 for
// "undefined").
const (
	undefinedDistance   = 0xff
	undefinedDistance16 = 0xffff
	undefinedParent     = 0
)

// RecordBase is the public variable broadcast by the base heuristic: how
// far the sender is from the root, who its parent is, and how many
// children it has. Wire layout matches struct mlst_public_variable:
// distance_to_root (1 byte), parent_id (2 bytes, big-endian), children_count
// (1 byte) — 4 bytes total.
type RecordBase struct {
	DistanceToRoot uint8
	ParentID       uint16
	ChildrenCount  uint8
}

func (r RecordBase) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4)
	b[0] = r.DistanceToRoot
	binary.BigEndian.PutUint16(b[1:3], r.ParentID)
	b[3] = r.ChildrenCount
	return b, nil
}

func (r *RecordBase) UnmarshalBinary(b []byte) error {
	if len(b) != 4 {
		return errRecordLength("RecordBase", 4, len(b))
	}
	r.DistanceToRoot = b[0]
	r.ParentID = binary.BigEndian.Uint16(b[1:3])
	r.ChildrenCount = b[3]
	return nil
}

// RecordEA1 is the base record plus the sender's energy class, used by the
// EA1 heuristic to prefer a higher-energy parent among otherwise-tied
// candidates at the same distance. Wire layout: RecordBase's 4 bytes plus
// one energy_state byte — 5 bytes total.
type RecordEA1 struct {
	DistanceToRoot uint8
	ParentID       uint16
	ChildrenCount  uint8
	EnergyState    uint8
}

func (r RecordEA1) MarshalBinary() ([]byte, error) {
	b := make([]byte, 5)
	b[0] = r.DistanceToRoot
	binary.BigEndian.PutUint16(b[1:3], r.ParentID)
	b[3] = r.ChildrenCount
	b[4] = r.EnergyState
	return b, nil
}

func (r *RecordEA1) UnmarshalBinary(b []byte) error {
	if len(b) != 5 {
		return errRecordLength("RecordEA1", 5, len(b))
	}
	r.DistanceToRoot = b[0]
	r.ParentID = binary.BigEndian.Uint16(b[1:3])
	r.ChildrenCount = b[3]
	r.EnergyState = b[4]
	return nil
}

// RecordEA2 carries three parallel candidate distances, one per energy
// class a path may be built from exclusively high-energy parents, from
// high-or-middle parents, or with no energy restriction at all. Wire
// layout matches mlst_network-ea2.h's struct mlst_public_variable:
// distance_to_root_high/middle/low (1 byte each), parent_id (2 bytes,
// big-endian), children_count (1 byte), energy_state (1 byte) — 7 bytes.
type RecordEA2 struct {
	DistanceHigh   uint8
	DistanceMiddle uint8
	DistanceLow    uint8
	ParentID       uint16
	ChildrenCount  uint8
	EnergyState    uint8
}

func (r RecordEA2) MarshalBinary() ([]byte, error) {
	b := make([]byte, 7)
	b[0] = r.DistanceHigh
	b[1] = r.DistanceMiddle
	b[2] = r.DistanceLow
	binary.BigEndian.PutUint16(b[3:5], r.ParentID)
	b[5] = r.ChildrenCount
	b[6] = r.EnergyState
	return b, nil
}

func (r *RecordEA2) UnmarshalBinary(b []byte) error {
	if len(b) != 7 {
		return errRecordLength("RecordEA2", 7, len(b))
	}
	r.DistanceHigh = b[0]
	r.DistanceMiddle = b[1]
	r.DistanceLow = b[2]
	r.ParentID = binary.BigEndian.Uint16(b[3:5])
	r.ChildrenCount = b[5]
	r.EnergyState = b[6]
	return nil
}

// RecordEA3 carries a single distance already weighted by the energy cost
// of every edge on the path to the root (see electEA3), so it needs 16
// bits rather than RecordBase's 8 to avoid overflowing on long weighted
// paths. Wire layout: distance_to_root (2 bytes, big-endian), parent_id (2
// bytes, big-endian), children_count (1 byte), energy_state (1 byte) — 6
// bytes.
type RecordEA3 struct {
	DistanceToRoot uint16
	ParentID       uint16
	ChildrenCount  uint8
	EnergyState    uint8
}

func (r RecordEA3) MarshalBinary() ([]byte, error) {
	b := make([]byte, 6)
	binary.BigEndian.PutUint16(b[0:2], r.DistanceToRoot)
	binary.BigEndian.PutUint16(b[2:4], r.ParentID)
	b[4] = r.ChildrenCount
	b[5] = r.EnergyState
	return b, nil
}

func (r *RecordEA3) UnmarshalBinary(b []byte) error {
	if len(b) != 6 {
		return errRecordLength("RecordEA3", 6, len(b))
	}
	r.DistanceToRoot = binary.BigEndian.Uint16(b[0:2])
	r.ParentID = binary.BigEndian.Uint16(b[2:4])
	r.ChildrenCount = b[4]
	r.EnergyState = b[5]
	return nil
}

func errRecordLength(kind string, want, got int) error {
	return fmt.Errorf("%s: expected %d bytes, got %d", kind, want, got)
}
