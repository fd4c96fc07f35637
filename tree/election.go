package tree

import (
	"math/rand"

	"github.com/c12s/mlsttree/radio"
)

// NeighborView is everything the election functions need about one
// neighbor: its identity and its most recently gossiped record, still
// encoded. Decoupling election from package gossip's Neighbor type keeps
// this package usable with any source of neighbor records, and keeps the
// controller, not the election functions, responsible for talking to
// gossip.Instance.
type NeighborView struct {
	ID     radio.NodeID
	Record []byte
}

// outcome is what one election pass decides: either a parent and the
// record to broadcast about it, or that the node stays undefined (either
// because no candidate qualified, or because the coin flip in
// mlst_recalculate chose to wait another period to let a tied election
// resolve).
type outcome struct {
	ParentID             radio.NodeID
	ChildrenCount        uint8
	Distance             uint32
	Record               recordMarshaler
	NumPotentialParents  int
	Undefined            bool
	SawUndefinedNeighbor bool
}

type recordMarshaler interface {
	MarshalBinary() ([]byte, error)
}

// electBase runs the unmodified base heuristic of mlst_recalculate: find
// the neighbor with the smallest distance_to_root+1, breaking ties by
// higher children_count and then by lowest id, while counting any
// neighbor still undefined or already a defined child of self as
// children. Ties among more than one equally good candidate at the end
// defer the decision with 50% probability, exactly like
// `random_rand()<0.5*RANDOM_RAND_MAX`.
func electBase(self radio.NodeID, isRoot bool, neighbors []NeighborView, rng *rand.Rand) outcome {
	if isRoot {
		return outcome{ParentID: undefinedParent, ChildrenCount: undefinedDistance, Distance: 0, Record: RecordBase{DistanceToRoot: 0, ParentID: 0xffff, ChildrenCount: 0xff}}
	}

	var childrenCount uint8
	distance := uint16(undefinedDistance)
	numPotential := 0
	var bestParent radio.NodeID
	var bestPV RecordBase
	haveBest := false
	sawUndefined := false

	for _, n := range neighbors {
		var pv RecordBase
		if err := pv.UnmarshalBinary(n.Record); err != nil {
			continue
		}
		if pv.ParentID == undefinedParent {
			childrenCount++
			sawUndefined = true
			continue
		}
		if radio.NodeID(pv.ParentID) == self {
			childrenCount++
			continue
		}
		candidateDistance := uint16(pv.DistanceToRoot) + 1
		switch {
		case candidateDistance < distance:
			distance = candidateDistance
			numPotential = 1
			bestParent, bestPV, haveBest = n.ID, pv, true
		case candidateDistance == distance && haveBest:
			if bestPV.ChildrenCount < pv.ChildrenCount {
				numPotential = 1
				bestParent, bestPV = n.ID, pv
			} else if bestPV.ChildrenCount == pv.ChildrenCount {
				numPotential++
				if bestParent > n.ID {
					bestParent, bestPV = n.ID, pv
				}
			}
		}
	}

	if !haveBest {
		return outcome{ParentID: undefinedParent, ChildrenCount: childrenCount, Distance: uint32(distance), Record: RecordBase{DistanceToRoot: undefinedDistance, ParentID: 0, ChildrenCount: childrenCount}, Undefined: true, SawUndefinedNeighbor: sawUndefined}
	}
	if numPotential > 1 && rng.Float64() < 0.5 {
		return outcome{ParentID: undefinedParent, ChildrenCount: childrenCount, Distance: uint32(distance), NumPotentialParents: numPotential, Record: RecordBase{DistanceToRoot: undefinedDistance, ParentID: 0, ChildrenCount: childrenCount}, Undefined: true, SawUndefinedNeighbor: sawUndefined}
	}
	return outcome{
		ParentID:             bestParent,
		ChildrenCount:        childrenCount,
		Distance:             uint32(distance),
		NumPotentialParents:  numPotential,
		Record:               RecordBase{DistanceToRoot: uint8(distance), ParentID: uint16(bestParent), ChildrenCount: childrenCount},
		SawUndefinedNeighbor: sawUndefined,
	}
}

// electEA1 is the base heuristic generalized so that among candidates tied
// on distance and children count, the neighbor with more remaining energy
// (the lower EnergyState value: 1 high beats 3 low) wins before falling
// back to lowest id — the "prefer a higher-energy parent at the same
// distance" variant.
func electEA1(self radio.NodeID, isRoot bool, ownEnergy uint8, neighbors []NeighborView, rng *rand.Rand) outcome {
	if isRoot {
		return outcome{ParentID: undefinedParent, Distance: 0, Record: RecordEA1{DistanceToRoot: 0, ParentID: 0xffff, ChildrenCount: 0xff, EnergyState: ownEnergy}}
	}

	var childrenCount uint8
	distance := uint16(undefinedDistance)
	numPotential := 0
	var bestParent radio.NodeID
	var bestPV RecordEA1
	haveBest := false
	sawUndefined := false

	for _, n := range neighbors {
		var pv RecordEA1
		if err := pv.UnmarshalBinary(n.Record); err != nil {
			continue
		}
		if pv.ParentID == undefinedParent {
			childrenCount++
			sawUndefined = true
			continue
		}
		if radio.NodeID(pv.ParentID) == self {
			childrenCount++
			continue
		}
		candidateDistance := uint16(pv.DistanceToRoot) + 1
		switch {
		case candidateDistance < distance:
			distance = candidateDistance
			numPotential = 1
			bestParent, bestPV, haveBest = n.ID, pv, true
		case candidateDistance == distance && haveBest:
			switch {
			case bestPV.ChildrenCount < pv.ChildrenCount:
				numPotential = 1
				bestParent, bestPV = n.ID, pv
			case bestPV.ChildrenCount == pv.ChildrenCount && bestPV.EnergyState > pv.EnergyState:
				numPotential = 1
				bestParent, bestPV = n.ID, pv
			case bestPV.ChildrenCount == pv.ChildrenCount && bestPV.EnergyState == pv.EnergyState:
				numPotential++
				if bestParent > n.ID {
					bestParent, bestPV = n.ID, pv
				}
			}
		}
	}

	if !haveBest {
		return outcome{ParentID: undefinedParent, ChildrenCount: childrenCount, Distance: uint32(distance), Record: RecordEA1{DistanceToRoot: undefinedDistance, ParentID: 0, ChildrenCount: childrenCount, EnergyState: ownEnergy}, Undefined: true, SawUndefinedNeighbor: sawUndefined}
	}
	if numPotential > 1 && rng.Float64() < 0.5 {
		return outcome{ParentID: undefinedParent, ChildrenCount: childrenCount, Distance: uint32(distance), NumPotentialParents: numPotential, Record: RecordEA1{DistanceToRoot: undefinedDistance, ParentID: 0, ChildrenCount: childrenCount, EnergyState: ownEnergy}, Undefined: true, SawUndefinedNeighbor: sawUndefined}
	}
	return outcome{
		ParentID:             bestParent,
		ChildrenCount:        childrenCount,
		Distance:             uint32(distance),
		NumPotentialParents:  numPotential,
		Record:               RecordEA1{DistanceToRoot: uint8(distance), ParentID: uint16(bestParent), ChildrenCount: childrenCount, EnergyState: ownEnergy},
		SawUndefinedNeighbor: sawUndefined,
	}
}

// electEA2 ports mlst_network-ea2.h's mlst_recalculate: three parallel
// candidate trees (high-energy-only parents, high-or-middle parents, any
// parent) are grown simultaneously, and whichever tree has a finite
// distance at the most restrictive energy class wins. The original C
// dereferences best_parent_pv inside the very first comparison that can
// run before best_parent_pv has ever been assigned (it is still the
// initial 0), which crashes as soon as the first candidate happens to
// qualify on its first test; this port special-cases haveBest before that
// comparison instead of reproducing the crash, per the explicit
// instruction to guard it.
func electEA2(self radio.NodeID, isRoot bool, ownEnergy uint8, neighbors []NeighborView, rng *rand.Rand) outcome {
	if isRoot {
		return outcome{ParentID: undefinedParent, Distance: 0, Record: RecordEA2{ParentID: 0xffff, ChildrenCount: 0xff}}
	}

	var childrenCount uint8
	distHigh := uint16(undefinedDistance)
	distMid := uint16(undefinedDistance)
	distLow := uint16(undefinedDistance)
	numPotential := 0
	var bestParent radio.NodeID
	var bestPV RecordEA2
	haveBest := false
	sawUndefined := false

	for _, n := range neighbors {
		var pv RecordEA2
		if err := pv.UnmarshalBinary(n.Record); err != nil {
			continue
		}
		if pv.ParentID == undefinedParent {
			childrenCount++
			sawUndefined = true
			continue
		}
		if radio.NodeID(pv.ParentID) == self || pv.EnergyState == 0 {
			childrenCount++
			continue
		}

		qualifiesAtCurrentBest := (pv.EnergyState == 1 && pv.DistanceHigh != undefinedDistance && uint16(pv.DistanceHigh)+1 == distHigh) ||
			(distHigh == undefinedDistance && pv.EnergyState != 3 && pv.DistanceMiddle != undefinedDistance && uint16(pv.DistanceMiddle)+1 == distMid) ||
			(distHigh == undefinedDistance && distMid == undefinedDistance && pv.DistanceLow != undefinedDistance && uint16(pv.DistanceLow)+1 == distLow)

		if qualifiesAtCurrentBest && haveBest {
			if bestPV.ChildrenCount < pv.ChildrenCount {
				numPotential = 1
				bestParent, bestPV = n.ID, pv
			} else if bestPV.ChildrenCount == pv.ChildrenCount {
				numPotential++
				if bestParent > n.ID {
					bestParent, bestPV = n.ID, pv
				}
			}
		}

		if pv.EnergyState == 1 && pv.DistanceHigh != undefinedDistance && uint16(pv.DistanceHigh)+1 < distHigh {
			distHigh = uint16(pv.DistanceHigh) + 1
			numPotential = 1
			bestParent, bestPV, haveBest = n.ID, pv, true
		}
		if pv.EnergyState != 3 && pv.DistanceMiddle != undefinedDistance && uint16(pv.DistanceMiddle)+1 < distMid {
			distMid = uint16(pv.DistanceMiddle) + 1
			if distHigh == undefinedDistance {
				numPotential = 1
				bestParent, bestPV, haveBest = n.ID, pv, true
			}
		}
		if pv.DistanceLow != undefinedDistance && uint16(pv.DistanceLow)+1 < distLow {
			distLow = uint16(pv.DistanceLow) + 1
			if distHigh == undefinedDistance && distMid == undefinedDistance {
				numPotential = 1
				bestParent, bestPV, haveBest = n.ID, pv, true
			}
		}
	}

	distanceKey := uint32(uint8min(distHigh))<<16 | uint32(uint8min(distMid))<<8 | uint32(uint8min(distLow))
	undefinedRecord := RecordEA2{DistanceHigh: undefinedDistance, DistanceMiddle: undefinedDistance, DistanceLow: undefinedDistance, ParentID: 0, ChildrenCount: childrenCount, EnergyState: ownEnergy}
	if !haveBest {
		return outcome{ParentID: undefinedParent, ChildrenCount: childrenCount, Distance: distanceKey, Record: undefinedRecord, Undefined: true, SawUndefinedNeighbor: sawUndefined}
	}
	if numPotential > 1 && rng.Float64() < 0.5 {
		return outcome{ParentID: undefinedParent, ChildrenCount: childrenCount, Distance: distanceKey, NumPotentialParents: numPotential, Record: undefinedRecord, Undefined: true, SawUndefinedNeighbor: sawUndefined}
	}
	return outcome{
		ParentID:             bestParent,
		ChildrenCount:        childrenCount,
		Distance:             distanceKey,
		NumPotentialParents:  numPotential,
		SawUndefinedNeighbor: sawUndefined,
		Record: RecordEA2{
			DistanceHigh:   uint8min(distHigh),
			DistanceMiddle: uint8min(distMid),
			DistanceLow:    uint8min(distLow),
			ParentID:       uint16(bestParent),
			ChildrenCount:  childrenCount,
			EnergyState:    ownEnergy,
		},
	}
}

func uint8min(v uint16) uint8 {
	if v > 0xff {
		return 0xff
	}
	return uint8(v)
}

// energyWeight maps an energy class (1: high, 2: middle, 3: low) to the
// edge cost electEA3 adds per hop through a parent of that class, so a
// path through low-energy relays accumulates distance faster than one
// through high-energy relays and loses ties against it.
func energyWeight(energyState uint8) uint16 {
	switch energyState {
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 3
	default:
		return 3
	}
}

// electEA3 runs the base heuristic's lexicographic tie-break (distance,
// then children count, then id) against a distance metric weighted by the
// energy class of every parent on the path, rather than against a plain
// hop count. It is the third member of the energy-aware family alongside
// EA1 (tie-break preference) and EA2 (parallel candidate trees).
func electEA3(self radio.NodeID, isRoot bool, ownEnergy uint8, neighbors []NeighborView, rng *rand.Rand) outcome {
	if isRoot {
		return outcome{ParentID: undefinedParent, Distance: 0, Record: RecordEA3{DistanceToRoot: 0, ParentID: 0xffff, ChildrenCount: 0xff, EnergyState: ownEnergy}}
	}

	var childrenCount uint8
	distance := uint32(undefinedDistance16)
	numPotential := 0
	var bestParent radio.NodeID
	var bestPV RecordEA3
	haveBest := false
	sawUndefined := false

	for _, n := range neighbors {
		var pv RecordEA3
		if err := pv.UnmarshalBinary(n.Record); err != nil {
			continue
		}
		if pv.ParentID == undefinedParent {
			childrenCount++
			sawUndefined = true
			continue
		}
		if radio.NodeID(pv.ParentID) == self {
			childrenCount++
			continue
		}
		candidateDistance := uint32(pv.DistanceToRoot) + uint32(energyWeight(pv.EnergyState))
		switch {
		case candidateDistance < distance:
			distance = candidateDistance
			numPotential = 1
			bestParent, bestPV, haveBest = n.ID, pv, true
		case candidateDistance == distance && haveBest:
			if bestPV.ChildrenCount < pv.ChildrenCount {
				numPotential = 1
				bestParent, bestPV = n.ID, pv
			} else if bestPV.ChildrenCount == pv.ChildrenCount {
				numPotential++
				if bestParent > n.ID {
					bestParent, bestPV = n.ID, pv
				}
			}
		}
	}

	undefinedRecord := RecordEA3{DistanceToRoot: undefinedDistance16, ParentID: 0, ChildrenCount: childrenCount, EnergyState: ownEnergy}
	if !haveBest {
		return outcome{ParentID: undefinedParent, ChildrenCount: childrenCount, Distance: distance, Record: undefinedRecord, Undefined: true, SawUndefinedNeighbor: sawUndefined}
	}
	if numPotential > 1 && rng.Float64() < 0.5 {
		return outcome{ParentID: undefinedParent, ChildrenCount: childrenCount, Distance: distance, NumPotentialParents: numPotential, Record: undefinedRecord, Undefined: true, SawUndefinedNeighbor: sawUndefined}
	}
	return outcome{
		ParentID:             bestParent,
		ChildrenCount:        childrenCount,
		Distance:             distance,
		NumPotentialParents:  numPotential,
		Record:               RecordEA3{DistanceToRoot: uint16(distance), ParentID: uint16(bestParent), ChildrenCount: childrenCount, EnergyState: ownEnergy},
		SawUndefinedNeighbor: sawUndefined,
	}
}
