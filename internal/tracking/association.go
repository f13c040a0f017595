package tracking

import (
	"sort"

	"github.com/skyfence/airtrack/internal/physics"
)

// associate assigns detections to tracks by greedy nearest neighbor inside a
// Euclidean gate. Tracks are walked in ascending identifier order; each
// claims its nearest not-yet-claimed detection within gateM, and a claimed
// detection leaves the pool for every later track. Detections claimed by no
// track are returned by index as candidates for new-track creation.
//
// The scheme is O(tracks x detections) and order dependent: when two tracks
// compete for one detection the lower identifier wins. A globally optimal
// assignment is deliberately not attempted.
func associate(tracks []*Track, detections []Detection, gateM float64) (map[string]int, []int) {
	matched := make(map[string]int, len(tracks))
	claimed := make([]bool, len(detections))

	ordered := make([]*Track, len(tracks))
	copy(ordered, tracks)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	for _, trk := range ordered {
		pos := trk.State.Position()

		bestIdx := -1
		bestDist := 0.0
		for i := range detections {
			if claimed[i] {
				continue
			}
			d := physics.Distance3D(
				pos.X, pos.Y, pos.Z,
				detections[i].Position.X, detections[i].Position.Y, detections[i].Position.Z,
			)
			if d > gateM {
				continue
			}
			if bestIdx == -1 || d < bestDist {
				bestIdx = i
				bestDist = d
			}
		}

		if bestIdx >= 0 {
			matched[trk.ID] = bestIdx
			claimed[bestIdx] = true
		}
	}

	unmatched := make([]int, 0)
	for i := range detections {
		if !claimed[i] {
			unmatched = append(unmatched, i)
		}
	}
	return matched, unmatched
}
