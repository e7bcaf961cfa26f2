package mobility

import (
	"math/rand"
	"sort"

	"manetbench/internal/model"
)

// leg is one move-then-pause cycle of a random waypoint node.
type leg struct {
	start  float64 // departure time
	arrive float64 // arrival at dest
	end    float64 // end of pause, start of the next leg
	from   model.Position
	to     model.Position
}

// waypointModel extends its leg schedule lazily as later times are queried,
// so the draw sequence from rng depends only on how far the run reaches.
type waypointModel struct {
	params WaypointParams
	rng    *rand.Rand
	legs   []leg
}

func newWaypointModel(p WaypointParams, rng *rand.Rand) *waypointModel {
	m := &waypointModel{params: p, rng: rng}
	start := m.randomPoint()
	m.appendLeg(0, start)
	return m
}

func (m *waypointModel) randomPoint() model.Position {
	return model.Position{
		X: m.rng.Float64() * m.params.AreaSize,
		Y: m.rng.Float64() * m.params.AreaSize,
	}
}

func (m *waypointModel) speed() float64 {
	return m.params.MinSpeed + m.rng.Float64()*(m.params.MaxSpeed-m.params.MinSpeed)
}

func (m *waypointModel) appendLeg(at float64, from model.Position) {
	to := m.randomPoint()
	travel := from.DistanceTo(to) / m.speed()
	m.legs = append(m.legs, leg{
		start:  at,
		arrive: at + travel,
		end:    at + travel + m.params.Pause,
		from:   from,
		to:     to,
	})
}

// PositionAt interpolates linearly along the active leg.
func (m *waypointModel) PositionAt(t float64) model.Position {
	if t < 0 {
		t = 0
	}
	for {
		last := m.legs[len(m.legs)-1]
		if t < last.end {
			break
		}
		// A zero-length leg with zero pause never advances time; nudge it.
		if last.end <= last.start {
			m.legs[len(m.legs)-1].end = last.start + 1e-9
			last = m.legs[len(m.legs)-1]
		}
		m.appendLeg(last.end, last.to)
	}

	idx := sort.Search(len(m.legs), func(i int) bool {
		return m.legs[i].end > t
	})
	l := m.legs[idx]
	if t >= l.arrive || l.arrive <= l.start {
		return l.to
	}
	frac := (t - l.start) / (l.arrive - l.start)
	return model.Position{
		X: l.from.X + (l.to.X-l.from.X)*frac,
		Y: l.from.Y + (l.to.Y-l.from.Y)*frac,
		Z: 0,
	}
}
