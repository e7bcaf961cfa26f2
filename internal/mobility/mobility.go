package mobility

import (
	"fmt"
	"math/rand"

	"manetbench/internal/model"
)

// Kind selects one of the two mobility policies.
type Kind int

const (
	Static Kind = iota
	RandomWaypoint
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case RandomWaypoint:
		return "random-waypoint"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// WaypointParams bound the random waypoint motion.
type WaypointParams struct {
	MinSpeed float64 // m/s
	MaxSpeed float64 // m/s
	Pause    float64 // seconds at each waypoint
	AreaSize float64 // side of the square area, meters
}

// Policy is assigned once per node at topology build time.
type Policy struct {
	Kind     Kind
	Position model.Position // Static only
	Waypoint WaypointParams // RandomWaypoint only
}

// Grid describes the static layout.
type Grid struct {
	Pitch    float64
	RowWidth int
}

// Model answers a node's position at any non-negative virtual time.
type Model interface {
	PositionAt(t float64) model.Position
}

// Split partitions n nodes: the static half is floored, the mobile half gets
// the remainder. Nodes [0, static) are static, [static, n) move.
func Split(n int) (static, mobile int) {
	if n <= 0 {
		return 0, 0
	}
	static = n / 2
	return static, n - static
}

// StaticPosition places node i on a row-major grid.
func StaticPosition(i int, g Grid) model.Position {
	return model.Position{
		X: float64(i%g.RowWidth) * g.Pitch,
		Y: float64(i/g.RowWidth) * g.Pitch,
		Z: 0,
	}
}

// Assign returns the policy of every node for an n-node network.
func Assign(n int, g Grid, wp WaypointParams) []Policy {
	static, _ := Split(n)
	policies := make([]Policy, n)
	for i := 0; i < n; i++ {
		if i < static {
			policies[i] = Policy{Kind: Static, Position: StaticPosition(i, g)}
			continue
		}
		policies[i] = Policy{Kind: RandomWaypoint, Waypoint: wp}
	}
	return policies
}

// NewModel builds the motion model for a policy. rng is only consumed by
// random waypoint models and must not be shared with another node.
func NewModel(p Policy, rng *rand.Rand) Model {
	switch p.Kind {
	case RandomWaypoint:
		return newWaypointModel(p.Waypoint, rng)
	default:
		return constantPosition{pos: p.Position}
	}
}

type constantPosition struct {
	pos model.Position
}

func (c constantPosition) PositionAt(float64) model.Position {
	return c.pos
}
