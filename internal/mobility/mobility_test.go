package mobility

import (
	"math"
	"math/rand"
	"testing"

	"manetbench/internal/model"
)

var defaultGrid = Grid{Pitch: 45, RowWidth: 10}

func TestStaticPosition_Deterministic(t *testing.T) {
	t.Parallel()

	for i := 0; i < 25; i++ {
		a := StaticPosition(i, defaultGrid)
		b := StaticPosition(i, defaultGrid)
		if a != b {
			t.Fatalf("node %d: %+v != %+v", i, a, b)
		}
	}

	got := StaticPosition(13, defaultGrid)
	want := model.Position{X: 135, Y: 45}
	if got != want {
		t.Fatalf("pos=%+v want=%+v", got, want)
	}
}

func TestSplit_FloorsStaticHalf(t *testing.T) {
	t.Parallel()

	cases := []struct{ n, static, mobile int }{
		{30, 15, 15},
		{31, 15, 16},
		{1, 0, 1},
		{0, 0, 0},
	}
	for _, c := range cases {
		s, m := Split(c.n)
		if s != c.static || m != c.mobile {
			t.Fatalf("Split(%d)=%d,%d", c.n, s, m)
		}
	}
}

func TestAssign_PartitionIsDisjointAndComplete(t *testing.T) {
	t.Parallel()

	for _, n := range []int{2, 7, 30, 31} {
		policies := Assign(n, defaultGrid, WaypointParams{MinSpeed: 5, MaxSpeed: 25, Pause: 1, AreaSize: 500})
		if len(policies) != n {
			t.Fatalf("n=%d len=%d", n, len(policies))
		}
		static, mobile := 0, 0
		for i, p := range policies {
			switch p.Kind {
			case Static:
				static++
				if p.Position != StaticPosition(i, defaultGrid) {
					t.Fatalf("node %d pos=%+v", i, p.Position)
				}
			case RandomWaypoint:
				mobile++
			default:
				t.Fatalf("node %d kind=%v", i, p.Kind)
			}
		}
		if static != n/2 || static+mobile != n {
			t.Fatalf("n=%d static=%d mobile=%d", n, static, mobile)
		}
	}
}

func TestWaypoint_StaysInsideArea(t *testing.T) {
	t.Parallel()

	params := WaypointParams{MinSpeed: 5, MaxSpeed: 25, Pause: 1, AreaSize: 500}
	m := NewModel(Policy{Kind: RandomWaypoint, Waypoint: params}, rand.New(rand.NewSource(7)))
	for ts := 0.0; ts <= 200; ts += 0.5 {
		p := m.PositionAt(ts)
		if p.X < 0 || p.X > 500 || p.Y < 0 || p.Y > 500 || p.Z != 0 {
			t.Fatalf("t=%v pos=%+v", ts, p)
		}
	}
}

func TestWaypoint_ReproducibleUnderSeed(t *testing.T) {
	t.Parallel()

	params := WaypointParams{MinSpeed: 5, MaxSpeed: 25, Pause: 1, AreaSize: 500}
	a := NewModel(Policy{Kind: RandomWaypoint, Waypoint: params}, rand.New(rand.NewSource(99)))
	b := NewModel(Policy{Kind: RandomWaypoint, Waypoint: params}, rand.New(rand.NewSource(99)))
	// Query b out of order; the schedule must not depend on query order.
	late := b.PositionAt(150)
	for ts := 0.0; ts <= 150; ts += 10 {
		if a.PositionAt(ts) != b.PositionAt(ts) {
			t.Fatalf("t=%v diverged", ts)
		}
	}
	if a.PositionAt(150) != late {
		t.Fatalf("late query diverged")
	}
}

func TestWaypoint_SpeedWithinRange(t *testing.T) {
	t.Parallel()

	params := WaypointParams{MinSpeed: 5, MaxSpeed: 25, Pause: 0.5, AreaSize: 500}
	m := NewModel(Policy{Kind: RandomWaypoint, Waypoint: params}, rand.New(rand.NewSource(3)))
	const dt = 0.01
	prev := m.PositionAt(0)
	for ts := dt; ts < 100; ts += dt {
		cur := m.PositionAt(ts)
		v := prev.DistanceTo(cur) / dt
		if v > params.MaxSpeed+1e-6 {
			t.Fatalf("t=%v speed=%v", ts, v)
		}
		prev = cur
	}
}

func TestStaticModel_NeverMoves(t *testing.T) {
	t.Parallel()

	pos := StaticPosition(4, defaultGrid)
	m := NewModel(Policy{Kind: Static, Position: pos}, nil)
	for _, ts := range []float64{0, 1, 100, math.MaxFloat32} {
		if m.PositionAt(ts) != pos {
			t.Fatalf("t=%v moved", ts)
		}
	}
}
