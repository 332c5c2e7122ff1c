// Package minigame implements the Swan Chase minigame engine from spec
// §4.7: a pure, deterministically-seeded physics tick with no I/O, driven
// by the Session actor at a fixed rate. No library in the retrieval pack
// offers 2D game physics — the tick function below is hand-written (see
// DESIGN.md for why no third-party dependency could serve this).
package minigame

import (
	"hash/fnv"
	"math"
	mathrand "math/rand"
	"sort"
	"time"

	"github.com/Seednode/quizhost/internal/transport"
)

type Mode string

const (
	ModeClassic    Mode = "classic"
	ModeKingOfLake Mode = "king_of_lake"
	ModeSwanSwarm  Mode = "swan_swarm"
)

const (
	lakeRadius      = 50.0
	boatRadius      = 1.2
	boatAccel       = 40.0
	boatFriction    = 0.92
	maxSpeed        = 18.0
	turnRate        = 2.5 // radians/sec at full turn input
	tagRadius       = 2.0
	swanCount       = 6
	swanDrift       = 6.0
	inputStaleAfter = 250 * time.Millisecond

	obstacleCount     = 3
	obstacleRadius    = 6.0
	obstacleSidesMin  = 3
	obstacleSidesMax  = 6
	safeZoneCount     = 2
	safeZoneRadius    = 7.0
	ghostDuration     = 5 * time.Second
	sprintCooldown    = 4 * time.Second
	sprintBoostFactor = 1.8
	dashCooldown      = 3 * time.Second
	dashImpulse       = 14.0
	wallRestitution   = 0.4
	obstacleRestitution = 0.6
)

// Point is a 2-D coordinate, used for obstacle polygon vertices.
type Point struct{ X, Y float64 }

// Obstacle is a static convex polygon boats collide with (spec §4.7:
// "resolve collisions against obstacles (circle vs polygon via vertex
// test)"). Vertices are wound in order; the shape never changes after
// NewState builds it.
type Obstacle struct {
	Vertices []Point
}

// SafeZone is a circular area that grants tag immunity (spec §4.7's
// "safe-zone grants").
type SafeZone struct {
	X, Y, Radius float64
}

// BoatState is one player's boat. Ghosted marks a boat that was tagged and
// is temporarily non-interactive (glossary: "Ghosted"); it un-ghosts itself
// once GhostRemaining counts down to zero.
type BoatState struct {
	PlayerID string
	X, Y     float64
	VX, VY   float64
	Heading  float64

	Ghosted        bool
	GhostRemaining time.Duration

	SprintCooldown time.Duration
	DashCooldown   time.Duration

	IsKing bool
}

// SwanState is one roaming NPC swan boats chase (classic/swan_swarm) or
// simply share the lake with (king_of_lake).
type SwanState struct {
	ID     int
	X, Y   float64
	VX, VY float64
}

// Input is a player's latest steering command. Sprint/Dash are the two
// ability triggers spec §4.7 names, each gated by its own per-boat cooldown.
// Inputs older than inputStaleAfter relative to the tick's "now" are treated
// as zero thrust/turn and no ability activation (spec §4.7 "Input staleness
// handling").
type Input struct {
	Thrust     float64
	Turn       float64
	Sprint     bool
	Dash       bool
	ReceivedAt time.Time
}

// Event is a tag notice Step reports back to the caller for broadcast
// decisions beyond the raw state diff.
type Event struct {
	Kind     string // "tag"
	PlayerID string
}

// State is the full authoritative minigame state, advanced only by Step.
type State struct {
	Mode      Mode
	Tick      uint64
	Boats     map[string]*BoatState
	Swans     []*SwanState
	Obstacles []Obstacle
	SafeZones []SafeZone

	rng *mathrand.Rand
}

// Seed derives a deterministic base seed from the session code and the item
// id that triggered the minigame (spec §4.7/§9: "seeded from session code +
// item id + tick number"). The per-tick component of that rule is realized
// by re-using the one *mathrand.Rand advanced tick-by-tick inside Step,
// rather than re-seeding every tick — replaying the same Step calls in the
// same order is what reproduces the same run, which is the property the
// spec's determinism language is after.
func Seed(sessionCode, itemID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(sessionCode))
	h.Write([]byte{0})
	h.Write([]byte(itemID))
	return h.Sum64()
}

// NewState builds the initial layout: boats spread evenly around a ring
// inside the lake, swans and the obstacle/safe-zone layout scattered
// pseudo-randomly from the seed (spec §4.7: "obstacles and AI spawn
// identically on any replay").
func NewState(mode Mode, sessionCode, itemID string, playerIDs []string) *State {
	seed := Seed(sessionCode, itemID)
	rng := mathrand.New(mathrand.NewSource(int64(seed)))

	boats := make(map[string]*BoatState, len(playerIDs))
	n := len(playerIDs)
	for i, id := range playerIDs {
		angle := 2 * math.Pi * float64(i) / float64(maxInt(1, n))
		boats[id] = &BoatState{
			PlayerID: id,
			X:        lakeRadius * 0.6 * math.Cos(angle),
			Y:        lakeRadius * 0.6 * math.Sin(angle),
			Heading:  angle + math.Pi,
		}
	}
	if mode == ModeKingOfLake && n > 0 {
		boats[playerIDs[0]].IsKing = true
	}

	swans := make([]*SwanState, 0, swanCount)
	for i := 0; i < swanCount; i++ {
		angle := rng.Float64() * 2 * math.Pi
		r := rng.Float64() * lakeRadius * 0.9
		swans = append(swans, &SwanState{ID: i, X: r * math.Cos(angle), Y: r * math.Sin(angle)})
	}

	obstacles := make([]Obstacle, 0, obstacleCount)
	for i := 0; i < obstacleCount; i++ {
		angle := rng.Float64() * 2 * math.Pi
		r := lakeRadius * (0.25 + rng.Float64()*0.4)
		cx, cy := r*math.Cos(angle), r*math.Sin(angle)
		sides := obstacleSidesMin + rng.Intn(obstacleSidesMax-obstacleSidesMin+1)
		obstacles = append(obstacles, regularPolygon(cx, cy, obstacleRadius, sides, rng.Float64()*2*math.Pi))
	}

	safeZones := make([]SafeZone, 0, safeZoneCount)
	for i := 0; i < safeZoneCount; i++ {
		angle := rng.Float64() * 2 * math.Pi
		r := lakeRadius * 0.8
		safeZones = append(safeZones, SafeZone{X: r * math.Cos(angle), Y: r * math.Sin(angle), Radius: safeZoneRadius})
	}

	return &State{Mode: mode, Boats: boats, Swans: swans, Obstacles: obstacles, SafeZones: safeZones, rng: rng}
}

// regularPolygon builds a regular N-gon obstacle centered at (cx, cy).
func regularPolygon(cx, cy, radius float64, sides int, rotation float64) Obstacle {
	verts := make([]Point, sides)
	for i := 0; i < sides; i++ {
		angle := rotation + 2*math.Pi*float64(i)/float64(sides)
		verts[i] = Point{X: cx + radius*math.Cos(angle), Y: cy + radius*math.Sin(angle)}
	}
	return Obstacle{Vertices: verts}
}

// Step advances the simulation by dt, applying inputs and returning any
// tag events produced this tick. now is used only to judge input
// staleness.
func (s *State) Step(inputs map[string]Input, now time.Time, dt time.Duration) []Event {
	s.Tick++
	t := dt.Seconds()

	ids := make([]string, 0, len(s.Boats))
	for id := range s.Boats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		b := s.Boats[id]
		if b.Ghosted {
			b.GhostRemaining -= dt
			if b.GhostRemaining <= 0 {
				b.Ghosted = false
				b.GhostRemaining = 0
			}
			continue
		}

		if b.SprintCooldown > 0 {
			b.SprintCooldown -= dt
		}
		if b.DashCooldown > 0 {
			b.DashCooldown -= dt
		}

		var thrust, turn float64
		var sprint, dash bool
		if in, ok := inputs[id]; ok && now.Sub(in.ReceivedAt) <= inputStaleAfter {
			thrust = clamp(in.Thrust, -1, 1)
			turn = clamp(in.Turn, -1, 1)
			sprint = in.Sprint
			dash = in.Dash
		}

		accel := boatAccel
		if sprint && b.SprintCooldown <= 0 {
			accel *= sprintBoostFactor
			b.SprintCooldown = sprintCooldown
		}

		b.Heading += turn * turnRate * t
		ax := math.Cos(b.Heading) * thrust * accel
		ay := math.Sin(b.Heading) * thrust * accel
		b.VX = (b.VX + ax*t) * boatFriction
		b.VY = (b.VY + ay*t) * boatFriction

		if dash && b.DashCooldown <= 0 {
			b.VX += math.Cos(b.Heading) * dashImpulse
			b.VY += math.Sin(b.Heading) * dashImpulse
			b.DashCooldown = dashCooldown
		}

		if speed := math.Hypot(b.VX, b.VY); speed > maxSpeed {
			scale := maxSpeed / speed
			b.VX *= scale
			b.VY *= scale
		}

		b.X += b.VX * t
		b.Y += b.VY * t

		if dist := math.Hypot(b.X, b.Y); dist > lakeRadius {
			scale := lakeRadius / dist
			b.X *= scale
			b.Y *= scale
			b.VX, b.VY = -b.VX*wallRestitution, -b.VY*wallRestitution
		}

		for _, ob := range s.Obstacles {
			resolveCircleObstacle(b, ob)
		}
	}

	for _, sw := range s.Swans {
		wander := s.rng.Float64()*2*math.Pi - math.Pi
		sw.VX = sw.VX*0.8 + math.Cos(wander)*swanDrift*0.2
		sw.VY = sw.VY*0.8 + math.Sin(wander)*swanDrift*0.2
		sw.X += sw.VX * t
		sw.Y += sw.VY * t
		if dist := math.Hypot(sw.X, sw.Y); dist > lakeRadius*0.95 {
			sw.X, sw.Y = 0, 0
		}
	}

	return s.collide()
}

// resolveCircleObstacle pushes b out of ob if its boatRadius circle overlaps
// the polygon, damping the velocity component into the obstacle (spec
// §4.7's "circle vs polygon via vertex test" collision).
func resolveCircleObstacle(b *BoatState, ob Obstacle) {
	hit, nx, ny, depth := circlePolygonOverlap(b.X, b.Y, boatRadius, ob)
	if !hit {
		return
	}
	b.X += nx * depth
	b.Y += ny * depth
	vn := b.VX*nx + b.VY*ny
	if vn < 0 {
		b.VX -= (1 + obstacleRestitution) * vn * nx
		b.VY -= (1 + obstacleRestitution) * vn * ny
	}
}

// circlePolygonOverlap tests a circle against a convex polygon by walking
// its edges (the "vertex test": each edge's pair of vertices bounds the
// closest-point check) and separately checking whether the circle's center
// has been swallowed by the polygon entirely. It returns the outward push
// normal and penetration depth needed to separate them.
func circlePolygonOverlap(cx, cy, radius float64, ob Obstacle) (hit bool, nx, ny, depth float64) {
	n := len(ob.Vertices)
	if n < 3 {
		return false, 0, 0, 0
	}

	bestDist := math.Inf(1)
	var bestX, bestY float64
	for i := 0; i < n; i++ {
		a := ob.Vertices[i]
		c := ob.Vertices[(i+1)%n]
		px, py := closestPointOnSegment(cx, cy, a.X, a.Y, c.X, c.Y)
		d := math.Hypot(cx-px, cy-py)
		if d < bestDist {
			bestDist, bestX, bestY = d, px, py
		}
	}

	inside := pointInPolygon(cx, cy, ob.Vertices)
	switch {
	case inside:
		dx, dy := cx-bestX, cy-bestY
		dist := math.Hypot(dx, dy)
		if dist == 0 {
			dx, dy, dist = 1, 0, 1
		}
		return true, dx / dist, dy / dist, bestDist + radius
	case bestDist <= radius:
		dx, dy := cx-bestX, cy-bestY
		dist := bestDist
		if dist == 0 {
			dx, dy, dist = 1, 0, 1
		}
		return true, dx / dist, dy / dist, radius - bestDist
	default:
		return false, 0, 0, 0
	}
}

// closestPointOnSegment projects (px,py) onto segment (ax,ay)-(bx,by),
// clamped to the segment's extent.
func closestPointOnSegment(px, py, ax, ay, bx, by float64) (float64, float64) {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return ax, ay
	}
	tt := ((px-ax)*dx + (py-ay)*dy) / lenSq
	tt = clamp(tt, 0, 1)
	return ax + tt*dx, ay + tt*dy
}

// pointInPolygon is a standard ray-casting point-in-polygon test.
func pointInPolygon(px, py float64, verts []Point) bool {
	inside := false
	n := len(verts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := verts[i], verts[j]
		if (vi.Y > py) != (vj.Y > py) &&
			px < (vj.X-vi.X)*(py-vi.Y)/(vj.Y-vi.Y)+vi.X {
			inside = !inside
		}
	}
	return inside
}

// inSafeZone reports whether (x,y) is within any of the state's safe zones
// (spec §4.7's "safe-zone grants": tag immunity while inside one).
func (s *State) inSafeZone(x, y float64) bool {
	for _, z := range s.SafeZones {
		if math.Hypot(x-z.X, y-z.Y) <= z.Radius {
			return true
		}
	}
	return false
}

func (s *State) collide() []Event {
	var events []Event

	ids := make([]string, 0, len(s.Boats))
	for id := range s.Boats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	switch s.Mode {
	case ModeKingOfLake:
		var king *BoatState
		for _, b := range s.Boats {
			if b.IsKing {
				king = b
			}
		}
		if king == nil {
			return nil
		}
		for _, id := range ids {
			b := s.Boats[id]
			if b == king || b.Ghosted || s.inSafeZone(king.X, king.Y) {
				continue
			}
			if math.Hypot(b.X-king.X, b.Y-king.Y) <= tagRadius {
				king.IsKing = false
				b.IsKing = true
				events = append(events, Event{Kind: "tag", PlayerID: id})
				break
			}
		}

	default: // classic, swan_swarm
		for _, id := range ids {
			b := s.Boats[id]
			if b.Ghosted || s.inSafeZone(b.X, b.Y) {
				continue
			}
			for _, sw := range s.Swans {
				if math.Hypot(b.X-sw.X, b.Y-sw.Y) <= tagRadius {
					b.Ghosted = true
					b.GhostRemaining = ghostDuration
					events = append(events, Event{Kind: "tag", PlayerID: b.PlayerID})
					break
				}
			}
		}
	}
	return events
}

// Snapshot renders the compact wire diff from spec §4.7 (15 Hz broadcast
// rate; Step itself runs at the higher authoritative tick rate).
func (s *State) Snapshot() transport.SwanChaseStatePayload {
	ids := make([]string, 0, len(s.Boats))
	for id := range s.Boats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	boats := make([]transport.SwanChaseBoat, 0, len(ids))
	for _, id := range ids {
		b := s.Boats[id]
		boats = append(boats, transport.SwanChaseBoat{
			PlayerID: b.PlayerID,
			X:        round2(b.X),
			Y:        round2(b.Y),
			Heading:  round2(b.Heading),
			Ghosted:  b.Ghosted,
			IsKing:   b.IsKing,
		})
	}

	swans := make([]transport.SwanChaseSwan, 0, len(s.Swans))
	for _, sw := range s.Swans {
		swans = append(swans, transport.SwanChaseSwan{ID: sw.ID, X: round2(sw.X), Y: round2(sw.Y)})
	}

	return transport.SwanChaseStatePayload{Tick: s.Tick, Boats: boats, Swans: swans}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
