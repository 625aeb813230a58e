package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dhconnelly/rtreego"

	"github.com/signalsfoundry/rps-arena/model"
)

// BroadPhase selects how candidate collision pairs are found.
type BroadPhase int

const (
	// BroadPhaseNaive tests every unordered pair.
	BroadPhaseNaive BroadPhase = iota
	// BroadPhaseRTree indexes footprints in an R-tree and only tests
	// candidates whose boxes intersect.
	BroadPhaseRTree
)

func (b BroadPhase) String() string {
	switch b {
	case BroadPhaseNaive:
		return "naive"
	case BroadPhaseRTree:
		return "rtree"
	default:
		return fmt.Sprintf("broadphase(%d)", int(b))
	}
}

// ParseBroadPhase accepts "naive" or "rtree".
func ParseBroadPhase(s string) (BroadPhase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "naive":
		return BroadPhaseNaive, nil
	case "rtree":
		return BroadPhaseRTree, nil
	default:
		return 0, fmt.Errorf("unknown broad phase %q", s)
	}
}

// Conversion records one agent switching species after losing a collision.
type Conversion struct {
	Tick     int
	WinnerID string
	LoserID  string
	From     model.Species
	To       model.Species
}

// Converter applies a species change. Implementations must mutate the agent
// in place so that later pairs in the same pass observe the new species.
type Converter interface {
	Convert(id string, to model.Species) (model.Species, error)
}

// CollisionResolver finds overlapping agents and applies the dominance rule.
type CollisionResolver struct {
	BroadPhase BroadPhase
}

// NewCollisionResolver constructs a resolver using the given broad phase.
func NewCollisionResolver(bp BroadPhase) *CollisionResolver {
	return &CollisionResolver{BroadPhase: bp}
}

// Resolve processes overlapping pairs in ascending (i, j) order and converts
// each loser immediately. A pair examined later in the pass sees species
// already changed by earlier pairs, so conversions can chain within one call.
func (r *CollisionResolver) Resolve(tick int, agents []*model.Agent, conv Converter) ([]Conversion, error) {
	var out []Conversion
	for _, p := range r.Pairs(agents) {
		a, b := agents[p[0]], agents[p[1]]
		winSpecies, _, ok := Duel(a.Species, b.Species)
		if !ok {
			continue
		}
		winner, loser := a, b
		if winSpecies != a.Species {
			winner, loser = b, a
		}

		from, err := conv.Convert(loser.ID, winSpecies)
		if err != nil {
			return out, fmt.Errorf("convert %s: %w", loser.ID, err)
		}
		out = append(out, Conversion{
			Tick:     tick,
			WinnerID: winner.ID,
			LoserID:  loser.ID,
			From:     from,
			To:       winSpecies,
		})
	}
	return out, nil
}

// Pairs returns every overlapping (i, j) index pair with i < j, sorted
// ascending. Positions are read once; species are not consulted.
func (r *CollisionResolver) Pairs(agents []*model.Agent) [][2]int {
	if r.BroadPhase == BroadPhaseRTree {
		return rtreePairs(agents)
	}
	return naivePairs(agents)
}

func naivePairs(agents []*model.Agent) [][2]int {
	var pairs [][2]int
	for i := 0; i < len(agents); i++ {
		fi := agents[i].Footprint()
		for j := i + 1; j < len(agents); j++ {
			if fi.Intersects(agents[j].Footprint()) {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

// rtree intersection excludes shared edges while footprints include them, so
// query boxes are padded and every candidate is re-checked exactly.
const rtreePad = 1e-6

type indexedFootprint struct {
	idx  int
	rect rtreego.Rect
}

func (f *indexedFootprint) Bounds() rtreego.Rect {
	return f.rect
}

func rtreePairs(agents []*model.Agent) [][2]int {
	if len(agents) < 2 {
		return nil
	}

	items := make([]rtreego.Spatial, 0, len(agents))
	boxes := make([]rtreego.Rect, len(agents))
	for i, a := range agents {
		box, err := paddedRect(a.Footprint())
		if err != nil {
			// Degenerate footprint; fall back to exhaustive checks.
			return naivePairs(agents)
		}
		boxes[i] = box
		items = append(items, &indexedFootprint{idx: i, rect: box})
	}
	tree := rtreego.NewTree(2, 2, 16, items...)

	var pairs [][2]int
	for i, a := range agents {
		fi := a.Footprint()
		matches := tree.SearchIntersect(boxes[i], func(_ []rtreego.Spatial, obj rtreego.Spatial) (refuse, abort bool) {
			return obj.(*indexedFootprint).idx <= i, false
		})
		js := make([]int, 0, len(matches))
		for _, m := range matches {
			j := m.(*indexedFootprint).idx
			if fi.Intersects(agents[j].Footprint()) {
				js = append(js, j)
			}
		}
		sort.Ints(js)
		for _, j := range js {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

func paddedRect(r model.Rect) (rtreego.Rect, error) {
	return rtreego.NewRect(
		rtreego.Point{r.MinX() - rtreePad, r.MinY() - rtreePad},
		[]float64{r.Size.X + 2*rtreePad, r.Size.Y + 2*rtreePad},
	)
}
