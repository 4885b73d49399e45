package warehouse

import (
	"sort"

	"golang.org/x/sync/errgroup"
)

// SystemFunc processes one chunk-granularity work item.
type SystemFunc func(w *World, item ChunkIterItem) error

// System is one scheduled unit of work: its declared read/write component
// masks (for conflict analysis), the query it runs against, the function
// it invokes per chunk, and the ids of systems it must run after (spec §3,
// §4.9).
type System struct {
	ID        int32
	Name      string
	Reads     Signature
	Writes    Signature
	Query     *Query
	Run       SystemFunc
	RunsAfter []int32
}

// conflicts reports whether s and o may not run in the same wave: either
// writes a component the other reads or writes.
func (s *System) conflicts(o *System) bool {
	if s.Writes.ContainsAny(o.Reads) || s.Writes.ContainsAny(o.Writes) {
		return true
	}
	if o.Writes.ContainsAny(s.Reads) {
		return true
	}
	return false
}

// BuildWaves runs Kahn's topological sort over systems' RunsAfter edges,
// then assigns each system, in topological order, to the earliest wave at
// least one past every explicit predecessor in this build and containing no
// system it conflicts with (spec §4.9). Ids named in RunsAfter but absent
// from systems are ignored, per spec.
func BuildWaves(systems []*System) ([][]*System, error) {
	byID := make(map[int32]*System, len(systems))
	for _, s := range systems {
		byID[s.ID] = s
	}

	indegree := make(map[int32]int, len(systems))
	children := make(map[int32][]int32, len(systems))
	for _, s := range systems {
		for _, pred := range s.RunsAfter {
			if _, ok := byID[pred]; !ok {
				continue
			}
			indegree[s.ID]++
			children[pred] = append(children[pred], s.ID)
		}
	}

	var frontier []int32
	for _, s := range systems {
		if indegree[s.ID] == 0 {
			frontier = append(frontier, s.ID)
		}
	}
	sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })

	order := make([]int32, 0, len(systems))
	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]
		order = append(order, id)
		var unlocked []int32
		for _, child := range children[id] {
			indegree[child]--
			if indegree[child] == 0 {
				unlocked = append(unlocked, child)
			}
		}
		sort.Slice(unlocked, func(i, j int) bool { return unlocked[i] < unlocked[j] })
		frontier = append(frontier, unlocked...)
	}
	if len(order) != len(systems) {
		return nil, ErrCyclicDependency
	}

	waveOf := make(map[int32]int, len(systems))
	var waves [][]*System
	for _, id := range order {
		s := byID[id]
		minWave := 0
		for _, pred := range s.RunsAfter {
			if _, ok := byID[pred]; !ok {
				continue
			}
			if waveOf[pred]+1 > minWave {
				minWave = waveOf[pred] + 1
			}
		}
		w := minWave
		for {
			for len(waves) <= w {
				waves = append(waves, nil)
			}
			conflict := false
			for _, other := range waves[w] {
				if s.conflicts(other) {
					conflict = true
					break
				}
			}
			if !conflict {
				break
			}
			w++
		}
		waves[w] = append(waves[w], s)
		waveOf[id] = w
	}
	return waves, nil
}

// workItem is one (system, chunk) unit of dispatch.
type workItem struct {
	system *System
	item   ChunkIterItem
}

// buildWorkItems produces one work item per chunk in each system's query
// snapshot, taken at wave entry (spec §4.9).
func buildWorkItems(wave []*System) []workItem {
	var items []workItem
	for _, s := range wave {
		for _, arch := range s.Query.snapshot() {
			for _, ci := range chunkItemsForArchetype(arch) {
				items = append(items, workItem{system: s, item: ci})
			}
		}
	}
	return items
}

// WaveStrategy executes one wave's work items against w.
type WaveStrategy interface {
	RunWave(w *World, items []workItem) error
}

// SequentialStrategy runs a wave's work items one at a time, in order. Every
// item runs even if an earlier one fails; the first error is returned once
// the wave completes.
type SequentialStrategy struct{}

func (SequentialStrategy) RunWave(w *World, items []workItem) error {
	var firstErr error
	for _, it := range items {
		if err := it.system.Run(w, it.item); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ParallelStrategy runs a wave's work items concurrently, one goroutine
// each, completing when the last one does. No cancellation is wired (an
// errgroup.Group without WithContext): per spec §4.9's "re-raise after the
// wave completes" choice, every item in the wave always gets to run once.
type ParallelStrategy struct{}

func (ParallelStrategy) RunWave(w *World, items []workItem) error {
	var g errgroup.Group
	for _, it := range items {
		it := it
		g.Go(func() error { return it.system.Run(w, it.item) })
	}
	return g.Wait()
}

// Schedule is a built set of waves paired with the strategy that runs each
// wave's work items.
type Schedule struct {
	waves    [][]*System
	strategy WaveStrategy
}

// NewSchedule builds the wave structure for systems and pairs it with
// strategy.
func NewSchedule(systems []*System, strategy WaveStrategy) (*Schedule, error) {
	waves, err := BuildWaves(systems)
	if err != nil {
		return nil, err
	}
	return &Schedule{waves: waves, strategy: strategy}, nil
}

// Run executes every wave in order, each wave's work items to completion
// before the next wave starts, returning the first wave-level error (if
// any) without scheduling the waves behind it.
func (s *Schedule) Run(w *World) error {
	for _, wave := range s.waves {
		items := buildWorkItems(wave)
		if err := s.strategy.RunWave(w, items); err != nil {
			return err
		}
	}
	return nil
}

// Waves returns a copy of the computed wave structure, for inspection/tests.
func (s *Schedule) Waves() [][]*System {
	out := make([][]*System, len(s.waves))
	copy(out, s.waves)
	return out
}
