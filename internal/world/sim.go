package world

import (
	"context"
	"fmt"
	"sync"
)

// Action names recorded by Sim.
const (
	ActionMoveTo      = "move-to"
	ActionSwitchWorld = "switch-world"
	ActionAcquire     = "acquire"
	ActionRelease     = "release"
	ActionSelectMode  = "select-mode"
	ActionCollect     = "collect"
)

// Sim is an in-memory State and Actions implementation. Accepted actions take
// effect after Latency calls to Advance, which callers invoke once per tick.
type Sim struct {
	mu        sync.Mutex
	position  Point
	world     int
	mode      string
	items     map[string]map[string]int
	collected map[string]int
	probes    map[string]float64
	flags     map[string]bool

	latency int
	pending []pendingAction
	calls   map[string]int
	refuse  map[string]error
	blocked map[string]struct{}
}

type pendingAction struct {
	name  string
	due   int
	apply func(*Sim)
}

// NewSim returns an empty simulator positioned at the origin on world 1.
func NewSim() *Sim {
	return &Sim{
		world:     1,
		items:     map[string]map[string]int{},
		collected: map[string]int{},
		probes:    map[string]float64{},
		flags:     map[string]bool{},
		calls:     map[string]int{},
		refuse:    map[string]error{},
		blocked:   map[string]struct{}{},
	}
}

// SetLatency controls how many Advance calls an accepted action needs before
// its effect is visible.
func (s *Sim) SetLatency(ticks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ticks < 0 {
		ticks = 0
	}
	s.latency = ticks
}

// Refuse makes every call to the named action fail with err. A nil err clears
// the refusal.
func (s *Sim) Refuse(action string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.refuse, action)
		return
	}
	s.refuse[action] = err
}

// Block makes actions for the given item (or mode) succeed without ever taking
// effect, modelling a resource that cannot be obtained.
func (s *Sim) Block(target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[target] = struct{}{}
}

// Calls reports how many times the named action was invoked.
func (s *Sim) Calls(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[action]
}

// Advance moves simulated time forward by one tick.
func (s *Sim) Advance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.pending[:0]
	var ready []pendingAction
	for _, p := range s.pending {
		p.due--
		if p.due <= 0 {
			ready = append(ready, p)
			continue
		}
		remaining = append(remaining, p)
	}
	s.pending = remaining
	for _, p := range ready {
		p.apply(s)
	}
}

// SetPosition places the simulated actor.
func (s *Sim) SetPosition(p Point) {
	s.mu.Lock()
	s.position = p
	s.mu.Unlock()
}

// SetWorld changes the current world.
func (s *Sim) SetWorld(world int) {
	s.mu.Lock()
	s.world = world
	s.mu.Unlock()
}

// SetMode changes the current mode.
func (s *Sim) SetMode(mode string) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// SetCount overwrites the held quantity of item in slot.
func (s *Sim) SetCount(item, slot string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCountLocked(item, slot, quantity)
}

// SetCollected overwrites the collected amount for item.
func (s *Sim) SetCollected(item string, amount int) {
	s.mu.Lock()
	s.collected[item] = amount
	s.mu.Unlock()
}

// SetProbe records a numeric probe value.
func (s *Sim) SetProbe(name string, value float64) {
	s.mu.Lock()
	s.probes[name] = value
	s.mu.Unlock()
}

// SetFlag records a boolean probe value.
func (s *Sim) SetFlag(name string, value bool) {
	s.mu.Lock()
	s.flags[name] = value
	s.mu.Unlock()
}

func (s *Sim) Position() Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *Sim) World() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.world
}

func (s *Sim) Count(item, slot string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	slots := s.items[item]
	if slot != "" {
		return slots[slot]
	}
	total := 0
	for _, n := range slots {
		total += n
	}
	return total
}

func (s *Sim) Collected(item string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collected[item]
}

func (s *Sim) Mode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Sim) Probe(name string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.probes[name]
	return v, ok
}

func (s *Sim) Flag(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[name]
}

func (s *Sim) MoveTo(ctx context.Context, target Point, useTransport bool) error {
	return s.schedule(ctx, ActionMoveTo, "", func(sim *Sim) { sim.position = target })
}

func (s *Sim) SwitchWorld(ctx context.Context, world int) error {
	return s.schedule(ctx, ActionSwitchWorld, "", func(sim *Sim) { sim.world = world })
}

func (s *Sim) Acquire(ctx context.Context, item string, quantity int, slot string) error {
	if quantity <= 0 {
		return fmt.Errorf("sim: acquire %s: quantity must be positive", item)
	}
	return s.schedule(ctx, ActionAcquire, item, func(sim *Sim) {
		key := slot
		if key == "" {
			key = "inventory"
		}
		sim.setCountLocked(item, key, sim.items[item][key]+quantity)
	})
}

func (s *Sim) Release(ctx context.Context, item string, quantity int) error {
	return s.schedule(ctx, ActionRelease, item, func(sim *Sim) {
		left := quantity
		for slot, n := range sim.items[item] {
			if left <= 0 {
				break
			}
			take := n
			if take > left {
				take = left
			}
			sim.setCountLocked(item, slot, n-take)
			left -= take
		}
	})
}

func (s *Sim) SelectMode(ctx context.Context, mode string) error {
	return s.schedule(ctx, ActionSelectMode, mode, func(sim *Sim) { sim.mode = mode })
}

func (s *Sim) Collect(ctx context.Context, item string, amount int) error {
	return s.schedule(ctx, ActionCollect, item, func(sim *Sim) { sim.collected[item] += amount })
}

func (s *Sim) schedule(ctx context.Context, name, target string, apply func(*Sim)) error {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
	if err, ok := s.refuse[name]; ok {
		return err
	}
	if _, ok := s.blocked[target]; ok && target != "" {
		return nil
	}
	if s.latency == 0 {
		apply(s)
		return nil
	}
	s.pending = append(s.pending, pendingAction{name: name, due: s.latency, apply: apply})
	return nil
}

func (s *Sim) setCountLocked(item, slot string, quantity int) {
	slots, ok := s.items[item]
	if !ok {
		slots = map[string]int{}
		s.items[item] = slots
	}
	if quantity <= 0 {
		delete(slots, slot)
		return
	}
	slots[slot] = quantity
}
