package mesh

import (
	"sort"
	"sync"
	"time"
)

// Registry is the set of known mesh participants. Entries are created on
// first contact and persist for the process lifetime; there is no
// staleness eviction. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	nodes    map[NodeID]*Node
	selected map[NodeID]bool
	stats    Stats
}

// NewRegistry returns an empty registry with the given selected set.
func NewRegistry(selected []NodeID) *Registry {
	sel := make(map[NodeID]bool, len(selected))
	for _, id := range selected {
		sel[id] = true
	}
	return &Registry{
		nodes:    make(map[NodeID]*Node),
		selected: sel,
	}
}

// Observation carries the fields of a packet that update a node entry.
// Nil pointer fields leave the stored value untouched.
type Observation struct {
	ShortName   string
	LongName    string
	SNR         float64
	RSSI        int
	HasSignal   bool
	Battery     *int
	Voltage     *float64
	ChannelUtil *float64
	AirUtil     *float64
	HopsAway    *int
	Time        time.Time
}

// Upsert creates or updates the entry for id from a packet observation.
func (r *Registry) Upsert(id NodeID, obs Observation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.nodes[id]
	if !ok {
		n = &Node{ID: id}
		r.nodes[id] = n
	}
	if obs.ShortName != "" {
		n.ShortName = obs.ShortName
	}
	if obs.LongName != "" {
		n.LongName = obs.LongName
	}
	if obs.HasSignal {
		n.SNR = obs.SNR
		n.RSSI = obs.RSSI
		n.HasSignal = true
	}
	if obs.Battery != nil {
		n.Battery = obs.Battery
	}
	if obs.Voltage != nil {
		n.Voltage = obs.Voltage
	}
	if obs.ChannelUtil != nil {
		n.ChannelUtil = obs.ChannelUtil
	}
	if obs.AirUtil != nil {
		n.AirUtil = obs.AirUtil
	}
	if obs.HopsAway != nil {
		n.HopsAway = *obs.HopsAway
	}
	if !obs.Time.IsZero() {
		n.LastHeard = obs.Time
	}
	n.Selected = r.selected[id]
}

// Get returns a copy of the entry for id.
func (r *Registry) Get(id NodeID) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// IsSelected reports whether id is operator-designated as trusted.
func (r *Registry) IsSelected(id NodeID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.selected[id]
}

// SetSelected replaces the selected set.
func (r *Registry) SetSelected(ids []NodeID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected = make(map[NodeID]bool, len(ids))
	for _, id := range ids {
		r.selected[id] = true
	}
	for id, n := range r.nodes {
		n.Selected = r.selected[id]
	}
}

// Selected returns the current selected set, sorted.
func (r *Registry) Selected() []NodeID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]NodeID, 0, len(r.selected))
	for id := range r.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ApplyAliases overlays operator-set display names keyed by node id.
func (r *Registry) ApplyAliases(aliases map[NodeID]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, name := range aliases {
		n, ok := r.nodes[id]
		if !ok {
			n = &Node{ID: id, Selected: r.selected[id]}
			r.nodes[id] = n
		}
		n.LongName = name
	}
}

// Snapshot returns copies of all nodes ordered by most recently heard.
func (r *Registry) Snapshot() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastHeard.Equal(out[j].LastHeard) {
			return out[i].LastHeard.After(out[j].LastHeard)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of known nodes.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// CountRx bumps the received-packet counter.
func (r *Registry) CountRx() {
	r.mu.Lock()
	r.stats.PacketsRx++
	r.mu.Unlock()
}

// CountTx bumps the transmitted-packet counter.
func (r *Registry) CountTx() {
	r.mu.Lock()
	r.stats.PacketsTx++
	r.mu.Unlock()
}

// CountMessage bumps the text-message counter.
func (r *Registry) CountMessage() {
	r.mu.Lock()
	r.stats.MessagesSeen++
	r.mu.Unlock()
}

// Stats returns a copy of the packet counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}
