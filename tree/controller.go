package tree

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/c12s/mlsttree/gossip"
	"github.com/c12s/mlsttree/platform"
	"github.com/c12s/mlsttree/radio"
)

// Variant selects which election heuristic a Controller runs each period.
type Variant int

const (
	VariantBase Variant = iota
	VariantEA1
	VariantEA2
	VariantEA3
)

// Port is the gossip port the spanning-tree controller's own neighborhood
// runs on, matching MLST_PVN_PORT.
const Port radio.Port = 154

const (
	defaultMaxNeighborAge  = 15 * time.Second
	defaultPeriod          = 1 * time.Second
	defaultStayActivePeriods = 3
	defaultMaxParentAge    = 5 * time.Second
)

// SleepPolicy is the collaborator that actually stops/starts the reliable
// unicast layer's networking, the way mlst_online/mlst_offline call
// rsunicast_disallowSleeping/rsunicast_allowSleeping alongside the LED
// toggles. A Controller never touches a radio.Medium directly for this;
// it only ever calls AllowSleep/DisallowSleep.
type SleepPolicy interface {
	AllowSleep()
	DisallowSleep()
}

// Config configures one Controller instance.
type Config struct {
	Self              radio.NodeID
	IsRoot            bool
	Variant           Variant
	EnergyState       uint8 // 0 undefined, 1 high, 2 middle, 3 low; EA1/EA2/EA3 only
	MaxNeighborAge    time.Duration
	Period            time.Duration
	StayActivePeriods int
	MaxParentAge      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxNeighborAge == 0 {
		c.MaxNeighborAge = defaultMaxNeighborAge
	}
	if c.Period == 0 {
		c.Period = defaultPeriod
	}
	if c.StayActivePeriods == 0 {
		c.StayActivePeriods = defaultStayActivePeriods
	}
	if c.MaxParentAge == 0 {
		c.MaxParentAge = defaultMaxParentAge
	}
	return c
}

// dynamicRecord lets a gossip.Instance hold a reference to "whatever
// record the controller most recently computed" without the controller
// having to reconstruct a new gossip.Instance every tick.
type dynamicRecord struct {
	mu  sync.Mutex
	cur recordMarshaler
}

func (d *dynamicRecord) set(r recordMarshaler) {
	d.mu.Lock()
	d.cur = r
	d.mu.Unlock()
}

func (d *dynamicRecord) MarshalBinary() ([]byte, error) {
	d.mu.Lock()
	cur := d.cur
	d.mu.Unlock()
	if cur == nil {
		return nil, nil
	}
	return cur.MarshalBinary()
}

// Controller runs the spanning-tree state machine: periodically it cleans
// its neighborhood, elects a parent, decides whether it can sleep, and
// rebroadcasts its own public record. It is the Go home of
// mlst_network.h's global state and PROCESS_THREAD loop, restructured as
// an owned object ticked by a platform.RearmTimer instead of a Contiki
// coroutine.
type Controller struct {
	cfg    Config
	gossip *gossip.Instance
	record *dynamicRecord
	rng    *rand.Rand
	timer  *platform.RearmTimer
	sleep  SleepPolicy
	logger *log.Logger

	mu             sync.Mutex
	parentID       radio.NodeID
	childrenCount  uint8
	lastDistance   uint32
	undefined      bool
	stayActiveFor  int
	dividePeriodBy int
	parentLastSeen time.Time
	onParentChange func(radio.NodeID)
}

// New constructs a Controller. demux is shared with whatever else uses the
// same radio.Medium; sleep is notified whenever this node may or may not
// switch its unicast layer off.
func New(cfg Config, demux *radio.Demux, sleep SleepPolicy, logger *log.Logger) *Controller {
	cfg = cfg.withDefaults()
	rec := &dynamicRecord{}
	c := &Controller{
		cfg:            cfg,
		record:         rec,
		rng:            platform.NewNodeRand(uint16(cfg.Self)),
		timer:          platform.NewRearmTimer(),
		sleep:          sleep,
		logger:         logger,
		undefined:      true,
		dividePeriodBy: 1,
	}
	c.gossip = gossip.New(cfg.Self, demux, Port, rec, cfg.MaxNeighborAge, logger)
	c.gossip.SetComparisonFunction(compareRecordsByParentAndChildren)
	c.gossip.SetCallbacks(gossip.Callbacks{
		OnNew:    c.onPvnNew,
		OnChange: c.onPvnChange,
		OnDelete: c.onPvnDelete,
	})
	return c
}

// onPvnNew and onPvnChange mirror onPvnNew/onPvnChange in mlst_network.h:
// any new or changed neighbor record is news the node should stay awake
// to keep spreading, so it resets stay_active_for_next_n_periods to its
// configured maximum regardless of whether the event concerns this node's
// own parent or children.
func (c *Controller) onPvnNew(n gossip.Neighbor) {
	c.mu.Lock()
	c.stayActiveFor = c.cfg.StayActivePeriods
	c.mu.Unlock()
}

func (c *Controller) onPvnChange(n gossip.Neighbor) {
	c.mu.Lock()
	c.stayActiveFor = c.cfg.StayActivePeriods
	c.mu.Unlock()
}

// onPvnDelete mirrors onPvnDelete in mlst_network.h:118-123: losing any
// neighbor is news (stay_active_for_next_n_periods resets), and losing the
// current parent specifically forces this node straight back to
// Undefined rather than waiting for the next recalculate to notice a
// stale parent.
func (c *Controller) onPvnDelete(n gossip.Neighbor) {
	c.mu.Lock()
	c.stayActiveFor = c.cfg.StayActivePeriods
	if n.ID == c.parentID {
		c.parentID = undefinedParent
		c.lastDistance = undefinedDistance16
		c.childrenCount = 0
		c.undefined = true
	}
	c.mu.Unlock()
}

// compareRecordsByParentAndChildren mirrors pvnCmp: a neighbor's record is
// only considered "changed" if its parent or children count field differs,
// ignoring the distance fields (which can legitimately jitter without
// indicating an actionable structural change).
func compareRecordsByParentAndChildren(old, new []byte) bool {
	if len(old) < 4 || len(new) < 4 {
		return true
	}
	// parent_id occupies the two bytes right after the leading distance
	// byte(s) in every record variant: RecordBase/EA1 start with one
	// distance byte, RecordEA2 with three, RecordEA3 with two. To stay
	// layout-agnostic, compare everything except the leading distance
	// byte(s), which are the only fields that jitter independent of
	// structural change.
	return !bytesEqualTail(old, new)
}

func bytesEqualTail(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	// Skip the distance prefix: 1 byte for base/EA1, 3 for EA2, 2 for EA3,
	// told apart by record length (4/5, 7 and 6 bytes). Since the caller
	// only needs "did parent/children change", comparing everything after
	// it (parent_id + children_count, plus the trailing energy_state for
	// EA1/EA2/EA3) is conservative but correct: a false positive here just
	// means an extra stay-active period, never a missed one.
	skip := 1
	switch len(a) {
	case 7:
		skip = 3
	case 6:
		skip = 2
	}
	for i := skip; i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Start begins the periodic tick loop.
func (c *Controller) Start() {
	c.timer.Rearm(c.nextInterval(), c.tick)
}

// Stop halts the tick loop and closes the underlying gossip instance.
func (c *Controller) Stop() {
	c.timer.Stop()
	c.gossip.SetOnline(false)
}

func (c *Controller) nextInterval() time.Duration {
	c.mu.Lock()
	divide := c.dividePeriodBy
	c.mu.Unlock()
	if divide < 1 {
		divide = 1
	}
	jitter := platform.RandomFloat(c.rng, 0.8, 1.0)
	return time.Duration(float64(c.cfg.Period) * jitter / float64(divide))
}

// tick is one pass of the PROCESS_THREAD's while(1) body.
func (c *Controller) tick() {
	c.gossip.RemoveStale()

	c.mu.Lock()
	undefined := c.undefined
	isLeaf := !undefined && c.childrenCount == 0
	stayActiveFor := c.stayActiveFor
	parentLastSeen := c.parentLastSeen
	c.mu.Unlock()

	switch {
	case c.cfg.IsRoot:
		c.gossip.SetOnline(true)
		c.sleep.DisallowSleep()
	case undefined:
		c.gossip.SetOnline(true)
		c.sleep.DisallowSleep()
	case isLeaf:
		c.sleep.AllowSleep()
		if stayActiveFor > 0 || time.Since(parentLastSeen) > c.cfg.MaxParentAge {
			c.gossip.SetOnline(true)
		} else {
			c.gossip.SetOnline(false)
		}
	default:
		c.gossip.SetOnline(true)
		c.sleep.DisallowSleep()
	}

	c.timer.Rearm(c.nextInterval(), c.tick)

	c.recalculate()

	if c.onParentChange != nil {
		c.mu.Lock()
		parent := c.parentID
		c.mu.Unlock()
		c.onParentChange(parent)
	}
	c.gossip.Broadcast()

	c.mu.Lock()
	if c.stayActiveFor > 0 {
		c.stayActiveFor--
	}
	if c.dividePeriodBy > 1 {
		c.dividePeriodBy--
	}
	c.mu.Unlock()
}

func (c *Controller) recalculate() {
	views := c.neighborViews()

	var out outcome
	switch c.cfg.Variant {
	case VariantEA1:
		out = electEA1(c.cfg.Self, c.cfg.IsRoot, c.cfg.EnergyState, views, c.rng)
	case VariantEA2:
		out = electEA2(c.cfg.Self, c.cfg.IsRoot, c.cfg.EnergyState, views, c.rng)
	case VariantEA3:
		out = electEA3(c.cfg.Self, c.cfg.IsRoot, c.cfg.EnergyState, views, c.rng)
	default:
		out = electBase(c.cfg.Self, c.cfg.IsRoot, views, c.rng)
	}

	var parentSeen time.Time
	for _, n := range c.gossip.Neighbors() {
		if n.ID == out.ParentID {
			parentSeen = n.Timestamp
		}
	}

	c.mu.Lock()
	changed := c.parentID != out.ParentID || c.childrenCount != out.ChildrenCount || c.lastDistance != out.Distance
	if out.SawUndefinedNeighbor || changed {
		c.stayActiveFor = c.cfg.StayActivePeriods
	}
	if changed && !c.cfg.IsRoot {
		c.dividePeriodBy = 3
	}
	c.parentID = out.ParentID
	c.childrenCount = out.ChildrenCount
	c.lastDistance = out.Distance
	c.undefined = out.Undefined && !c.cfg.IsRoot
	if out.ParentID != 0 {
		c.parentLastSeen = parentSeen
	}
	c.mu.Unlock()

	c.record.set(out.Record)
}

func (c *Controller) neighborViews() []NeighborView {
	nbrs := c.gossip.Neighbors()
	views := make([]NeighborView, len(nbrs))
	for i, n := range nbrs {
		views[i] = NeighborView{ID: n.ID, Record: n.Record}
	}
	return views
}

// SetOnParentChange registers the callback invoked after every tick with
// the node's currently elected parent (0 if undefined), so that package
// mlst can keep the reliable-unicast layer's parent in sync, mirroring
// rsunicast_setparent being called right after mlst_recalculate.
func (c *Controller) SetOnParentChange(fn func(radio.NodeID)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onParentChange = fn
}

// IsUndefined reports whether the tree position is not yet determined.
func (c *Controller) IsUndefined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.undefined
}

// IsLeaf reports whether this node currently has no children.
func (c *Controller) IsLeaf() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.undefined && c.childrenCount == 0
}

// Parent returns the currently elected parent, or 0 if undefined.
func (c *Controller) Parent() radio.NodeID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.parentID
}

// ChildrenCount returns the number of neighbors that currently list this
// node as their parent.
func (c *Controller) ChildrenCount() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.childrenCount
}

// SetEnergyState sets the node's energy class for EA1/EA2/EA3 variants (1:
// high, 2: middle, 3: low). Mirrors eamlst_set_energy_state.
func (c *Controller) SetEnergyState(s uint8) {
	c.mu.Lock()
	c.cfg.EnergyState = s
	c.mu.Unlock()
}

// PrintState logs the controller's parent/children summary plus the
// underlying neighborhood state, mirroring mlst_print_state.
func (c *Controller) PrintState() {
	c.mu.Lock()
	parent, children := c.parentID, c.childrenCount
	c.mu.Unlock()
	if c.logger != nil {
		c.logger.Printf("tree: [parent=%s, children=%d]", parent, children)
	}
	c.gossip.PrintState()
}
