// Package unicast implements reliable, sleep-aware unicast delivery to the
// root of the spanning tree built by package tree. It is a port of
// rsunicast.h: messages are queued, sent one at a time to the current
// parent, acknowledged over a separate port, retried with a randomized
// quadratic backoff, and forwarded hop by hop rather than carried
// end-to-end, so only one instance of this type should run per node —
// exactly as the original only ever opens one rsu_data_channel.
package unicast

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/c12s/mlsttree/platform"
	"github.com/c12s/mlsttree/radio"
)

// DataPort and AckPort mirror MESSAGING_PORT and ACKNOWLEDGEMENT_PORT.
const (
	DataPort radio.Port = 181
	AckPort  radio.Port = 182
)

const (
	defaultTimeout       = 200 * time.Millisecond
	defaultMaxTries       = 5
	defaultNextMsgDelay   = 10 * time.Millisecond
	defaultFailureDelay   = 100 * time.Millisecond
	defaultHistoryCapacity = 30
)

// Config configures one Controller.
type Config struct {
	Self             radio.NodeID
	IsRoot           bool
	Timeout          time.Duration
	MaxTries         int
	NextMessageDelay time.Duration
	FailureDelay     time.Duration
	HistoryCapacity  int
}

func (c Config) withDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxTries == 0 {
		c.MaxTries = defaultMaxTries
	}
	if c.NextMessageDelay == 0 {
		c.NextMessageDelay = defaultNextMsgDelay
	}
	if c.FailureDelay == 0 {
		c.FailureDelay = defaultFailureDelay
	}
	if c.HistoryCapacity == 0 {
		c.HistoryCapacity = defaultHistoryCapacity
	}
	return c
}

// Controller is the single per-node reliable-unicast-to-parent instance.
type Controller struct {
	cfg    Config
	demux  *radio.Demux
	rng    *rand.Rand
	timer  *platform.RearmTimer
	logger *log.Logger

	mu             sync.Mutex
	queue          []*queueEntry
	history        *history
	online         bool
	allowedToSleep bool
	parent         radio.NodeID
	seqNo          uint8

	onLostMessage func(parent radio.NodeID, tries int)
	onRootMessage func(from radio.NodeID, payload []byte)
}

// New constructs a Controller and opens its two ports immediately,
// mirroring rsunicast_init.
func New(cfg Config, demux *radio.Demux, logger *log.Logger) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:     cfg,
		demux:   demux,
		rng:     platform.NewNodeRand(uint16(cfg.Self)),
		timer:   platform.NewRearmTimer(),
		logger:  logger,
		history: newHistory(cfg.HistoryCapacity),
	}
	c.goOnline()
	return c
}

// SetFailureCallback installs the callback invoked on every ACK timeout of
// the front-of-queue message, with the parent and the tries made so far,
// mirroring rsunicast_setFailureCallback.
func (c *Controller) SetFailureCallback(fn func(parent radio.NodeID, tries int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLostMessage = fn
}

// SetRootReceiveCallback installs the callback invoked with every message
// that reaches this node acting as the root, mirroring
// rsunicast_setNewMessageCallback_root. Calling it on a non-root
// Controller has no effect, since only the root path ever looks at it.
func (c *Controller) SetRootReceiveCallback(fn func(from radio.NodeID, payload []byte)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRootMessage = fn
}

// SetParent sets the parent messages are sent/forwarded to, mirroring
// rsunicast_setparent. 0 means undefined.
func (c *Controller) SetParent(id radio.NodeID) {
	c.mu.Lock()
	c.parent = id
	c.mu.Unlock()
}

// AllowSleep satisfies tree.SleepPolicy: allows the controller to close its
// ports once the queue drains, mirroring rsunicast_allowSleeping.
func (c *Controller) AllowSleep() {
	c.mu.Lock()
	c.allowedToSleep = true
	idle := len(c.queue) == 0
	c.mu.Unlock()
	if idle {
		c.goOffline()
	}
}

// DisallowSleep satisfies tree.SleepPolicy: wakes the controller back up if
// it was sleeping, mirroring rsunicast_disallowSleeping.
func (c *Controller) DisallowSleep() {
	c.mu.Lock()
	c.allowedToSleep = false
	c.mu.Unlock()
	c.goOnline()
}

func (c *Controller) goOnline() {
	c.mu.Lock()
	if c.online {
		c.mu.Unlock()
		return
	}
	c.online = true
	c.mu.Unlock()
	c.demux.Register(DataPort, radio.ReceiverFunc(c.onNewMessage))
	c.demux.Register(AckPort, radio.ReceiverFunc(c.onReceiveAck))
}

func (c *Controller) goOffline() {
	c.mu.Lock()
	if !c.online {
		c.mu.Unlock()
		return
	}
	c.online = false
	c.mu.Unlock()
	c.demux.Unregister(DataPort)
	c.demux.Unregister(AckPort)
}

// Send queues payload for delivery to the root, prefixing it with a fresh
// sequence number, mirroring rsunicast_send. If the queue was empty, the
// first send attempt is scheduled after a small randomized delay;
// otherwise it waits behind whatever is already queued.
func (c *Controller) Send(payload []byte) {
	c.goOnline()

	c.mu.Lock()
	entry := &queueEntry{seqNo: c.seqNo, payload: append([]byte(nil), payload...)}
	c.seqNo++
	wasEmpty := len(c.queue) == 0
	c.queue = append(c.queue, entry)
	c.mu.Unlock()

	if wasEmpty {
		delay := scaledDelay(c.rng, c.cfg.NextMessageDelay, 0.5, 1.0)
		c.timer.Rearm(delay, c.sendNext)
	}
}

// scaledDelay mirrors the original's repeated
// `CLOCK_SECOND*D*(0.5+(float)random_rand()/(2*RANDOM_RAND_MAX))` formula:
// a base duration scaled by a uniform factor in [lo, hi).
func scaledDelay(rng *rand.Rand, base time.Duration, lo, hi float64) time.Duration {
	factor := lo + (hi-lo)*rng.Float64()
	return time.Duration(float64(base) * factor)
}

// sendNext transmits the head of the queue to the current parent and arms
// the ACK timeout, mirroring rsu_send_next_message.
func (c *Controller) sendNext() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	head := c.queue[0]
	parent := c.parent
	c.mu.Unlock()

	if parent != 0 {
		frame := make([]byte, 1+len(head.payload))
		frame[0] = head.seqNo
		copy(frame[1:], head.payload)
		if err := c.demux.Unicast(DataPort, parent, frame); err != nil && c.logger != nil {
			c.logger.Printf("unicast: send to parent %s failed: %v", parent, err)
		}
		c.mu.Lock()
		head.tries++
		c.mu.Unlock()
	}

	c.timer.Rearm(c.cfg.Timeout, c.onAckTimeout)
}

// onAckTimeout fires when no ACK arrived within the timeout, mirroring
// rsu_on_ack_timeout: it reports the failure, drops the message once
// MaxTries is exceeded, and then reschedules sendNext — for the message
// that was just dropped (whose successor starts fresh with zero tries,
// so it fires almost immediately) or, if not yet exhausted, for another
// attempt at the same message after a quadratic backoff.
func (c *Controller) onAckTimeout() {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return
	}
	head := c.queue[0]
	parent := c.parent
	cb := c.onLostMessage
	c.mu.Unlock()

	if cb != nil {
		cb(parent, head.tries)
	}

	c.mu.Lock()
	if head.tries > c.cfg.MaxTries {
		c.queue = c.queue[1:]
	}
	empty := len(c.queue) == 0
	sleepAllowed := c.allowedToSleep
	nextTries := head.tries
	if !empty {
		nextTries = c.queue[0].tries
	}
	c.mu.Unlock()

	if empty {
		if sleepAllowed {
			c.goOffline()
		}
		return
	}

	delay := time.Duration(float64(c.cfg.FailureDelay) * c.rng.Float64() * float64(nextTries*nextTries))
	c.timer.Rearm(delay, c.sendNext)
}

// onReceiveAck fires when an ACK arrives for the head-of-queue message,
// mirroring rsu_on_recieve_ack: the queue always advances on any ACK, since
// ACKs can only ever correspond to the message currently in flight.
func (c *Controller) onReceiveAck(d radio.Datagram) {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Printf("unicast: received unexpected ACK from %s", d.From)
		}
		return
	}
	c.queue = c.queue[1:]
	empty := len(c.queue) == 0
	sleepAllowed := c.allowedToSleep
	c.mu.Unlock()

	c.timer.Stop()
	if !empty {
		delay := scaledDelay(c.rng, c.cfg.NextMessageDelay, 0.5, 1.0)
		c.timer.Rearm(delay, c.sendNext)
	} else if sleepAllowed {
		c.goOffline()
	}
}

// onNewMessage fires when a data-port datagram arrives, mirroring
// rsu_on_new_message. An ACK is sent back unconditionally. A root
// Controller checks its history before invoking the receive callback but,
// matching the original's behavior exactly, never calls history.add for
// itself — the root's history therefore stays permanently empty, so
// repeated (sender, seqno) pairs keep re-invoking the callback rather than
// being suppressed. A non-root Controller drops true duplicates and
// otherwise records the sequence number before forwarding the payload
// toward its own parent.
func (c *Controller) onNewMessage(d radio.Datagram) {
	if len(d.Payload) < 1 {
		return
	}
	seqNo := d.Payload[0]
	payload := d.Payload[1:]

	if err := c.demux.Unicast(AckPort, d.From, []byte{'A'}); err != nil && c.logger != nil {
		c.logger.Printf("unicast: ack to %s failed: %v", d.From, err)
	}

	c.mu.Lock()
	isRoot := c.cfg.IsRoot
	cb := c.onRootMessage
	c.mu.Unlock()

	if isRoot {
		if cb != nil && !c.history.check(d.From, seqNo) {
			cb(d.From, payload)
		}
		return
	}

	c.mu.Lock()
	duplicate := c.history.check(d.From, seqNo)
	if !duplicate {
		c.history.add(d.From, seqNo)
	}
	c.mu.Unlock()
	if duplicate {
		return
	}
	c.Send(payload)
}

// QueueLength returns the number of messages currently queued, including
// the one in flight.
func (c *Controller) QueueLength() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// PrintState logs port/parent/queue-length information, mirroring
// rsunicast_print_state.
func (c *Controller) PrintState() {
	c.mu.Lock()
	parent, n, online := c.parent, len(c.queue), c.online
	c.mu.Unlock()
	if c.logger == nil {
		return
	}
	state := "online"
	if !online {
		state = "offline"
	}
	c.logger.Printf("unicast: port=(%d/%d) parent=%s queue=%d %s", DataPort, AckPort, parent, n, state)
}
