// Package events allows for the registering and receiving of events.
package events

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Set of event types the simulation reports.
const (
	TypeBlockMined           = "block-mined"
	TypeForkStarted          = "fork-started"
	TypeForkResolved         = "fork-resolved"
	TypeReorg                = "reorg"
	TypeTxConfirmed          = "tx-confirmed"
	TypePeerConnect          = "peer-connect"
	TypePeerDisconnect       = "peer-disconnect"
	TypeDelayedBlock         = "delayed-block"
	TypeOrphanBlock          = "orphan-block"
	TypeMempoolSpike         = "mempool-spike"
	TypeDifficultyAdjustment = "difficulty-adjustment"
	TypeHashRateChange       = "hash-rate-change"
)

// MaxRecent is the number of events kept in the recent history.
const MaxRecent = 50

// Event represents something that happened inside the simulation. Only the
// fields relevant to the type are set.
type Event struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp"`
	Message    string `json:"message"`
	BlockIndex uint64 `json:"blockIndex,omitempty"`
	MinerID    string `json:"minerId,omitempty"`
	Count      int    `json:"count,omitempty"`
	Winner     string `json:"winner,omitempty"`
	Impact     string `json:"impact,omitempty"`
}

// New constructs an event with a fresh id.
func New(typ string, timestamp int64, message string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: timestamp,
		Message:   message,
	}
}

// =============================================================================

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events. The most recent events are kept so late
// subscribers and snapshots can see what already happened.
type Events struct {
	m      map[string]chan Event
	recent []Event
	mu     sync.RWMutex
}

// NewEvents constructs an events for registering and receiving events.
func NewEvents() *Events {
	return &Events{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) <-chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// Since a message will be dropped if the websocket receiver is
	// not ready to receive, this arbitrary buffer should give the receiver
	// enough time to not lose a message. Websocket send could take long.
	const messageBuffer = 100

	evt.m[id] = make(chan Event, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send records the event and signals it to every registered channel. Send
// will not block waiting for a receiver on any given channel.
func (evt *Events) Send(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	evt.mu.Lock()
	defer evt.mu.Unlock()

	evt.recent = append(evt.recent, ev)
	if len(evt.recent) > MaxRecent {
		evt.recent = evt.recent[len(evt.recent)-MaxRecent:]
	}

	for _, ch := range evt.m {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Recent returns up to n of the most recent events, newest first. A
// negative n returns the whole history.
func (evt *Events) Recent(n int) []Event {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	if n < 0 || n > len(evt.recent) {
		n = len(evt.recent)
	}

	out := make([]Event, n)
	for i := range n {
		out[i] = evt.recent[len(evt.recent)-1-i]
	}

	return out
}

// History returns the recorded events oldest first.
func (evt *Events) History() []Event {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	out := make([]Event, len(evt.recent))
	copy(out, evt.recent)
	return out
}

// Restore replaces the recent history with previously saved events given
// oldest first. Subscribers are not notified.
func (evt *Events) Restore(evs []Event) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if len(evs) > MaxRecent {
		evs = evs[len(evs)-MaxRecent:]
	}

	evt.recent = make([]Event, len(evs))
	copy(evt.recent, evs)
}
