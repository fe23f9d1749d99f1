package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ardanlabs/blocksim/foundation/events"
)

// Network events fire at a uniform interval in this range.
const (
	networkMin = 30 * time.Second
	networkMax = 90 * time.Second
)

// How long a temporary network effect lasts.
const (
	delayedFor    = 60 * time.Second
	orphanFor     = 15 * time.Second
	difficultyFor = 60 * time.Second
	hashRateFor   = 60 * time.Second
	hashRateBoost = 1.15
)

// networkWeights gives the chance out of 100 of each network event.
var networkWeights = []struct {
	typ    string
	weight int
}{
	{events.TypePeerConnect, 20},
	{events.TypePeerDisconnect, 15},
	{events.TypeDelayedBlock, 20},
	{events.TypeOrphanBlock, 10},
	{events.TypeMempoolSpike, 15},
	{events.TypeDifficultyAdjustment, 10},
	{events.TypeHashRateChange, 10},
}

// scheduleNextNetworkEvent must be called with the lock held.
func (w *Worker) scheduleNextNetworkEvent() {
	w.netTimer = w.after(w.uniform(networkMin, networkMax), func(ctx context.Context) {
		w.mu.Lock()
		typ := w.randomNetworkEvent()
		w.mu.Unlock()

		w.TriggerNetworkEvent(typ)

		w.mu.Lock()
		defer w.mu.Unlock()

		if w.running {
			w.scheduleNextNetworkEvent()
		}
	})
}

// randomNetworkEvent must be called with the lock held.
func (w *Worker) randomNetworkEvent() string {
	r := w.rand.IntN(100)
	for _, nw := range networkWeights {
		if r < nw.weight {
			return nw.typ
		}
		r -= nw.weight
	}

	return events.TypeHashRateChange
}

// TriggerNetworkEvent applies the effect of a network event and records it.
// An empty type picks one at random. Temporary effects are undone later on
// the scheduler while the worker is running.
func (w *Worker) TriggerNetworkEvent(typ string) (events.Event, error) {
	if typ == "" {
		w.mu.Lock()
		typ = w.randomNetworkEvent()
		w.mu.Unlock()
	}

	var message, impact string

	switch typ {
	case events.TypePeerConnect:
		name, err := w.AddPeer("")
		if err != nil {
			return events.Event{}, err
		}
		message = fmt.Sprintf("New peer %s connected", name)
		impact = "Peer count +1"

	case events.TypePeerDisconnect:
		name, removed := w.RemovePeer()
		if !removed {
			message = "Peer disconnect ignored, minimum peer count reached"
			impact = "Peer count unchanged"
			break
		}
		message = fmt.Sprintf("Peer %s disconnected", name)
		impact = "Peer count -1"

	case events.TypeDelayedBlock:
		next := w.state.LatestBlock().Index + 1
		w.temporaryMultiplier(1.5, delayedFor)
		message = fmt.Sprintf("Block #%d arrived late (network congestion)", next)
		impact = "Block delay increased"

	case events.TypeOrphanBlock:
		w.temporaryMultiplier(2.0, orphanFor)
		message = "Orphan block received. Waiting for parent..."
		impact = "Block held"

	case events.TypeMempoolSpike:
		added := w.TriggerMempoolSpike(DefaultSpike)
		message = fmt.Sprintf("Mempool spike: %d pending transactions", added)
		impact = fmt.Sprintf("%d txs added", added)

	case events.TypeDifficultyAdjustment:
		w.mu.Lock()
		change := float64(w.rand.IntN(101)) / 10
		up := w.rand.IntN(2) == 0
		w.mu.Unlock()

		direction, m := "-", 0.8
		if up {
			direction, m = "+", 1.2
		}
		w.temporaryMultiplier(m, difficultyFor)
		message = fmt.Sprintf("Difficulty adjusted: %s%.1f%%", direction, change)
		impact = "Mining difficulty updated"

	case events.TypeHashRateChange:
		w.mu.Lock()
		miner := ""
		if len(w.miners) > 0 {
			miner = w.miners[w.rand.IntN(len(w.miners))].Name
		}
		rate := 5 + w.rand.IntN(20)
		w.adjustHashRates(hashRateBoost)
		if w.running {
			w.afterReset(hashRateFor, func() {
				w.mu.Lock()
				defer w.mu.Unlock()
				w.adjustHashRates(1 / hashRateBoost)
			})
		}
		w.mu.Unlock()

		message = fmt.Sprintf("%s increased hash rate by %d%%", miner, rate)
		impact = "Hash rates updated"

	default:
		return events.Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}

	ev := events.New(typ, w.sched.Now().UnixMilli(), message)
	ev.Impact = impact
	w.state.Events().Send(ev)

	w.evHandler("worker: TriggerNetworkEvent: type[%s] msg[%s]", typ, message)

	return ev, nil
}

// temporaryMultiplier sets the block delay multiplier and puts it back to 1
// after d.
func (w *Worker) temporaryMultiplier(m float64, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.multiplier = m
	w.evHandler("worker: temporaryMultiplier: multiplier[%v] for[%v]", m, d)

	if w.running {
		w.afterReset(d, func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			w.multiplier = 1
		})
	}
}
