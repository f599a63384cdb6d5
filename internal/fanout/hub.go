// Package fanout pushes check-in state changes to live subscribers scoped by
// tenant and event groups. Delivery is at-least-once and best-effort: a slow
// or disconnected subscriber misses messages and reconciles by polling the
// guest snapshot endpoint, never by relying on fanout completeness.
package fanout

import (
	"context"
	"sync"
	"time"

	"gatepass.dev/internal/checkin"
	"gatepass.dev/internal/obs"
)

// Message types pushed to subscribers.
const (
	TypeCheckInAccepted = "checkin.accepted"
	TypePing            = "ping"
)

// Message is one server-pushed frame.
type Message struct {
	Type    string           `json:"type"`
	Group   string           `json:"group,omitempty"`
	Summary *checkin.Summary `json:"summary,omitempty"`
	At      time.Time        `json:"at"`
}

// GroupTenant and GroupEvent build the two group keys a subscriber may join.
func GroupTenant(id string) string { return "tenant:" + id }
func GroupEvent(id string) string  { return "event:" + id }

type subscriber struct {
	ch     chan Message
	groups []string
}

// Hub maintains subscriber groups and fan-outs published messages to every
// member. Group membership is owned by each live connection's handler: a
// subscription joins on Subscribe and leaves when its context ends.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[int]*subscriber // group key -> sub id -> subscriber
	byID map[int]*subscriber
	next int
}

var _ checkin.Publisher = (*Hub)(nil)

// New initialises an empty hub.
func New() *Hub {
	return &Hub{
		subs: make(map[string]map[int]*subscriber),
		byID: make(map[int]*subscriber),
	}
}

// Subscribe joins the given groups and returns the receiving channel. A
// subscriber may belong to several groups at once; the channel is closed
// when ctx ends and membership is removed from every joined group.
func (h *Hub) Subscribe(ctx context.Context, groups ...string) <-chan Message {
	sub := &subscriber{
		ch:     make(chan Message, 16),
		groups: append([]string(nil), groups...),
	}

	h.mu.Lock()
	id := h.next
	h.next++
	h.byID[id] = sub
	for _, g := range groups {
		if h.subs[g] == nil {
			h.subs[g] = make(map[int]*subscriber)
		}
		h.subs[g][id] = sub
	}
	h.mu.Unlock()
	obs.SubscriberConnected()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		for _, g := range sub.groups {
			delete(h.subs[g], id)
			if len(h.subs[g]) == 0 {
				delete(h.subs, g)
			}
		}
		delete(h.byID, id)
		close(sub.ch)
		h.mu.Unlock()
		obs.SubscriberGone()
	}()

	return sub.ch
}

// Publish fan-outs the message to every member of the group. Sends never
// block: a subscriber whose buffer is full drops the message.
func (h *Hub) Publish(group string, msg Message) {
	if msg.At.IsZero() {
		msg.At = time.Now().UTC()
	}
	msg.Group = group

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[group] {
		select {
		case sub.ch <- msg:
		default:
			obs.MessageDropped()
		}
	}
}

// PublishCheckIn broadcasts an accepted check-in to both scopes the summary
// belongs to. Subscribers joined to both groups may see the frame twice;
// delivery is at-least-once.
func (h *Hub) PublishCheckIn(s checkin.Summary) {
	msg := Message{Type: TypeCheckInAccepted, Summary: &s, At: time.Now().UTC()}
	h.Publish(GroupTenant(s.TenantID), msg)
	h.Publish(GroupEvent(s.EventID), msg)
}

// Subscribers reports the current number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

// StartPings emits a liveness ping to every subscriber at the given interval
// until the returned stop function is called.
func (h *Hub) StartPings(interval time.Duration) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.pingAll()
			}
		}
	}()
	return cancel
}

func (h *Hub) pingAll() {
	msg := Message{Type: TypePing, At: time.Now().UTC()}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.byID {
		select {
		case sub.ch <- msg:
		default:
			obs.MessageDropped()
		}
	}
}
