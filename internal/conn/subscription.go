package conn

import (
	"context"
	"sync"

	"github.com/Zain0205/travelin-chat/internal/metrics"
	"github.com/Zain0205/travelin-chat/internal/protocol"
)

// Subscription is an explicit registration of a Handler. Handlers run one at
// a time on the manager's event goroutine, in subscription order, for every
// event in delivery order.
type Subscription struct {
	id   uint64
	fn   Handler
	mgr  *Manager
	once sync.Once
}

// Subscribe registers fn for every subsequent event.
func (m *Manager) Subscribe(fn Handler) *Subscription {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextSub++
	sub := &Subscription{id: m.nextSub, fn: fn, mgr: m}
	m.subs = append(m.subs, sub)
	return sub
}

// Cancel stops delivery to the handler. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		m := s.mgr
		m.subMu.Lock()
		defer m.subMu.Unlock()
		for i, sub := range m.subs {
			if sub.id == s.id {
				m.subs = append(m.subs[:i:i], m.subs[i+1:]...)
				break
			}
		}
	})
}

func (m *Manager) dispatch(ctx context.Context, in protocol.Inbound) {
	metrics.InboundEvents.WithLabelValues(in.EventName()).Inc()

	m.subMu.Lock()
	subs := make([]*Subscription, len(m.subs))
	copy(subs, m.subs)
	m.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(ctx, in)
	}
}
