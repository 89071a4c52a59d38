package dbus

import (
	"log"
	"sync"
	"time"

	"github.com/creachadair/mds/mapset"
	"github.com/lindenhall/dbusconn/pipeline"
)

// pendingReply is one outstanding sendRequest, from registration until
// it reaches a terminal state (spec §3.3, §4.5).
type pendingReply struct {
	serial uint32
	replyC chan *Message
	timer  *time.Timer

	mu   sync.Mutex
	done bool
}

// resolve completes the pending reply by delivering msg as is; turning
// an ERROR reply into an error is left to the waiting caller. It is a no-op if the reply already reached a
// terminal state (timeout, cancel, or an earlier resolve), matching
// spec §4.5: "a late matching reply arriving afterwards is logged and
// dropped".
func (p *pendingReply) resolve(msg *Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return false
	}
	p.done = true
	p.timer.Stop()
	p.replyC <- msg
	close(p.replyC)
	return true
}

// cancel marks the pending reply terminal without delivering anything,
// for explicit user cancellation and for bulk disconnect resolution
// (the caller is responsible for delivering its own error to whoever is
// waiting).
func (p *pendingReply) cancel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return false
	}
	p.done = true
	p.timer.Stop()
	close(p.replyC)
	return true
}

// pendingTable is the serial→pendingReply map described in spec §4.5.
// It is mutated from several goroutines (callers registering requests,
// reply timers removing them, the read loop resolving them, Close
// draining them), so every access goes through mu. active
// mirrors entries' values as a bookkeeping set so Close and metrics can
// enumerate outstanding calls without walking the map, the same
// separation the teacher keeps between its watcher map and watcher set.
type pendingTable struct {
	mu      sync.Mutex
	entries map[uint32]*pendingReply
	active  mapset.Set[*pendingReply]
}

func newPendingTable() *pendingTable {
	return &pendingTable{
		entries: map[uint32]*pendingReply{},
		active:  mapset.New[*pendingReply](),
	}
}

// register creates and arms a pendingReply for serial with deadline d,
// running from the moment of registration (spec §4.5: "Each pending
// reply has a deadline ... default 30s"). The timer and map insertion
// happen atomically with respect to resolve/cancel so a reply racing
// the timer can never observe a nil timer.
func (t *pendingTable) register(serial uint32, d time.Duration) *pendingReply {
	p := &pendingReply{
		serial: serial,
		replyC: make(chan *Message, 1),
	}
	p.timer = time.AfterFunc(d, func() {
		t.remove(serial)
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.done {
			return
		}
		p.done = true
		p.replyC <- errorMessage(newCallError(ErrTimeout, "method call timed out", nil))
		close(p.replyC)
	})
	t.mu.Lock()
	t.entries[serial] = p
	t.active.Add(p)
	t.mu.Unlock()
	return p
}

func (t *pendingTable) lookup(serial uint32) (*pendingReply, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.entries[serial]
	return p, ok
}

func (t *pendingTable) remove(serial uint32) {
	t.mu.Lock()
	if p, ok := t.entries[serial]; ok {
		delete(t.entries, serial)
		t.active.Remove(p)
	}
	t.mu.Unlock()
}

// cancelOne cancels and removes the pending reply for serial, if any,
// reporting whether one was found.
func (t *pendingTable) cancelOne(serial uint32) bool {
	t.mu.Lock()
	p, ok := t.entries[serial]
	if ok {
		delete(t.entries, serial)
		t.active.Remove(p)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	return p.cancel()
}

// drain removes every pending entry and resolves each with err, for
// disconnect handling (spec §4.5 "Disconnect").
func (t *pendingTable) drain(err error) {
	t.mu.Lock()
	var pending []*pendingReply
	for p := range t.active {
		pending = append(pending, p)
	}
	t.entries = map[uint32]*pendingReply{}
	t.active = mapset.New[*pendingReply]()
	t.mu.Unlock()
	for _, p := range pending {
		p.mu.Lock()
		if !p.done {
			p.done = true
			p.timer.Stop()
			p.replyC <- errorMessage(err)
			close(p.replyC)
		}
		p.mu.Unlock()
	}
}

// len reports the number of outstanding pending replies, for metrics.
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// errorMessage wraps a local Go error into a synthetic ERROR Message so
// pendingReply.replyC has a single channel type regardless of whether
// the failure came from the wire or from this library.
func errorMessage(err error) *Message {
	name := ErrFailed
	if ce, ok := err.(*CallError); ok {
		name = ce.Name
	}
	return &Message{
		Type:      MsgError,
		ErrorName: name,
		Body:      []Value{Str(err.Error())},
	}
}

// correlationHandler is the automatically installed handler that
// intercepts inbound METHOD_RETURN/ERROR messages matching a pending
// serial (spec §4.5). It is installed just before the tail handler.
type correlationHandler struct {
	pipeline.Base
	pending *pendingTable
}

func (h *correlationHandler) OnInboundMessage(ctx *pipeline.Context, msg any) {
	m, ok := msg.(*Message)
	if !ok || (m.Type != MsgReturn && m.Type != MsgError) || m.ReplySerial == 0 {
		ctx.FireInboundMessage(msg)
		return
	}
	p, ok := h.pending.lookup(m.ReplySerial)
	if !ok {
		ctx.FireInboundMessage(msg)
		return
	}
	h.pending.remove(m.ReplySerial)
	if !p.resolve(m) {
		log.Printf("dbus: late reply for serial %d arrived after it was already resolved; dropping", m.ReplySerial)
	}
	// Matched replies are swallowed here; they do not propagate further.
}
