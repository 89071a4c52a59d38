package pipeline

import (
	"fmt"
	"sync"
)

type node struct {
	name    string
	handler Handler
}

// Pipeline is an ordered, named chain of [Handler]s.
//
// Mutations (AddFirst/AddLast/AddBefore/AddAfter/Remove) are serialized
// on an internal lock, but traversal never holds that lock: each
// dispatch takes a snapshot of the chain under the lock and then walks
// the snapshot unlocked, so that a handler added or removed mid-flight
// never reorders or re-delivers events already in flight to other
// handlers (spec §9: "Pipeline mutation during traversal" — treat the
// chain as copy-on-write).
type Pipeline struct {
	mu    sync.Mutex
	nodes []*node

	// Connection is handed to every Context so handlers can reach the
	// owning connection. Its concrete type is up to the owner.
	Connection any
}

// New returns an empty Pipeline associated with the given connection
// value (opaque to this package; typically the owning *dbus.Conn).
func New(connection any) *Pipeline {
	return &Pipeline{Connection: connection}
}

func (p *Pipeline) snapshot() []*node {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*node(nil), p.nodes...)
}

func (p *Pipeline) indexOf(nodes []*node, name string) int {
	for i, n := range nodes {
		if n.name == name {
			return i
		}
	}
	return -1
}

// AddFirst inserts handler at the head of the pipeline (closest to the
// transport).
func (p *Pipeline) AddFirst(name string, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexOf(p.nodes, name) >= 0 {
		return fmt.Errorf("pipeline: handler %q already present", name)
	}
	n := &node{name, h}
	p.nodes = append([]*node{n}, p.nodes...)
	p.fireAdded(n)
	return nil
}

// AddLast inserts handler at the tail of the pipeline (the fallback).
func (p *Pipeline) AddLast(name string, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.indexOf(p.nodes, name) >= 0 {
		return fmt.Errorf("pipeline: handler %q already present", name)
	}
	n := &node{name, h}
	p.nodes = append(p.nodes, n)
	p.fireAdded(n)
	return nil
}

// AddBefore inserts handler immediately before the handler named
// existing.
func (p *Pipeline) AddBefore(existing, name string, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.indexOf(p.nodes, existing)
	if idx < 0 {
		return fmt.Errorf("pipeline: handler %q not found", existing)
	}
	if p.indexOf(p.nodes, name) >= 0 {
		return fmt.Errorf("pipeline: handler %q already present", name)
	}
	n := &node{name, h}
	nodes := make([]*node, 0, len(p.nodes)+1)
	nodes = append(nodes, p.nodes[:idx]...)
	nodes = append(nodes, n)
	nodes = append(nodes, p.nodes[idx:]...)
	p.nodes = nodes
	p.fireAdded(n)
	return nil
}

// AddAfter inserts handler immediately after the handler named existing.
func (p *Pipeline) AddAfter(existing, name string, h Handler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.indexOf(p.nodes, existing)
	if idx < 0 {
		return fmt.Errorf("pipeline: handler %q not found", existing)
	}
	if p.indexOf(p.nodes, name) >= 0 {
		return fmt.Errorf("pipeline: handler %q already present", name)
	}
	n := &node{name, h}
	nodes := make([]*node, 0, len(p.nodes)+1)
	nodes = append(nodes, p.nodes[:idx+1]...)
	nodes = append(nodes, n)
	nodes = append(nodes, p.nodes[idx+1:]...)
	p.nodes = nodes
	p.fireAdded(n)
	return nil
}

// Remove removes the named handler from the pipeline.
func (p *Pipeline) Remove(name string) error {
	p.mu.Lock()
	idx := p.indexOf(p.nodes, name)
	if idx < 0 {
		p.mu.Unlock()
		return fmt.Errorf("pipeline: handler %q not found", name)
	}
	n := p.nodes[idx]
	p.nodes = append(append([]*node(nil), p.nodes[:idx]...), p.nodes[idx+1:]...)
	p.mu.Unlock()
	n.handler.OnHandlerRemoved(&Context{pipeline: p, nodes: nil, idx: 0, Connection: p.Connection, Name: name})
	return nil
}

func (p *Pipeline) fireAdded(n *node) {
	n.handler.OnHandlerAdded(&Context{pipeline: p, nodes: nil, idx: 0, Connection: p.Connection, Name: n.name})
}

// Names returns the handler names in head-to-tail order, for inspection
// and tests.
func (p *Pipeline) Names() []string {
	nodes := p.snapshot()
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.name
	}
	return names
}

// DispatchInbound delivers msg to the first handler in the snapshot.
func (p *Pipeline) DispatchInbound(msg any) {
	nodes := p.snapshot()
	if len(nodes) == 0 {
		return
	}
	ctx := &Context{pipeline: p, nodes: nodes, idx: 0, Connection: p.Connection, Name: nodes[0].name}
	nodes[0].handler.OnInboundMessage(ctx, msg)
}

// DispatchInboundFailure delivers cause to the first handler in the
// snapshot.
func (p *Pipeline) DispatchInboundFailure(cause error) {
	nodes := p.snapshot()
	if len(nodes) == 0 {
		return
	}
	ctx := &Context{pipeline: p, nodes: nodes, idx: 0, Connection: p.Connection, Name: nodes[0].name}
	nodes[0].handler.OnInboundFailure(ctx, cause)
}

// DispatchOutbound delivers msg to the last handler in the snapshot
// (outbound messages travel tail→head).
func (p *Pipeline) DispatchOutbound(msg any, completion *Completion) {
	nodes := p.snapshot()
	if len(nodes) == 0 {
		completion.Resolve(fmt.Errorf("pipeline: empty pipeline, nothing to write to"))
		return
	}
	last := len(nodes) - 1
	ctx := &Context{pipeline: p, nodes: nodes, idx: last, Connection: p.Connection, Name: nodes[last].name}
	nodes[last].handler.OnOutboundMessage(ctx, msg, completion)
}

// DispatchConnectionActive notifies every handler that the connection is
// now READY, head to tail.
func (p *Pipeline) DispatchConnectionActive() {
	nodes := p.snapshot()
	if len(nodes) == 0 {
		return
	}
	ctx := &Context{pipeline: p, nodes: nodes, idx: 0, Connection: p.Connection, Name: nodes[0].name}
	nodes[0].handler.OnConnectionActive(ctx)
}

// DispatchConnectionInactive notifies every handler that the connection
// is no longer usable, head to tail.
func (p *Pipeline) DispatchConnectionInactive() {
	nodes := p.snapshot()
	if len(nodes) == 0 {
		return
	}
	ctx := &Context{pipeline: p, nodes: nodes, idx: 0, Connection: p.Connection, Name: nodes[0].name}
	nodes[0].handler.OnConnectionInactive(ctx)
}

// DispatchUserEvent delivers evt to every handler, head to tail.
func (p *Pipeline) DispatchUserEvent(evt any) {
	nodes := p.snapshot()
	if len(nodes) == 0 {
		return
	}
	ctx := &Context{pipeline: p, nodes: nodes, idx: 0, Connection: p.Connection, Name: nodes[0].name}
	nodes[0].handler.OnUserEvent(ctx, evt)
}
