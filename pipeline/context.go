package pipeline

// A Context is handed to a [Handler] on every event. It carries the
// handler's position in the chain snapshot that this event is traveling
// through, plus the propagate helpers used to hand the event to the next
// handler.
//
// Each event picks up a fresh snapshot when it enters the pipeline (see
// [Pipeline.DispatchInbound] and friends), so a Context is only ever
// valid for the single event it was constructed for.
type Context struct {
	pipeline *Pipeline
	nodes    []*node
	idx      int

	// Connection is the opaque value the owning [Pipeline] was
	// constructed with.
	Connection any
	// Name is the name of the handler this Context was handed to.
	Name string
}

// Pipeline returns the owning Pipeline, so a handler can add or remove
// handlers (e.g. a SASL handler removing itself once negotiation
// completes).
func (ctx *Context) Pipeline() *Pipeline { return ctx.pipeline }

// FireInboundMessage propagates msg to the next handler toward the tail,
// or drops it if ctx is already at the tail.
func (ctx *Context) FireInboundMessage(msg any) {
	next := ctx.idx + 1
	if next >= len(ctx.nodes) {
		return
	}
	nctx := &Context{pipeline: ctx.pipeline, nodes: ctx.nodes, idx: next, Connection: ctx.Connection, Name: ctx.nodes[next].name}
	ctx.nodes[next].handler.OnInboundMessage(nctx, msg)
}

// FireInboundFailure propagates cause to the next handler toward the
// tail.
func (ctx *Context) FireInboundFailure(cause error) {
	next := ctx.idx + 1
	if next >= len(ctx.nodes) {
		return
	}
	nctx := &Context{pipeline: ctx.pipeline, nodes: ctx.nodes, idx: next, Connection: ctx.Connection, Name: ctx.nodes[next].name}
	ctx.nodes[next].handler.OnInboundFailure(nctx, cause)
}

// FireOutboundMessage propagates msg to the next handler toward the head
// (outbound traversal runs tail→head). At the head, there is nothing
// left to propagate to; the head handler itself is responsible for
// resolving completion by handing the message to the transport.
func (ctx *Context) FireOutboundMessage(msg any, completion *Completion) {
	prev := ctx.idx - 1
	if prev < 0 {
		completion.Resolve(errHeadOfPipeline)
		return
	}
	nctx := &Context{pipeline: ctx.pipeline, nodes: ctx.nodes, idx: prev, Connection: ctx.Connection, Name: ctx.nodes[prev].name}
	ctx.nodes[prev].handler.OnOutboundMessage(nctx, msg, completion)
}

// FireConnectionActive propagates the READY transition to the next
// handler toward the tail.
func (ctx *Context) FireConnectionActive() {
	next := ctx.idx + 1
	if next >= len(ctx.nodes) {
		return
	}
	nctx := &Context{pipeline: ctx.pipeline, nodes: ctx.nodes, idx: next, Connection: ctx.Connection, Name: ctx.nodes[next].name}
	ctx.nodes[next].handler.OnConnectionActive(nctx)
}

// FireConnectionInactive propagates the disconnect transition to the
// next handler toward the tail.
func (ctx *Context) FireConnectionInactive() {
	next := ctx.idx + 1
	if next >= len(ctx.nodes) {
		return
	}
	nctx := &Context{pipeline: ctx.pipeline, nodes: ctx.nodes, idx: next, Connection: ctx.Connection, Name: ctx.nodes[next].name}
	ctx.nodes[next].handler.OnConnectionInactive(nctx)
}

// FireUserEvent propagates evt to the next handler toward the tail.
func (ctx *Context) FireUserEvent(evt any) {
	next := ctx.idx + 1
	if next >= len(ctx.nodes) {
		return
	}
	nctx := &Context{pipeline: ctx.pipeline, nodes: ctx.nodes, idx: next, Connection: ctx.Connection, Name: ctx.nodes[next].name}
	ctx.nodes[next].handler.OnUserEvent(nctx, evt)
}

var errHeadOfPipeline = errHeadOfPipelineError{}

type errHeadOfPipelineError struct{}

func (errHeadOfPipelineError) Error() string {
	return "pipeline: outbound message reached the head with no handler committing it to the transport"
}
