package dbus

import (
	"testing"

	"github.com/lindenhall/dbusconn/pipeline"
)

type completingCommitter struct {
	pipeline.Base
	sent []any
}

func (c *completingCommitter) OnOutboundMessage(ctx *pipeline.Context, msg any, completion *pipeline.Completion) {
	c.sent = append(c.sent, msg)
	completion.Resolve(nil)
}

func newConnForTailTest(committer *completingCommitter) *Conn {
	c := &Conn{}
	p := pipeline.New(c)
	if err := p.AddFirst("head", committer); err != nil {
		panic(err)
	}
	if err := p.AddLast("tail", tailHandler{}); err != nil {
		panic(err)
	}
	c.pipe = p
	return c
}

func TestTailHandlerRepliesFailedToUnhandledCall(t *testing.T) {
	committer := &completingCommitter{}
	c := newConnForTailTest(committer)

	c.pipe.DispatchInbound(&Message{
		Type:   MsgCall,
		Serial: 7,
		Path:   "/org/example/Obj",
		Member: "DoStuff",
		Flags:  0, // wants a reply
		Sender: ":1.9",
	})

	if len(committer.sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1", len(committer.sent))
	}
	reply, ok := committer.sent[0].(*Message)
	if !ok {
		t.Fatalf("sent[0] is %T, want *Message", committer.sent[0])
	}
	if reply.Type != MsgError || reply.ErrorName != ErrFailed || reply.ReplySerial != 7 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestTailHandlerIgnoresCallWithNoReplyExpected(t *testing.T) {
	committer := &completingCommitter{}
	c := newConnForTailTest(committer)

	c.pipe.DispatchInbound(&Message{
		Type:   MsgCall,
		Serial: 8,
		Path:   "/org/example/Obj",
		Member: "DoStuff",
		Flags:  FlagNoReplyExpected,
	})

	if len(committer.sent) != 0 {
		t.Errorf("len(sent) = %d, want 0 for a no-reply-expected call", len(committer.sent))
	}
}

func TestTailHandlerDiscardsUnmatchedSignal(t *testing.T) {
	committer := &completingCommitter{}
	c := newConnForTailTest(committer)

	c.pipe.DispatchInbound(&Message{
		Type:      MsgSignal,
		Serial:    9,
		Path:      "/org/example/Obj",
		Interface: "org.example.Iface",
		Member:    "Changed",
	})

	if len(committer.sent) != 0 {
		t.Errorf("len(sent) = %d, want 0 for a signal", len(committer.sent))
	}
}
