package dbus

import (
	"log"

	"github.com/lindenhall/dbusconn/pipeline"
)

// tailHandler is the pipeline's fixed fallback handler (spec §4.4).
// Unhandled method calls that expect a reply get a synthesized
// org.freedesktop.DBus.Error.Failed; unhandled returns/errors (ones the
// correlation handler didn't match to a pending request) are logged;
// signals are silently discarded.
type tailHandler struct {
	pipeline.Base
}

func (tailHandler) OnInboundMessage(ctx *pipeline.Context, msg any) {
	m, ok := msg.(*Message)
	if !ok {
		return
	}
	conn, _ := ctx.Connection.(*Conn)

	switch m.Type {
	case MsgCall:
		if !m.WantsReply() {
			return
		}
		if conn == nil {
			return
		}
		reply := &Message{
			Type:        MsgError,
			Serial:      conn.nextSerial(),
			ReplySerial: m.Serial,
			ErrorName:   ErrFailed,
			Destination: m.Sender,
			Body:        []Value{Str("No handler was able to process the request.")},
		}
		conn.sendAndForget(reply)
	case MsgReturn, MsgError:
		log.Printf("dbus: unhandled %s for reply serial %d", m.Type, m.ReplySerial)
	case MsgSignal:
		// Discarded: no subscriber claimed it.
	}
}
