package domain

// InboundEvent is a chat message as delivered by the transport.
type InboundEvent struct {
	OriginID   int64
	SenderID   int64
	SenderName string
	Text       string
	// ReplyTo is the message this one replies to; empty when it is not a reply.
	ReplyTo SupportRef
}

// IsReply reports whether the event replies to another message.
func (e InboundEvent) IsReply() bool {
	return e.ReplyTo != ""
}

// OutboundMessage is a message the core asks the transport to deliver.
type OutboundMessage struct {
	ChatID int64
	Text   string
	// IntentButton, when set, is rendered as a persistent keyboard button.
	IntentButton string
}
