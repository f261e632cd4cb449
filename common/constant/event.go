package constant

const (
	QueueStreamName = "vcc_fulfillment_queue_stream"
)

const (
	AllWildcard   = "events.>"
	OrderWildcard = "events.order.>"
	ChatWildcard  = "events.chat.>"

	SubjectPaymentVerified = "events.order.payment_verified"
	SubjectOrderProcessing = "events.order.processing"

	SubjectChatSendMessage     = "events.chat.send_message"
	SubjectChatDeleteChannel   = "events.chat.delete_channel"
	SubjectChatDisableControls = "events.chat.disable_controls"

	// SubjectChatCreateTicket is a plain NATS request/reply subject, not part
	// of the work-queue stream, because ticket creation needs the channel id
	// back.
	SubjectChatCreateTicket = "chat.ticket.create"
)
