package model

// PaymentVerifiedEventMessage is published by the payment pipeline once a
// deposit has been matched against an order.
type PaymentVerifiedEventMessage struct {
	OrderNumber   string `json:"order_number"`
	UserId        int64  `json:"user_id"`
	AmountCents   int64  `json:"amount_cents"`
	PaymentMethod string `json:"payment_method"`
}

// OrderProcessingEventMessage is published by the delivery automation when it
// picks an order up. The core only passes the status through.
type OrderProcessingEventMessage struct {
	OrderNumber string `json:"order_number"`
}

type CreateTicketChatRequest struct {
	OrderNumber string `json:"order_number"`
	Content     string `json:"content"`
}

type CreateTicketChatReply struct {
	ChannelId string `json:"channel_id"`
	Error     string `json:"error,omitempty"`
}

type SendMessageChatRequest struct {
	ChannelId string            `json:"channel_id"`
	Content   string            `json:"content"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type DeleteChannelChatRequest struct {
	ChannelId  string `json:"channel_id"`
	DelayMilli int64  `json:"delay_ms"`
}

type DisableControlsChatRequest struct {
	ChannelId string `json:"channel_id"`
}
