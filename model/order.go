package model

import "time"

type OrderStatus string

const (
	OrderStatusPaymentVerified OrderStatus = "payment_verified"
	OrderStatusQueued          OrderStatus = "queued"
	OrderStatusProcessing      OrderStatus = "processing"
	OrderStatusDelivered       OrderStatus = "delivered"
	OrderStatusFailed          OrderStatus = "failed"
)

// Terminal reports whether no further transitions happen from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusFailed
}

type ResolveOutcome string

const (
	ResolveOutcomeSuccess ResolveOutcome = "success"
	ResolveOutcomeFailure ResolveOutcome = "failure"
)

type Order struct {
	OrderNumber   string
	UserId        int64
	AmountCents   int64
	PaymentMethod string
	Status        OrderStatus
	ChannelId     string
	Charged       bool
	ClaimedBy     string
	CardId        string
	CardData      string
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type ClaimTicketRequest struct {
	ClaimedBy string `json:"claimed_by" validate:"required,max=100"`
}

type ResolveOrderRequest struct {
	Outcome ResolveOutcome `json:"outcome" validate:"required,oneof=success failure"`
}

type ResolveOrderResponse struct {
	OrderNumber     string      `json:"order_number"`
	Status          OrderStatus `json:"status"`
	Charged         bool        `json:"charged"`
	AlreadyResolved bool        `json:"already_resolved,omitempty"`
}

type CloseTicketRequest struct {
	Force bool `json:"force"`
}

type CloseTicketResponse struct {
	Closed  bool   `json:"closed"`
	Warning string `json:"warning,omitempty"`
}

type AssignCardResponse struct {
	OrderNumber string `json:"order_number"`
	CardId      string `json:"card_id"`
}
