// Package chatgw is the outbound adapter for the chat platform gateway. The
// gateway itself is a separate process; ticket creation goes over NATS
// request/reply because the caller needs the channel id back, everything else
// is published to the work-queue stream.
package chatgw

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
	"vcc-fulfillment/common"
	"vcc-fulfillment/common/constant"
	"vcc-fulfillment/model"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

type Gateway interface {
	CreateTicket(ctx context.Context, orderNumber, content string) (string, error)
	SendMessage(ctx context.Context, channelId, content string, fields map[string]string) error
	DeleteChannel(ctx context.Context, channelId string, delay time.Duration) error
	DisableControls(ctx context.Context, channelId string) error
}

type NatsGateway struct {
	Conn      *nats.Conn
	Publisher jetstream.Publisher

	RequestTimeout time.Duration
}

func NewNatsGateway(conn *nats.Conn, publisher jetstream.Publisher, requestTimeout time.Duration) *NatsGateway {
	return &NatsGateway{
		Conn:           conn,
		Publisher:      publisher,
		RequestTimeout: requestTimeout,
	}
}

func (g *NatsGateway) CreateTicket(ctx context.Context, orderNumber, content string) (string, error) {
	req := model.CreateTicketChatRequest{
		OrderNumber: orderNumber,
		Content:     content,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.RequestTimeout)
	defer cancel()

	msg, err := g.Conn.RequestWithContext(ctx, constant.SubjectChatCreateTicket, payload)
	if err != nil {
		return "", fmt.Errorf("create ticket request: %w", err)
	}

	var reply model.CreateTicketChatReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", fmt.Errorf("create ticket reply: %w", err)
	}

	if reply.Error != "" {
		return "", fmt.Errorf("create ticket rejected: %s", reply.Error)
	}

	if reply.ChannelId == "" {
		return "", fmt.Errorf("create ticket reply missing channel id")
	}

	return reply.ChannelId, nil
}

func (g *NatsGateway) SendMessage(ctx context.Context, channelId, content string, fields map[string]string) error {
	return common.PublishMessage(ctx, g.Publisher, constant.SubjectChatSendMessage, model.SendMessageChatRequest{
		ChannelId: channelId,
		Content:   content,
		Fields:    fields,
	})
}

func (g *NatsGateway) DeleteChannel(ctx context.Context, channelId string, delay time.Duration) error {
	return common.PublishMessage(ctx, g.Publisher, constant.SubjectChatDeleteChannel, model.DeleteChannelChatRequest{
		ChannelId:  channelId,
		DelayMilli: delay.Milliseconds(),
	})
}

func (g *NatsGateway) DisableControls(ctx context.Context, channelId string) error {
	return common.PublishMessage(ctx, g.Publisher, constant.SubjectChatDisableControls, model.DisableControlsChatRequest{
		ChannelId: channelId,
	})
}
