package cmd

import (
	"context"
	"log"
	"log/slog"
	"time"
	"vcc-fulfillment/common/constant"
	commonJetstream "vcc-fulfillment/common/jetstream"
	"vcc-fulfillment/inbound/event"
	"vcc-fulfillment/outbound/postgres"

	"github.com/nats-io/nats.go/jetstream"
)

func runQueueOrderCmd(ctx context.Context) {
	cfg := newCfg("env")

	db := newDb(cfg)
	defer db.Close()

	natsConn := newNats(cfg)
	defer natsConn.Close()

	js := newJs(natsConn)
	commonJetstream.CreateQueueStream(ctx, js)

	st, err := js.Stream(ctx, constant.QueueStreamName)
	if err != nil {
		log.Fatalln("failed to get stream", err)
	}

	orderEvent := event.OrderEvent{
		Repo:    postgres.New(db),
		Timeout: cfg.GetDuration("queue.order.timeout"),
	}

	cons, err := st.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       "consumer:order",
		FilterSubject: constant.OrderWildcard,
		MaxDeliver:    cfg.GetInt("queue.order.max_deliver"),
		AckWait:       cfg.GetDuration("queue.order.ack_wait"),
	})
	if err != nil {
		log.Fatalln("failed to create consumer", err)
	}

	iter, err := cons.Messages()
	if err != nil {
		panic(err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := iter.Next()
				if err != nil && err != jetstream.ErrMsgIteratorClosed {
					slog.ErrorContext(ctx, "Error fetching message", slog.Any(constant.LogFieldErr, err))
					continue
				}

				if msg == nil {
					continue
				}

				var eventErr error
				switch msg.Subject() {
				case constant.SubjectPaymentVerified:
					eventErr = orderEvent.PaymentVerifiedHandler(ctx, msg.Data())
				case constant.SubjectOrderProcessing:
					eventErr = orderEvent.ProcessingHandler(ctx, msg.Data())
				}

				if eventErr != nil {
					msg.NakWithDelay(1 * time.Second)
					continue
				}

				if err := msg.Ack(); err != nil {
					slog.ErrorContext(ctx, "Error acknowledging message",
						slog.Any(constant.LogFieldErr, err),
						slog.Any(constant.LogFieldPayload, string(msg.Data())),
						slog.String("subject", msg.Subject()),
					)
					continue
				}
			}
		}
	}()

	slog.InfoContext(ctx, "order queue consumer started")

	<-ctx.Done()

	iter.Stop()

	slog.InfoContext(ctx, "order queue consumer stopped")
}
