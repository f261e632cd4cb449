package cron

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"
	chatgwMock "vcc-fulfillment/outbound/chatgw/mocks"
	"vcc-fulfillment/outbound/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var orderColumnNames = []string{
	"order_number", "user_id", "amount_cents", "payment_method", "status",
	"channel_id", "charged", "claimed_by", "card_id", "card_data",
	"completed_at", "created_at", "updated_at",
}

var cardColumnNames = []string{"id", "raw_line", "status", "used_at", "used_by_order", "created_at"}

type TicketCronTestSuite struct {
	suite.Suite

	Cfg *viper.Viper

	Repo    *postgres.Repository
	PgxMock pgxmock.PgxPoolIface

	Chat *chatgwMock.MockGateway
}

func (s *TicketCronTestSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())

	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Repo = postgres.New(pool)

	s.Chat = chatgwMock.NewMockGateway(ctrl)

	s.Cfg = viper.New()
	s.Cfg.Set("ticket.poll.timeout", "20s")
	s.Cfg.Set("ticket.poll.batch_size", 10)

	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func (s *TicketCronTestSuite) TearDownTest() {
	s.PgxMock.Close()
}

func TestTicketCronTestSuite(t *testing.T) {
	suite.Run(t, new(TicketCronTestSuite))
}

func (s *TicketCronTestSuite) newTicketCron(now time.Time) *TicketCron {
	return &TicketCron{
		Cfg:               s.Cfg,
		Repo:              s.Repo,
		Chat:              s.Chat,
		CurrencyFormatter: message.NewPrinter(language.English),
		TimeNow:           func() time.Time { return now },
	}
}

func (s *TicketCronTestSuite) awaitingRows(orderNumbers ...string) *pgxmock.Rows {
	now := time.Now()
	rows := pgxmock.NewRows(orderColumnNames)
	for _, n := range orderNumbers {
		rows.AddRow(n, int64(7), int64(500), "balance", "payment_verified", nil, false, nil, nil, nil, nil, now, now)
	}
	return rows
}

func (s *TicketCronTestSuite) expectAssignCard(orderNumber string, now time.Time) {
	s.PgxMock.ExpectBegin()
	s.PgxMock.ExpectQuery("UPDATE cards SET (.+)").
		WithArgs(orderNumber, now).
		WillReturnRows(pgxmock.NewRows(cardColumnNames).
			AddRow("4111111111111111", "4111111111111111 08/27 123 90210 a@b.com", "used", now, orderNumber, now))
	s.PgxMock.ExpectExec("UPDATE orders SET (.+)").
		WithArgs(orderNumber, "4111111111111111", "4111111111111111 08/27 123 90210 a@b.com", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	s.PgxMock.ExpectCommit()
}

func (s *TicketCronTestSuite) TestCreateTickets() {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Run("no orders awaiting", func() {
		s.PgxMock.ExpectQuery("SELECT (.+) FROM orders").
			WithArgs(int32(10)).
			WillReturnRows(s.awaitingRows())

		s.newTicketCron(now).CreateTickets(context.Background())
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("opens a ticket with a reserved card", func() {
		s.PgxMock.ExpectQuery("SELECT (.+) FROM orders").
			WithArgs(int32(10)).
			WillReturnRows(s.awaitingRows("ORD-1"))

		s.expectAssignCard("ORD-1", now)

		s.Chat.EXPECT().CreateTicket(gomock.Any(), "ORD-1", gomock.Any()).Return("chan-1", nil)

		s.PgxMock.ExpectExec("UPDATE orders").
			WithArgs("ORD-1", "chan-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		s.newTicketCron(now).CreateTickets(context.Background())
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("exhausted pool still opens the ticket", func() {
		s.PgxMock.ExpectQuery("SELECT (.+) FROM orders").
			WithArgs(int32(10)).
			WillReturnRows(s.awaitingRows("ORD-1"))

		s.PgxMock.ExpectBegin()
		s.PgxMock.ExpectQuery("UPDATE cards SET (.+)").
			WithArgs("ORD-1", now).
			WillReturnError(pgx.ErrNoRows)
		s.PgxMock.ExpectRollback()

		s.Chat.EXPECT().CreateTicket(gomock.Any(), "ORD-1", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, content string) (string, error) {
				s.Contains(content, "WARNING: no unused card was available")
				return "chan-1", nil
			})

		s.PgxMock.ExpectExec("UPDATE orders").
			WithArgs("ORD-1", "chan-1").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		s.newTicketCron(now).CreateTickets(context.Background())
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("chat failure leaves the order untouched for the next poll", func() {
		s.PgxMock.ExpectQuery("SELECT (.+) FROM orders").
			WithArgs(int32(10)).
			WillReturnRows(s.awaitingRows("ORD-1"))

		s.expectAssignCard("ORD-1", now)

		s.Chat.EXPECT().CreateTicket(gomock.Any(), "ORD-1", gomock.Any()).
			Return("", fmt.Errorf("chat unavailable"))

		s.newTicketCron(now).CreateTickets(context.Background())
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("one failing order does not block the rest", func() {
		s.PgxMock.ExpectQuery("SELECT (.+) FROM orders").
			WithArgs(int32(10)).
			WillReturnRows(s.awaitingRows("ORD-1", "ORD-2"))

		// ORD-1: allocation fails hard, the order is skipped.
		s.PgxMock.ExpectBegin()
		s.PgxMock.ExpectQuery("UPDATE cards SET (.+)").
			WithArgs("ORD-1", now).
			WillReturnError(fmt.Errorf("database error"))
		s.PgxMock.ExpectRollback()

		// ORD-2: full happy path.
		s.expectAssignCard("ORD-2", now)
		s.Chat.EXPECT().CreateTicket(gomock.Any(), "ORD-2", gomock.Any()).Return("chan-2", nil)
		s.PgxMock.ExpectExec("UPDATE orders").
			WithArgs("ORD-2", "chan-2").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		s.newTicketCron(now).CreateTickets(context.Background())
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("query error is tolerated", func() {
		s.PgxMock.ExpectQuery("SELECT (.+) FROM orders").
			WithArgs(int32(10)).
			WillReturnError(fmt.Errorf("database error"))

		s.newTicketCron(now).CreateTickets(context.Background())
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})
}

func (s *TicketCronTestSuite) TestOpeningMessageContent() {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.PgxMock.ExpectQuery("SELECT (.+) FROM orders").
		WithArgs(int32(10)).
		WillReturnRows(s.awaitingRows("ORD-9"))

	s.expectAssignCard("ORD-9", now)

	s.Chat.EXPECT().CreateTicket(gomock.Any(), "ORD-9", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, content string) (string, error) {
			s.Contains(content, "Order Number: ORD-9")
			s.Contains(content, "Amount: $5.00")
			s.Contains(content, "Payment Method: balance")
			s.Contains(content, "An unused card has been reserved")
			return "chan-9", nil
		})

	s.PgxMock.ExpectExec("UPDATE orders").
		WithArgs("ORD-9", "chan-9").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	s.newTicketCron(now).CreateTickets(context.Background())
	s.NoError(s.PgxMock.ExpectationsWereMet())
}
