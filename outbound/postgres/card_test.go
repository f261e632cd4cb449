package postgres

import (
	"context"
	"log/slog"
	"testing"
	"time"
	"vcc-fulfillment/common/errs"
	"vcc-fulfillment/model"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/suite"
)

var cardColumnNames = []string{"id", "raw_line", "status", "used_at", "used_by_order", "created_at"}

type CardRepositoryTestSuite struct {
	suite.Suite

	PgxMock pgxmock.PgxPoolIface
	Repo    *Repository
}

func (s *CardRepositoryTestSuite) SetupTest() {
	pool, err := pgxmock.NewPool()
	if err != nil {
		s.T().Fatalf("failed to create pgxmock pool: %v", err)
	}

	s.PgxMock = pool
	s.Repo = New(pool)

	slog.SetLogLoggerLevel(slog.LevelDebug)
}

func (s *CardRepositoryTestSuite) TearDownTest() {
	s.PgxMock.Close()
}

func TestCardRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(CardRepositoryTestSuite))
}

func (s *CardRepositoryTestSuite) TestInsertCard() {
	card := model.Card{Id: "4111111111111111", RawLine: "4111111111111111 08/27 123 90210 a@b.com"}

	s.Run("admits a fresh card", func() {
		s.PgxMock.ExpectExec("INSERT INTO cards").
			WithArgs(card.Id, card.RawLine).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		s.NoError(s.Repo.InsertCard(context.Background(), card))
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("same number is rejected even with different trailing fields", func() {
		s.PgxMock.ExpectExec("INSERT INTO cards").
			WithArgs(card.Id, card.RawLine).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))

		s.ErrorIs(s.Repo.InsertCard(context.Background(), card), errs.ErrDuplicateCard)
	})
}

func (s *CardRepositoryTestSuite) TestInsertCardBatch() {
	cards := []model.Card{
		{Id: "4111111111111111", RawLine: "line one"},
		{Id: "5500000000000004", RawLine: "line two"},
	}

	s.Run("commits the whole batch", func() {
		s.PgxMock.ExpectBegin()
		s.PgxMock.ExpectExec("INSERT INTO cards").
			WithArgs(cards[0].Id, cards[0].RawLine).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		s.PgxMock.ExpectExec("INSERT INTO cards").
			WithArgs(cards[1].Id, cards[1].RawLine).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		s.PgxMock.ExpectCommit()

		s.NoError(s.Repo.InsertCardBatch(context.Background(), cards))
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("concurrent admission rolls back every row", func() {
		s.PgxMock.ExpectBegin()
		s.PgxMock.ExpectExec("INSERT INTO cards").
			WithArgs(cards[0].Id, cards[0].RawLine).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		s.PgxMock.ExpectExec("INSERT INTO cards").
			WithArgs(cards[1].Id, cards[1].RawLine).
			WillReturnResult(pgxmock.NewResult("INSERT", 0))
		s.PgxMock.ExpectRollback()

		s.ErrorIs(s.Repo.InsertCardBatch(context.Background(), cards), errs.ErrDuplicateCard)
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})
}

func (s *CardRepositoryTestSuite) TestAssignCardToOrder() {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	s.Run("allocates the oldest card and stamps the order", func() {
		s.PgxMock.ExpectBegin()
		s.PgxMock.ExpectQuery("UPDATE cards SET (.+)").
			WithArgs("ORD-1", now).
			WillReturnRows(pgxmock.NewRows(cardColumnNames).
				AddRow("4111111111111111", "raw line", "used", now, "ORD-1", now))
		s.PgxMock.ExpectExec("UPDATE orders SET (.+)").
			WithArgs("ORD-1", "4111111111111111", "raw line", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		s.PgxMock.ExpectCommit()

		card, err := s.Repo.AssignCardToOrder(context.Background(), "ORD-1", now)
		s.NoError(err)
		s.Equal("4111111111111111", card.Id)
		s.Equal("ORD-1", card.UsedByOrder)
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("empty pool", func() {
		s.PgxMock.ExpectBegin()
		s.PgxMock.ExpectQuery("UPDATE cards SET (.+)").
			WithArgs("ORD-1", now).
			WillReturnError(pgx.ErrNoRows)
		s.PgxMock.ExpectRollback()

		_, err := s.Repo.AssignCardToOrder(context.Background(), "ORD-1", now)
		s.ErrorIs(err, errs.ErrPoolExhausted)
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("unknown order returns the allocation to the pool", func() {
		s.PgxMock.ExpectBegin()
		s.PgxMock.ExpectQuery("UPDATE cards SET (.+)").
			WithArgs("ORD-404", now).
			WillReturnRows(pgxmock.NewRows(cardColumnNames).
				AddRow("4111111111111111", "raw line", "used", now, "ORD-404", now))
		s.PgxMock.ExpectExec("UPDATE orders SET (.+)").
			WithArgs("ORD-404", "4111111111111111", "raw line", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		s.PgxMock.ExpectQuery("SELECT EXISTS (.+)").
			WithArgs("ORD-404").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
		s.PgxMock.ExpectRollback()

		_, err := s.Repo.AssignCardToOrder(context.Background(), "ORD-404", now)
		s.ErrorIs(err, errs.ErrOrderNotFound)
		s.NoError(s.PgxMock.ExpectationsWereMet())
	})

	s.Run("order already has a card", func() {
		s.PgxMock.ExpectBegin()
		s.PgxMock.ExpectQuery("UPDATE cards SET (.+)").
			WithArgs("ORD-1", now).
			WillReturnRows(pgxmock.NewRows(cardColumnNames).
				AddRow("4111111111111111", "raw line", "used", now, "ORD-1", now))
		s.PgxMock.ExpectExec("UPDATE orders SET (.+)").
			WithArgs("ORD-1", "4111111111111111", "raw line", now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		s.PgxMock.ExpectQuery("SELECT EXISTS (.+)").
			WithArgs("ORD-1").
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		s.PgxMock.ExpectRollback()

		_, err := s.Repo.AssignCardToOrder(context.Background(), "ORD-1", now)
		s.ErrorIs(err, errs.ErrCardAssigned)
	})
}

func (s *CardRepositoryTestSuite) TestCountCards() {
	s.PgxMock.ExpectQuery("SELECT (.+) FROM cards").
		WillReturnRows(pgxmock.NewRows([]string{"unused", "used", "total"}).
			AddRow(int64(3), int64(7), int64(10)))

	stats, err := s.Repo.CountCards(context.Background())
	s.NoError(err)
	s.Equal(int64(3), stats.Unused)
	s.Equal(int64(7), stats.Used)
	s.Equal(int64(10), stats.Total)
}

func (s *CardRepositoryTestSuite) TestFilterExistingCardIds() {
	ids := []string{"4111111111111111", "5500000000000004"}

	s.PgxMock.ExpectQuery("SELECT id FROM cards").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("5500000000000004"))

	existing, err := s.Repo.FilterExistingCardIds(context.Background(), ids)
	s.NoError(err)
	s.Len(existing, 1)
	s.Contains(existing, "5500000000000004")
	s.NoError(s.PgxMock.ExpectationsWereMet())
}
