package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserCreate_DuplicateEmail(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO users").
		WithArgs("Ann", "ann@example.com").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})

	_, err := NewUserRepo(db).Create(context.Background(), " Ann ", "ANN@example.com ")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestUserCreate_ReturnsRow(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectExec("INSERT INTO users").
		WithArgs("Ann", "ann@example.com").
		WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery("SELECT id,name,email,created_at FROM users WHERE id=?").
		WithArgs(uint64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at"}).
			AddRow(5, "Ann", "ann@example.com", now))

	u, err := NewUserRepo(db).Create(context.Background(), "Ann", "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), u.ID)
	assert.Equal(t, "Ann", u.Name)
}

func TestUserGetByID_NotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT id,name,email,created_at FROM users WHERE id=?").
		WithArgs(uint64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at"}))

	_, err := NewUserRepo(db).GetByID(context.Background(), 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUserList_Counts(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT u.id, u.name, u.email, u.created_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email", "created_at", "bids", "won"}).
			AddRow(1, "Ann", "ann@example.com", now, 4, 1).
			AddRow(2, "Bob", "bob@example.com", now, 0, 0))

	list, err := NewUserRepo(db).List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(4), list[0].BidCount)
	assert.Equal(t, int64(1), list[0].WonCount)
	assert.Equal(t, "Bob", list[1].Name)
}

func TestBidTopByAuction_Limit(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT b.id, b.auction_id, b.user_id, b.bid_amount, b.created_at, u.name .* LIMIT ?").
		WithArgs(uint64(1), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "auction_id", "user_id", "bid_amount", "created_at", "name"}).
			AddRow(9, 1, 2, 300.0, now, "Bob"))

	bids, err := NewBidRepo(db).TopByAuction(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, 300.0, bids[0].BidAmount)
	assert.Equal(t, "Bob", bids[0].UserName)
}
