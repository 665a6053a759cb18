package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/live-auction/internal/model"
)

// UserRepo provides persistence for bidders.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return strings.Contains(err.Error(), "1062")
}

// Create inserts a user and returns it with the generated ID.  Emails are
// normalised to lower case; a duplicate yields ErrEmailExists.
func (r *UserRepo) Create(ctx context.Context, name, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (name, email) VALUES (?,?)",
		strings.TrimSpace(name), email)
	if err != nil {
		if isDuplicate(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByEmail fetches a user by normalised email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,email,created_at FROM users WHERE email=? LIMIT 1",
		email).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,name,email,created_at FROM users WHERE id=? LIMIT 1",
		id).Scan(&u.ID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// List returns all users with their bid count and the number of auctions
// they are recorded as winner of.
func (r *UserRepo) List(ctx context.Context) ([]model.UserListItem, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT u.id, u.name, u.email, u.created_at,
		       (SELECT COUNT(*) FROM bids b WHERE b.user_id = u.id),
		       (SELECT COUNT(*) FROM auctions a WHERE a.winner_id = u.id)
		FROM users u
		ORDER BY u.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.UserListItem{}
	for rows.Next() {
		var it model.UserListItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Email, &it.CreatedAt, &it.BidCount, &it.WonCount); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Profile returns a user with their last `recent` bids and every auction
// they currently lead or have won.
func (r *UserRepo) Profile(ctx context.Context, id uint64, recent int) (model.UserProfile, error) {
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return model.UserProfile{}, err
	}
	p := model.UserProfile{User: u}

	p.RecentBids, err = NewBidRepo(r.DB).RecentByUser(ctx, id, recent)
	if err != nil {
		return model.UserProfile{}, err
	}

	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE winner_id = ? ORDER BY end_time DESC`, id)
	if err != nil {
		return model.UserProfile{}, err
	}
	defer rows.Close()
	p.WonAuctions = []model.Auction{}
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return model.UserProfile{}, err
		}
		p.WonAuctions = append(p.WonAuctions, a)
	}
	return p, rows.Err()
}
