package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"enerkpi.org/internal/auth"
)

var _ auth.UserStore = (*UserStore)(nil)

// UserStore implements auth.UserStore on PostgreSQL.
type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore { return &UserStore{db: db} }

const userColumns = `id, full_name, email, password_hash, role, active, phone, department, function, reset_token, reset_token_expiry, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(`+userColumns+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,nullif($10,''),$11,$12,$13)
	`, u.ID, u.FullName, u.Email, u.PasswordHash, u.Role, u.Active, u.Phone,
		u.Department, u.Function, u.ResetToken, u.ResetTokenExpiry, u.CreatedAt, u.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return auth.ErrAlreadyExists
	}
	return err
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where lower(email)=lower($1)`, email)
	return scanUser(row)
}

func (s *UserStore) FindByResetToken(ctx context.Context, token string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where reset_token=$1`, token)
	return scanUser(row)
}

func (s *UserStore) List(ctx context.Context) ([]*auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `select `+userColumns+` from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *UserStore) Update(ctx context.Context, u *auth.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users set
			full_name=$2, email=$3, password_hash=$4, role=$5, active=$6,
			phone=$7, department=$8, function=$9,
			reset_token=nullif($10,''), reset_token_expiry=$11, updated_at=$12
		where id=$1
	`, u.ID, u.FullName, u.Email, u.PasswordHash, u.Role, u.Active,
		u.Phone, u.Department, u.Function, u.ResetToken, u.ResetTokenExpiry, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return auth.ErrAlreadyExists
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u           auth.User
		resetToken  sql.NullString
		resetExpiry sql.NullTime
	)
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Role, &u.Active,
		&u.Phone, &u.Department, &u.Function, &resetToken, &resetExpiry, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if resetToken.Valid {
		u.ResetToken = resetToken.String
	}
	if resetExpiry.Valid {
		t := resetExpiry.Time
		u.ResetTokenExpiry = &t
	}
	return &u, nil
}
