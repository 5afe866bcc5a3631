package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("user not found")

// Create inserts the user keyed by its directory-assigned id. Redelivered
// create events hit the primary key and become no-ops.
func Create(ctx context.Context, db sqlx.ExtContext, usr User) error {
	const q = `
	INSERT INTO users (user_id, email, name, image_url, created_at, updated_at)
	VALUES (:user_id, :email, :name, :image_url, :created_at, :updated_at)
	ON CONFLICT (user_id) DO NOTHING`

	if _, err := sqlx.NamedExecContext(ctx, db, q, usr); err != nil {
		return fmt.Errorf("inserting user[%s]: %w", usr.ID, err)
	}

	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, up UserUp) error {
	const q = `
	UPDATE users SET
		email = :email,
		name = :name,
		image_url = :image_url,
		updated_at = :updated_at
	WHERE user_id = :user_id`

	res, err := sqlx.NamedExecContext(ctx, db, q, up)
	if err != nil {
		return fmt.Errorf("updating user[%s]: %w", up.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of user[%s]: %w", up.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func Delete(ctx context.Context, db sqlx.ExtContext, id string) error {
	const q = `DELETE FROM users WHERE user_id = $1`

	if _, err := db.ExecContext(ctx, q, id); err != nil {
		return fmt.Errorf("deleting user[%s]: %w", id, err)
	}

	return nil
}

func Fetch(ctx context.Context, db *sqlx.DB, id string) (User, error) {
	const q = `SELECT * FROM users WHERE user_id = $1`

	var usr User
	if err := db.GetContext(ctx, &usr, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("fetching user[%s]: %w", id, err)
	}

	return usr, nil
}

// ListByCourse returns the users enrolled in a course.
func ListByCourse(ctx context.Context, db *sqlx.DB, courseID string) ([]User, error) {
	const q = `
	SELECT u.* FROM users u
	JOIN enrollments e ON e.user_id = u.user_id
	WHERE e.course_id = $1
	ORDER BY e.created_at`

	users := []User{}
	if err := db.SelectContext(ctx, &users, q, courseID); err != nil {
		return nil, fmt.Errorf("listing users enrolled in course[%s]: %w", courseID, err)
	}

	return users, nil
}
