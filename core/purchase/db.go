package purchase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("purchase not found")

func Create(ctx context.Context, db sqlx.ExtContext, p Purchase) error {
	const q = `
	INSERT INTO purchases (purchase_id, user_id, course_id, provider_id, amount, status, created_at, updated_at)
	VALUES (:purchase_id, :user_id, :course_id, :provider_id, :amount, :status, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, p); err != nil {
		return fmt.Errorf("inserting purchase[%s]: %w", p.ID, err)
	}

	return nil
}

func Fetch(ctx context.Context, db *sqlx.DB, id string) (Purchase, error) {
	const q = `SELECT * FROM purchases WHERE purchase_id = $1`

	var p Purchase
	if err := db.GetContext(ctx, &p, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, fmt.Errorf("fetching purchase[%s]: %w", id, err)
	}

	return p, nil
}

func FetchByProviderID(ctx context.Context, db *sqlx.DB, providerID string) (Purchase, error) {
	const q = `SELECT * FROM purchases WHERE provider_id = $1`

	var p Purchase
	if err := db.GetContext(ctx, &p, q, providerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Purchase{}, ErrNotFound
		}
		return Purchase{}, fmt.Errorf("fetching purchase bound to payment[%s]: %w", providerID, err)
	}

	return p, nil
}

func UpdateProviderID(ctx context.Context, db sqlx.ExtContext, id string, providerID string) error {
	const q = `UPDATE purchases SET provider_id = $2 WHERE purchase_id = $1`

	if _, err := db.ExecContext(ctx, q, id, providerID); err != nil {
		return fmt.Errorf("binding purchase[%s] to payment[%s]: %w", id, providerID, err)
	}

	return nil
}

// UpdateStatus moves a purchase out of pending. The status guard keeps
// terminal states terminal: once completed or failed, redelivered or stale
// events match zero rows and change nothing.
func UpdateStatus(ctx context.Context, db sqlx.ExtContext, up StatusUp) error {
	const q = `
	UPDATE purchases SET
		status = :status,
		updated_at = :updated_at
	WHERE purchase_id = :purchase_id AND status = 'pending'`

	if _, err := sqlx.NamedExecContext(ctx, db, q, up); err != nil {
		return fmt.Errorf("updating status of purchase[%s]: %w", up.ID, err)
	}

	return nil
}
