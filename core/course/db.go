package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("course not found")

func Create(ctx context.Context, db sqlx.ExtContext, crs Course) error {
	const q = `
	INSERT INTO courses (course_id, educator_id, title, description, thumbnail_url, price, created_at, updated_at)
	VALUES (:course_id, :educator_id, :title, :description, :thumbnail_url, :price, :created_at, :updated_at)`

	if _, err := sqlx.NamedExecContext(ctx, db, q, crs); err != nil {
		return fmt.Errorf("inserting course[%s]: %w", crs.ID, err)
	}

	return nil
}

func Update(ctx context.Context, db sqlx.ExtContext, crs Course) error {
	const q = `
	UPDATE courses SET
		title = :title,
		description = :description,
		thumbnail_url = :thumbnail_url,
		price = :price,
		updated_at = :updated_at,
		version = version + 1
	WHERE course_id = :course_id AND version = :version`

	res, err := sqlx.NamedExecContext(ctx, db, q, crs)
	if err != nil {
		return fmt.Errorf("updating course[%s]: %w", crs.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update of course[%s]: %w", crs.ID, err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

func Fetch(ctx context.Context, db *sqlx.DB, id string) (Course, error) {
	const q = `SELECT * FROM courses WHERE course_id = $1`

	var crs Course
	if err := db.GetContext(ctx, &crs, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, ErrNotFound
		}
		return Course{}, fmt.Errorf("fetching course[%s]: %w", id, err)
	}

	return crs, nil
}

func List(ctx context.Context, db *sqlx.DB) ([]Course, error) {
	const q = `SELECT * FROM courses ORDER BY created_at`

	courses := []Course{}
	if err := db.SelectContext(ctx, &courses, q); err != nil {
		return nil, fmt.Errorf("listing courses: %w", err)
	}

	return courses, nil
}

func ListByEducator(ctx context.Context, db *sqlx.DB, educatorID string) ([]Course, error) {
	const q = `SELECT * FROM courses WHERE educator_id = $1 ORDER BY created_at`

	courses := []Course{}
	if err := db.SelectContext(ctx, &courses, q, educatorID); err != nil {
		return nil, fmt.Errorf("listing courses of educator[%s]: %w", educatorID, err)
	}

	return courses, nil
}

// ListEnrolled returns the courses a user is enrolled in.
func ListEnrolled(ctx context.Context, db *sqlx.DB, userID string) ([]Course, error) {
	const q = `
	SELECT c.* FROM courses c
	JOIN enrollments e ON e.course_id = c.course_id
	WHERE e.user_id = $1
	ORDER BY e.created_at`

	courses := []Course{}
	if err := db.SelectContext(ctx, &courses, q, userID); err != nil {
		return nil, fmt.Errorf("listing courses of user[%s]: %w", userID, err)
	}

	return courses, nil
}

// FetchEarnings sums completed purchases across an educator's catalog.
func FetchEarnings(ctx context.Context, db *sqlx.DB, educatorID string) (int, error) {
	const q = `
	SELECT COALESCE(SUM(p.amount), 0) FROM purchases p
	JOIN courses c ON c.course_id = p.course_id
	WHERE c.educator_id = $1 AND p.status = 'completed'`

	var tot int
	if err := db.GetContext(ctx, &tot, q, educatorID); err != nil {
		return 0, fmt.Errorf("summing earnings of educator[%s]: %w", educatorID, err)
	}

	return tot, nil
}

// ListStudentSummaries flattens every enrollment across the educator's
// catalog into (course title, student) pairs.
func ListStudentSummaries(ctx context.Context, db *sqlx.DB, educatorID string) ([]StudentSummary, error) {
	const q = `
	SELECT c.title, u.name, u.image_url FROM enrollments e
	JOIN courses c ON c.course_id = e.course_id
	JOIN users u ON u.user_id = e.user_id
	WHERE c.educator_id = $1
	ORDER BY e.created_at`

	sums := []StudentSummary{}
	if err := db.SelectContext(ctx, &sums, q, educatorID); err != nil {
		return nil, fmt.Errorf("listing students of educator[%s]: %w", educatorID, err)
	}

	return sums, nil
}

// ListEnrollmentRecords reports who bought what and when, from the
// completed purchases on the educator's courses.
func ListEnrollmentRecords(ctx context.Context, db *sqlx.DB, educatorID string) ([]EnrollmentRecord, error) {
	const q = `
	SELECT u.name, u.image_url, c.title, p.updated_at AS purchase_date FROM purchases p
	JOIN courses c ON c.course_id = p.course_id
	JOIN users u ON u.user_id = p.user_id
	WHERE c.educator_id = $1 AND p.status = 'completed'
	ORDER BY p.updated_at`

	recs := []EnrollmentRecord{}
	if err := db.SelectContext(ctx, &recs, q, educatorID); err != nil {
		return nil, fmt.Errorf("listing enrollment records of educator[%s]: %w", educatorID, err)
	}

	return recs, nil
}
