// Package enrollment holds the membership relation between users and courses.
// A single row backs both "courses of this user" and "students of this course",
// so the two views can never disagree.
package enrollment

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type Enrollment struct {
	UserID    string    `json:"userId" db:"user_id"`
	CourseID  string    `json:"courseId" db:"course_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// Create is a checked insert: adding a membership that already exists is a
// no-op, which is what makes redelivered payment events safe.
func Create(ctx context.Context, db sqlx.ExtContext, enr Enrollment) error {
	const q = `
	INSERT INTO enrollments (user_id, course_id, created_at)
	VALUES (:user_id, :course_id, :created_at)
	ON CONFLICT (user_id, course_id) DO NOTHING`

	if _, err := sqlx.NamedExecContext(ctx, db, q, enr); err != nil {
		return fmt.Errorf("enrolling user[%s] in course[%s]: %w", enr.UserID, enr.CourseID, err)
	}

	return nil
}

// Exists reports whether the user is enrolled in the course.
func Exists(ctx context.Context, db *sqlx.DB, userID string, courseID string) (bool, error) {
	const q = `SELECT COUNT(*) FROM enrollments WHERE user_id = $1 AND course_id = $2`

	var n int
	if err := db.GetContext(ctx, &n, q, userID, courseID); err != nil {
		return false, fmt.Errorf("checking enrollment of user[%s] in course[%s]: %w", userID, courseID, err)
	}

	return n > 0, nil
}
