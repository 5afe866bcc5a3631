package course

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/opencampus/backend/api/web"
	"github.com/opencampus/backend/api/weberr"
	"github.com/opencampus/backend/core/claims"
	"github.com/opencampus/backend/core/user"
	"github.com/opencampus/backend/validate"
)

func HandleCreate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var cn CourseNew
		if err := web.Decode(w, r, &cn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(cn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		now := time.Now().UTC()
		crs := Course{
			ID:           validate.GenerateID(),
			EducatorID:   clm.UserID,
			Title:        cn.Title,
			Description:  cn.Description,
			ThumbnailURL: cn.ThumbnailURL,
			Price:        cn.Price,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := Create(ctx, db, crs); err != nil {
			return fmt.Errorf("creating course: %w", err)
		}

		return web.Respond(ctx, w, crs, http.StatusCreated)
	}
}

func HandleUpdate(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		var cu CourseUp
		if err := web.Decode(w, r, &cu); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(cu); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		crs, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		if !claims.IsUser(ctx, crs.EducatorID) {
			return weberr.NotAuthorized(errors.New("course is owned by another educator"))
		}

		if cu.Title != nil {
			crs.Title = *cu.Title
		}
		if cu.Description != nil {
			crs.Description = *cu.Description
		}
		if cu.ThumbnailURL != nil {
			crs.ThumbnailURL = *cu.ThumbnailURL
		}
		if cu.Price != nil {
			crs.Price = *cu.Price
		}
		crs.UpdatedAt = time.Now().UTC()

		if err := Update(ctx, db, crs); err != nil {
			return fmt.Errorf("updating course[%s]: %w", id, err)
		}
		crs.Version++

		return web.Respond(ctx, w, crs, http.StatusOK)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		crs, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, crs, http.StatusOK)
	}
}

func HandleList(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		courses, err := List(ctx, db)
		if err != nil {
			return fmt.Errorf("listing courses: %w", err)
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

func HandleListOwned(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		courses, err := ListByEducator(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing courses of educator[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

func HandleListEnrolled(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		courses, err := ListEnrolled(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing enrolled courses of user[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, courses, http.StatusOK)
	}
}

// HandleListStudents lists the users enrolled in one of the educator's courses.
func HandleListStudents(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "course_id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		crs, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching course[%s]: %w", id, err)
		}

		if !claims.IsUser(ctx, crs.EducatorID) {
			return weberr.NotAuthorized(errors.New("course is owned by another educator"))
		}

		students, err := user.ListByCourse(ctx, db, id)
		if err != nil {
			return fmt.Errorf("listing students of course[%s]: %w", id, err)
		}

		return web.Respond(ctx, w, students, http.StatusOK)
	}
}

func HandleDashboard(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		courses, err := ListByEducator(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing courses of educator[%s]: %w", clm.UserID, err)
		}

		earnings, err := FetchEarnings(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("summing earnings of educator[%s]: %w", clm.UserID, err)
		}

		sums, err := ListStudentSummaries(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing students of educator[%s]: %w", clm.UserID, err)
		}

		dash := Dashboard{
			TotalCourses:  len(courses),
			TotalEarnings: earnings,
			Enrollments:   sums,
		}

		return web.Respond(ctx, w, dash, http.StatusOK)
	}
}

func HandleListEnrollmentRecords(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		recs, err := ListEnrollmentRecords(ctx, db, clm.UserID)
		if err != nil {
			return fmt.Errorf("listing enrollment records of educator[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, recs, http.StatusOK)
	}
}
