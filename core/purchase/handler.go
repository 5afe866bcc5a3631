package purchase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"

	"github.com/opencampus/backend/api/web"
	"github.com/opencampus/backend/api/weberr"
	"github.com/opencampus/backend/config"
	"github.com/opencampus/backend/core/claims"
	"github.com/opencampus/backend/core/course"
	"github.com/opencampus/backend/core/enrollment"
	"github.com/opencampus/backend/validate"
)

// checkout validates the course being bought and rejects double enrollment
// before any money moves.
func checkout(ctx context.Context, db *sqlx.DB, userID string, courseID string) (course.Course, error) {
	crs, err := course.Fetch(ctx, db, courseID)
	if err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return course.Course{}, weberr.NotFound(err)
		}
		return course.Course{}, fmt.Errorf("fetching course[%s]: %w", courseID, err)
	}

	enrolled, err := enrollment.Exists(ctx, db, userID, courseID)
	if err != nil {
		return course.Course{}, fmt.Errorf("checking enrollment: %w", err)
	}
	if enrolled {
		err := errors.New("user is already enrolled in this course")
		return course.Course{}, weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
	}

	return crs, nil
}

func HandleStripeCheckout(db *sqlx.DB, strp *stripecl.API, cfg config.Stripe) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var pn PurchaseNew
		if err := web.Decode(w, r, &pn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(pn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		crs, err := checkout(ctx, db, clm.UserID, pn.CourseID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		p := Purchase{
			ID:        validate.GenerateID(),
			UserID:    clm.UserID,
			CourseID:  crs.ID,
			Amount:    crs.Price,
			Status:    Pending,
			CreatedAt: now,
			UpdatedAt: now,
		}

		// The purchase row must exist before the session carries its id,
		// or a fast webhook could race the insert.
		if err := Create(ctx, db, p); err != nil {
			return fmt.Errorf("creating the purchase on the database: %w", err)
		}

		params := &stripe.CheckoutSessionParams{
			SuccessURL: stripe.String(cfg.SuccessURL),
			CancelURL:  stripe.String(cfg.CancelURL),
			Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),

			LineItems: []*stripe.CheckoutSessionLineItemParams{{
				Quantity: stripe.Int64(1),

				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:    stripe.String("usd"),
					TaxBehavior: stripe.String("inclusive"),
					UnitAmount:  stripe.Int64(int64(crs.Price) * 100),

					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(crs.Title),
						Description: stripe.String(crs.Description),
					},
				},
			}},
		}
		params.Context = ctx
		params.AddMetadata("purchaseId", p.ID)

		s, err := strp.CheckoutSessions.New(params)
		if err != nil {
			return fmt.Errorf("creating stripe session: %w", err)
		}

		if err := UpdateProviderID(ctx, db, p.ID, s.ID); err != nil {
			return fmt.Errorf("binding the purchase to its session: %w", err)
		}

		return web.Respond(ctx, w, s.URL, http.StatusOK)
	}
}

func HandlePaypalCheckout(db *sqlx.DB, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		var pn PurchaseNew
		if err := web.Decode(w, r, &pn); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode payload: %w", err))
		}

		if err := validate.Check(pn); err != nil {
			return weberr.NewError(err, err.Error(), http.StatusUnprocessableEntity)
		}

		crs, err := checkout(ctx, db, clm.UserID, pn.CourseID)
		if err != nil {
			return err
		}

		units := []paypal.PurchaseUnitRequest{{
			Items: []paypal.Item{{
				Quantity:    "1",
				Name:        crs.Title,
				Description: crs.Description,

				UnitAmount: &paypal.Money{
					Currency: "USD",
					Value:    strconv.Itoa(crs.Price),
				},
			}},

			Amount: &paypal.PurchaseUnitAmount{
				Currency: "USD",
				Value:    strconv.Itoa(crs.Price),

				Breakdown: &paypal.PurchaseUnitAmountBreakdown{ItemTotal: &paypal.Money{
					Currency: "USD",
					Value:    strconv.Itoa(crs.Price),
				}},
			},
		}}

		ord, err := pp.CreateOrder(ctx, "CAPTURE", units, nil, &paypal.ApplicationContext{})
		if err != nil {
			return fmt.Errorf("creating paypal order: %w", err)
		}

		now := time.Now().UTC()
		p := Purchase{
			ID:         validate.GenerateID(),
			UserID:     clm.UserID,
			CourseID:   crs.ID,
			ProviderID: ord.ID,
			Amount:     crs.Price,
			Status:     Pending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}

		if err := Create(ctx, db, p); err != nil {
			return fmt.Errorf("creating the purchase bound to payment[%s]: %w", ord.ID, err)
		}

		return web.Respond(ctx, w, ord, http.StatusOK)
	}
}

func HandlePaypalCapture(db *sqlx.DB, pp *paypal.Client) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		providerID := web.Param(r, "id")

		resp, err := pp.CaptureOrder(ctx, providerID, paypal.CaptureOrderRequest{})
		if err != nil {
			return fmt.Errorf("capturing paypal order[%s]: %w", providerID, err)
		}

		if resp.Status != "COMPLETED" {
			return fmt.Errorf("captured order[%s] with status[%s] different from 'COMPLETED'", providerID, resp.Status)
		}

		p, err := FetchByProviderID(ctx, db, providerID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching the purchase bound to payment[%s]: %w", providerID, err)
		}

		if err := fulfill(ctx, db, p.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("the order was payed but its fulfillment failed: %w", err)
		}

		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}
}

func HandleShow(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		id := web.Param(r, "id")
		if err := validate.CheckID(id); err != nil {
			return weberr.BadRequest(err)
		}

		p, err := Fetch(ctx, db, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching purchase[%s]: %w", id, err)
		}

		if !claims.IsUser(ctx, p.UserID) {
			crs, err := course.Fetch(ctx, db, p.CourseID)
			if err != nil || !claims.IsUser(ctx, crs.EducatorID) {
				return weberr.NotAuthorized(errors.New("purchase belongs to another user"))
			}
		}

		return web.Respond(ctx, w, p, http.StatusOK)
	}
}
