package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/opencampus/backend/api/web"
	"github.com/opencampus/backend/api/weberr"
	"github.com/opencampus/backend/config"
	"github.com/opencampus/backend/core/course"
	"github.com/opencampus/backend/core/enrollment"
	"github.com/opencampus/backend/core/user"
	"github.com/opencampus/backend/database"
)

// fulfill enrolls the buyer and completes the purchase. Every step is
// idempotent, so a redelivered event or a crash-interrupted earlier run
// re-applies cleanly: the checked insert skips an existing membership and
// the status update only ever moves a pending purchase.
func fulfill(ctx context.Context, db *sqlx.DB, purchaseID string) error {
	p, err := Fetch(ctx, db, purchaseID)
	if err != nil {
		return err
	}

	// A failed purchase is terminal: a success landing afterwards must
	// not enroll anyone.
	if p.Status == Failed {
		return nil
	}

	if _, err := user.Fetch(ctx, db, p.UserID); err != nil {
		return err
	}

	if _, err := course.Fetch(ctx, db, p.CourseID); err != nil {
		return err
	}

	err = database.Transaction(db, func(tx sqlx.ExtContext) error {
		enr := enrollment.Enrollment{
			UserID:    p.UserID,
			CourseID:  p.CourseID,
			CreatedAt: time.Now().UTC(),
		}

		if err := enrollment.Create(ctx, tx, enr); err != nil {
			return fmt.Errorf("enrolling buyer: %w", err)
		}

		up := StatusUp{
			ID:        p.ID,
			Status:    Completed,
			UpdatedAt: time.Now().UTC(),
		}

		if err := UpdateStatus(ctx, tx, up); err != nil {
			return fmt.Errorf("completing purchase: %w", err)
		}

		return nil
	})

	if err != nil {
		return fmt.Errorf("fulfilling purchase[%s]: %w", purchaseID, err)
	}
	return nil
}

// fail marks the purchase failed. A purchase already out of pending keeps
// its state: a stale failure must not regress a completed enrollment.
func fail(ctx context.Context, db *sqlx.DB, purchaseID string) error {
	up := StatusUp{
		ID:        purchaseID,
		Status:    Failed,
		UpdatedAt: time.Now().UTC(),
	}

	if err := UpdateStatus(ctx, db, up); err != nil {
		return fmt.Errorf("failing purchase[%s]: %w", purchaseID, err)
	}

	return nil
}

// resolvePurchaseID maps a payment intent back to the purchase that opened
// it, through the checkout session metadata.
func resolvePurchaseID(ctx context.Context, strp *stripecl.API, paymentIntentID string) (string, error) {
	params := &stripe.CheckoutSessionListParams{
		PaymentIntent: stripe.String(paymentIntentID),
	}
	params.Context = ctx

	it := strp.CheckoutSessions.List(params)
	for it.Next() {
		return it.CheckoutSession().Metadata["purchaseId"], nil
	}

	if err := it.Err(); err != nil {
		return "", fmt.Errorf("listing sessions of payment[%s]: %w", paymentIntentID, err)
	}

	return "", nil
}

// HandlePaymentWebhook applies Payment Ledger events. Delivery is
// at-least-once and unordered; both branches tolerate redelivery.
func HandlePaymentWebhook(db *sqlx.DB, strp *stripecl.API, cfg config.Stripe, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		sig := r.Header.Get("Stripe-Signature")
		if sig == "" {
			return weberr.BadRequest(errors.New("received stripe event is not signed"))
		}

		event, err := webhook.ConstructEvent(b, sig, cfg.WebhookSecret)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot construct stripe event: %w", err))
		}

		switch event.Type {
		case "payment_intent.succeeded":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
			}

			purchaseID, err := resolvePurchaseID(ctx, strp, pi.ID)
			if err != nil {
				return fmt.Errorf("resolving payment[%s]: %w", pi.ID, err)
			}
			if purchaseID == "" {
				return weberr.NotFound(fmt.Errorf("payment[%s] has no purchase bound to it", pi.ID))
			}

			if err := fulfill(ctx, db, purchaseID); err != nil {
				switch {
				case errors.Is(err, ErrNotFound), errors.Is(err, user.ErrNotFound), errors.Is(err, course.ErrNotFound):
					return weberr.NotFound(err)
				}
				return fmt.Errorf("the payment succeeded but its fulfillment failed: %w", err)
			}

		case "payment_intent.payment_failed":
			var pi stripe.PaymentIntent
			if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
				return weberr.BadRequest(fmt.Errorf("unable to decode stripe event: %w", err))
			}

			purchaseID, err := resolvePurchaseID(ctx, strp, pi.ID)
			if err != nil {
				return fmt.Errorf("resolving payment[%s]: %w", pi.ID, err)
			}

			// Failure events may race purchase cleanup; an unknown
			// purchase is acknowledged, not retried.
			if purchaseID != "" {
				if err := fail(ctx, db, purchaseID); err != nil {
					return fmt.Errorf("recording failed payment[%s]: %w", pi.ID, err)
				}
			}

		default:
			log.WithField("type", event.Type).Info("ignoring payment event")
		}

		return web.Respond(ctx, w, received{true}, http.StatusOK)
	}
}

type received struct {
	Received bool `json:"received"`
}
