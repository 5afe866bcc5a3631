package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/opencampus/backend/api/web"
	"github.com/opencampus/backend/api/weberr"
	"github.com/opencampus/backend/core/claims"
)

func HandleShowCurrent(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		clm, err := claims.Get(ctx)
		if err != nil {
			return weberr.NotAuthorized(errors.New("user not authenticated"))
		}

		usr, err := Fetch(ctx, db, clm.UserID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return weberr.NotFound(err)
			}
			return fmt.Errorf("fetching current user[%s]: %w", clm.UserID, err)
		}

		return web.Respond(ctx, w, usr, http.StatusOK)
	}
}

// directoryEvent is the envelope the Identity Directory posts. Only the
// fields this service acts on are decoded.
type directoryEvent struct {
	Type string `json:"type"`
	Data struct {
		ID             string `json:"id"`
		FirstName      string `json:"first_name"`
		LastName       string `json:"last_name"`
		ImageURL       string `json:"image_url"`
		EmailAddresses []struct {
			EmailAddress string `json:"email_address"`
		} `json:"email_addresses"`
	} `json:"data"`
}

func (e directoryEvent) email() string {
	if len(e.Data.EmailAddresses) == 0 {
		return ""
	}
	return e.Data.EmailAddresses[0].EmailAddress
}

func (e directoryEvent) name() string {
	return strings.TrimSpace(e.Data.FirstName + " " + e.Data.LastName)
}

// HandleDirectoryWebhook applies directory change notifications to the users
// table. The signature covers the exact body bytes, so the body must not have
// passed through any parsing middleware.
func HandleDirectoryWebhook(db *sqlx.DB, wh *svix.Webhook, log logrus.FieldLogger) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return weberr.BadRequest(fmt.Errorf("cannot read the request body: %w", err))
		}

		if err := wh.Verify(b, r.Header); err != nil {
			return weberr.BadRequest(fmt.Errorf("directory event failed verification: %w", err))
		}

		var event directoryEvent
		if err := json.Unmarshal(b, &event); err != nil {
			return weberr.BadRequest(fmt.Errorf("unable to decode directory event: %w", err))
		}

		now := time.Now().UTC()

		switch event.Type {
		case "user.created":
			usr := User{
				ID:        event.Data.ID,
				Email:     event.email(),
				Name:      event.name(),
				ImageURL:  event.Data.ImageURL,
				CreatedAt: now,
				UpdatedAt: now,
			}

			if err := Create(ctx, db, usr); err != nil {
				return fmt.Errorf("applying user.created: %w", err)
			}

		case "user.updated":
			up := UserUp{
				ID:        event.Data.ID,
				Email:     event.email(),
				Name:      event.name(),
				ImageURL:  event.Data.ImageURL,
				UpdatedAt: now,
			}

			if err := Update(ctx, db, up); err != nil {
				if errors.Is(err, ErrNotFound) {
					// The directory says this user exists; surfacing 404
					// lets it retry after the create event lands.
					return weberr.NotFound(err)
				}
				return fmt.Errorf("applying user.updated: %w", err)
			}

		case "user.deleted":
			if err := Delete(ctx, db, event.Data.ID); err != nil {
				return fmt.Errorf("applying user.deleted: %w", err)
			}

		default:
			// Acknowledge kinds we don't understand so the directory
			// stops redelivering them.
			log.WithField("type", event.Type).Info("ignoring directory event")
		}

		return web.Respond(ctx, w, received{true}, http.StatusOK)
	}
}

type received struct {
	Received bool `json:"received"`
}
