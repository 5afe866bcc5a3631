package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	stripecl "github.com/stripe/stripe-go/v74/client"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/opencampus/backend/api/middleware"
	"github.com/opencampus/backend/api/web"
	"github.com/opencampus/backend/config"
	"github.com/opencampus/backend/core/auth"
	"github.com/opencampus/backend/core/course"
	"github.com/opencampus/backend/core/purchase"
	"github.com/opencampus/backend/core/user"
	"github.com/opencampus/backend/database"
	"github.com/opencampus/backend/rate"
)

// APIConfig carries every process-scoped client the handlers need. Clients
// are built once at startup and injected; no package keeps ambient state.
type APIConfig struct {
	CorsOrigin       string
	Log              logrus.FieldLogger
	DB               *sqlx.DB
	Verifier         auth.Verifier
	DirectoryWebhook *svix.Webhook
	Stripe           *stripecl.API
	StripeCfg        config.Stripe
	Paypal           *paypal.Client
	Limiter          *rate.Limiter
}

type api struct {
	*mux.Router
	mw  []web.Middleware
	log logrus.FieldLogger
}

func APIMux(cfg APIConfig) http.Handler {
	a := &api{
		Router: mux.NewRouter(),
		log:    cfg.Log,
	}

	a.mw = append(a.mw, middleware.RequestID())
	a.mw = append(a.mw, middleware.Logger(cfg.Log))
	a.mw = append(a.mw, middleware.Errors(cfg.Log))
	a.mw = append(a.mw, middleware.Panics())

	if cfg.CorsOrigin != "" {
		a.mw = append(a.mw, middleware.Cors(cfg.CorsOrigin))

		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.WriteHeader(http.StatusNoContent)
			return nil
		}

		a.Handle(http.MethodOptions, "/{path:.*}", h)
	}

	authen := auth.Authenticate(cfg.Verifier)
	educator := auth.Educator(cfg.Verifier)
	limit := middleware.Limit(cfg.Limiter)

	a.Handle(http.MethodGet, "/health", handleHealth(cfg.DB))

	// Webhook routes verify signatures over the exact body bytes, so they
	// sit outside any middleware that reads or rewrites the body.
	a.Handle(http.MethodPost, "/webhooks/directory", user.HandleDirectoryWebhook(cfg.DB, cfg.DirectoryWebhook, cfg.Log))
	a.Handle(http.MethodPost, "/webhooks/payments", purchase.HandlePaymentWebhook(cfg.DB, cfg.Stripe, cfg.StripeCfg, cfg.Log))

	a.Handle(http.MethodGet, "/users/current/courses", course.HandleListEnrolled(cfg.DB), authen)
	a.Handle(http.MethodGet, "/users/current", user.HandleShowCurrent(cfg.DB), authen)

	a.Handle(http.MethodGet, "/courses/{course_id}/students", course.HandleListStudents(cfg.DB), educator)
	a.Handle(http.MethodGet, "/courses/{id}", course.HandleShow(cfg.DB), limit)
	a.Handle(http.MethodGet, "/courses", course.HandleList(cfg.DB), limit)
	a.Handle(http.MethodPost, "/courses", course.HandleCreate(cfg.DB), educator)
	a.Handle(http.MethodPut, "/courses/{id}", course.HandleUpdate(cfg.DB), educator)

	a.Handle(http.MethodGet, "/educator/courses", course.HandleListOwned(cfg.DB), educator)
	a.Handle(http.MethodGet, "/educator/dashboard", course.HandleDashboard(cfg.DB), educator)
	a.Handle(http.MethodGet, "/educator/students", course.HandleListEnrollmentRecords(cfg.DB), educator)

	a.Handle(http.MethodPost, "/purchases/stripe", purchase.HandleStripeCheckout(cfg.DB, cfg.Stripe, cfg.StripeCfg), authen)
	a.Handle(http.MethodPost, "/purchases/paypal", purchase.HandlePaypalCheckout(cfg.DB, cfg.Paypal), authen)
	a.Handle(http.MethodPost, "/purchases/paypal/{id}/capture", purchase.HandlePaypalCapture(cfg.DB, cfg.Paypal), authen)
	a.Handle(http.MethodGet, "/purchases/{id}", purchase.HandleShow(cfg.DB), authen)

	return a.Router
}

func handleHealth(db *sqlx.DB) web.Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
		status := struct {
			Status string `json:"status"`
		}{Status: "ok"}

		code := http.StatusOK
		if err := database.StatusCheck(ctx, db); err != nil {
			status.Status = "db not ready"
			code = http.StatusInternalServerError
		}

		return web.Respond(ctx, w, status, code)
	}
}

func (a *api) Handle(method string, path string, handler web.Handler, mw ...web.Middleware) {

	handler = web.WrapMiddleware(mw, handler)

	handler = web.WrapMiddleware(a.mw, handler)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		ctx := r.Context()

		if err := handler(ctx, w, r); err != nil {

			a.log.WithFields(logrus.Fields{
				"req_id":  middleware.ContextRequestID(ctx),
				"message": err,
			}).Error("ERROR")
		}
	})

	a.Router.Handle(path, h).Methods(method)
}
