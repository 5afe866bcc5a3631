package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/opencampus/backend/api/web"
	"github.com/opencampus/backend/api/weberr"
	"github.com/opencampus/backend/rate"
)

// Limit throttles by client address. Webhook routes are never behind this:
// providers interpret 429 as an invitation to retry harder.
func Limit(lim *rate.Limiter) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if !lim.Check(host) {
				err := errors.New("too many requests")
				return weberr.NewError(err, err.Error(), http.StatusTooManyRequests)
			}

			return handler(ctx, w, r)
		}
		return h
	}
	return m
}
