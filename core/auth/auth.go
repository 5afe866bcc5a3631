package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"

	"github.com/opencampus/backend/api/web"
	"github.com/opencampus/backend/api/weberr"
	"github.com/opencampus/backend/core/claims"
)

// Verifier turns a bearer token into claims. The production implementation
// checks the token against the directory's issuer; tests substitute their own.
type Verifier interface {
	Verify(ctx context.Context, token string) (claims.Claims, error)
}

// DirectoryVerifier validates tokens issued by the Identity Directory
// using its published OIDC discovery document.
type DirectoryVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewDirectoryVerifier(ctx context.Context, issuerURL string) (*DirectoryVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("discovering directory issuer: %w", err)
	}

	// The directory issues tokens to several frontends, so the audience
	// is not pinned here.
	v := provider.Verifier(&oidc.Config{SkipClientIDCheck: true})
	return &DirectoryVerifier{verifier: v}, nil
}

func (d *DirectoryVerifier) Verify(ctx context.Context, token string) (claims.Claims, error) {
	tok, err := d.verifier.Verify(ctx, token)
	if err != nil {
		return claims.Claims{}, fmt.Errorf("verifying directory token: %w", err)
	}

	var tokClaims struct {
		Role string `json:"role"`
	}
	if err := tok.Claims(&tokClaims); err != nil {
		return claims.Claims{}, fmt.Errorf("decoding token claims: %w", err)
	}

	role := tokClaims.Role
	if role == "" {
		role = claims.RoleStudent
	}

	return claims.Claims{UserID: tok.Subject, Role: role}, nil
}

func token(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", errors.New("missing authorization header")
	}

	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("authorization header is not a bearer token")
	}

	return parts[1], nil
}

// Authenticate resolves the bearer token and stores the claims in the context.
func Authenticate(v Verifier) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			tok, err := token(r)
			if err != nil {
				return weberr.NotAuthorized(err)
			}

			clm, err := v.Verify(ctx, tok)
			if err != nil {
				return weberr.NotAuthorized(err)
			}

			return handler(claims.Set(ctx, clm), w, r)
		}
		return h
	}
	return m
}

// Educator allows only users the directory marked with the educator role.
func Educator(v Verifier) web.Middleware {
	authen := Authenticate(v)
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			if !claims.IsEducator(ctx) {
				return weberr.NotAuthorized(errors.New("user is not an educator"))
			}
			return handler(ctx, w, r)
		}
		return authen(h)
	}
	return m
}
