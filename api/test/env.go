package test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest/v3"
	"github.com/plutov/paypal/v4"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	stripecl "github.com/stripe/stripe-go/v74/client"
	mock "github.com/stripe/stripe-mock/param"
	svix "github.com/svix/svix-webhooks/go"

	"github.com/opencampus/backend/api"
	"github.com/opencampus/backend/api/web"
	"github.com/opencampus/backend/config"
	"github.com/opencampus/backend/core/claims"
	"github.com/opencampus/backend/database"
	"github.com/opencampus/backend/rate"
)

// Well-known test secrets. The svix one is the documented example
// signing key, the stripe one is arbitrary.
const (
	directorySecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
	stripeSecret    = "whsec_test_payment_ledger"
)

// stubVerifier accepts tokens of the form "<userID>:<role>". It stands in
// for the directory's OIDC issuer so tests don't need a key server.
type stubVerifier struct{}

func (stubVerifier) Verify(ctx context.Context, token string) (claims.Claims, error) {
	parts := strings.SplitN(token, ":", 2)
	if len(parts) != 2 {
		return claims.Claims{}, fmt.Errorf("malformed test token %q", token)
	}
	return claims.Claims{UserID: parts[0], Role: parts[1]}, nil
}

func Token(userID string, role string) string {
	return userID + ":" + role
}

// mockStripe emulates the two Payment Ledger endpoints the backend talks
// to: session creation and session listing by payment intent.
type mockStripe struct {
	mu       sync.Mutex
	n        int
	sessions map[string]string // session id -> purchaseId metadata
	intents  map[string]string // payment intent id -> session id
}

func newMockStripe() *mockStripe {
	return &mockStripe{
		sessions: make(map[string]string),
		intents:  make(map[string]string),
	}
}

// Bind registers a session for a payment intent without going through
// checkout, for events that must reference unknown purchases.
func (m *mockStripe) Bind(paymentIntentID string, purchaseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	sid := fmt.Sprintf("cs_test_%d", m.n)
	m.sessions[sid] = purchaseID
	m.intents[paymentIntentID] = sid
}

// IntentFor returns the payment intent the mock assigned to the session
// carrying the given purchase id.
func (m *mockStripe) IntentFor(purchaseID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for pi, sid := range m.intents {
		if m.sessions[sid] == purchaseID {
			return pi, true
		}
	}
	return "", false
}

func (m *mockStripe) handle() http.Handler {
	create := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params, err := mock.ParseParams(r)
		if err != nil {
			web.Respond(context.Background(), w, nil, 400)
			return
		}

		var purchaseID string
		if md, ok := params["metadata"].(map[string]any); ok {
			purchaseID, _ = md["purchaseId"].(string)
		}

		m.mu.Lock()
		m.n++
		sid := fmt.Sprintf("cs_test_%d", m.n)
		pi := fmt.Sprintf("pi_test_%d", m.n)
		m.sessions[sid] = purchaseID
		m.intents[pi] = sid
		m.mu.Unlock()

		out := map[string]any{"id": sid, "url": "https://pay.example.com/" + sid}
		web.Respond(context.Background(), w, out, 200)
	})

	list := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pi := r.URL.Query().Get("payment_intent")

		m.mu.Lock()
		sid, ok := m.intents[pi]
		purchaseID := m.sessions[sid]
		m.mu.Unlock()

		data := []map[string]any{}
		if ok {
			data = append(data, map[string]any{
				"id":       sid,
				"object":   "checkout.session",
				"metadata": map[string]string{"purchaseId": purchaseID},
			})
		}

		out := map[string]any{"object": "list", "data": data, "has_more": false, "url": "/v1/checkout/sessions"}
		web.Respond(context.Background(), w, out, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/checkout/sessions", create).Methods("POST")
	r.Handle("/v1/checkout/sessions", list).Methods("GET")
	return r
}

// mockPaypal answers the token, order and capture calls of the second
// provider flow.
type mockPaypal struct {
	mu sync.Mutex
	n  int
}

func (m *mockPaypal) handle() http.Handler {
	token := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{"access_token": "test-token", "token_type": "Bearer", "expires_in": 3600}
		web.Respond(context.Background(), w, out, 200)
	})

	checkout := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.n++
		id := fmt.Sprintf("paypal-%d", m.n)
		m.mu.Unlock()

		web.Respond(context.Background(), w, paypal.Order{ID: id}, 200)
	})

	capture := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		web.Respond(context.Background(), w, paypal.Order{Status: "COMPLETED"}, 200)
	})

	r := mux.NewRouter()
	r.Handle("/v1/oauth2/token", token).Methods("POST")
	r.Handle("/v2/checkout/orders", checkout).Methods("POST")
	r.Handle("/v2/checkout/orders/{id}/capture", capture).Methods("POST")
	return r
}

// TestEnv runs the whole API against a disposable postgres container and
// mock providers.
type TestEnv struct {
	DB     *sqlx.DB
	Server *httptest.Server
	URL    string
	Stripe *mockStripe
	Paypal *mockPaypal

	DirectoryWebhook *svix.Webhook
	WebhookSecret    string
}

func NewTestEnv(t *testing.T, name string) (*TestEnv, error) {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}

	res, err := pool.Run("postgres", "15-alpine", []string{
		"POSTGRES_USER=postgres",
		"POSTGRES_PASSWORD=postgres",
		"POSTGRES_DB=" + name,
	})
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(res); err != nil {
			t.Logf("purging postgres container: %v", err)
		}
	})

	dbCfg := config.DB{
		User:       "postgres",
		Password:   "postgres",
		Host:       "localhost:" + res.GetPort("5432/tcp"),
		Name:       name,
		DisableTLS: true,
	}

	var db *sqlx.DB
	err = pool.Retry(func() error {
		var err error
		db, err = database.Open(dbCfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return database.StatusCheck(ctx, db)
	})
	if err != nil {
		return nil, fmt.Errorf("waiting for postgres: %w", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	ms := newMockStripe()
	stripeSrv := httptest.NewServer(ms.handle())
	t.Cleanup(stripeSrv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL: stripe.String(stripeSrv.URL),
	})
	strp := &stripecl.API{}
	strp.Init("sk_test_123", &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	mp := &mockPaypal{}
	paypalSrv := httptest.NewServer(mp.handle())
	t.Cleanup(paypalSrv.Close)

	pp, err := paypal.NewClient("test-client", "test-secret", paypalSrv.URL)
	if err != nil {
		return nil, fmt.Errorf("building paypal client: %w", err)
	}

	wh, err := svix.NewWebhook(directorySecret)
	if err != nil {
		return nil, fmt.Errorf("building directory webhook verifier: %w", err)
	}

	log := logrus.New()
	log.SetOutput(testWriter{t})

	h := api.APIMux(api.APIConfig{
		Log:              log,
		DB:               db,
		Verifier:         stubVerifier{},
		DirectoryWebhook: wh,
		Stripe:           strp,
		StripeCfg: config.Stripe{
			APISecret:     "sk_test_123",
			WebhookSecret: stripeSecret,
			SuccessURL:    "http://localhost/ok",
			CancelURL:     "http://localhost/no",
		},
		Paypal:  pp,
		Limiter: rate.NewLimiter(1000, 5, 1000),
	})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &TestEnv{
		DB:               db,
		Server:           srv,
		URL:              srv.URL,
		Stripe:           ms,
		Paypal:           mp,
		DirectoryWebhook: wh,
		WebhookSecret:    stripeSecret,
	}, nil
}

func (env *TestEnv) Client() *http.Client {
	return env.Server.Client()
}

// CreateUser provisions a user the way production does: through a signed
// directory create event.
func (env *TestEnv) CreateUser(t *testing.T, id string, email string, first string, last string) {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"type": "user.created",
		"data": map[string]any{
			"id":              id,
			"first_name":      first,
			"last_name":       last,
			"image_url":       "https://img.example.com/" + id,
			"email_addresses": []map[string]any{{"email_address": email}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	msgID := "msg_seed_" + id
	ts := time.Now()
	sig, err := env.DirectoryWebhook.Sign(msgID, ts, payload)
	if err != nil {
		t.Fatalf("signing directory payload: %v", err)
	}

	r, err := http.NewRequest(http.MethodPost, env.URL+"/webhooks/directory", strings.NewReader(string(payload)))
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("svix-id", msgID)
	r.Header.Set("svix-timestamp", fmt.Sprintf("%d", ts.Unix()))
	r.Header.Set("svix-signature", sig)

	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if w.StatusCode != http.StatusOK {
		t.Fatalf("seeding user %s: status code %d", id, w.StatusCode)
	}
}

// Do runs an authenticated JSON request and decodes the response into out
// when out is non-nil.
func (env *TestEnv) Do(t *testing.T, method string, path string, token string, body any, out any) int {
	t.Helper()

	var rd *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = strings.NewReader(string(b))
	} else {
		rd = strings.NewReader("")
	}

	r, err := http.NewRequest(method, env.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Body.Close()

	if out != nil {
		if err := json.NewDecoder(w.Body).Decode(out); err != nil {
			t.Fatalf("decoding %s %s response: %v", method, path, err)
		}
	}

	return w.StatusCode
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
