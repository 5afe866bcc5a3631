package config

import "time"

type Config struct {
	Web       Web
	DB        DB
	Cors      Cors
	Stripe    Stripe
	Paypal    Paypal
	Directory Directory
}

type Web struct {
	Address         string        `conf:"default:0.0.0.0:8000"`
	ReadTimeout     time.Duration `conf:"default:5s"`
	WriteTimeout    time.Duration `conf:"default:10s"`
	IdleTimeout     time.Duration `conf:"default:120s"`
	ShutdownTimeout time.Duration `conf:"default:20s"`
}

type DB struct {
	User       string `conf:"default:postgres"`
	Password   string `conf:"default:postgres,mask"`
	Host       string `conf:"default:localhost"`
	Name       string `conf:"default:campus"`
	DisableTLS bool   `conf:"default:true"`
}

type Cors struct {
	Origin string
}

// Stripe binds the Payment Ledger. WebhookSecret signs inbound events,
// APISecret authenticates outbound session lookups.
type Stripe struct {
	APISecret     string `conf:"mask"`
	WebhookSecret string `conf:"mask"`
	SuccessURL    string `conf:"default:http://localhost:3000/loading"`
	CancelURL     string `conf:"default:http://localhost:3000/"`
}

type Paypal struct {
	ClientID string `conf:"mask"`
	Secret   string `conf:"mask"`
	URL      string `conf:"default:https://api.sandbox.paypal.com"`
}

// Directory binds the Identity Directory: the issuer its tokens come
// from and the secret its webhooks are signed with.
type Directory struct {
	IssuerURL        string
	WebhookSecret    string        `conf:"mask"`
	DiscoveryTimeout time.Duration `conf:"default:10s"`
}
