package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"EXCHANGE_FIRESTORE_PROJECT_ID": "exchange-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.PubSub.ProjectID != "exchange-dev" {
		t.Errorf("expected pubsub project to default to firestore project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != defaultOrderEventsTopic {
		t.Errorf("unexpected default topic %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Orders.PendingTTL != 48*time.Hour {
		t.Errorf("unexpected default pending ttl: %s", cfg.Orders.PendingTTL)
	}
	if cfg.Orders.SubmittedTTL != 7*24*time.Hour {
		t.Errorf("unexpected default submitted ttl: %s", cfg.Orders.SubmittedTTL)
	}
	if cfg.Orders.SweepBatchSize != defaultSweepBatchSize {
		t.Errorf("unexpected default sweep batch size: %d", cfg.Orders.SweepBatchSize)
	}
	if cfg.Pricing.DefaultCommissionRate != defaultCommissionRate {
		t.Errorf("unexpected default commission rate: %v", cfg.Pricing.DefaultCommissionRate)
	}
	if cfg.Pricing.TransactionFeeBasisPoints != defaultTransactionFeeBPS {
		t.Errorf("unexpected default fee bps: %d", cfg.Pricing.TransactionFeeBasisPoints)
	}
	if cfg.Pricing.TransactionFeeFlatCents != defaultTransactionFeeFlat {
		t.Errorf("unexpected default flat fee: %d", cfg.Pricing.TransactionFeeFlatCents)
	}
	if cfg.Catalog.RequestTimeout != defaultCatalogTimeout {
		t.Errorf("unexpected default catalog timeout: %s", cfg.Catalog.RequestTimeout)
	}
	if len(cfg.Tax.CurrencyRates) != 0 {
		t.Errorf("expected no currency tax rates, got %v", cfg.Tax.CurrencyRates)
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.JWTAudience != defaultJWTAudience {
		t.Errorf("unexpected default jwt audience %s", cfg.Security.JWTAudience)
	}
	if cfg.RateLimits.DefaultPerMinute != 120 {
		t.Errorf("unexpected default rate limit: %d", cfg.RateLimits.DefaultPerMinute)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"EXCHANGE_SERVER_PORT":                        "9090",
		"EXCHANGE_SERVER_READ_TIMEOUT":                "20s",
		"EXCHANGE_SERVER_IDLE_TIMEOUT":                "2m",
		"EXCHANGE_FIRESTORE_PROJECT_ID":               "exchange-prod",
		"EXCHANGE_FIRESTORE_EMULATOR_HOST":            "localhost:8200",
		"EXCHANGE_PUBSUB_PROJECT_ID":                  "exchange-events",
		"EXCHANGE_PUBSUB_ORDER_EVENTS_TOPIC":          "orders-prod",
		"EXCHANGE_STRIPE_API_KEY":                     "secret://stripe/api",
		"EXCHANGE_STRIPE_ACCOUNT_ID":                  "acct_123",
		"EXCHANGE_CATALOG_BASE_URL":                   "https://catalog.example.com",
		"EXCHANGE_CATALOG_API_TOKEN":                  "secret://catalog/token",
		"EXCHANGE_CATALOG_REQUEST_TIMEOUT":            "8s",
		"EXCHANGE_ORDERS_PENDING_TTL":                 "24h",
		"EXCHANGE_ORDERS_SUBMITTED_TTL":               "96h",
		"EXCHANGE_ORDERS_SWEEP_INTERVAL":              "30m",
		"EXCHANGE_ORDERS_SWEEP_BATCH":                 "250",
		"EXCHANGE_PRICING_DEFAULT_COMMISSION_RATE":    "0.08",
		"EXCHANGE_PRICING_TRANSACTION_FEE_BPS":        "300",
		"EXCHANGE_PRICING_TRANSACTION_FEE_FLAT_CENTS": "25",
		"EXCHANGE_TAX_DEFAULT_RATE":                   "0.0785",
		"EXCHANGE_TAX_CURRENCY_RATES":                 "usd=0.08, JPY=0.1",
		"EXCHANGE_SECURITY_ENVIRONMENT":               "prod",
		"EXCHANGE_SECURITY_JWT_SECRET":                "secret://jwt/signing",
		"EXCHANGE_SECURITY_JWT_ISSUER":                "https://auth.example.com",
		"EXCHANGE_RATELIMIT_DEFAULT_PER_MIN":          "150",
	}

	secrets := map[string]string{
		"secret://stripe/api":    "stripe-key",
		"secret://catalog/token": "catalog-token",
		"secret://jwt/signing":   "jwt-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.PubSub.ProjectID != "exchange-events" {
		t.Errorf("expected explicit pubsub project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Stripe.APIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.Stripe.APIKey)
	}
	if cfg.Catalog.APIToken != "catalog-token" {
		t.Errorf("expected resolved catalog token, got %s", cfg.Catalog.APIToken)
	}
	if cfg.Catalog.RequestTimeout != 8*time.Second {
		t.Errorf("unexpected catalog timeout %s", cfg.Catalog.RequestTimeout)
	}
	if cfg.Orders.PendingTTL != 24*time.Hour {
		t.Errorf("unexpected pending ttl %s", cfg.Orders.PendingTTL)
	}
	if cfg.Orders.SweepBatchSize != 250 {
		t.Errorf("unexpected sweep batch size %d", cfg.Orders.SweepBatchSize)
	}
	if cfg.Pricing.DefaultCommissionRate != 0.08 {
		t.Errorf("unexpected commission rate %v", cfg.Pricing.DefaultCommissionRate)
	}
	if cfg.Pricing.TransactionFeeBasisPoints != 300 {
		t.Errorf("unexpected fee bps %d", cfg.Pricing.TransactionFeeBasisPoints)
	}
	if cfg.Pricing.TransactionFeeFlatCents != 25 {
		t.Errorf("unexpected flat fee %d", cfg.Pricing.TransactionFeeFlatCents)
	}
	if cfg.Tax.DefaultRate != 0.0785 {
		t.Errorf("unexpected tax rate %v", cfg.Tax.DefaultRate)
	}
	if cfg.Tax.CurrencyRates["USD"] != 0.08 {
		t.Errorf("expected normalized usd rate, got %v", cfg.Tax.CurrencyRates)
	}
	if cfg.Tax.CurrencyRates["JPY"] != 0.1 {
		t.Errorf("expected jpy rate, got %v", cfg.Tax.CurrencyRates)
	}
	if cfg.Security.JWTSecret != "jwt-secret" {
		t.Errorf("expected resolved jwt secret, got %s", cfg.Security.JWTSecret)
	}
	if cfg.Security.JWTIssuer != "https://auth.example.com" {
		t.Errorf("unexpected jwt issuer %s", cfg.Security.JWTIssuer)
	}
	if cfg.RateLimits.DefaultPerMinute != 150 {
		t.Errorf("unexpected default rate limit %d", cfg.RateLimits.DefaultPerMinute)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "EXCHANGE_SERVER_PORT=7070\nEXCHANGE_FIRESTORE_PROJECT_ID=exchange-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "exchange-dot" {
		t.Errorf("expected firestore project from dotenv, got %s", cfg.Firestore.ProjectID)
	}
}

func TestLoadRejectsInvalidRates(t *testing.T) {
	env := map[string]string{
		"EXCHANGE_FIRESTORE_PROJECT_ID":            "exchange-dev",
		"EXCHANGE_PRICING_DEFAULT_COMMISSION_RATE": "1.5",
		"EXCHANGE_TAX_CURRENCY_RATES":              "USD=2.0",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validationErr.Fields()
	if len(fields) != 2 {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"EXCHANGE_FIRESTORE_PROJECT_ID": "exchange-dev",
		"EXCHANGE_STRIPE_API_KEY":       "secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "EXCHANGE_FIRESTORE_PROJECT_ID=dot-project\nEXCHANGE_CATALOG_BASE_URL=https://dot.example.com\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("EXCHANGE_FIRESTORE_PROJECT_ID", "os-project")
	t.Setenv("EXCHANGE_PUBSUB_PROJECT_ID", "os-events")

	overrides := map[string]string{
		"EXCHANGE_FIRESTORE_PROJECT_ID": "override-project",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["EXCHANGE_FIRESTORE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["EXCHANGE_CATALOG_BASE_URL"]; got != "https://dot.example.com" {
		t.Fatalf("expected dotenv catalog url, got %s", got)
	}
	if got := values["EXCHANGE_PUBSUB_PROJECT_ID"]; got != "os-events" {
		t.Fatalf("expected system env pubsub project, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"EXCHANGE_FIRESTORE_PROJECT_ID": "exchange-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Stripe.APIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Stripe.APIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"EXCHANGE_FIRESTORE_PROJECT_ID": "exchange-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Stripe.APIKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Stripe.APIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"EXCHANGE_FIRESTORE_PROJECT_ID": "exchange-dev",
		"EXCHANGE_SECURITY_JWT_SECRET":  "sm://jwt/signing",
	}

	secrets := map[string]string{
		"secret://jwt/signing": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Security.JWTSecret != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Security.JWTSecret)
	}
}
