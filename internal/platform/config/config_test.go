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
		"API_FIREBASE_PROJECT_ID": "fh-dev",
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
	if cfg.Firestore.ProjectID != "fh-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "fh-dev" {
		t.Errorf("expected events project to default to firebase project, got %s", cfg.Events.ProjectID)
	}
	if cfg.Pricing.TaxRateBps != defaultTaxRateBps {
		t.Errorf("unexpected default tax rate: %d", cfg.Pricing.TaxRateBps)
	}
	if cfg.Pricing.DeliveryFee != defaultDeliveryFee {
		t.Errorf("unexpected default delivery fee: %d", cfg.Pricing.DeliveryFee)
	}
	if cfg.Pricing.FreeDeliveryThreshold != defaultFreeDeliveryMinimum {
		t.Errorf("unexpected default free delivery threshold: %d", cfg.Pricing.FreeDeliveryThreshold)
	}
	if cfg.Pricing.Currency != "usd" {
		t.Errorf("unexpected default currency: %s", cfg.Pricing.Currency)
	}
	if cfg.Pricing.EstimatedPrepMinutes != defaultEstimatedPrepMinutes {
		t.Errorf("unexpected default prep minutes: %d", cfg.Pricing.EstimatedPrepMinutes)
	}
	if cfg.Events.Topic != defaultOrderEventsTopic {
		t.Errorf("unexpected default events topic: %s", cfg.Events.Topic)
	}
	if !cfg.Events.Enabled {
		t.Error("expected events enabled by default")
	}
	if cfg.PSP.GatewayTimeout != defaultGatewayTimeout {
		t.Errorf("unexpected default gateway timeout: %s", cfg.PSP.GatewayTimeout)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                "9090",
		"API_SERVER_READ_TIMEOUT":        "20s",
		"API_SERVER_WRITE_TIMEOUT":       "25s",
		"API_SERVER_IDLE_TIMEOUT":        "2m",
		"API_FIREBASE_PROJECT_ID":        "fh-prod",
		"API_FIRESTORE_PROJECT_ID":       "fh-fire",
		"API_PSP_STRIPE_API_KEY":         "secret://stripe/api",
		"API_PSP_GATEWAY_TIMEOUT":        "6s",
		"API_PRICING_TAX_RATE_BPS":       "1000",
		"API_PRICING_DELIVERY_FEE":       "700",
		"API_PRICING_FREE_DELIVERY_MIN":  "5000",
		"API_PRICING_CURRENCY":           "EUR",
		"API_PRICING_ESTIMATED_PREP_MIN": "30",
		"API_EVENTS_PROJECT_ID":          "fh-events",
		"API_EVENTS_TOPIC":               "orders-prod",
		"API_EVENTS_ENABLED":             "false",
	}

	secrets := map[string]string{
		"secret://stripe/api": "stripe-key",
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
	if cfg.Firestore.ProjectID != "fh-fire" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.PSP.StripeAPIKey != "stripe-key" {
		t.Errorf("expected resolved stripe api key, got %s", cfg.PSP.StripeAPIKey)
	}
	if cfg.PSP.GatewayTimeout != 6*time.Second {
		t.Errorf("unexpected gateway timeout: %s", cfg.PSP.GatewayTimeout)
	}
	if cfg.Pricing.TaxRateBps != 1000 {
		t.Errorf("unexpected tax rate: %d", cfg.Pricing.TaxRateBps)
	}
	if cfg.Pricing.DeliveryFee != 700 {
		t.Errorf("unexpected delivery fee: %d", cfg.Pricing.DeliveryFee)
	}
	if cfg.Pricing.FreeDeliveryThreshold != 5000 {
		t.Errorf("unexpected free delivery threshold: %d", cfg.Pricing.FreeDeliveryThreshold)
	}
	if cfg.Pricing.Currency != "eur" {
		t.Errorf("expected currency lowered to eur, got %s", cfg.Pricing.Currency)
	}
	if cfg.Pricing.EstimatedPrepMinutes != 30 {
		t.Errorf("unexpected prep minutes: %d", cfg.Pricing.EstimatedPrepMinutes)
	}
	if cfg.Events.ProjectID != "fh-events" {
		t.Errorf("unexpected events project: %s", cfg.Events.ProjectID)
	}
	if cfg.Events.Topic != "orders-prod" {
		t.Errorf("unexpected events topic: %s", cfg.Events.Topic)
	}
	if cfg.Events.Enabled {
		t.Error("expected events disabled")
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=fh-dot\n"
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
	if cfg.Firebase.ProjectID != "fh-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "fh-dev",
		"API_PSP_STRIPE_API_KEY":  "secret://missing",
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
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://stripe/api=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://stripe/api=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "fh-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("PSP.StripeAPIKey")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "fh-dev",
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
		if len(missing.Names()) != 1 || missing.Names()[0] != "PSP.StripeAPIKey" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("PSP.StripeAPIKey"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "fh-dev",
		"API_PSP_STRIPE_API_KEY":  "sm://stripe/api",
	}

	secrets := map[string]string{
		"secret://stripe/api": "legacy-secret",
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
	if cfg.PSP.StripeAPIKey != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.PSP.StripeAPIKey)
	}
}
