package config

import "testing"

func validBase() Config {
	c := Config{}
	c.App = AppConfig{Env: "local", Port: 8080}
	c.DB = DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "callmind"}
	c.Redis = RedisConfig{Host: "localhost", Port: 6379}
	c.Auth = AuthConfig{JWTSecret: "secret"}
	c.ElevenLabs = ElevenLabsConfig{
		BaseURL:            "https://api.elevenlabs.io",
		APIKey:             "k",
		AgentID:            "agent_1",
		AgentPhoneNumberID: "phnum_1",
	}
	return c
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_ProductionRequiresSSLModeAndCallbackURL(t *testing.T) {
	c := validBase()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "callmind"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE and callback URL")
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	c := validBase()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if c.Auth.AccessTokenTTL <= 0 {
		t.Fatalf("expected access token ttl default")
	}
	if c.ElevenLabs.RequestTimeout <= 0 {
		t.Fatalf("expected provider request timeout default")
	}
}

func TestValidate_RejectsUnknownEnv(t *testing.T) {
	c := validBase()
	c.App.Env = "qa"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown APP_ENV")
	}
}
