package twiliowhatsapp

import (
	"context"
	"testing"
)

func TestNewClient_RequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("token")); err == nil {
		t.Fatal("expected error without from number")
	}
}

func TestNewClient_PrefixesFromNumber(t *testing.T) {
	c, err := NewClient(
		WithAccountSID("AC123"),
		WithAuthToken("token"),
		WithFromNumber("+15550001111"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.fromWhats != "whatsapp:+15550001111" {
		t.Errorf("expected whatsapp: prefix, got %q", c.fromWhats)
	}
}

func TestMockClient(t *testing.T) {
	m := NewMockClient()
	if err := m.SendMessage(context.Background(), "5215550001", "hola"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
