package nlu

import (
	"testing"

	"github.com/BrasasLabs/Anfitrion/internal/models"
)

func TestNormalizeLabel(t *testing.T) {
	cases := []struct {
		raw  string
		want models.Intent
	}{
		{"menu_inquiry", models.IntentMenuInquiry},
		{"  hours_inquiry  ", models.IntentHoursInquiry},
		{"GREETING", models.IntentGreeting},
		{`"farewell"`, models.IntentFarewell},
		{"order_inquiry.", models.IntentOrderInquiry},
		{"none", models.IntentNone},
		{"", models.IntentNone},
		{"something_else", models.IntentNone},
		{"I think this is a menu_inquiry", models.IntentNone},
	}
	for _, c := range cases {
		if got := NormalizeLabel(c.raw); got != c.want {
			t.Errorf("NormalizeLabel(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error when no API key is available")
	}
	if _, err := NewClient(WithAPIKey("sk-test")); err != nil {
		t.Fatalf("unexpected error with explicit key: %v", err)
	}
}
