package flow

import (
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/util"
)

// Default suppression windows and thresholds. Deployed variants of the bot
// have differed on several of these, so they are configuration, not constants
// baked into the engine.
const (
	DefaultHandoffSuppression      = 15 * time.Minute
	DefaultStaffSuppression        = 10 * time.Minute
	DefaultOrderAckSuppression     = 15 * time.Minute
	DefaultPaymentQRSuppression    = 5 * time.Minute
	DefaultMaxFailedUnderstandings = 3
)

// Config holds the tunable business policy of the conversation engine.
type Config struct {
	// HandoffSuppression is the bot-silence window entered after the
	// repeated-misunderstanding handoff notice.
	HandoffSuppression time.Duration
	// StaffSuppression is the window entered when a staff member messages
	// the customer directly.
	StaffSuppression time.Duration
	// OrderAckSuppression is the window entered after acknowledging the
	// order detail message.
	OrderAckSuppression time.Duration
	// PaymentQRSuppression is the window entered after the payment-QR order
	// flow (only used when EnablePaymentQRFlow is set).
	PaymentQRSuppression time.Duration
	// MaxFailedUnderstandings is the consecutive-failure count that triggers
	// the handoff notice.
	MaxFailedUnderstandings int
	// EnableKeywordOrderDetection also treats order keywords ("pedido",
	// "pedir", "ordenar") as order intent, beyond catalog-name matches.
	EnableKeywordOrderDetection bool
	// EnablePaymentQRFlow answers a detected order with payment methods and
	// a payment-reference QR image instead of the follow-up detail prompt.
	EnablePaymentQRFlow bool
}

// DefaultConfig returns the standard policy: detail-request order flow,
// catalog-only detection, 15/10/15/5 minute windows, three strikes.
func DefaultConfig() Config {
	return Config{
		HandoffSuppression:      DefaultHandoffSuppression,
		StaffSuppression:        DefaultStaffSuppression,
		OrderAckSuppression:     DefaultOrderAckSuppression,
		PaymentQRSuppression:    DefaultPaymentQRSuppression,
		MaxFailedUnderstandings: DefaultMaxFailedUnderstandings,
	}
}

// ConfigFromEnv builds a Config from environment variables, falling back to
// the defaults for anything unset or invalid.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	cfg.HandoffSuppression = util.ParseMinutesEnv("HANDOFF_SUPPRESSION_MINUTES", cfg.HandoffSuppression)
	cfg.StaffSuppression = util.ParseMinutesEnv("STAFF_SUPPRESSION_MINUTES", cfg.StaffSuppression)
	cfg.OrderAckSuppression = util.ParseMinutesEnv("ORDER_ACK_SUPPRESSION_MINUTES", cfg.OrderAckSuppression)
	cfg.PaymentQRSuppression = util.ParseMinutesEnv("PAYMENT_QR_SUPPRESSION_MINUTES", cfg.PaymentQRSuppression)
	cfg.MaxFailedUnderstandings = util.ParseIntEnv("MAX_FAILED_UNDERSTANDINGS", cfg.MaxFailedUnderstandings)
	cfg.EnableKeywordOrderDetection = util.ParseBoolEnv("ENABLE_KEYWORD_ORDER_DETECTION", cfg.EnableKeywordOrderDetection)
	cfg.EnablePaymentQRFlow = util.ParseBoolEnv("ENABLE_PAYMENT_QR_FLOW", cfg.EnablePaymentQRFlow)
	return cfg
}
