// Package flow implements the per-customer conversation state machine for
// Anfitrion: greeting policy, order detection, and the engine that decides
// the single action to take for each inbound message.
package flow

import (
	"fmt"
	"time"

	"github.com/BrasasLabs/Anfitrion/internal/models"
)

// PeriodForHour maps a local wall-clock hour onto a day period:
// [6,12) morning, [12,19) afternoon, everything else night.
func PeriodForHour(hour int) models.Period {
	switch {
	case hour >= 6 && hour < 12:
		return models.PeriodMorning
	case hour >= 12 && hour < 19:
		return models.PeriodAfternoon
	default:
		return models.PeriodNight
	}
}

// PeriodAt returns the day period for the given instant in its location.
func PeriodAt(t time.Time) models.Period {
	return PeriodForHour(t.Hour())
}

// GreetingText returns the fixed greeting template for a period. Side
// effect-free.
func GreetingText(period models.Period, businessName string) string {
	switch period {
	case models.PeriodMorning:
		return fmt.Sprintf("☀️ ¡Buenos días! Bienvenido a %s", businessName)
	case models.PeriodAfternoon:
		return fmt.Sprintf("🌤️ ¡Buenas tardes! Bienvenido a %s", businessName)
	default:
		return fmt.Sprintf("🌙 ¡Buenas noches! Bienvenido a %s", businessName)
	}
}
