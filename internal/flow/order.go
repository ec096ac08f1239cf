package flow

import (
	"strings"

	"github.com/BrasasLabs/Anfitrion/internal/business"
)

// orderKeywords are literal tokens meaning "order"/"to order", checked only
// when keyword order detection is enabled.
var orderKeywords = []string{"pedido", "pedir", "ordenar"}

// DetectOrder reports whether the message looks like an order: a
// case-insensitive substring match against every dish name, then every drink
// name (dish list first, first match short-circuits). When keywordFallback is
// set, a secondary check against order keywords may also trigger detection.
// Never fails.
func DetectOrder(message string, menu business.Menu, keywordFallback bool) bool {
	lower := strings.ToLower(message)

	for _, dish := range menu.Dishes {
		if dish.Name != "" && strings.Contains(lower, strings.ToLower(dish.Name)) {
			return true
		}
	}
	for _, drink := range menu.Drinks {
		if drink.Name != "" && strings.Contains(lower, strings.ToLower(drink.Name)) {
			return true
		}
	}

	if keywordFallback {
		for _, kw := range orderKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}
