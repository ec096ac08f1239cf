// Package business loads the immutable business profile and menu catalog for
// Anfitrion.
//
// The profile is read once at startup from a JSON file; a failure to load or
// parse it is fatal. Missing fields degrade to a placeholder string so a
// sparse file never crashes the bot mid-conversation.
package business

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Placeholder is substituted for any optional profile field absent from the
// business data file.
const Placeholder = "No disponible por el momento"

// DefaultName is used when the business file omits its own name.
const DefaultName = "nuestro restaurante"

// Item is a single priced menu entry.
type Item struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// Menu holds the ordered menu catalog. Dishes are checked before drinks
// during order detection, so order matters.
type Menu struct {
	Specialty string `json:"specialty"`
	Dishes    []Item `json:"dishes"`
	Drinks    []Item `json:"drinks"`
}

// Profile is the process-wide business record, read-only after Load.
type Profile struct {
	Name             string `json:"name"`
	Hours            string `json:"hours"`
	Contact          string `json:"contact"`
	Location         string `json:"location"`
	PaymentMethods   string `json:"paymentMethods"`
	PaymentReference string `json:"paymentReference,omitempty"`
	Menu             Menu   `json:"menu"`
}

// Load reads and parses the business profile from path, substituting
// placeholders for absent fields. Errors here are fatal at startup; the
// caller must not accept messages without a profile.
func Load(path string) (*Profile, error) {
	slog.Debug("business.Load reading profile", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read business file %s: %w", path, err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse business file %s: %w", path, err)
	}

	p.applyDefaults()
	slog.Info("business.Load profile loaded",
		"name", p.Name,
		"dishes", len(p.Menu.Dishes),
		"drinks", len(p.Menu.Drinks))
	return &p, nil
}

// applyDefaults fills absent optional fields with the placeholder so reply
// templates never render empty strings.
func (p *Profile) applyDefaults() {
	if strings.TrimSpace(p.Name) == "" {
		p.Name = DefaultName
	}
	for _, field := range []*string{&p.Hours, &p.Contact, &p.Location, &p.PaymentMethods} {
		if strings.TrimSpace(*field) == "" {
			*field = Placeholder
		}
	}
	if strings.TrimSpace(p.Menu.Specialty) == "" {
		p.Menu.Specialty = Placeholder
	}
}

// FormatMenu renders the full menu block sent for menu inquiries.
func (p *Profile) FormatMenu() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔥 *Menú de %s*\n\n🌟 *Especialidad:* %s\n\n🍖 *Nuestros Platillos:*\n", p.Name, p.Menu.Specialty)
	for _, dish := range p.Menu.Dishes {
		fmt.Fprintf(&b, "• %s - $%.2f\n", dish.Name, dish.Price)
	}
	b.WriteString("\n🥤 *Bebidas:*\n")
	for _, drink := range p.Menu.Drinks {
		fmt.Fprintf(&b, "• %s - $%.2f\n", drink.Name, drink.Price)
	}
	fmt.Fprintf(&b, "\n💡 ¡Te esperamos en %s! 🔥", p.Name)
	return b.String()
}
