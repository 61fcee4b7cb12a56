package telegram

import (
	"strings"

	"fleetdocs-backend/internal/documents"
	"fleetdocs-backend/internal/normalize"
)

// Caption is what an operator can annotate a photo with: "#fuel @1234ABC".
type Caption struct {
	Type       documents.Type
	VehicleRef string
}

// ParseCaption picks the first recognised #type tag and the first @plate. Unknown tags
// are ignored so free text in the caption never blocks intake.
func ParseCaption(text string) Caption {
	var c Caption
	for _, token := range strings.Fields(text) {
		switch {
		case strings.HasPrefix(token, "#") && c.Type == "":
			if t, ok := documents.ParseType(token); ok {
				c.Type = t
			}
		case strings.HasPrefix(token, "@") && c.VehicleRef == "":
			c.VehicleRef = normalize.NormalizePlate(strings.TrimPrefix(token, "@"))
		}
	}
	return c
}
