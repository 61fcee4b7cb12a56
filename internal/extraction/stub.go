package extraction

import (
	"context"
	"fmt"
)

// Stub returns canned payloads keyed by document type. It backs the "stub" provider in
// local development and the service tests.
type Stub struct {
	Payloads map[string]Payload
	// Fallback is used for classification requests and unknown types.
	Fallback Payload
}

// NewDevStub returns a stub with one plausible payload per document type.
func NewDevStub() *Stub {
	return &Stub{
		Payloads: map[string]Payload{
			"fuel_ticket": {
				"doc_type":    "fuel_ticket",
				"vendor_name": "Estación de Servicio",
				"date_issue":  "01/03/2024",
				"fuel":        map[string]any{"liters": "45,3", "fuel_type": "diesel"},
				"price":       "68.20€",
				"odometer":    "123456",
				"confidence":  0.9,
			},
			"insurance_policy": {
				"doc_type":      "insurance_policy",
				"insurer":       "Aseguradora",
				"policy_number": "POL-0001",
				"date_due":      "31/12/2030",
				"amounts":       map[string]any{"total": "412,50 €"},
			},
			"itv": {
				"doc_type":          "itv",
				"inspection_result": "favorable",
				"date_issue":        "15/02/2024",
				"date_due":          "15/02/2025",
			},
			"tachograph": {
				"doc_type":         "tachograph",
				"calibration_date": "10/01/2024",
				"date_due":         "10/01/2026",
			},
			"workshop_invoice": {
				"doc_type":       "workshop_invoice",
				"vendor_name":    "Taller",
				"invoice_number": "F-2024-001",
				"date_issue":     "05/03/2024",
				"amounts":        map[string]any{"subtotal": "100,00", "tax": "21,00", "total": "121,00 €"},
			},
			"tires_invoice": {
				"doc_type":   "tires_invoice",
				"tire_count": "4",
				"date_issue": "07/03/2024",
				"amounts":    map[string]any{"total": "480,00 €"},
			},
		},
	}
}

func (s *Stub) Extract(ctx context.Context, req Request) (Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransientService, err)
	}
	if len(req.Image) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrUnsupportedContent)
	}
	if p, ok := s.Payloads[normalizeDocType(req.DocumentType)]; ok {
		return clonePayload(p), nil
	}
	if s.Fallback != nil {
		return clonePayload(s.Fallback), nil
	}
	return nil, fmt.Errorf("%w: no stub payload for %q", ErrUnsupportedContent, req.DocumentType)
}

func clonePayload(p Payload) Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		if nested, ok := v.(map[string]any); ok {
			cp := make(map[string]any, len(nested))
			for nk, nv := range nested {
				cp[nk] = nv
			}
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}
