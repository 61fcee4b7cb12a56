package extraction

import (
	"fmt"
	"strings"
)

const basePrompt = `Analyze this photo of a vehicle fleet document (usually in Spanish) and extract the relevant data.

Return ONLY a valid JSON object, with no additional text, using exactly this structure:

{
  "doc_type": "fuel_ticket" | "insurance_policy" | "itv" | "tachograph" | "workshop_invoice" | "tires_invoice" | "other",
  "vehicle_identifier_guess": "license plate if visible, or null",
  "vendor_name": "vendor or issuer name, or null",
  "vendor_tax_id": "CIF/NIF, or null",
  "date_issue": "issue date as printed, or null",
  "date_due": "expiry or next due date (insurance/ITV/tachograph), or null",
  "amounts": {
    "subtotal": "as printed, or null",
    "tax": "as printed, or null",
    "total": "as printed, or null",
    "currency": "ISO code or symbol as printed, or null"
  },
  "fuel": {
    "liters": "as printed, or null",
    "price_per_liter": "as printed, or null",
    "fuel_type": "diesel/gasoline/etc, or null"
  },
  "odometer_km": "as printed, or null",
%s  "notes": "free text, or null",
  "confidence": number between 0 and 1
}

Rules:
- doc_type: fuel_ticket = fuel receipt, insurance_policy = insurance policy, itv = roadworthiness inspection, tachograph = tachograph calibration, workshop_invoice = workshop invoice, tires_invoice = tire invoice, other = anything else or unreadable.
- Use null for fields that are not present. Never invent values.
- Copy numbers and dates exactly as printed; do not convert formats or currencies.
%s`

var typeFields = map[string]string{
	"fuel_ticket": `  "station_address": "or null",
`,
	"insurance_policy": `  "policy_number": "or null",
  "insurer": "or null",
  "coverage": "or null",
`,
	"itv": `  "inspection_result": "favorable/unfavorable/negative, or null",
  "station": "or null",
`,
	"tachograph": `  "calibration_date": "or null",
  "workshop_number": "or null",
`,
	"workshop_invoice": `  "invoice_number": "or null",
  "work_description": "or null",
`,
	"tires_invoice": `  "invoice_number": "or null",
  "tire_count": "or null",
  "tire_size": "or null",
`,
}

var typeRules = map[string]string{
	"fuel_ticket":      "- This image is expected to be a fuel receipt: liters, price and odometer matter most.\n",
	"insurance_policy": "- This image is expected to be an insurance policy: policy number, insurer and expiry date (date_due) matter most.\n",
	"itv":              "- This image is expected to be an ITV inspection report: result and next inspection date (date_due) matter most.\n",
	"tachograph":       "- This image is expected to be a tachograph calibration: calibration date and next due date (date_due) matter most.\n",
	"workshop_invoice": "- This image is expected to be a workshop invoice: total, tax and work description matter most.\n",
	"tires_invoice":    "- This image is expected to be a tire invoice: total, tax and tire count matter most.\n",
}

// BuildPrompt returns the instruction for documentType. An empty type yields the
// classification prompt with every type-specific field.
func BuildPrompt(documentType string) string {
	documentType = normalizeDocType(documentType)
	if fields, ok := typeFields[documentType]; ok {
		return fmt.Sprintf(basePrompt, fields, typeRules[documentType])
	}
	var all strings.Builder
	for _, t := range []string{"fuel_ticket", "insurance_policy", "itv", "tachograph", "workshop_invoice", "tires_invoice"} {
		all.WriteString(typeFields[t])
	}
	return fmt.Sprintf(basePrompt, dedupeLines(all.String()), "")
}

func dedupeLines(s string) string {
	seen := map[string]bool{}
	var b strings.Builder
	for _, line := range strings.SplitAfter(s, "\n") {
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		b.WriteString(line)
	}
	return b.String()
}

func normalizeDocType(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
