package provider

import (
	"encoding/json"
	"fmt"
	"strings"

	"provider-sync/internal/models"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/shopspring/decimal"
)

const defaultCurrency = "USD"

// Terminal states a provider can report
const (
	TerminalNone      = ""
	TerminalCancelled = models.OrderStatusCancelled
	TerminalCompleted = models.OrderStatusCompleted
)

// Draft is the canonical, provider-agnostic order produced from a webhook
type Draft struct {
	Source          string          `json:"source"`
	Provider        models.Provider `json:"provider"`
	ExternalOrderID string          `json:"external_order_id"`
	ExternalStoreID string          `json:"external_store_id"`
	CustomerName    string          `json:"customer_name"`
	CustomerPhone   string          `json:"customer_phone"`
	Notes           string          `json:"notes"`
	Items           []DraftItem     `json:"items"`
	Totals          Totals          `json:"totals"`
	// Terminal is the terminal state reported by the provider, if any
	Terminal string `json:"terminal,omitempty"`
}

type DraftItem struct {
	Name  string          `json:"name"`
	Qty   int             `json:"qty"`
	Price decimal.Decimal `json:"price"`
	Notes string          `json:"notes,omitempty"`
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
	Currency string          `json:"currency"`
}

// Description summarizes the items, e.g. "2x Burger, 1x Fries"
func (d *Draft) Description() string {
	parts := make([]string, 0, len(d.Items))
	for _, it := range d.Items {
		parts = append(parts, fmt.Sprintf("%dx %s", it.Qty, it.Name))
	}
	return strings.Join(parts, ", ")
}

// variant is a provider-specific webhook shape
type variant interface {
	toDraft() (*Draft, error)
}

// Normalizer turns raw provider webhooks into Drafts
type Normalizer struct {
	schemas map[models.Provider]*jsonschema.Schema
}

// NewNormalizer compiles the embedded provider schemas
func NewNormalizer() (*Normalizer, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	return &Normalizer{schemas: schemas}, nil
}

// Normalize validates body against the provider schema and converts it.
// Any payload that does not fit a known shape yields a *models.ValidationError.
func (n *Normalizer) Normalize(p models.Provider, body []byte) (*Draft, error) {
	schema, ok := n.schemas[p]
	if !ok {
		return nil, &models.ValidationError{Field: "provider", Reason: fmt.Sprintf("unknown provider %q", p)}
	}
	if err := validateShape(schema, body); err != nil {
		return nil, err
	}

	var v variant
	switch p {
	case models.ProviderUberEats:
		v = &UberEatsPayload{}
	case models.ProviderDoorDash:
		v = &DoorDashPayload{}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return nil, &models.ValidationError{Reason: fmt.Sprintf("decode %s payload: %v", p, err)}
	}

	draft, err := v.toDraft()
	if err != nil {
		return nil, err
	}
	if draft.ExternalStoreID == "" {
		return nil, &models.ValidationError{Field: "external_store_id", Reason: "missing"}
	}
	if draft.ExternalOrderID == "" {
		return nil, &models.ValidationError{Field: "external_order_id", Reason: "missing"}
	}

	draft.Provider = p
	draft.Source = p.Source()
	return draft, nil
}

// fromMinorUnits converts cents to a decimal amount
func fromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// fillTotals derives missing totals from the items
func fillTotals(d *Draft, subtotal, tax, total *int64, currency string) {
	if subtotal != nil {
		d.Totals.Subtotal = fromMinorUnits(*subtotal)
	} else {
		sum := decimal.Zero
		for _, it := range d.Items {
			sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
		}
		d.Totals.Subtotal = sum
	}

	if tax != nil {
		d.Totals.Tax = fromMinorUnits(*tax)
	} else {
		d.Totals.Tax = decimal.Zero
	}

	if total != nil {
		d.Totals.Total = fromMinorUnits(*total)
	} else {
		d.Totals.Total = d.Totals.Subtotal.Add(d.Totals.Tax)
	}

	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = defaultCurrency
	}
	d.Totals.Currency = currency
}
