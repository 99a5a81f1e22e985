package provider

import (
	"strings"
)

// DoorDashPayload is the DoorDash order webhook
type DoorDashPayload struct {
	EventType  string `json:"event_type"`
	MerchantID string `json:"merchant_id"`
	ID         string `json:"id"`
	Status     string `json:"status"`
	Customer   struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"customer"`
	SpecialInstructions string `json:"special_instructions"`
	Items               []struct {
		Name                string `json:"name"`
		Quantity            int    `json:"quantity"`
		Price               int64  `json:"price"`
		SpecialInstructions string `json:"special_instructions"`
	} `json:"items"`
	Subtotal *int64 `json:"subtotal"`
	Tax      *int64 `json:"tax"`
	Total    *int64 `json:"total"`
	Currency string `json:"currency"`
}

func (p *DoorDashPayload) toDraft() (*Draft, error) {
	d := &Draft{
		ExternalOrderID: strings.TrimSpace(p.ID),
		ExternalStoreID: strings.TrimSpace(p.MerchantID),
		CustomerName:    strings.TrimSpace(p.Customer.Name),
		CustomerPhone:   p.Customer.Phone,
		Notes:           p.SpecialInstructions,
		Items:           make([]DraftItem, 0, len(p.Items)),
		Terminal:        p.terminal(),
	}

	for _, it := range p.Items {
		d.Items = append(d.Items, DraftItem{
			Name:  it.Name,
			Qty:   it.Quantity,
			Price: fromMinorUnits(it.Price),
			Notes: it.SpecialInstructions,
		})
	}

	fillTotals(d, p.Subtotal, p.Tax, p.Total, p.Currency)
	return d, nil
}

func (p *DoorDashPayload) terminal() string {
	switch strings.ToLower(p.EventType) {
	case "order_cancelled":
		return TerminalCancelled
	case "order_delivered":
		return TerminalCompleted
	}
	switch strings.ToLower(p.Status) {
	case "cancelled", "canceled", "failed":
		return TerminalCancelled
	case "delivered", "completed":
		return TerminalCompleted
	}
	return TerminalNone
}
