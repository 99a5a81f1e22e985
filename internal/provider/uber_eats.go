package provider

import (
	"strings"
)

// UberEatsPayload is the Uber Eats order webhook
type UberEatsPayload struct {
	EventType    string `json:"event_type"`
	StoreID      string `json:"store_id"`
	OrderID      string `json:"order_id"`
	CurrentState string `json:"current_state"`
	Eater        struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
	} `json:"eater"`
	Cart struct {
		SpecialInstructions string `json:"special_instructions"`
		Items               []struct {
			Title               string `json:"title"`
			Quantity            int    `json:"quantity"`
			Price               int64  `json:"price"`
			SpecialInstructions string `json:"special_instructions"`
		} `json:"items"`
	} `json:"cart"`
	Payment struct {
		Charges struct {
			Subtotal *uberMoney `json:"subtotal"`
			Tax      *uberMoney `json:"tax"`
			Total    *uberMoney `json:"total"`
		} `json:"charges"`
	} `json:"payment"`
}

type uberMoney struct {
	Amount       int64  `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

func (m *uberMoney) amount() *int64 {
	if m == nil {
		return nil
	}
	return &m.Amount
}

func (p *UberEatsPayload) toDraft() (*Draft, error) {
	d := &Draft{
		ExternalOrderID: strings.TrimSpace(p.OrderID),
		ExternalStoreID: strings.TrimSpace(p.StoreID),
		CustomerName:    strings.TrimSpace(p.Eater.FirstName + " " + p.Eater.LastName),
		CustomerPhone:   p.Eater.Phone,
		Notes:           p.Cart.SpecialInstructions,
		Items:           make([]DraftItem, 0, len(p.Cart.Items)),
		Terminal:        p.terminal(),
	}

	for _, it := range p.Cart.Items {
		d.Items = append(d.Items, DraftItem{
			Name:  it.Title,
			Qty:   it.Quantity,
			Price: fromMinorUnits(it.Price),
			Notes: it.SpecialInstructions,
		})
	}

	var currency string
	if c := p.Payment.Charges.Total; c != nil {
		currency = c.CurrencyCode
	}
	fillTotals(d,
		p.Payment.Charges.Subtotal.amount(),
		p.Payment.Charges.Tax.amount(),
		p.Payment.Charges.Total.amount(),
		currency)

	return d, nil
}

func (p *UberEatsPayload) terminal() string {
	switch strings.ToLower(p.EventType) {
	case "orders.cancel", "orders.failure":
		return TerminalCancelled
	}
	switch strings.ToUpper(p.CurrentState) {
	case "CANCELED", "CANCELLED", "DENIED", "FAILED":
		return TerminalCancelled
	case "COMPLETED", "DELIVERED":
		return TerminalCompleted
	}
	return TerminalNone
}
