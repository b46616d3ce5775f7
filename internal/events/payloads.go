package events

type OrderLine struct {
	VariantID string `json:"variant_id"`
	SKU       string `json:"sku"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

type OrderPlacedPayload struct {
	OrderID       string      `json:"order_id"`
	OrderNumber   string      `json:"order_number"`
	CustomerID    string      `json:"customer_id"`
	Lines         []OrderLine `json:"lines"`
	Total         string      `json:"total"`
	PaymentMethod string      `json:"payment_method"`
}

type OrderStatusChangedPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Event         string `json:"event"`
	From          string `json:"from"`
	To            string `json:"to"`
	ActorID       string `json:"actor_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
	PaymentStatus string `json:"payment_status,omitempty"`
}

type StockChangedPayload struct {
	VariantID      string `json:"variant_id"`
	Type           string `json:"type"`
	Quantity       int    `json:"quantity"`
	QuantityBefore int    `json:"quantity_before"`
	QuantityAfter  int    `json:"quantity_after"`
	OnHand         int    `json:"on_hand"`
	Reserved       int    `json:"reserved"`
	Available      int    `json:"available"`
	OrderID        string `json:"order_id,omitempty"`
	// Version is the stock record version after the change; projections
	// use it to drop events that arrive late.
	Version int64 `json:"version"`
}
