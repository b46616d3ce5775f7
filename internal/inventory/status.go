package inventory

type StockStatus string

const (
	StatusOutOfStock    StockStatus = "OutOfStock"
	StatusFullyReserved StockStatus = "FullyReserved"
	StatusLowStock      StockStatus = "LowStock"
	StatusInStock       StockStatus = "InStock"
)

const DefaultLowStockThreshold = 20

// StatusOf classifies a record for the admin inventory view.
func StatusOf(rec StockRecord, lowStockThreshold int) StockStatus {
	switch {
	case rec.OnHand == 0:
		return StatusOutOfStock
	case rec.Available() <= 0:
		return StatusFullyReserved
	case rec.Available() <= lowStockThreshold:
		return StatusLowStock
	default:
		return StatusInStock
	}
}
