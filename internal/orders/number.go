package orders

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewOrderNumber formats a customer-facing order number: ORD, the UTC
// timestamp to the second and a random suffix so two orders placed in the
// same second do not collide.
func NewOrderNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ORD" + at.UTC().Format("20060102150405") + "-" + suffix
}
