package orders

type Status string

const (
	StatusPending             Status = "Pending"
	StatusProcessing          Status = "Processing"
	StatusShipped             Status = "Shipped"
	StatusDelivered           Status = "Delivered"
	StatusCancelled           Status = "Cancelled"
	StatusPendingCancellation Status = "PendingCancellation"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
	StatusPendingCancellation,
}

func (s Status) Valid() bool {
	for _, x := range allStatuses {
		if s == x {
			return true
		}
	}
	return false
}

// Terminal states accept no further events.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

var validNext = func() map[Status]map[Status]bool {
	m := make(map[Status]map[Status]bool, len(allStatuses))
	for _, s := range allStatuses {
		m[s] = map[Status]bool{}
	}
	for k, r := range rules {
		m[k.from][r.to] = true
	}
	return m
}()

// CanTransition reports whether some event moves an order from one status to
// the other.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
