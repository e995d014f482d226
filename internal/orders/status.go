package orders

type Status string

const (
	StatusPending Status = "PENDING"
	StatusPaid    Status = "PAID"
	StatusExpired Status = "EXPIRED"
)

// PAID dan EXPIRED absorbing, tidak ada transisi keluar.
var validNext = map[Status]map[Status]bool{
	StatusPending: {StatusPaid: true, StatusExpired: true},
	StatusPaid:    {},
	StatusExpired: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusExpired
}

// Invoice statuses reported by the payment gateway.
const (
	GatewayPaid    = "PAID"
	GatewaySettled = "SETTLED"
	GatewayPending = "PENDING"
	GatewayExpired = "EXPIRED"
)

// TargetStatus maps a gateway invoice status onto the order status it implies.
// ok is false for statuses that must not move the order (PENDING, unknown strings).
func TargetStatus(gatewayStatus string) (Status, bool) {
	switch gatewayStatus {
	case GatewayPaid, GatewaySettled:
		return StatusPaid, true
	case GatewayExpired:
		return StatusExpired, true
	default:
		return "", false
	}
}
