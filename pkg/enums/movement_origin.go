package enums

import "fmt"

// MovementOrigin records which business flow produced a stock movement.
type MovementOrigin string

const (
	MovementOriginRegistration           MovementOrigin = "registration"
	MovementOriginOnlineSale             MovementOrigin = "online-sale"
	MovementOriginInPersonSale           MovementOrigin = "in-person-sale"
	MovementOriginOnlineSaleCancellation MovementOrigin = "online-sale-cancellation"
	MovementOriginInPersonCancellation   MovementOrigin = "in-person-sale-cancellation"
)

var validMovementOrigins = []MovementOrigin{
	MovementOriginRegistration,
	MovementOriginOnlineSale,
	MovementOriginInPersonSale,
	MovementOriginOnlineSaleCancellation,
	MovementOriginInPersonCancellation,
}

// String implements fmt.Stringer.
func (m MovementOrigin) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MovementOrigin.
func (m MovementOrigin) IsValid() bool {
	for _, candidate := range validMovementOrigins {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsCancellation reports whether the origin restores stock from a voided sale.
func (m MovementOrigin) IsCancellation() bool {
	return m == MovementOriginOnlineSaleCancellation || m == MovementOriginInPersonCancellation
}

// ParseMovementOrigin converts raw input into a MovementOrigin.
func ParseMovementOrigin(value string) (MovementOrigin, error) {
	for _, candidate := range validMovementOrigins {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement origin %q", value)
}
