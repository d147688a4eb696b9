package enums

import "fmt"

// ReservationKind tells whether a hold came from an online cart or a table order.
type ReservationKind string

const (
	ReservationKindCart  ReservationKind = "cart"
	ReservationKindTable ReservationKind = "table"
)

var validReservationKinds = []ReservationKind{
	ReservationKindCart,
	ReservationKindTable,
}

// String implements fmt.Stringer.
func (r ReservationKind) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReservationKind.
func (r ReservationKind) IsValid() bool {
	for _, candidate := range validReservationKinds {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReservationKind converts raw input into a ReservationKind.
func ParseReservationKind(value string) (ReservationKind, error) {
	for _, candidate := range validReservationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reservation kind %q", value)
}
