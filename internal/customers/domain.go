package customers

import (
	"errors"
	"time"
)

// Customer is a named party orders can reference for delivery and loyalty.
type Customer struct {
	ID        int64
	Name      string
	Phone     string
	Email     string
	BranchID  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

var (
	// ErrCustomerNotFound indicates a missing customer.
	ErrCustomerNotFound = errors.New("customers: customer not found")
	// ErrDuplicatePhone indicates a phone number collision.
	ErrDuplicatePhone = errors.New("customers: phone already registered")
)
