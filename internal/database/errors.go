package database

import "github.com/m-mizutani/goerr/v2"

var (
	// ErrCustomerNotFound is returned by operations that require an existing customer.
	ErrCustomerNotFound = goerr.New("customer not found")

	// ErrNotInitialized is returned by the provider when no backend has been registered.
	ErrNotInitialized = goerr.New("PostgreSQL backend not initialized: DATABASE_URL is required")
)
