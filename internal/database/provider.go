package database

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
)

var (
	postgresCustomerStore func() CustomerStore
	postgresInitialized   bool
)

// RegisterPostgresBackend registers the PostgreSQL repository constructor.
// This is called by the postgres package to avoid import cycles.
func RegisterPostgresBackend(store func() CustomerStore) {
	postgresCustomerStore = store
	postgresInitialized = store != nil
}

// IsInitialized returns whether the PostgreSQL backend has been initialized.
func IsInitialized() bool {
	return postgresInitialized
}

// GetCustomerStore returns a CustomerStore from the PostgreSQL backend
func GetCustomerStore(ctx context.Context) (CustomerStore, error) {
	if !postgresInitialized {
		return nil, ErrNotInitialized
	}
	if postgresCustomerStore == nil {
		return nil, goerr.New("PostgreSQL customer store not registered")
	}
	return postgresCustomerStore(), nil
}

