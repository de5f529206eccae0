package mariadb

import (
	"context"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/database"
	"github.com/m-mizutani/goerr/v2"
)

// Sale is a finalized bill in the point-of-sale system attributed to a loyalty customer.
type Sale struct {
	CustomerID string
	database.Purchase
}

// SalesSince returns sales with a customer attached, closed strictly after since,
// ordered by closing time.
func (p *Pool) SalesSince(ctx context.Context, since time.Time) ([]Sale, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT customer_id, closed_at, total, items_count
		FROM sales
		WHERE customer_id IS NOT NULL AND customer_id <> '' AND closed_at > ?
		ORDER BY closed_at, id
	`, since.UTC())
	if err != nil {
		return nil, goerr.Wrap(err, "query sales")
	}
	defer rows.Close()

	var sales []Sale
	for rows.Next() {
		var s Sale
		if err := rows.Scan(&s.CustomerID, &s.Date, &s.Amount, &s.ItemsCount); err != nil {
			return nil, goerr.Wrap(err, "scan sale")
		}
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "iterate sales")
	}
	return sales, nil
}

// FilterNew drops sales that are not newer than the latest stored purchase of their customer.
func FilterNew(sales []Sale, latest map[string]time.Time) []Sale {
	out := make([]Sale, 0, len(sales))
	for _, s := range sales {
		if last, ok := latest[s.CustomerID]; ok && !s.Date.After(last) {
			continue
		}
		out = append(out, s)
	}
	return out
}
