package prediction

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/kozaktomas/customer-recognition/internal/constants"
	"github.com/kozaktomas/customer-recognition/internal/database"
)

// SampleCustomerIDs are always included in generated data.
var SampleCustomerIDs = []string{"C1743108678", "C1743108464", "C100001", "C100002"}

// SyntheticHistory generates a plausible purchase history ending no later than now.
// Each customer gets an average bill in [50, 200), a spread of 20% of it and a
// purchase interval of 10 to 30 days. Weekend bills are 20% higher, November and
// December bills 10% higher.
func SyntheticHistory(rng *rand.Rand, now time.Time) []database.Purchase {
	avg := 50 + rng.Float64()*150
	spread := avg * 0.2
	frequency := 10 + rng.IntN(21)

	start := now.AddDate(0, 0, -constants.SyntheticHistoryDays)
	purchases := make([]database.Purchase, 0, constants.SyntheticPurchases)
	for i := range constants.SyntheticPurchases {
		step := frequency - 5 + rng.IntN(11)
		date := start.AddDate(0, 0, step*i)
		if date.After(now) {
			break
		}

		mean := avg
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			mean *= 1.2
		}
		if m := date.Month(); m == time.November || m == time.December {
			mean *= 1.1
		}
		amount := math.Max(0, math.Round((mean+rng.NormFloat64()*spread)*100)/100)

		purchases = append(purchases, database.Purchase{
			Date:       date,
			Amount:     amount,
			ItemsCount: 1 + rng.IntN(20),
		})
	}
	// steps are drawn per purchase, so dates are not necessarily increasing
	slices.SortStableFunc(purchases, func(a, b database.Purchase) int { return a.Date.Compare(b.Date) })
	return purchases
}
