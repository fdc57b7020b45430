package billing

import (
	"fmt"

	"github.com/platinummonkey/finance/pkg/models"
	"github.com/platinummonkey/finance/pkg/records"
	"github.com/platinummonkey/finance/pkg/timeutil"
)

// period is one billable interval of an order in a single state
type period struct {
	orderID string
	item    models.ResourceItem
	state   models.OrderState
	price   float64
	units   int64
}

// periods prices every state interval of the records inside [start, end).
// Malformed records fail the whole computation with ErrInternal.
func periods(table models.PriceTable, recs []records.Record, start, end int64) ([]period, error) {
	var out []period

	for _, record := range recs {
		item, err := records.ItemFromRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%w: order %s: %v", models.ErrInternal, record.OrderID, err)
		}

		history, err := records.StateHistoryOnPeriod(record, start, end)
		if err != nil {
			return nil, fmt.Errorf("%w: order %s: %v", models.ErrInternal, record.OrderID, err)
		}

		for i := 0; i+1 < len(history); i++ {
			state := history[i].State
			price := table.Price(item, state)

			units, err := timeutil.RoundUpTimePeriod(history[i+1].Timestamp-history[i].Timestamp, price.TimeUnit)
			if err != nil {
				return nil, fmt.Errorf("%w: order %s: %v", models.ErrInternal, record.OrderID, err)
			}

			out = append(out, period{
				orderID: record.OrderID,
				item:    item,
				state:   state,
				price:   price.Value,
				units:   units,
			})
		}
	}

	return out, nil
}
