// Package scenario classifies an order into a fulfillment strategy. It is
// deliberately free of I/O and clocks: identical inputs always produce the
// same result, so decision points can be tested exhaustively without a
// database.
package scenario

import "factoryline/internal/domain"

// Line is one requested order line.
type Line struct {
	ItemType string
	ItemID   int
	Quantity int
}

// Key addresses one stock record in a snapshot.
type Key struct {
	WorkstationID int
	ItemType      string
	ItemID        int
}

// Snapshot is a point-in-time view of on-hand quantities. Absent keys read
// as zero.
type Snapshot map[Key]int

// FromRecords builds a snapshot from stock records.
func FromRecords(records []domain.StockRecord) Snapshot {
	s := make(Snapshot, len(records))
	for _, r := range records {
		s[Key{r.WorkstationID, r.ItemType, r.ItemID}] = r.Quantity
	}
	return s
}

// Quantity returns the snapshot quantity for a key, zero if absent.
func (s Snapshot) Quantity(workstationID int, itemType string, itemID int) int {
	return s[Key{workstationID, itemType, itemID}]
}

// Classify aggregates over every line and picks one of the four scenarios.
//
// The quantity check runs first: any line at or above the lot-size threshold
// sends the whole order straight to production, even when stock would cover
// it, so a big run is not fragmented by intermediate replenishment.
// Otherwise the order is DIRECT_FULFILLMENT when finished stock at the
// plant warehouse covers every line, WAREHOUSE_ORDER_NEEDED when the
// shortfall is coverable from the modules supermarket one stage up, and
// PRODUCTION_REQUIRED when the modules themselves are short. Products map
// to modules one to one by item id.
func Classify(lines []Line, snap Snapshot, lotSizeThreshold int) string {
	if lotSizeThreshold > 0 {
		for _, l := range lines {
			if l.Quantity >= lotSizeThreshold {
				return domain.ScenarioDirectProduction
			}
		}
	}
	allCovered := true
	modulesCoverShortfall := true
	for _, l := range lines {
		onHand := snap.Quantity(domain.WSPlantWarehouse, l.ItemType, l.ItemID)
		if onHand >= l.Quantity {
			continue
		}
		allCovered = false
		modules := snap.Quantity(domain.WSModulesSupermkt, domain.ItemModule, l.ItemID)
		if modules < l.Quantity {
			modulesCoverShortfall = false
		}
	}
	switch {
	case allCovered:
		return domain.ScenarioDirectFulfillment
	case modulesCoverShortfall:
		return domain.ScenarioWarehouseOrderNeeded
	default:
		return domain.ScenarioProductionRequired
	}
}
