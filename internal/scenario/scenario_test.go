package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"factoryline/internal/domain"
)

func TestClassify(t *testing.T) {
	wh := func(itemID int) Key { return Key{domain.WSPlantWarehouse, domain.ItemProduct, itemID} }
	sm := func(itemID int) Key { return Key{domain.WSModulesSupermkt, domain.ItemModule, itemID} }

	cases := []struct {
		name      string
		lines     []Line
		stock     Snapshot
		threshold int
		want      string
	}{
		{
			name:      "covered by warehouse stock",
			lines:     []Line{{domain.ItemProduct, 1, 5}},
			stock:     Snapshot{wh(1): 50},
			threshold: 500,
			want:      domain.ScenarioDirectFulfillment,
		},
		{
			name:      "exact quantity still covered",
			lines:     []Line{{domain.ItemProduct, 1, 50}},
			stock:     Snapshot{wh(1): 50},
			threshold: 500,
			want:      domain.ScenarioDirectFulfillment,
		},
		{
			name:      "short warehouse, modules on the shelf",
			lines:     []Line{{domain.ItemProduct, 1, 5}},
			stock:     Snapshot{wh(1): 2, sm(1): 10},
			threshold: 500,
			want:      domain.ScenarioWarehouseOrderNeeded,
		},
		{
			name:      "short warehouse, short modules",
			lines:     []Line{{domain.ItemProduct, 1, 5}},
			stock:     Snapshot{wh(1): 2, sm(1): 3},
			threshold: 500,
			want:      domain.ScenarioProductionRequired,
		},
		{
			name:      "empty plant",
			lines:     []Line{{domain.ItemProduct, 1, 5}},
			stock:     Snapshot{},
			threshold: 500,
			want:      domain.ScenarioProductionRequired,
		},
		{
			name:      "lot size beats available stock",
			lines:     []Line{{domain.ItemProduct, 1, 1000}},
			stock:     Snapshot{wh(1): 5000},
			threshold: 500,
			want:      domain.ScenarioDirectProduction,
		},
		{
			name:      "quantity at the threshold goes to production",
			lines:     []Line{{domain.ItemProduct, 1, 500}},
			stock:     Snapshot{wh(1): 5000},
			threshold: 500,
			want:      domain.ScenarioDirectProduction,
		},
		{
			name:      "one big line drags the whole order",
			lines:     []Line{{domain.ItemProduct, 1, 2}, {domain.ItemProduct, 2, 600}},
			stock:     Snapshot{wh(1): 10, wh(2): 1000},
			threshold: 500,
			want:      domain.ScenarioDirectProduction,
		},
		{
			name:      "mixed lines classify by worst case",
			lines:     []Line{{domain.ItemProduct, 1, 2}, {domain.ItemProduct, 2, 4}},
			stock:     Snapshot{wh(1): 10, sm(2): 2},
			threshold: 500,
			want:      domain.ScenarioProductionRequired,
		},
		{
			name:      "covered line does not consult modules",
			lines:     []Line{{domain.ItemProduct, 1, 2}, {domain.ItemProduct, 2, 4}},
			stock:     Snapshot{wh(1): 10, sm(2): 4},
			threshold: 500,
			want:      domain.ScenarioWarehouseOrderNeeded,
		},
		{
			name:      "zero threshold disables the lot check",
			lines:     []Line{{domain.ItemProduct, 1, 10000}},
			stock:     Snapshot{wh(1): 20000},
			threshold: 0,
			want:      domain.ScenarioDirectFulfillment,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.lines, tc.stock, tc.threshold))
		})
	}
}

func TestSnapshotAbsentKeysReadZero(t *testing.T) {
	s := FromRecords([]domain.StockRecord{
		{WorkstationID: domain.WSPlantWarehouse, ItemType: domain.ItemProduct, ItemID: 1, Quantity: 7},
	})
	assert.Equal(t, 7, s.Quantity(domain.WSPlantWarehouse, domain.ItemProduct, 1))
	assert.Equal(t, 0, s.Quantity(domain.WSPlantWarehouse, domain.ItemProduct, 2))
	assert.Equal(t, 0, s.Quantity(domain.WSDrilling, domain.ItemPart, 1))
}
