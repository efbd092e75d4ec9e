package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"factoryline/internal/config"
	"factoryline/internal/db"
	"factoryline/internal/domain"
	"factoryline/internal/engine"
	"factoryline/internal/migrate"
	"factoryline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("plant-1")
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()
	if _, err := eng.InitPlant(ctx, "plant-1", "test plant", "tester"); err != nil {
		t.Fatalf("init plant: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func mustAdjust(t *testing.T, env testEnv, ws int, itemType string, itemID, delta int) domain.LedgerEntry {
	t.Helper()
	entry, err := env.Engine.Adjust(env.Ctx, engine.AdjustOptions{
		WorkstationID: ws,
		ItemType:      itemType,
		ItemID:        itemID,
		Delta:         delta,
		ActorID:       "tester",
	})
	if err != nil {
		t.Fatalf("adjust %d %s %d by %d: %v", ws, itemType, itemID, delta, err)
	}
	return entry
}

func stockQty(t *testing.T, env testEnv, ws int, itemType string, itemID int) int {
	t.Helper()
	rec, err := env.Engine.Repo.GetStock(env.Ctx, ws, itemType, itemID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0
	}
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	return rec.Quantity
}

func TestAdjustCreatesRecordAndLedgerEntry(t *testing.T) {
	env := newTestEnv(t)
	entry := mustAdjust(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1, 50)
	if entry.BalanceAfter != 50 {
		t.Fatalf("balance after = %d, want 50", entry.BalanceAfter)
	}
	if got := stockQty(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 1); got != 50 {
		t.Fatalf("stock = %d, want 50", got)
	}
}

func TestLedgerSumMatchesBalance(t *testing.T) {
	env := newTestEnv(t)
	deltas := []int{10, -3, 7, -1, 20, -8}
	sum := 0
	for _, d := range deltas {
		mustAdjust(t, env, domain.WSDrilling, domain.ItemPart, 3, d)
		sum += d
	}
	entries, err := env.Engine.History(env.Ctx, repo.LedgerFilters{})
	if err != nil {
		t.Fatal(err)
	}
	got := 0
	for _, e := range entries {
		got += e.Delta
	}
	// History is most-recent-first, so entries[0] is the last write.
	last := entries[0]
	if got != sum {
		t.Fatalf("delta sum = %d, want %d", got, sum)
	}
	if last.BalanceAfter != sum {
		t.Fatalf("last balance = %d, want %d", last.BalanceAfter, sum)
	}
	if q := stockQty(t, env, domain.WSDrilling, domain.ItemPart, 3); q != sum {
		t.Fatalf("stock = %d, want %d", q, sum)
	}
}

func TestInsufficientStockRejectedAtomically(t *testing.T) {
	env := newTestEnv(t)
	mustAdjust(t, env, domain.WSMilling, domain.ItemPart, 1, 5)
	_, err := env.Engine.Adjust(env.Ctx, engine.AdjustOptions{
		WorkstationID: domain.WSMilling,
		ItemType:      domain.ItemPart,
		ItemID:        1,
		Delta:         -6,
		ActorID:       "tester",
	})
	if !errors.Is(err, engine.ErrInsufficientStock) {
		t.Fatalf("want ErrInsufficientStock, got %v", err)
	}
	if q := stockQty(t, env, domain.WSMilling, domain.ItemPart, 1); q != 5 {
		t.Fatalf("stock = %d, want 5 (rejected write must not change it)", q)
	}
	entries, err := env.Engine.History(env.Ctx, repo.LedgerFilters{ItemType: domain.ItemPart})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("ledger entries = %d, want 1 (no entry for rejected write)", len(entries))
	}
}

func TestConcurrentDecrements(t *testing.T) {
	env := newTestEnv(t)
	const start, workers = 20, 30
	mustAdjust(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 9, start)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.Adjust(env.Ctx, engine.AdjustOptions{
				WorkstationID: domain.WSPlantWarehouse,
				ItemType:      domain.ItemProduct,
				ItemID:        9,
				Delta:         -1,
				ActorID:       "tester",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok, rejected := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, engine.ErrInsufficientStock):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != start || rejected != workers-start {
		t.Fatalf("ok=%d rejected=%d, want %d/%d", ok, rejected, start, workers-start)
	}
	if q := stockQty(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 9); q != 0 {
		t.Fatalf("stock = %d, want 0", q)
	}
}

func TestSetStockLevelRecordsAdminReset(t *testing.T) {
	env := newTestEnv(t)
	mustAdjust(t, env, domain.WSPlantWarehouse, domain.ItemProduct, 2, 12)
	rec, entry, err := env.Engine.SetStockLevel(env.Ctx, domain.WSPlantWarehouse, domain.ItemProduct, 2, 40, "admin")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Quantity != 40 {
		t.Fatalf("quantity = %d, want 40", rec.Quantity)
	}
	if entry == nil || entry.Delta != 28 || entry.ReasonCode != domain.ReasonAdminReset {
		t.Fatalf("entry = %+v, want delta 28 reason ADMIN_RESET", entry)
	}
	// no-op target writes nothing
	_, entry, err = env.Engine.SetStockLevel(env.Ctx, domain.WSPlantWarehouse, domain.ItemProduct, 2, 40, "admin")
	if err != nil || entry != nil {
		t.Fatalf("no-op set: entry=%v err=%v", entry, err)
	}
}

func TestThresholdEvaluation(t *testing.T) {
	env := newTestEnv(t)
	ws := domain.WSPlantWarehouse
	item := 1
	if _, err := env.Engine.UpsertThresholds(env.Ctx, []engine.ThresholdUpsert{
		{WorkstationID: &ws, ItemType: domain.ItemProduct, ItemID: &item, Threshold: 20},
	}, "tester"); err != nil {
		t.Fatal(err)
	}
	mustAdjust(t, env, ws, domain.ItemProduct, 1, 5)

	alerts, err := env.Engine.EvaluateThresholds(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	var found *domain.LowStockAlert
	for i := range alerts {
		a := alerts[i]
		if a.WorkstationID == ws && a.ItemType == domain.ItemProduct && a.ItemID == 1 {
			found = &a
		}
	}
	if found == nil {
		t.Fatalf("expected an alert for ws %d product 1, got %+v", ws, alerts)
	}
	if found.Deficit != 15 {
		t.Fatalf("deficit = %d, want 15", found.Deficit)
	}

	mustAdjust(t, env, ws, domain.ItemProduct, 1, 20)
	alerts, err = env.Engine.EvaluateThresholds(env.Ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range alerts {
		if a.WorkstationID == ws && a.ItemType == domain.ItemProduct && a.ItemID == 1 {
			t.Fatalf("alert still raised at quantity 25 against threshold 20")
		}
	}
}

func TestThresholdSpecificityPrefersExactKey(t *testing.T) {
	env := newTestEnv(t)
	ws := domain.WSDrilling
	item := 4
	// wildcard PART threshold was seeded at init; add an exact row above it
	if _, err := env.Engine.UpsertThresholds(env.Ctx, []engine.ThresholdUpsert{
		{WorkstationID: &ws, ItemType: domain.ItemPart, ItemID: &item, Threshold: 50},
	}, "tester"); err != nil {
		t.Fatal(err)
	}
	mustAdjust(t, env, ws, domain.ItemPart, 4, 30)

	alerts, err := env.Engine.EvaluateThresholds(env.Ctx, &ws)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range alerts {
		if a.ItemType == domain.ItemPart && a.ItemID == 4 {
			found = true
			if a.Threshold != 50 {
				t.Fatalf("threshold = %d, want exact-key 50 over wildcard", a.Threshold)
			}
		}
	}
	if !found {
		t.Fatalf("expected alert under exact threshold, got %+v", alerts)
	}
}

func TestThresholdDuplicateKeyBecomesUpdate(t *testing.T) {
	env := newTestEnv(t)
	ws := domain.WSMilling
	item := 2
	first, err := env.Engine.UpsertThresholds(env.Ctx, []engine.ThresholdUpsert{
		{WorkstationID: &ws, ItemType: domain.ItemPart, ItemID: &item, Threshold: 10},
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.UpsertThresholds(env.Ctx, []engine.ThresholdUpsert{
		{WorkstationID: &ws, ItemType: domain.ItemPart, ItemID: &item, Threshold: 25},
	}, "tester")
	if err != nil {
		t.Fatal(err)
	}
	if first[0].ID != second[0].ID {
		t.Fatalf("same key produced two rows: %d and %d", first[0].ID, second[0].ID)
	}
	if second[0].Threshold != 25 {
		t.Fatalf("threshold = %d, want 25", second[0].Threshold)
	}
}
