package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/volbot/volcluster/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testBot(plan domain.PlanID) domain.Bot {
	now := time.Now()
	return domain.Bot{
		ID:          uuid.NewString(),
		TargetToken: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		PlanID:      plan,
		Status:      domain.BotStatusInitializing,
		ExpiresAt:   now.Add(24 * time.Hour),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestBotRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bot := testBot(domain.PlanPro)
	if err := s.InsertBot(ctx, bot); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetBot(ctx, bot.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("bot not found after insert")
	}
	if got.PlanID != domain.PlanPro || got.Status != domain.BotStatusInitializing {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.LastTradeAt != nil {
		t.Fatal("fresh bot must have nil last_trade_at")
	}
	if !got.ExpiresAt.Equal(bot.ExpiresAt.Truncate(0)) && got.ExpiresAt.Sub(bot.ExpiresAt).Abs() > time.Millisecond {
		t.Fatalf("expires_at drifted: %s vs %s", got.ExpiresAt, bot.ExpiresAt)
	}

	missing, err := s.GetBot(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Fatal("missing bot should be nil, not error")
	}
}

func TestListBots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.InsertBot(ctx, testBot(domain.PlanBasic)); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	bots, err := s.ListBots(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bots) != 3 {
		t.Fatalf("expected 3 bots, got %d", len(bots))
	}
}

func TestUpdateBotStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bot := testBot(domain.PlanBasic)
	if err := s.InsertBot(ctx, bot); err != nil {
		t.Fatalf("insert: %v", err)
	}

	tradeAt := time.Now()
	stats := domain.BotStats{
		Status:      domain.BotStatusActive,
		LastTradeAt: tradeAt,
		VolumeDelta: 5,
		ProfitDelta: 0.0004,
		WalletCount: 1,
	}
	if err := s.UpdateBotStats(ctx, bot.ID, stats); err != nil {
		t.Fatalf("update stats: %v", err)
	}

	got, _ := s.GetBot(ctx, bot.ID)
	if got.Status != domain.BotStatusActive {
		t.Fatalf("status %s", got.Status)
	}
	if got.TotalVolumeGenerated != 5 || got.Profit != 0.0004 || got.WalletCount != 1 {
		t.Fatalf("stats mismatch: %+v", got)
	}
	if got.LastTradeAt == nil {
		t.Fatal("last_trade_at not persisted")
	}

	// the deltas accumulate; a second identical update doubles the counters
	if err := s.UpdateBotStats(ctx, bot.ID, stats); err != nil {
		t.Fatalf("second update: %v", err)
	}
	got, _ = s.GetBot(ctx, bot.ID)
	if got.TotalVolumeGenerated != 10 || got.Profit != 0.0008 {
		t.Fatalf("increments not accumulated: %+v", got)
	}

	if err := s.UpdateBotStats(ctx, "nope", stats); err == nil {
		t.Fatal("updating a missing bot must fail")
	}
}

func TestWalletSlotUniqueness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bot := testBot(domain.PlanBasic)
	if err := s.InsertBot(ctx, bot); err != nil {
		t.Fatalf("insert bot: %v", err)
	}

	w := domain.ExecutionWallet{
		ID:           uuid.NewString(),
		BotID:        bot.ID,
		Slot:         0,
		PublicKey:    "pub1",
		SecretHandle: "vault:wallet/a",
		Label:        "Cluster Node 1",
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	inserted, err := s.InsertWalletSlot(ctx, w)
	if err != nil {
		t.Fatalf("insert wallet: %v", err)
	}
	if !inserted {
		t.Fatal("first insert must win the slot")
	}

	// same slot, different row: must be ignored, not error
	dup := w
	dup.ID = uuid.NewString()
	dup.PublicKey = "pub2"
	inserted, err = s.InsertWalletSlot(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate slot insert: %v", err)
	}
	if inserted {
		t.Fatal("second insert for the same slot must lose")
	}

	wallets, _ := s.ListWallets(ctx, bot.ID)
	if len(wallets) != 1 {
		t.Fatalf("expected 1 wallet, got %d", len(wallets))
	}
	if wallets[0].PublicKey != "pub1" {
		t.Fatalf("slot winner overwritten: %s", wallets[0].PublicKey)
	}
}

func TestWalletBalanceAndDeactivate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bot := testBot(domain.PlanBasic)
	if err := s.InsertBot(ctx, bot); err != nil {
		t.Fatalf("insert bot: %v", err)
	}
	w := domain.ExecutionWallet{
		ID:           uuid.NewString(),
		BotID:        bot.ID,
		Slot:         0,
		PublicKey:    "pub1",
		SecretHandle: "vault:wallet/a",
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if _, err := s.InsertWalletSlot(ctx, w); err != nil {
		t.Fatalf("insert wallet: %v", err)
	}

	if err := s.UpdateWalletBalance(ctx, w.ID, 0.05); err != nil {
		t.Fatalf("update balance: %v", err)
	}
	if err := s.DeactivateWallet(ctx, w.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	wallets, _ := s.ListWallets(ctx, bot.ID)
	if wallets[0].BalanceSOL != 0.05 {
		t.Fatalf("balance %f", wallets[0].BalanceSOL)
	}
	if wallets[0].IsActive {
		t.Fatal("wallet still active after deactivate")
	}
}

func TestWalletsOrderedBySlot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bot := testBot(domain.PlanPro)
	if err := s.InsertBot(ctx, bot); err != nil {
		t.Fatalf("insert bot: %v", err)
	}
	for _, slot := range []int{3, 0, 2, 1} {
		w := domain.ExecutionWallet{
			ID:           uuid.NewString(),
			BotID:        bot.ID,
			Slot:         slot,
			PublicKey:    uuid.NewString(),
			SecretHandle: "vault:wallet/" + uuid.NewString(),
			IsActive:     true,
			CreatedAt:    time.Now(),
		}
		if _, err := s.InsertWalletSlot(ctx, w); err != nil {
			t.Fatalf("insert slot %d: %v", slot, err)
		}
	}

	wallets, _ := s.ListWallets(ctx, bot.ID)
	for i, w := range wallets {
		if w.Slot != i {
			t.Fatalf("position %d holds slot %d", i, w.Slot)
		}
	}
}

func TestMasterSettingsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	got, err := s.GetMasterSettings(ctx)
	if err != nil {
		t.Fatalf("get empty: %v", err)
	}
	if got != nil {
		t.Fatal("settings should be nil before first upsert")
	}

	first := domain.MasterSettings{
		RPCURL:             "https://rpc.example.com",
		MasterSecretHandle: "vault:master",
		UpdatedAt:          time.Now(),
	}
	if err := s.UpsertMasterSettings(ctx, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := first
	second.AggregatorAPIKey = "key123"
	if err := s.UpsertMasterSettings(ctx, second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, _ = s.GetMasterSettings(ctx)
	if got == nil {
		t.Fatal("settings missing after upsert")
	}
	if got.RPCURL != "https://rpc.example.com" || got.AggregatorAPIKey != "key123" {
		t.Fatalf("settings mismatch: %+v", got)
	}
	if !got.Complete() {
		t.Fatal("settings with rpc and master handle must be complete")
	}
}
