package settle

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/ojaydev11/halobuzz-sub010/internal/engine"
	"github.com/ojaydev11/halobuzz-sub010/internal/games"
	"github.com/ojaydev11/halobuzz-sub010/internal/models"
	"github.com/ojaydev11/halobuzz-sub010/internal/store"
	"github.com/ojaydev11/halobuzz-sub010/internal/wallet"
)

// The fixture stakes at 1700000000, mid-bucket for a 30 second game, and
// settles at 1700000020, past the bucket end 1700000010.
var (
	stakeTime  = time.Unix(1700000000, 0)
	settleTime = time.Unix(1700000020, 0)
)

type fixture struct {
	db          *gorm.DB
	rounds      *store.RoundStore
	stakes      *store.StakeLedger
	wallet      wallet.Wallet
	coordinator *Coordinator
}

// flakyWallet simulates a wallet gateway whose credits fail on demand.
type flakyWallet struct {
	wallet.Wallet
	failCredit bool
}

func (f *flakyWallet) Credit(tx *gorm.DB, userID int64, amount float64, reference string) error {
	if f.failCredit {
		return errors.New("wallet gateway unavailable")
	}
	return f.Wallet.Credit(tx, userID, amount, reference)
}

func newFixture(t *testing.T, payoutWallet func(wallet.Wallet) wallet.Wallet, seed ...models.Game) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	err = db.AutoMigrate(
		&models.Game{},
		&models.Round{},
		&models.Stake{},
		&models.LedgerEntry{},
		&models.WalletAccount{},
	)
	if err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	for _, game := range seed {
		game := game
		if err := db.Create(&game).Error; err != nil {
			t.Fatalf("seeding game: %v", err)
		}
	}

	catalog, err := games.LoadCatalog(db)
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}

	w := wallet.NewLedgerWallet(db)
	settleWallet := wallet.Wallet(w)
	if payoutWallet != nil {
		settleWallet = payoutWallet(w)
	}

	rounds := store.NewRoundStore(db)
	stakes := store.NewStakeLedger(db, rounds, catalog, w).
		WithClock(func() time.Time { return stakeTime })
	coordinator := NewCoordinator(db, rounds, stakes, catalog, settleWallet).
		WithClock(func() time.Time { return settleTime })

	return &fixture{
		db:          db,
		rounds:      rounds,
		stakes:      stakes,
		wallet:      w,
		coordinator: coordinator,
	}
}

func coinFlipGame() models.Game {
	return models.Game{
		ID:                   "coin-flip-30s",
		Category:             models.CategoryCoinFlip,
		RoundDurationSeconds: 30,
		MinStake:             10,
		MaxStake:             1000,
		OptionsCount:         2,
		HouseEdge:            0.03,
	}
}

func luckyWinnerGame() models.Game {
	return models.Game{
		ID:                   "lucky-winner-30s",
		Category:             models.CategoryLuckyWinner,
		RoundDurationSeconds: 30,
		MinStake:             10,
		MaxStake:             1000,
		OptionsCount:         1,
		HouseEdge:            0.05,
	}
}

func (f *fixture) fund(t *testing.T, userID int64, amount float64) {
	t.Helper()
	if err := f.wallet.Credit(nil, userID, amount, fmt.Sprintf("test:fund:%d", userID)); err != nil {
		t.Fatalf("funding user %d: %v", userID, err)
	}
}

func (f *fixture) place(t *testing.T, userID int64, gameID string, amount float64, selected *int) *models.Stake {
	t.Helper()
	stake, err := f.stakes.PlaceStake(userID, gameID, amount, selected, nil)
	if err != nil {
		t.Fatalf("placing stake for user %d: %v", userID, err)
	}
	return stake
}

func TestSettleCoinFlipRound(t *testing.T) {
	f := newFixture(t, nil, coinFlipGame())
	f.fund(t, 1, 1000)
	f.fund(t, 2, 1000)

	headsOption, tailsOption := 0, 1
	stake := f.place(t, 1, "coin-flip-30s", 100, &headsOption)
	f.place(t, 2, "coin-flip-30s", 100, &tailsOption)

	settled, err := f.coordinator.Settle(stake.RoundID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	round := settled.Round
	if !round.IsSettled() {
		t.Fatalf("round status = %q, want settled", round.Status)
	}
	if round.Outcome == nil {
		t.Fatal("settled round has no stored outcome")
	}
	if !engine.VerifySeed(round.RevealedSeed, round.SeedCommitment) {
		t.Error("revealed seed does not verify against the commitment")
	}

	// One side won, the other lost, and the winner was credited exactly
	// 100 stake + floor(100 * 0.97) = 197.
	var winners, losers int
	for _, s := range settled.Stakes {
		switch s.Result {
		case models.StakeWon:
			winners++
			if s.PayoutStatus != models.PayoutPaid {
				t.Errorf("winning stake payout status = %q, want paid", s.PayoutStatus)
			}
			if s.WinAmount != 197 {
				t.Errorf("win amount = %f, want 197", s.WinAmount)
			}
			balance, err := f.wallet.Balance(nil, s.UserID)
			if err != nil {
				t.Fatalf("Balance: %v", err)
			}
			if balance != 1097 {
				t.Errorf("winner balance = %f, want 1097", balance)
			}
		case models.StakeLost:
			losers++
			balance, err := f.wallet.Balance(nil, s.UserID)
			if err != nil {
				t.Fatalf("Balance: %v", err)
			}
			if balance != 900 {
				t.Errorf("loser balance = %f, want 900", balance)
			}
		default:
			t.Errorf("stake %s left in %q", s.ID, s.Result)
		}
	}
	if winners != 1 || losers != 1 {
		t.Errorf("winners = %d, losers = %d, want 1 each", winners, losers)
	}
}

func TestSettleIdempotent(t *testing.T) {
	f := newFixture(t, nil, coinFlipGame())
	f.fund(t, 1, 1000)
	f.fund(t, 2, 1000)

	headsOption, tailsOption := 0, 1
	stake := f.place(t, 1, "coin-flip-30s", 100, &headsOption)
	f.place(t, 2, "coin-flip-30s", 100, &tailsOption)

	first, err := f.coordinator.Settle(stake.RoundID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	second, err := f.coordinator.Settle(stake.RoundID)
	if err != nil {
		t.Fatalf("repeated Settle: %v", err)
	}

	if *first.Round.Outcome != *second.Round.Outcome {
		t.Errorf("outcome changed between settlements: %+v vs %+v", first.Round.Outcome, second.Round.Outcome)
	}

	// Exactly one payout credit ever reaches the ledger.
	var credits int64
	err = f.db.Model(&models.LedgerEntry{}).
		Where("kind = ? AND reference LIKE ?", models.LedgerCredit, "payout:%").
		Count(&credits).Error
	if err != nil {
		t.Fatalf("counting payout credits: %v", err)
	}
	if credits != 1 {
		t.Errorf("payout credits = %d, want 1", credits)
	}
}

func TestSettleNotDue(t *testing.T) {
	f := newFixture(t, nil, coinFlipGame())
	f.fund(t, 1, 1000)

	headsOption := 0
	stake := f.place(t, 1, "coin-flip-30s", 100, &headsOption)

	early := f.coordinator.WithClock(func() time.Time { return stakeTime })
	if _, err := early.Settle(stake.RoundID); !errors.Is(err, ErrRoundNotDue) {
		t.Errorf("Settle error = %v, want ErrRoundNotDue", err)
	}
}

func TestSettleUnknownRound(t *testing.T) {
	f := newFixture(t, nil, coinFlipGame())

	if _, err := f.coordinator.Settle(777); !errors.Is(err, store.ErrRoundNotFound) {
		t.Errorf("Settle error = %v, want ErrRoundNotFound", err)
	}
}

func TestSettleLuckyWinnerRound(t *testing.T) {
	f := newFixture(t, nil, luckyWinnerGame())
	for userID := int64(1); userID <= 3; userID++ {
		f.fund(t, userID, 1000)
	}

	var roundID int64
	for userID := int64(1); userID <= 3; userID++ {
		stake := f.place(t, userID, "lucky-winner-30s", 100, nil)
		roundID = stake.RoundID
	}

	settled, err := f.coordinator.Settle(roundID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	outcome := settled.Round.Outcome
	if outcome == nil || outcome.WinnerIndex < 0 || outcome.WinnerIndex >= 3 {
		t.Fatalf("outcome = %+v, want a winner index in [0, 3)", outcome)
	}

	var winners int
	for i, s := range settled.Stakes {
		if s.Result == models.StakeWon {
			winners++
			if i != outcome.WinnerIndex {
				t.Errorf("stake %d won, outcome names index %d", i, outcome.WinnerIndex)
			}
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestSettleEmptyLuckyWinnerRound(t *testing.T) {
	f := newFixture(t, nil, luckyWinnerGame())

	round, err := f.rounds.GetOrCreate(nil, "lucky-winner-30s", 1699999980, 1700000010, 1)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	settled, err := f.coordinator.Settle(round.ID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	if !settled.Round.IsSettled() {
		t.Fatalf("round status = %q, want settled", settled.Round.Status)
	}
	if settled.Round.Outcome == nil || settled.Round.Outcome.WinnerIndex != -1 {
		t.Errorf("outcome = %+v, want winner index -1 for an empty round", settled.Round.Outcome)
	}
	if len(settled.Stakes) != 0 {
		t.Errorf("empty round settled with %d stakes", len(settled.Stakes))
	}
}

func TestSettleAbortsOnMissingGame(t *testing.T) {
	f := newFixture(t, nil, coinFlipGame())

	// A round whose game vanished from the catalog cannot resolve; it must
	// fall back to closed instead of sticking in settling.
	round, err := f.rounds.GetOrCreate(nil, "ghost-game", 1699999980, 1700000010, 2)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	_, err = f.coordinator.Settle(round.ID)
	var cfgErr *engine.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Settle error = %v, want *ConfigError", err)
	}

	after, err := f.rounds.GetByID(nil, round.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if after.Status != models.RoundClosed {
		t.Errorf("aborted round status = %q, want closed", after.Status)
	}
}

func TestSettleFailedPayoutRecovery(t *testing.T) {
	flaky := &flakyWallet{failCredit: true}
	f := newFixture(t, func(w wallet.Wallet) wallet.Wallet {
		flaky.Wallet = w
		return flaky
	}, coinFlipGame())

	f.fund(t, 1, 1000)
	f.fund(t, 2, 1000)

	headsOption, tailsOption := 0, 1
	stake := f.place(t, 1, "coin-flip-30s", 100, &headsOption)
	f.place(t, 2, "coin-flip-30s", 100, &tailsOption)

	settled, err := f.coordinator.Settle(stake.RoundID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if !settled.Round.IsSettled() {
		t.Fatalf("round status = %q, want settled despite payout failure", settled.Round.Status)
	}

	var winner models.Stake
	for _, s := range settled.Stakes {
		if s.Result == models.StakeWon {
			winner = s
		}
	}
	if winner.ID == "" {
		t.Fatal("no winning stake recorded")
	}
	if winner.PayoutStatus != models.PayoutFailed {
		t.Fatalf("winner payout status = %q, want failed", winner.PayoutStatus)
	}

	balance, err := f.wallet.Balance(nil, winner.UserID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 900 {
		t.Fatalf("winner balance = %f before reconciliation, want 900", balance)
	}

	// The gateway comes back; reconciliation pays out exactly once.
	flaky.failCredit = false
	for i := 0; i < 2; i++ {
		if err := f.coordinator.RetryFailedPayouts(10); err != nil {
			t.Fatalf("RetryFailedPayouts: %v", err)
		}
	}

	balance, err = f.wallet.Balance(nil, winner.UserID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 1097 {
		t.Errorf("winner balance = %f after reconciliation, want 1097", balance)
	}

	var paid models.Stake
	if err := f.db.First(&paid, "id = ?", winner.ID).Error; err != nil {
		t.Fatalf("loading stake: %v", err)
	}
	if paid.PayoutStatus != models.PayoutPaid {
		t.Errorf("payout status = %q after reconciliation, want paid", paid.PayoutStatus)
	}
}

func TestVerifySettledRound(t *testing.T) {
	f := newFixture(t, nil, coinFlipGame())
	f.fund(t, 1, 1000)
	f.fund(t, 2, 1000)

	headsOption, tailsOption := 0, 1
	stake := f.place(t, 1, "coin-flip-30s", 100, &headsOption)
	f.place(t, 2, "coin-flip-30s", 100, &tailsOption)

	// Verification before settlement has nothing to reveal.
	if _, err := f.coordinator.Verify(stake.RoundID); !errors.Is(err, ErrRoundNotDue) {
		t.Fatalf("Verify before settlement error = %v, want ErrRoundNotDue", err)
	}

	settled, err := f.coordinator.Settle(stake.RoundID)
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}

	report, err := f.coordinator.Verify(stake.RoundID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if !report.SeedValid {
		t.Error("revealed seed reported invalid")
	}
	if report.RevealedSeed == "" {
		t.Error("no seed revealed")
	}
	if report.StoredOutcome == nil || report.Recomputed == nil {
		t.Fatal("verify report missing outcomes")
	}
	if *report.StoredOutcome != *report.Recomputed {
		t.Errorf("recomputed outcome %+v differs from stored %+v", report.Recomputed, report.StoredOutcome)
	}
	if *report.StoredOutcome != *settled.Round.Outcome {
		t.Errorf("report outcome %+v differs from settled round %+v", report.StoredOutcome, settled.Round.Outcome)
	}
}
