package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/ledger"
	"genbot/internal/payments"
)

func main() {
	var (
		userFlag   int64
		amountFlag int64
		reasonFlag string
		debitFlag  bool
		orderFlag  string
		replayFlag bool
	)
	flag.Int64Var(&userFlag, "user", 0, "chat user id to inspect or adjust")
	flag.Int64Var(&amountFlag, "amount", 0, "credits to add (or remove with -debit)")
	flag.StringVar(&reasonFlag, "reason", "", "reference recorded in the ledger entry")
	flag.BoolVar(&debitFlag, "debit", false, "remove -amount credits instead of adding them")
	flag.StringVar(&orderFlag, "order", "", "payment order reference (<user>_<credits>) to inspect")
	flag.BoolVar(&replayFlag, "replay", false, "with -order: apply the order's credit unless it was already applied")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := infra.LoadConfig()
	if err != nil {
		exitWithError(err)
	}
	if cfg.LedgerBackend != infra.LedgerBackendPostgres {
		exitWithError(errors.New("credit: LEDGER_BACKEND must be postgres"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "credit").Logger()
	store := ledger.NewPGStore(infra.NewConfiguredSQLRunner(pool, logger, cfg))
	book, err := ledger.New(ledger.Options{Store: store, Logger: &logger})
	if err != nil {
		exitWithError(err)
	}

	switch {
	case strings.TrimSpace(orderFlag) != "":
		err = inspectOrder(ctx, store, strings.TrimSpace(orderFlag), replayFlag)
	case userFlag > 0 && amountFlag != 0:
		err = adjust(ctx, book, userFlag, amountFlag, debitFlag, reasonFlag)
	case userFlag > 0:
		err = show(ctx, book, userFlag)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		exitWithError(err)
	}
}

func show(ctx context.Context, book *ledger.Ledger, userID int64) error {
	balance, err := book.BalanceOf(ctx, userID)
	if err != nil {
		return err
	}
	available, err := book.Available(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Printf("user=%d balance=%d available=%d held=%d\n", userID, balance, available, balance-available)
	return nil
}

func adjust(ctx context.Context, book *ledger.Ledger, userID, amount int64, debit bool, reason string) error {
	if amount < 0 {
		return errors.New("-amount must be positive; use -debit to remove credits")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual:" + time.Now().UTC().Format(time.RFC3339)
	}
	var (
		balance int64
		err     error
	)
	if debit {
		balance, err = book.Debit(ctx, userID, amount, reason)
	} else {
		balance, err = book.Credit(ctx, userID, amount, reason)
	}
	if errors.Is(err, domain.ErrInsufficientBalance) {
		return fmt.Errorf("user %d has fewer than %d available credits", userID, amount)
	}
	if err != nil {
		return err
	}
	fmt.Printf("user=%d balance=%d\n", userID, balance)
	return nil
}

// inspectOrder lists the audit trail for an order and optionally re-applies it,
// keyed the same way the webhook keys it so a later redelivery stays a no-op.
func inspectOrder(ctx context.Context, store *ledger.PGStore, reference string, replay bool) error {
	logs, err := store.PaymentsByReference(ctx, reference, 20)
	if err != nil {
		return err
	}
	if len(logs) == 0 {
		fmt.Printf("no notifications recorded for %s\n", reference)
	}
	orderKey := reference
	for _, entry := range logs {
		fmt.Printf("%s disposition=%q provider_order=%s ip=%s country=%s\n",
			entry.CreatedAt.Format(time.RFC3339), entry.Disposition, entry.ProviderOrderID, entry.RemoteIP, entry.Country)
		if orderKey == reference && entry.ProviderOrderID != "" {
			orderKey = entry.ProviderOrderID
		}
	}
	if !replay {
		return nil
	}

	userID, amount, err := payments.ParseOrderReference(reference)
	if err != nil {
		return err
	}
	balance, err := store.CreditOnce(ctx, orderKey, userID, amount)
	if errors.Is(err, domain.ErrDuplicateOperation) {
		fmt.Printf("order %s already credited\n", orderKey)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("credited user=%d amount=%d balance=%d order_key=%s\n", userID, amount, balance, orderKey)
	return nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
