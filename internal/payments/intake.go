package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/metrics"
)

var (
	ErrInvalidOrderReference = errors.New("payments: invalid order reference")
	ErrInvalidSignature      = errors.New("payments: invalid signature")
)

const statusSuccess = "success"

// ReferralPercent of every credited purchase goes to the buyer's referrer.
const ReferralPercent = 10

// Acknowledgement bodies understood by the payment provider.
const (
	ReplyOK          = "OK"
	ReplyIgnored     = "Ignored"
	ReplyWrongFormat = "Wrong order format"
	ReplyError       = "Error"
	ReplyForbidden   = "Forbidden"
)

// Notifier tells a user their balance was topped up.
type Notifier interface {
	NotifyCredit(ctx context.Context, userID, amount, balance int64) error
}

// ReferralNotifier is optionally implemented by a Notifier to tell a referrer
// about a bonus.
type ReferralNotifier interface {
	NotifyReferralBonus(ctx context.Context, referrerID, bonus, balance int64) error
}

// Notification is one decoded webhook call.
type Notification struct {
	OrderReference  string
	Status          string
	ProviderOrderID string
	Sum             string
	Raw             map[string]string
	Body            []byte
	Signature       string
	RemoteIP        string
	Country         string
	// DecodeErr is set when the body could not be read or parsed; Raw then
	// holds whatever was recovered.
	DecodeErr error
}

// Result is what the webhook answers and what was recorded.
type Result struct {
	Disposition domain.PaymentDisposition
	HTTPStatus  int
	Reply       string
	UserID      int64
	Amount      int64
	Balance     int64
}

type Options struct {
	Store     domain.PaymentStore
	Verifier  Verifier
	Notifier  Notifier
	Referrals domain.ReferralStore
	Logger    *infra.Logger
	Metrics   *metrics.Metrics
}

// Intake applies payment notifications to the ledger. Credits are keyed on the
// provider order id so a redelivered notification is acknowledged without a
// second credit.
type Intake struct {
	store     domain.PaymentStore
	verifier  Verifier
	notifier  Notifier
	referrals domain.ReferralStore
	logger    *infra.Logger
	metrics   *metrics.Metrics
}

func NewIntake(opts Options) (*Intake, error) {
	if opts.Store == nil {
		return nil, errors.New("payments: store is required")
	}
	verifier := opts.Verifier
	if verifier == nil {
		verifier = acceptAll{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Intake{
		store:     opts.Store,
		verifier:  verifier,
		notifier:  opts.Notifier,
		referrals: opts.Referrals,
		logger:    logger,
		metrics:   opts.Metrics,
	}, nil
}

// Process handles one notification. It never panics and always writes an
// audit row, whatever the outcome.
func (in *Intake) Process(ctx context.Context, n Notification) (res Result) {
	entry := domain.PaymentLog{
		OrderReference:  strings.TrimSpace(n.OrderReference),
		ProviderOrderID: strings.TrimSpace(n.ProviderOrderID),
		RawPayload:      n.Raw,
		RemoteIP:        n.RemoteIP,
		Country:         n.Country,
	}
	if userID, amount, err := ParseOrderReference(entry.OrderReference); err == nil {
		entry.UserID = &userID
		entry.Amount = amount
	}

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			res = Result{Disposition: domain.ErrorDisposition(err), HTTPStatus: http.StatusInternalServerError, Reply: ReplyError}
		}
		entry.Disposition = res.Disposition
		in.record(ctx, entry)
	}()

	return in.apply(ctx, n, entry)
}

func (in *Intake) apply(ctx context.Context, n Notification, entry domain.PaymentLog) Result {
	if err := in.verifier.Verify(n.Body, n.Signature); err != nil {
		return Result{Disposition: domain.DispositionFailedSignature, HTTPStatus: http.StatusForbidden, Reply: ReplyForbidden}
	}

	if n.DecodeErr != nil {
		in.logger.Warn().Err(n.DecodeErr).Str("remote_ip", n.RemoteIP).Msg("payments: malformed notification")
		return Result{Disposition: domain.DispositionFailedFormat, HTTPStatus: http.StatusOK, Reply: ReplyWrongFormat}
	}

	status := strings.TrimSpace(n.Status)
	if status != statusSuccess {
		return Result{Disposition: domain.IgnoredDisposition(status), HTTPStatus: http.StatusOK, Reply: ReplyIgnored}
	}

	userID, amount, err := ParseOrderReference(entry.OrderReference)
	if err != nil {
		return Result{Disposition: domain.DispositionFailedFormat, HTTPStatus: http.StatusOK, Reply: ReplyWrongFormat}
	}

	if !sumCovers(n.Sum, amount) {
		in.logger.Warn().
			Int64("user_id", userID).
			Int64("amount", amount).
			Str("sum", n.Sum).
			Msg("payments: paid sum below package price")
		return Result{Disposition: domain.DispositionFailedSum, HTTPStatus: http.StatusOK, Reply: ReplyIgnored, UserID: userID, Amount: amount}
	}

	orderKey := entry.ProviderOrderID
	if orderKey == "" {
		orderKey = entry.OrderReference
	}
	balance, err := in.store.CreditOnce(ctx, orderKey, userID, amount)
	switch {
	case errors.Is(err, domain.ErrDuplicateOperation):
		in.logger.Info().Str("order_key", orderKey).Int64("user_id", userID).Msg("payments: duplicate notification acknowledged")
		in.rewardReferrer(ctx, orderKey, userID, amount)
		return Result{Disposition: domain.DispositionDuplicate, HTTPStatus: http.StatusOK, Reply: ReplyOK, UserID: userID, Amount: amount}
	case err != nil:
		in.logger.Error().Err(err).Str("order_key", orderKey).Interface("payload", n.Raw).Msg("payments: credit failed")
		return Result{Disposition: domain.ErrorDisposition(err), HTTPStatus: http.StatusInternalServerError, Reply: ReplyError, UserID: userID, Amount: amount}
	}

	in.logger.Info().Int64("user_id", userID).Int64("amount", amount).Int64("balance", balance).Msg("payments: credited")
	if in.notifier != nil {
		if err := in.notifier.NotifyCredit(ctx, userID, amount, balance); err != nil {
			in.logger.Warn().Err(err).Int64("user_id", userID).Msg("payments: notify user failed")
		}
	}
	in.rewardReferrer(ctx, orderKey, userID, amount)
	return Result{Disposition: domain.DispositionSuccess, HTTPStatus: http.StatusOK, Reply: ReplyOK, UserID: userID, Amount: amount, Balance: balance}
}

// rewardReferrer credits the buyer's referrer with ReferralPercent of the
// purchase. The bonus is keyed on the order so redeliveries retry a failed
// bonus without paying it twice. Failures never fail the webhook.
func (in *Intake) rewardReferrer(ctx context.Context, orderKey string, userID, amount int64) {
	if in.referrals == nil {
		return
	}
	bonus := amount * ReferralPercent / 100
	if bonus <= 0 {
		return
	}
	referrer, ok, err := in.referrals.ReferrerOf(ctx, userID)
	if err != nil {
		in.logger.Error().Err(err).Int64("user_id", userID).Msg("payments: load referrer")
		return
	}
	if !ok {
		return
	}
	balance, err := in.store.CreditOnce(ctx, "ref:"+orderKey, referrer, bonus)
	switch {
	case errors.Is(err, domain.ErrDuplicateOperation):
		return
	case err != nil:
		in.logger.Error().Err(err).Int64("referrer_id", referrer).Str("order_key", orderKey).Msg("payments: referral bonus failed")
		return
	}
	in.logger.Info().Int64("referrer_id", referrer).Int64("user_id", userID).Int64("bonus", bonus).Msg("payments: referral bonus credited")
	if rn, ok := in.notifier.(ReferralNotifier); ok {
		if err := rn.NotifyReferralBonus(ctx, referrer, bonus, balance); err != nil {
			in.logger.Warn().Err(err).Int64("referrer_id", referrer).Msg("payments: notify referrer failed")
		}
	}
}

func (in *Intake) record(ctx context.Context, entry domain.PaymentLog) {
	in.metrics.PaymentNotification(string(entry.Disposition))
	in.logger.Info().
		Str("disposition", string(entry.Disposition)).
		Str("order_reference", entry.OrderReference).
		Str("remote_ip", entry.RemoteIP).
		Str("country", entry.Country).
		Msg("payments: notification")
	if err := in.store.LogPayment(context.WithoutCancel(ctx), entry); err != nil {
		in.logger.Error().Err(err).Interface("payload", entry.RawPayload).Msg("payments: write audit log failed")
	}
}

// sumCovers reports whether the paid sum is at least the catalog price for
// credits. Unknown packages and missing sums are not checked.
func sumCovers(sum string, credits int64) bool {
	sum = strings.TrimSpace(sum)
	if sum == "" {
		return true
	}
	pkg, ok := PackageForCredits(credits)
	if !ok {
		return true
	}
	paid, err := decimal.NewFromString(strings.ReplaceAll(sum, ",", "."))
	if err != nil {
		return false
	}
	return paid.GreaterThanOrEqual(pkg.Price)
}
