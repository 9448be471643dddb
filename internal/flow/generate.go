package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"genbot/internal/domain"
	"genbot/internal/ledger"
	"genbot/internal/lock"
	"genbot/internal/providers/polza"
	"genbot/internal/session"
)

// deliveryAttempts bounds how often a finished asset is sent before the
// charge is refunded.
const deliveryAttempts = 3

// prepare claims the generation lock and closes the branch while the user's
// turn is held. The returned func runs the generation; nil means nothing to
// run. A busy user keeps their prompt step.
func (f *Flow) prepare(ctx context.Context, sess session.Session, prompt string) (func(), error) {
	release, ok := f.acquire(ctx, sess)
	if !ok {
		return nil, nil
	}
	if err := f.sessions.Clear(ctx, sess.UserID); err != nil {
		release()
		return nil, err
	}
	return func() {
		defer release()
		f.generate(ctx, sess, prompt)
	}, nil
}

// generate is the terminal transition. The hold is captured only on a Ready
// outcome and released on every other path, panics included. A captured
// charge is refunded when the asset cannot be delivered.
func (f *Flow) generate(ctx context.Context, sess session.Session, prompt string) {
	log := f.logger.With().Int64("user_id", sess.UserID).Str("model", sess.ModelKey).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("flow: generation panicked")
			_ = f.send(context.WithoutCancel(ctx), sess.ChatID, msgGenericError, mainMenu())
		}
	}()

	cost := ledger.CostFor(sess.ModelKey)
	hold, err := f.ledger.Reserve(ctx, sess.UserID, cost, sess.ModelKey)
	if errors.Is(err, domain.ErrInsufficientBalance) {
		_ = f.send(ctx, sess.ChatID, fmt.Sprintf(msgNeedCost, cost), mainMenu())
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("flow: reserve")
		_ = f.send(ctx, sess.ChatID, msgGenericError, mainMenu())
		return
	}

	settled := false
	defer func() {
		if settled {
			return
		}
		if err := f.ledger.Release(context.WithoutCancel(ctx), hold); err != nil && !errors.Is(err, domain.ErrHoldClosed) {
			log.Error().Err(err).Str("hold_id", hold.ID).Msg("flow: release hold")
		}
	}()

	sourceURL, err := f.files.FileURL(ctx, sess.PhotoFileID)
	if err != nil {
		log.Error().Err(err).Msg("flow: resolve photo")
		_ = f.send(ctx, sess.ChatID, msgGenericError, mainMenu())
		return
	}

	_ = f.send(ctx, sess.ChatID, fmt.Sprintf(msgGenerating, DisplayName(sess.ModelKey)), Keyboard{})
	outcome := f.generator.Run(ctx, polza.Request{ModelKey: sess.ModelKey, Prompt: prompt, SourceURL: sourceURL})
	if !outcome.Ready() {
		log.Warn().Err(outcome.Err).Str("outcome", string(outcome.Status)).Int("attempts", outcome.Attempts).Msg("flow: generation not delivered")
		text := msgProviderFailed
		if outcome.Status == polza.OutcomeTimedOut {
			text = msgTimedOut
		}
		_ = f.send(ctx, sess.ChatID, text, mainMenu())
		return
	}

	balance, err := f.ledger.Settle(ctx, hold)
	if err != nil {
		log.Error().Err(err).Str("hold_id", hold.ID).Msg("flow: settle")
		_ = f.send(ctx, sess.ChatID, msgGenericError, mainMenu())
		return
	}
	settled = true

	f.archiveAsset(ctx, sess, outcome.Asset)
	caption := fmt.Sprintf(msgCaption, DisplayName(sess.ModelKey), prompt, cost, balance)
	if err := f.deliver(ctx, sess, outcome.Asset, caption); err != nil {
		log.Error().Err(err).Str("hold_id", hold.ID).Msg("flow: deliver asset")
		f.refund(ctx, sess, hold)
		return
	}
	log.Info().Int64("cost", cost).Int64("balance", balance).Str("kind", string(outcome.Asset.Kind)).Msg("flow: generation delivered")
}

// deliver sends the asset, retrying with a linear backoff.
func (f *Flow) deliver(ctx context.Context, sess session.Session, asset *domain.Asset, caption string) error {
	var err error
	for attempt := 1; attempt <= deliveryAttempts; attempt++ {
		if err = f.messenger.SendAsset(ctx, sess.ChatID, asset, caption, mainMenu()); err == nil {
			return nil
		}
		f.logger.Warn().Err(err).Int64("user_id", sess.UserID).Int("attempt", attempt).Msg("flow: send asset")
		if attempt == deliveryAttempts {
			break
		}
		timer := time.NewTimer(time.Duration(attempt) * f.backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("deliver asset: %w", errors.Join(err, ctx.Err()))
		case <-timer.C:
		}
	}
	return fmt.Errorf("deliver asset after %d attempts: %w", deliveryAttempts, err)
}

// refund returns a captured charge for an asset the user never received.
func (f *Flow) refund(ctx context.Context, sess session.Session, hold domain.Hold) {
	ctx = context.WithoutCancel(ctx)
	balance, err := f.ledger.Credit(ctx, sess.UserID, hold.Amount, "refund:"+hold.ID)
	if err != nil {
		f.logger.Error().Err(err).Int64("user_id", sess.UserID).Str("hold_id", hold.ID).Int64("amount", hold.Amount).Msg("flow: refund undelivered asset")
		_ = f.send(ctx, sess.ChatID, msgGenericError, mainMenu())
		return
	}
	f.logger.Info().Int64("user_id", sess.UserID).Str("hold_id", hold.ID).Int64("balance", balance).Msg("flow: refunded undelivered asset")
	_ = f.send(ctx, sess.ChatID, msgDeliveryFailed, mainMenu())
}

// acquire takes the per-user generation lock. It reports false, after telling
// the user, when another generation is still running.
func (f *Flow) acquire(ctx context.Context, sess session.Session) (func(), bool) {
	if f.locker == nil {
		return func() {}, true
	}
	key := lock.GenerationKey(sess.UserID)
	token, ok, err := f.locker.TryLock(ctx, key, f.lockTTL)
	if err != nil {
		f.logger.Warn().Err(err).Int64("user_id", sess.UserID).Msg("flow: generation lock unavailable")
		return func() {}, true
	}
	if !ok {
		_ = f.send(ctx, sess.ChatID, msgBusy, Keyboard{})
		return nil, false
	}
	return func() {
		if err := f.locker.Release(context.WithoutCancel(ctx), key, token); err != nil {
			f.logger.Warn().Err(err).Int64("user_id", sess.UserID).Msg("flow: release generation lock")
		}
	}, true
}

func (f *Flow) archiveAsset(ctx context.Context, sess session.Session, asset *domain.Asset) {
	if f.archive == nil || asset == nil {
		return
	}
	key := fmt.Sprintf("%s/%s/%d%s",
		strconv.FormatInt(sess.UserID, 10),
		time.Now().UTC().Format("2006-01-02"),
		time.Now().UnixNano(),
		asset.Kind.Ext(),
	)
	if _, err := f.archive.Write(ctx, key, asset.Data); err != nil {
		f.logger.Warn().Err(err).Int64("user_id", sess.UserID).Msg("flow: archive asset")
	}
}
