package flow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"genbot/internal/domain"
	"genbot/internal/infra"
	"genbot/internal/ledger"
	"genbot/internal/lock"
	"genbot/internal/payments"
	"genbot/internal/providers/polza"
	"genbot/internal/session"
)

// Messenger pushes outbound messages to a chat.
type Messenger interface {
	SendText(ctx context.Context, chatID int64, text string, kb Keyboard) error
	SendAsset(ctx context.Context, chatID int64, asset *domain.Asset, caption string, kb Keyboard) error
}

// FileResolver turns a chat platform file id into a URL the provider can fetch.
type FileResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

type Generator interface {
	Run(ctx context.Context, req polza.Request) polza.Outcome
}

// Archiver stores delivered assets; storage.FileStore satisfies it.
type Archiver interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// Balances is the part of the ledger the conversation needs.
type Balances interface {
	BalanceOf(ctx context.Context, userID int64) (int64, error)
	Available(ctx context.Context, userID int64) (int64, error)
	Reserve(ctx context.Context, userID, cost int64, modelKey string) (domain.Hold, error)
	Settle(ctx context.Context, hold domain.Hold) (int64, error)
	Release(ctx context.Context, hold domain.Hold) error
	Credit(ctx context.Context, userID, amount int64, reason string) (int64, error)
}

// Referrals is the part of the referral program the conversation needs.
type Referrals interface {
	RecordReferral(ctx context.Context, userID, referrerID int64) (bool, error)
	ReferralCount(ctx context.Context, referrerID int64) (int64, error)
}

type Options struct {
	Sessions  session.Store
	Ledger    Balances
	Generator Generator
	Files     FileResolver
	Messenger Messenger
	Locker    lock.Locker
	LockTTL   time.Duration
	Archive   Archiver
	Links     payments.LinkBuilder
	Referrals Referrals
	// BotUsername builds referral links; without it the balance shows no link.
	BotUsername string
	// DeliveryBackoff is the pause between asset delivery attempts.
	DeliveryBackoff time.Duration
	Logger          *infra.Logger
}

// Flow drives each user's conversation from photo to delivered asset. It
// charges only after the provider delivered a result.
type Flow struct {
	sessions  session.Store
	ledger    Balances
	generator Generator
	files     FileResolver
	messenger Messenger
	locker    lock.Locker
	lockTTL   time.Duration
	archive   Archiver
	links     payments.LinkBuilder
	referrals Referrals
	botName   string
	backoff   time.Duration
	serial    *userLocks
	logger    *infra.Logger
}

func New(opts Options) (*Flow, error) {
	switch {
	case opts.Sessions == nil:
		return nil, errors.New("flow: session store is required")
	case opts.Ledger == nil:
		return nil, errors.New("flow: ledger is required")
	case opts.Generator == nil:
		return nil, errors.New("flow: generator is required")
	case opts.Files == nil:
		return nil, errors.New("flow: file resolver is required")
	case opts.Messenger == nil:
		return nil, errors.New("flow: messenger is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	lockTTL := opts.LockTTL
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	backoff := opts.DeliveryBackoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Flow{
		sessions:  opts.Sessions,
		ledger:    opts.Ledger,
		generator: opts.Generator,
		files:     opts.Files,
		messenger: opts.Messenger,
		locker:    opts.Locker,
		lockTTL:   lockTTL,
		archive:   opts.Archive,
		links:     opts.Links,
		referrals: opts.Referrals,
		botName:   strings.TrimPrefix(opts.BotUsername, "@"),
		backoff:   backoff,
		serial:    newUserLocks(),
		logger:    logger,
	}, nil
}

type EventKind string

const (
	EventStart    EventKind = "start"
	EventText     EventKind = "text"
	EventPhoto    EventKind = "photo"
	EventCallback EventKind = "callback"
)

// Event is one inbound chat update. Payload carries the /start argument.
type Event struct {
	Kind    EventKind
	UserID  int64
	ChatID  int64
	Text    string
	FileID  string
	Data    string
	Payload string
}

// Handle processes a single event. Events of one user are applied one at a
// time in arrival order; a generation runs after the user's turn is handed on.
// Errors are reported to the user and logged; Handle itself only fails when
// the session store is unreachable.
func (f *Flow) Handle(ctx context.Context, ev Event) error {
	run, err := f.transition(ctx, ev)
	if run != nil {
		run()
	}
	return err
}

// transition applies ev to the session under the user's turn. A non-nil func
// is a generation to run once the turn is released.
func (f *Flow) transition(ctx context.Context, ev Event) (func(), error) {
	unlock, err := f.serial.lock(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := f.sessions.Load(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}
	sess.UserID = ev.UserID
	sess.ChatID = ev.ChatID

	switch ev.Kind {
	case EventStart:
		f.recordReferral(ctx, ev.UserID, ev.Payload)
		return nil, f.reset(ctx, sess, msgWelcome)
	case EventPhoto:
		return nil, f.onPhoto(ctx, sess, ev.FileID)
	case EventCallback:
		return nil, f.onCallback(ctx, sess, ev.Data)
	case EventText:
		return f.onText(ctx, sess, ev.Text)
	}
	return nil, nil
}

func (f *Flow) onText(ctx context.Context, sess session.Session, text string) (func(), error) {
	switch strings.TrimSpace(text) {
	case ButtonCancel:
		return nil, f.reset(ctx, sess, msgCancelled)
	case ButtonStartPhoto:
		return nil, f.start(ctx, sess, false)
	case ButtonStartVideo:
		return nil, f.start(ctx, sess, true)
	case ButtonBalance:
		return nil, f.showBalance(ctx, sess)
	case ButtonTopUp:
		return nil, f.send(ctx, sess.ChatID, msgChoosePackage, topUpMenu())
	}
	if !sess.AwaitingPrompt() {
		if sess.IsIdle() {
			return nil, f.send(ctx, sess.ChatID, msgUseMenu, mainMenu())
		}
		return nil, f.send(ctx, sess.ChatID, msgUseMenu, Keyboard{})
	}
	prompt := strings.TrimSpace(text)
	if prompt == "" {
		return nil, f.send(ctx, sess.ChatID, msgEmptyPrompt, cancelMenu())
	}
	return f.prepare(ctx, sess, prompt)
}

// recordReferral links a first-time user to the id carried by /start.
func (f *Flow) recordReferral(ctx context.Context, userID int64, payload string) {
	if f.referrals == nil || payload == "" {
		return
	}
	referrerID, err := strconv.ParseInt(strings.TrimSpace(payload), 10, 64)
	if err != nil || referrerID <= 0 {
		f.logger.Debug().Int64("user_id", userID).Str("payload", payload).Msg("flow: ignoring start payload")
		return
	}
	linked, err := f.referrals.RecordReferral(ctx, userID, referrerID)
	if err != nil {
		f.logger.Error().Err(err).Int64("user_id", userID).Int64("referrer_id", referrerID).Msg("flow: record referral")
		return
	}
	if linked {
		f.logger.Info().Int64("user_id", userID).Int64("referrer_id", referrerID).Msg("flow: referral recorded")
	}
}

func (f *Flow) onPhoto(ctx context.Context, sess session.Session, fileID string) error {
	next, err := sess.WithPhoto(fileID)
	if err != nil {
		return f.send(ctx, sess.ChatID, msgUseMenu, Keyboard{})
	}
	if err := f.sessions.Save(ctx, next); err != nil {
		return err
	}
	if next.IsVideo() {
		return f.send(ctx, next.ChatID, msgChooseDuration, durationMenu())
	}
	return f.send(ctx, next.ChatID, msgChooseModel, modelMenu())
}

func (f *Flow) onCallback(ctx context.Context, sess session.Session, data string) error {
	switch {
	case data == CallbackCancel:
		return f.reset(ctx, sess, msgCancelled)
	case data == CallbackBackToTopUp:
		return f.send(ctx, sess.ChatID, msgChoosePackage, topUpMenu())
	case strings.HasPrefix(data, CallbackPayPrefix):
		return f.sendPaymentLink(ctx, sess, data)
	case strings.HasPrefix(data, CallbackModelPrefix):
		return f.choose(ctx, sess, strings.TrimPrefix(data, CallbackModelPrefix), domain.JobKindImage)
	case strings.HasPrefix(data, CallbackDurationPrefix):
		return f.choose(ctx, sess, strings.TrimPrefix(data, CallbackDurationPrefix), domain.JobKindVideo)
	}
	f.logger.Debug().Int64("user_id", sess.UserID).Str("data", data).Msg("flow: unknown callback")
	return nil
}

func (f *Flow) choose(ctx context.Context, sess session.Session, modelKey string, kind domain.JobKind) error {
	model, ok := polza.LookupModel(modelKey)
	if !ok || model.Kind != kind {
		return f.send(ctx, sess.ChatID, msgUseMenu, Keyboard{})
	}
	var (
		next session.Session
		err  error
		ask  = msgEnterPrompt
	)
	if kind == domain.JobKindVideo {
		next, err = sess.WithDuration(model.Key)
		ask = msgEnterMotion
	} else {
		next, err = sess.WithModel(model.Key)
	}
	if err != nil {
		if sess.IsIdle() {
			return f.send(ctx, sess.ChatID, msgPhotoExpected, mainMenu())
		}
		return f.send(ctx, sess.ChatID, msgPhotoExpected, Keyboard{})
	}
	if err := f.sessions.Save(ctx, next); err != nil {
		return err
	}
	return f.send(ctx, next.ChatID, ask, cancelMenu())
}

// start opens a branch after the minimum-balance hint check.
func (f *Flow) start(ctx context.Context, sess session.Session, video bool) error {
	minimum := ledger.MinImageBalance
	if video {
		minimum = ledger.MinVideoBalance
	}
	available, err := f.ledger.Available(ctx, sess.UserID)
	if err != nil {
		f.logger.Error().Err(err).Int64("user_id", sess.UserID).Msg("flow: load balance")
		return f.send(ctx, sess.ChatID, msgGenericError, mainMenu())
	}
	if available < minimum {
		if err := f.sessions.Clear(ctx, sess.UserID); err != nil {
			return err
		}
		return f.send(ctx, sess.ChatID, fmt.Sprintf(msgNotEnoughToStart, minimum, available), topUpMenu())
	}
	next := sess.StartImage()
	prompt := msgSendPhoto
	if video {
		next = sess.StartVideo()
		prompt = msgSendVideoPhoto
	}
	if err := f.sessions.Save(ctx, next); err != nil {
		return err
	}
	return f.send(ctx, next.ChatID, prompt, cancelMenu())
}

func (f *Flow) reset(ctx context.Context, sess session.Session, text string) error {
	if err := f.sessions.Clear(ctx, sess.UserID); err != nil {
		return err
	}
	return f.send(ctx, sess.ChatID, text, mainMenu())
}

func (f *Flow) showBalance(ctx context.Context, sess session.Session) error {
	balance, err := f.ledger.BalanceOf(ctx, sess.UserID)
	if err != nil {
		f.logger.Error().Err(err).Int64("user_id", sess.UserID).Msg("flow: load balance")
		return f.send(ctx, sess.ChatID, msgGenericError, mainMenu())
	}
	text := fmt.Sprintf(msgBalance, sess.UserID, balance)
	if f.referrals != nil {
		invited, err := f.referrals.ReferralCount(ctx, sess.UserID)
		if err != nil {
			f.logger.Warn().Err(err).Int64("user_id", sess.UserID).Msg("flow: load referral count")
		} else {
			text += fmt.Sprintf(msgReferrals, invited, payments.ReferralPercent)
			if link := f.ReferralLink(sess.UserID); link != "" {
				text += fmt.Sprintf(msgReferralLink, link)
			}
		}
	}
	return f.send(ctx, sess.ChatID, text, mainMenu())
}

// ReferralLink is the deep link that records userID as the referrer of whoever
// opens it.
func (f *Flow) ReferralLink(userID int64) string {
	if f.botName == "" {
		return ""
	}
	return fmt.Sprintf("https://t.me/%s?start=%d", f.botName, userID)
}

func (f *Flow) sendPaymentLink(ctx context.Context, sess session.Session, code string) error {
	pkg, ok := payments.PackageByCode(code)
	if !ok {
		return f.send(ctx, sess.ChatID, msgChoosePackage, topUpMenu())
	}
	link := f.links.Link(sess.UserID, pkg)
	text := fmt.Sprintf(msgPackageChosen, pkg.Credits, pkg.Price.String())
	return f.send(ctx, sess.ChatID, text, payMenu(link))
}

// NotifyCredit tells the user a payment landed. Private chat ids equal user ids.
func (f *Flow) NotifyCredit(ctx context.Context, userID, amount, balance int64) error {
	return f.messenger.SendText(ctx, userID, fmt.Sprintf(msgCredited, amount, balance), mainMenu())
}

// NotifyReferralBonus tells a referrer that an invited friend's purchase paid
// them a bonus.
func (f *Flow) NotifyReferralBonus(ctx context.Context, referrerID, bonus, balance int64) error {
	return f.messenger.SendText(ctx, referrerID, fmt.Sprintf(msgReferralBonus, bonus, balance), mainMenu())
}

func (f *Flow) send(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	if err := f.messenger.SendText(ctx, chatID, text, kb); err != nil {
		f.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("flow: send message")
	}
	return nil
}

var (
	_ payments.Notifier         = (*Flow)(nil)
	_ payments.ReferralNotifier = (*Flow)(nil)
)
