package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"genbot/internal/flow"
	"genbot/internal/infra"
)

// Handler consumes chat events; *flow.Flow satisfies it.
type Handler interface {
	Handle(ctx context.Context, ev flow.Event) error
}

type PollerOptions struct {
	API         API
	Handler     Handler
	Logger      *infra.Logger
	PollTimeout int
	// MaxInFlight bounds concurrently handled updates. Generations block for
	// minutes, so updates are never handled inline.
	MaxInFlight int
}

// Poller long-polls the Bot API and hands each update to the handler on its own
// goroutine. The handler serializes events of the same user.
type Poller struct {
	api         API
	handler     Handler
	logger      *infra.Logger
	pollTimeout int
	slots       chan struct{}
	wg          sync.WaitGroup
}

func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.API == nil {
		return nil, errors.New("telegram: api is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("telegram: handler is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	timeout := opts.PollTimeout
	if timeout <= 0 {
		timeout = 60
	}
	inFlight := opts.MaxInFlight
	if inFlight <= 0 {
		inFlight = 64
	}
	return &Poller{
		api:         opts.API,
		handler:     opts.Handler,
		logger:      logger,
		pollTimeout: timeout,
		slots:       make(chan struct{}, inFlight),
	}, nil
}

// Run blocks until ctx is cancelled or the update channel closes, then waits for
// in-flight handlers.
func (p *Poller) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = p.pollTimeout
	cfg.AllowedUpdates = []string{"message", "callback_query"}
	updates := p.api.GetUpdatesChan(cfg)
	p.logger.Info().Int("poll_timeout", p.pollTimeout).Msg("telegram: polling started")

	defer p.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			p.api.StopReceivingUpdates()
			p.logger.Info().Msg("telegram: polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			select {
			case p.slots <- struct{}{}:
			case <-ctx.Done():
				continue
			}
			p.wg.Add(1)
			go func(u tgbotapi.Update) {
				defer func() {
					<-p.slots
					p.wg.Done()
				}()
				p.dispatch(ctx, u)
			}(update)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Int("update_id", update.UpdateID).Msg("telegram: handler panicked")
		}
	}()

	if cq := update.CallbackQuery; cq != nil {
		if _, err := p.api.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			p.logger.Warn().Err(err).Str("callback_id", cq.ID).Msg("telegram: answer callback")
		}
	}

	ev, ok := EventFromUpdate(update)
	if !ok {
		return
	}
	if err := p.handler.Handle(ctx, ev); err != nil {
		p.logger.Error().Err(err).Int64("user_id", ev.UserID).Str("kind", string(ev.Kind)).Msg("telegram: handle update")
	}
}

// EventFromUpdate maps a Bot API update onto a flow event. It reports false for
// updates the bot does not react to.
func EventFromUpdate(update tgbotapi.Update) (flow.Event, bool) {
	if cq := update.CallbackQuery; cq != nil {
		if cq.From == nil {
			return flow.Event{}, false
		}
		chatID := cq.From.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			chatID = cq.Message.Chat.ID
		}
		return flow.Event{Kind: flow.EventCallback, UserID: cq.From.ID, ChatID: chatID, Data: cq.Data}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return flow.Event{}, false
	}
	ev := flow.Event{UserID: msg.From.ID, ChatID: msg.Chat.ID}
	switch {
	case msg.IsCommand() && msg.Command() == "start":
		ev.Kind = flow.EventStart
		ev.Payload = strings.TrimSpace(msg.CommandArguments())
	case len(msg.Photo) > 0:
		ev.Kind = flow.EventPhoto
		ev.FileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Document != nil && strings.HasPrefix(msg.Document.MimeType, "image/"):
		ev.Kind = flow.EventPhoto
		ev.FileID = msg.Document.FileID
	case msg.Text != "":
		ev.Kind = flow.EventText
		ev.Text = msg.Text
	default:
		return flow.Event{}, false
	}
	return ev, true
}
