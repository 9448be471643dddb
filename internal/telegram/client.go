package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"genbot/internal/domain"
	"genbot/internal/flow"
	"genbot/internal/infra"
)

// maxPhotoBytes is the Bot API upload limit for photos; larger images go out as documents.
const maxPhotoBytes = 10 << 20

// API is the subset of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// NewBotAPI connects to the Bot API, optionally through a custom endpoint of the
// form "https://host/bot%s/%s".
func NewBotAPI(token, endpoint string, logger *infra.Logger) (*tgbotapi.BotAPI, error) {
	if logger != nil {
		_ = tgbotapi.SetLogger(botLogger{logger: logger})
	}
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	api, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	return api, nil
}

// Client sends messages and resolves file ids. It satisfies flow.Messenger and
// flow.FileResolver.
type Client struct {
	api    API
	logger *infra.Logger
}

func NewClient(api API, logger *infra.Logger) (*Client, error) {
	if api == nil {
		return nil, errors.New("telegram: api is required")
	}
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &Client{api: api, logger: logger}, nil
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string, kb flow.Keyboard) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup := replyMarkup(kb); markup != nil {
		msg.ReplyMarkup = markup
	}
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("telegram: send message: %w", err)
	}
	return nil
}

func (c *Client) SendAsset(ctx context.Context, chatID int64, asset *domain.Asset, caption string, kb flow.Keyboard) error {
	if asset == nil {
		return errors.New("telegram: asset is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Send(assetMessage(chatID, asset, caption, replyMarkup(kb))); err != nil {
		return fmt.Errorf("telegram: send %s: %w", asset.Kind, err)
	}
	return nil
}

// FileURL returns a direct download URL for an uploaded file.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fileID == "" {
		return "", errors.New("telegram: file id is required")
	}
	url, err := c.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("telegram: resolve file: %w", err)
	}
	return url, nil
}

func assetMessage(chatID int64, asset *domain.Asset, caption string, markup any) tgbotapi.Chattable {
	file := tgbotapi.FileBytes{
		Name:  "result-" + strconv.FormatInt(time.Now().Unix(), 10) + asset.Kind.Ext(),
		Bytes: asset.Data,
	}
	switch {
	case asset.Kind.IsVideo():
		video := tgbotapi.NewVideo(chatID, file)
		video.Caption = caption
		video.SupportsStreaming = true
		video.ReplyMarkup = markup
		return video
	case len(asset.Data) > maxPhotoBytes:
		doc := tgbotapi.NewDocument(chatID, file)
		doc.Caption = caption
		doc.ReplyMarkup = markup
		return doc
	default:
		photo := tgbotapi.NewPhoto(chatID, file)
		photo.Caption = caption
		photo.ReplyMarkup = markup
		return photo
	}
}

// replyMarkup converts a flow keyboard. An empty keyboard leaves the chat's
// current reply keyboard in place.
func replyMarkup(kb flow.Keyboard) any {
	if len(kb.Inline) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Inline))
		for _, row := range kb.Inline {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				if b.URL != "" {
					buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
					continue
				}
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
			rows = append(rows, buttons)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	if len(kb.Reply) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Reply))
		for _, row := range kb.Reply {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, text := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(text))
			}
			rows = append(rows, buttons)
		}
		markup := tgbotapi.NewReplyKeyboard(rows...)
		markup.ResizeKeyboard = true
		return markup
	}
	return nil
}

type botLogger struct {
	logger *infra.Logger
}

func (b botLogger) Println(v ...interface{}) {
	b.logger.Debug().Msg(fmt.Sprint(v...))
}

func (b botLogger) Printf(format string, v ...interface{}) {
	b.logger.Debug().Msgf(format, v...)
}

var (
	_ flow.Messenger    = (*Client)(nil)
	_ flow.FileResolver = (*Client)(nil)
)
