package flow

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"genbot/internal/domain"
	"genbot/internal/ledger"
	"genbot/internal/payments"
	"genbot/internal/providers/polza"
)

// Reply-keyboard labels. Incoming text equal to one of these is a command.
const (
	ButtonStartPhoto = "📸 Начать фотосессию"
	ButtonStartVideo = "🎬 Оживить фото"
	ButtonBalance    = "👤 Мой баланс"
	ButtonTopUp      = "💳 Пополнить"
	ButtonCancel     = "❌ Отменить"
)

// Callback data prefixes carried by inline buttons.
const (
	CallbackCancel         = "cancel"
	CallbackModelPrefix    = "model_"
	CallbackDurationPrefix = "duration_"
	CallbackPayPrefix      = "pay_"
	CallbackBackToTopUp    = "back_to_tariffs"
)

// Button is an inline button; exactly one of Data or URL is set.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is a platform-neutral keyboard. Inline takes precedence over Reply.
type Keyboard struct {
	Inline [][]Button
	Reply  [][]string
}

func mainMenu() Keyboard {
	return Keyboard{Reply: [][]string{
		{ButtonStartPhoto, ButtonStartVideo},
		{ButtonBalance, ButtonTopUp},
	}}
}

func cancelMenu() Keyboard {
	return Keyboard{Reply: [][]string{{ButtonCancel}}}
}

var titleCaser = cases.Title(language.English)

// DisplayName renders a model key for captions.
func DisplayName(modelKey string) string {
	if m, ok := polza.LookupModel(modelKey); ok {
		return titleCaser.String(m.Title)
	}
	return titleCaser.String(modelKey)
}

func modelMenu() Keyboard {
	var rows [][]Button
	for _, m := range polza.Models(domain.JobKindImage) {
		rows = append(rows, []Button{{
			Text: fmt.Sprintf("%s (%d ген.)", DisplayName(m.Key), ledger.CostFor(m.Key)),
			Data: CallbackModelPrefix + m.Key,
		}})
	}
	rows = append(rows, []Button{{Text: ButtonCancel, Data: CallbackCancel}})
	return Keyboard{Inline: rows}
}

func durationMenu() Keyboard {
	var rows [][]Button
	for _, m := range polza.Models(domain.JobKindVideo) {
		rows = append(rows, []Button{{
			Text: fmt.Sprintf("%s сек (%d ген.)", m.Params["duration"], ledger.CostFor(m.Key)),
			Data: CallbackDurationPrefix + m.Key,
		}})
	}
	rows = append(rows, []Button{{Text: ButtonCancel, Data: CallbackCancel}})
	return Keyboard{Inline: rows}
}

func topUpMenu() Keyboard {
	var rows [][]Button
	for _, p := range payments.Packages() {
		rows = append(rows, []Button{{Text: p.Label(), Data: p.Code}})
	}
	return Keyboard{Inline: rows}
}

func payMenu(link string) Keyboard {
	return Keyboard{Inline: [][]Button{
		{{Text: "💳 Перейти к оплате", URL: link}},
		{{Text: "⬅️ Назад", Data: CallbackBackToTopUp}},
	}}
}
