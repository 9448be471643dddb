package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"genbot/internal/payments"
)

// PaymentProcessor applies a decoded payment notification; *payments.Intake
// satisfies it.
type PaymentProcessor interface {
	Process(ctx context.Context, n payments.Notification) payments.Result
}

// HealthCheck checks one dependency.
type HealthCheck func(ctx context.Context) error

type App struct {
	Payments PaymentProcessor
	Checks   map[string]HealthCheck
}

func NewApp(p PaymentProcessor, checks map[string]HealthCheck) *App {
	return &App{Payments: p, Checks: checks}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) text(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}
