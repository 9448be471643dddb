package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnexpectedInput is returned when an event does not apply to the current state.
var ErrUnexpectedInput = errors.New("session: unexpected input for state")

type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingPhoto        State = "awaiting_photo"
	StateAwaitingModel        State = "awaiting_model"
	StateAwaitingPrompt       State = "awaiting_prompt"
	StateAwaitingVideoPhoto   State = "awaiting_video_photo"
	StateAwaitingDuration     State = "awaiting_duration"
	StateAwaitingMotionPrompt State = "awaiting_motion_prompt"
)

// Session is one user's conversation. It is a value: transitions return a new
// Session and never mutate the receiver.
type Session struct {
	UserID      int64     `json:"user_id"`
	ChatID      int64     `json:"chat_id"`
	State       State     `json:"state"`
	PhotoFileID string    `json:"photo_file_id,omitempty"`
	ModelKey    string    `json:"model_key,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func New(userID, chatID int64) Session {
	return Session{UserID: userID, ChatID: chatID, State: StateIdle}
}

func (s Session) IsIdle() bool {
	return s.State == "" || s.State == StateIdle
}

// IsVideo reports whether the session is on the video branch.
func (s Session) IsVideo() bool {
	switch s.State {
	case StateAwaitingVideoPhoto, StateAwaitingDuration, StateAwaitingMotionPrompt:
		return true
	}
	return false
}

// AwaitingPrompt reports whether the next text message completes the session.
func (s Session) AwaitingPrompt() bool {
	return s.State == StateAwaitingPrompt || s.State == StateAwaitingMotionPrompt
}

// StartImage begins the photo branch, discarding anything collected so far.
func (s Session) StartImage() Session {
	return s.reset(StateAwaitingPhoto)
}

// StartVideo begins the video branch, discarding anything collected so far.
func (s Session) StartVideo() Session {
	return s.reset(StateAwaitingVideoPhoto)
}

// Cancel returns to Idle and drops collected inputs.
func (s Session) Cancel() Session {
	return s.reset(StateIdle)
}

func (s Session) WithPhoto(fileID string) (Session, error) {
	fileID = strings.TrimSpace(fileID)
	if fileID == "" {
		return s, fmt.Errorf("%w: empty photo", ErrUnexpectedInput)
	}
	next := s
	switch s.State {
	case StateAwaitingPhoto:
		next.State = StateAwaitingModel
	case StateAwaitingVideoPhoto:
		next.State = StateAwaitingDuration
	default:
		return s, fmt.Errorf("%w: photo in %s", ErrUnexpectedInput, s.State)
	}
	next.PhotoFileID = fileID
	next.UpdatedAt = time.Now()
	return next, nil
}

// WithModel records the image model choice.
func (s Session) WithModel(modelKey string) (Session, error) {
	if s.State != StateAwaitingModel {
		return s, fmt.Errorf("%w: model choice in %s", ErrUnexpectedInput, s.State)
	}
	return s.choose(modelKey, StateAwaitingPrompt)
}

// WithDuration records the video duration choice, expressed as its model key.
func (s Session) WithDuration(modelKey string) (Session, error) {
	if s.State != StateAwaitingDuration {
		return s, fmt.Errorf("%w: duration choice in %s", ErrUnexpectedInput, s.State)
	}
	return s.choose(modelKey, StateAwaitingMotionPrompt)
}

func (s Session) choose(modelKey string, next State) (Session, error) {
	modelKey = strings.TrimSpace(modelKey)
	if modelKey == "" {
		return s, fmt.Errorf("%w: empty choice", ErrUnexpectedInput)
	}
	out := s
	out.ModelKey = modelKey
	out.State = next
	out.UpdatedAt = time.Now()
	return out, nil
}

func (s Session) reset(state State) Session {
	return Session{UserID: s.UserID, ChatID: s.ChatID, State: state, UpdatedAt: time.Now()}
}
