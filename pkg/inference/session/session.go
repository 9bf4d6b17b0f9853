package session

import (
	"context"
	"sync"

	"github.com/go-go-golems/shopwire/pkg/conversation"
	"github.com/go-go-golems/shopwire/pkg/helpers"
	"github.com/go-go-golems/shopwire/pkg/inference/engine"
	"github.com/go-go-golems/shopwire/pkg/prompts"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNil           = errors.New("session is nil")
	ErrSessionNoEngine      = errors.New("session has no engine")
	ErrSessionAlreadyActive = errors.New("session already has an active turn")
	ErrSessionNoActive      = errors.New("session has no active turn")
)

// DefaultPromptKey is used when a turn names no prompt.
const DefaultPromptKey = "default"

// TurnRequest is the caller's input for one turn.
type TurnRequest struct {
	History conversation.Conversation
	// SystemPromptKey selects the system prompt; unknown keys fall back to
	// the session's default key
	SystemPromptKey string
	// Tools overrides the session's tool catalog when non-nil
	Tools []engine.ToolDeclaration
}

// Session binds an engine to a prompt store and a tool catalog. It runs at
// most one turn at a time.
type Session struct {
	SessionID string

	Engine           engine.Engine
	Prompts          prompts.Store
	DefaultPromptKey string
	Tools            []engine.ToolDeclaration

	mu     sync.Mutex
	active *ExecutionHandle
}

type Option func(*Session)

func WithPrompts(store prompts.Store, defaultKey string) Option {
	return func(s *Session) {
		s.Prompts = store
		if defaultKey != "" {
			s.DefaultPromptKey = defaultKey
		}
	}
}

func WithTools(tools ...engine.ToolDeclaration) Option {
	return func(s *Session) {
		s.Tools = append(s.Tools, tools...)
	}
}

func NewSession(e engine.Engine, options ...Option) *Session {
	s := &Session{
		SessionID:        uuid.NewString(),
		Engine:           e,
		DefaultPromptKey: DefaultPromptKey,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// ResolveSystemPrompt looks key up in the prompt store, falling back to the
// default key. A missing default resolves to no system prompt.
func (s *Session) ResolveSystemPrompt(key string) string {
	if s.Prompts == nil {
		return ""
	}
	if key != "" {
		if p, ok := s.Prompts.Get(key); ok {
			return p
		}
		log.Debug().Str("key", key).Str("default_key", s.DefaultPromptKey).Msg("prompt key not found, using default")
	}
	if p, ok := s.Prompts.Get(s.DefaultPromptKey); ok {
		return p
	}
	log.Debug().Str("default_key", s.DefaultPromptKey).Msg("no default prompt, running without system prompt")
	return ""
}

func (s *Session) IsRunning() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil && s.active.IsRunning()
}

// RunTurn runs one turn and blocks until the engine returns.
func (s *Session) RunTurn(ctx context.Context, req TurnRequest, handlers engine.Handlers) (*engine.Result, error) {
	h, err := s.StartTurn(ctx, req, handlers)
	if err != nil {
		return nil, err
	}
	return h.Wait()
}

// StartTurn runs one turn in a goroutine. Handlers are called from that
// goroutine. The turn id is attached to the context the engine sees.
func (s *Session) StartTurn(ctx context.Context, req TurnRequest, handlers engine.Handlers) (*ExecutionHandle, error) {
	if s == nil {
		return nil, ErrSessionNil
	}
	if s.Engine == nil {
		return nil, ErrSessionNoEngine
	}
	if ctx == nil {
		ctx = context.Background()
	}

	tools := req.Tools
	if tools == nil {
		tools = s.Tools
	}
	turn := engine.Turn{
		History:           req.History,
		SystemInstruction: s.ResolveSystemPrompt(req.SystemPromptKey),
		Tools:             tools,
	}

	s.mu.Lock()
	if s.active != nil && s.active.IsRunning() {
		s.mu.Unlock()
		return nil, ErrSessionAlreadyActive
	}
	turnID := helpers.NewTurnID()
	runCtx, cancel := context.WithCancel(ctx)
	runCtx = helpers.ContextWithTurnID(WithSessionID(runCtx, s.SessionID), turnID)
	handle := newExecutionHandle(s.SessionID, turnID, cancel)
	s.active = handle
	s.mu.Unlock()

	log.Debug().
		Str("session_id", s.SessionID).
		Str("turn_id", turnID).
		Int("num_messages", len(req.History)).
		Int("num_tools", len(tools)).
		Msg("starting turn")

	go func() {
		result, err := s.Engine.RunTurn(runCtx, turn, handlers)
		s.mu.Lock()
		if s.active == handle {
			s.active = nil
		}
		s.mu.Unlock()
		handle.setResult(result, err)
	}()

	return handle, nil
}

// CancelActive cancels the running turn, if any.
func (s *Session) CancelActive() error {
	if s == nil {
		return ErrSessionNil
	}
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()
	if h == nil || !h.IsRunning() {
		return ErrSessionNoActive
	}
	h.Cancel()
	return nil
}
