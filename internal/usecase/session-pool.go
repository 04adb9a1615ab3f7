package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/internal/store"
	"github.com/iamvkosarev/websearch-chat/internal/tools"
)

type SessionPoolDeps struct {
	Blobs      store.BlobStorage
	Completion CompletionClient
	Searcher   tools.Searcher
	Tokens     TokenCounter
}

// SessionPool opens one store and session per key. Each key gets its own blob,
// named "<base>:<key>", so users never share chats or credentials.
type SessionPool struct {
	SessionPoolDeps
	baseName string
	defaults model.Settings
	cfg      AiChatConfig

	mu       sync.Mutex
	sessions map[string]*AiChatUsecase
}

func NewSessionPool(deps SessionPoolDeps, baseName string, defaults model.Settings, cfg AiChatConfig) *SessionPool {
	return &SessionPool{
		SessionPoolDeps: deps,
		baseName:        baseName,
		defaults:        defaults,
		cfg:             cfg,
		sessions:        make(map[string]*AiChatUsecase),
	}
}

// Get returns the session for key, opening it on first use. created reports
// whether this call opened it.
func (p *SessionPool) Get(ctx context.Context, key string) (session *AiChatUsecase, created bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if session, ok := p.sessions[key]; ok {
		return session, false, nil
	}

	name := p.baseName
	if key != "" {
		name = fmt.Sprintf("%s:%s", p.baseName, key)
	}
	s, err := store.Open(ctx, p.Blobs, name, p.defaults)
	if err != nil {
		return nil, false, err
	}
	session, err = NewAiChatUsecase(
		AiChatUsecaseDeps{
			Store:      s,
			Completion: p.Completion,
			Searcher:   p.Searcher,
			Tokens:     p.Tokens,
		}, p.cfg,
	)
	if err != nil {
		return nil, false, err
	}
	if _, err = session.Bootstrap(); err != nil {
		return nil, false, fmt.Errorf("failed to bootstrap session %s: %w", name, err)
	}

	slog.DebugContext(ctx, "Session opened", "name", name)
	p.sessions[key] = session
	return session, true, nil
}

// Close waits for the background work of every open session.
func (p *SessionPool) Close() {
	p.mu.Lock()
	sessions := make([]*AiChatUsecase, 0, len(p.sessions))
	for _, session := range p.sessions {
		sessions = append(sessions, session)
	}
	p.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}
