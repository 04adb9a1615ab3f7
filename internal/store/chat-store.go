package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iamvkosarev/websearch-chat/internal/model"
	"github.com/iamvkosarev/websearch-chat/pkg/logger"
)

const DefaultName = "chat-storage"

const defaultSaveTimeout = 5 * time.Second

type BlobStorage interface {
	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, name string, data []byte) error
}

type EventKind int

const (
	EventMessageAdded EventKind = iota
	EventMessageReplaced
	EventChatAdded
	EventChatUpdated
	EventChatDeleted
	EventCurrentChatChanged
	EventSettingsChanged
)

// Event describes one applied mutation. Index is the message position for message events.
type Event struct {
	Kind    EventKind
	ChatID  string
	Index   int
	Message model.Message
}

type Listener func(Event)

type ChatUpdate struct {
	Title *string
	Model *string
}

type state struct {
	chats       []model.AIChat
	currentChat string
	settings    model.Settings
}

// Store is the state container for chats and settings. Every mutation is applied
// atomically and the whole state is written to the blob storage afterwards.
type Store struct {
	mu            sync.Mutex
	name          string
	blobs         BlobStorage
	defaults      model.Settings
	state         state
	configRequest string
	loading       bool
	saveTimeout   time.Duration

	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int
}

// Open loads the named blob, falling back to defaults when it does not exist yet.
func Open(ctx context.Context, blobs BlobStorage, name string, defaults model.Settings) (*Store, error) {
	s := &Store{
		name:        name,
		blobs:       blobs,
		defaults:    defaults,
		saveTimeout: defaultSaveTimeout,
		listeners:   make(map[int]Listener),
		state: state{
			chats:    make([]model.AIChat, 0),
			settings: defaults,
		},
	}

	data, err := blobs.Load(ctx, name)
	if err != nil {
		if errors.Is(err, model.ErrBlobDoesNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("failed to load state %s: %w", name, err)
	}
	if err = decodeState(data, &s.state); err != nil {
		return nil, fmt.Errorf("failed to decode state %s: %w", name, err)
	}
	return s, nil
}

func (s *Store) Name() string {
	return s.name
}

// Subscribe registers l for every future event and returns a function removing it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()

	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Store) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.settings
}

func (s *Store) Chats() []model.AIChat {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := make([]model.AIChat, 0, len(s.state.chats))
	for _, chat := range s.state.chats {
		chats = append(chats, chat.Clone())
	}
	return chats
}

func (s *Store) Chat(chatID string) (model.AIChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.chatIndex(chatID)
	if i < 0 {
		return model.AIChat{}, model.ErrChatDoesNotExist
	}
	return s.state.chats[i].Clone(), nil
}

func (s *Store) CurrentChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.currentChat
}

func (s *Store) CurrentChat() (model.AIChat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.currentChat == "" {
		return model.AIChat{}, model.ErrNoChatSelected
	}
	i := s.chatIndex(s.state.currentChat)
	if i < 0 {
		return model.AIChat{}, model.ErrNoChatSelected
	}
	return s.state.chats[i].Clone(), nil
}

// AddChat appends chat, fills its model from the pinned model when empty and selects it.
func (s *Store) AddChat(chat model.AIChat) model.AIChat {
	s.mu.Lock()
	if chat.Model == "" {
		chat.Model = s.state.settings.PinnedModel
	}
	chat = chat.Clone()
	s.state.chats = append(s.state.chats, chat)
	s.state.currentChat = chat.ChatID
	s.configRequest = ""
	s.persistLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChatAdded, ChatID: chat.ChatID})
	return chat.Clone()
}

func (s *Store) SetCurrentChat(chatID string) error {
	s.mu.Lock()
	if s.chatIndex(chatID) < 0 {
		s.mu.Unlock()
		return model.ErrChatDoesNotExist
	}
	s.state.currentChat = chatID
	s.configRequest = ""
	s.persistLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventCurrentChatChanged, ChatID: chatID})
	return nil
}

func (s *Store) UpdateChat(chatID string, update ChatUpdate) error {
	s.mu.Lock()
	i := s.chatIndex(chatID)
	if i < 0 {
		s.mu.Unlock()
		return model.ErrChatDoesNotExist
	}
	if update.Title != nil {
		s.state.chats[i].Title = *update.Title
	}
	if update.Model != nil {
		s.state.chats[i].Model = *update.Model
	}
	s.persistLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChatUpdated, ChatID: chatID})
	return nil
}

// DeleteChat removes the chat and clears the selection when it was the current one.
func (s *Store) DeleteChat(chatID string) error {
	s.mu.Lock()
	i := s.chatIndex(chatID)
	if i < 0 {
		s.mu.Unlock()
		return model.ErrChatDoesNotExist
	}
	s.state.chats = append(s.state.chats[:i], s.state.chats[i+1:]...)
	if s.state.currentChat == chatID {
		s.state.currentChat = ""
	}
	s.configRequest = ""
	s.persistLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventChatDeleted, ChatID: chatID})
	return nil
}

// AddMessage appends msg to the chat, or with replace set overwrites the last message
// in place. It returns the index the message ended up at.
func (s *Store) AddMessage(chatID string, msg model.Message, replace bool) (int, error) {
	s.mu.Lock()
	i := s.chatIndex(chatID)
	if i < 0 {
		s.mu.Unlock()
		return 0, model.ErrChatDoesNotExist
	}
	msg = msg.Clone()
	chat := &s.state.chats[i]
	kind := EventMessageAdded
	if replace && len(chat.Messages) > 0 {
		chat.Messages[len(chat.Messages)-1] = msg
		kind = EventMessageReplaced
	} else {
		chat.Messages = append(chat.Messages, msg)
	}
	index := len(chat.Messages) - 1
	s.persistLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: kind, ChatID: chatID, Index: index, Message: msg.Clone()})
	return index, nil
}

// ClaimTitleGeneration reports whether the chat is due a generated title: exactly two
// messages and still the placeholder title. A successful claim is recorded so it
// never fires twice for the same chat.
func (s *Store) ClaimTitleGeneration(chatID string) ([]model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.chatIndex(chatID)
	if i < 0 {
		return nil, false
	}
	chat := &s.state.chats[i]
	if chat.TitleRequested || len(chat.Messages) != 2 || chat.Title != model.DefaultChatTitle {
		return nil, false
	}
	chat.TitleRequested = true
	s.persistLocked()

	messages := make([]model.Message, 0, 2)
	for _, msg := range chat.Messages {
		messages = append(messages, msg.Clone())
	}
	return messages, true
}

func (s *Store) UpdateSystemPrompt(prompt string) {
	s.updateSettings(func(settings *model.Settings) { settings.SystemPrompt = prompt })
}

func (s *Store) UpdateSearchPrompt(prompt string) {
	s.updateSettings(func(settings *model.Settings) { settings.SearchPrompt = prompt })
}

func (s *Store) ResetSearchPrompt() {
	s.updateSettings(func(settings *model.Settings) { settings.SearchPrompt = s.defaults.SearchPrompt })
}

// SetPinnedModel pins the default model for new chats; an empty model unpins.
func (s *Store) SetPinnedModel(chatModel string) {
	s.updateSettings(func(settings *model.Settings) { settings.PinnedModel = chatModel })
}

// UpdateAPISettings replaces the credentials; empty fields fall back to the configured defaults.
func (s *Store) UpdateAPISettings(api model.APISettings) {
	s.updateSettings(
		func(settings *model.Settings) {
			settings.APIKey = orDefault(api.APIKey, s.defaults.APIKey)
			settings.BaseURL = orDefault(api.BaseURL, s.defaults.BaseURL)
			settings.TavilyAPIKey = orDefault(api.TavilyAPIKey, s.defaults.TavilyAPIKey)
		},
	)
}

// RequestConfiguration raises the flag asking the front-end to show the settings.
func (s *Store) RequestConfiguration(reason string) {
	s.mu.Lock()
	s.configRequest = reason
	s.mu.Unlock()
}

func (s *Store) ConfigurationRequest() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configRequest, s.configRequest != ""
}

// BeginTurn sets the loading flag; it fails when a turn is already running.
func (s *Store) BeginTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return false
	}
	s.loading = true
	return true
}

func (s *Store) EndTurn() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) updateSettings(apply func(settings *model.Settings)) {
	s.mu.Lock()
	apply(&s.state.settings)
	s.configRequest = ""
	s.persistLocked()
	s.mu.Unlock()

	s.notify(Event{Kind: EventSettingsChanged})
}

func (s *Store) chatIndex(chatID string) int {
	for i := range s.state.chats {
		if s.state.chats[i].ChatID == chatID {
			return i
		}
	}
	return -1
}

// persistLocked must be called with s.mu held so saves land in mutation order.
func (s *Store) persistLocked() {
	data, err := encodeState(s.state)
	if err != nil {
		slog.Error("Failed to encode state", "name", s.name, logger.Err(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()
	if err = s.blobs.Save(ctx, s.name, data); err != nil {
		slog.Error("Failed to persist state", "name", s.name, logger.Err(err))
	}
}

func (s *Store) notify(ev Event) {
	s.listenersMu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenersMu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
