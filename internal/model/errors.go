package model

import "errors"

var (
	ErrMissingAPIKey       = errors.New("api key is not configured")
	ErrMissingSearchAPIKey = errors.New("search api key is not configured")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrChatDoesNotExist    = errors.New("chat does not exist")
	ErrNoChatSelected      = errors.New("no chat selected")
	ErrTurnInProgress      = errors.New("turn already in progress")
	ErrEmptyCompletion     = errors.New("completion has no choices")
	ErrBlobDoesNotExist    = errors.New("blob does not exist")
	ErrEmptyMessage        = errors.New("message is empty")
)
