package model

import "errors"

var (
	ErrDuplicateTask   = errors.New("task already exists")
	ErrTaskNotFound    = errors.New("task not found")
	ErrAccountNotFound = errors.New("account not found")
	ErrEmptyVideoList  = errors.New("video list is empty")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrLoginFailed     = errors.New("login failed")
	ErrSessionInvalid  = errors.New("session invalid")
	ErrNoProxy         = errors.New("no proxy configured")
	ErrAccountBusy     = errors.New("account is locked by another worker")
)
