package models

import (
	"time"
)

const (
	ToastSuccess = "success"
	ToastError   = "error"
	ToastWarning = "warning"
	ToastInfo    = "info"
)

// Toast is a notification record handed to the presentation layer
type Toast struct {
	ID       string
	Type     string
	Title    string
	Message  string
	Duration time.Duration
}

type Tab string

const (
	TabHome     Tab = "home"
	TabHistory  Tab = "history"
	TabSettings Tab = "settings"
)

func (t Tab) Valid() bool {
	switch t {
	case TabHome, TabHistory, TabSettings:
		return true
	default:
		return false
	}
}
