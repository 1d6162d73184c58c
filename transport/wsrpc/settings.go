package wsrpc

import (
	"time"
)

// Settings tune the websocket client. Zero durations disable the matching deadline.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// RequestTimeout bounds the wait for a response when the caller's context has no deadline.
	RequestTimeout time.Duration
	ReadLimit      int64
}

func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		RequestTimeout:   30 * time.Second,
		ReadLimit:        16 * 1024 * 1024,
	}
}
