package remote

import (
	"net/http"

	"go.uber.org/zap"
)

// Option to configure the remote store backend
type Option func(*Store)

// HTTPClient overrides the http client, e.g. to set transport timeouts
func HTTPClient(client *http.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

// Logger sets a logger for this backend
func Logger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.l = l
		}
	}
}
