package notify

import (
	"context"
	"sync"
	"time"
)

// Pusher delivers one notification title to a set of tokens. Satisfied
// by *Gateway.
type Pusher interface {
	Push(ctx context.Context, tokens []string, title string) error
}

// Logger is the minimal logging interface this package needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Service fans notifications out to all registered push tokens. It
// satisfies the relay's Notifier and TokenSink contracts: both calls
// return immediately and never surface errors to the caller.
type Service struct {
	pusher Pusher
	repo   Repository
	logger Logger

	timeout time.Duration
	wg      sync.WaitGroup
}

// NewService creates a notification service. A zero timeout selects the
// default per-dispatch deadline.
func NewService(pusher Pusher, repo Repository, logger Logger) *Service {
	return &Service{
		pusher:  pusher,
		repo:    repo,
		logger:  logger,
		timeout: defaultTimeout,
	}
}

// Notify dispatches a notification with the given title to every
// registered token. Dispatch runs on its own goroutine; failures are
// logged and dropped.
func (s *Service) Notify(title string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(title)
	}()
}

func (s *Service) dispatch(title string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tokens, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to load push tokens", "error", err)
		return
	}
	if len(tokens) == 0 {
		s.logger.Debug("no push tokens registered, skipping notification", "title", title)
		return
	}

	recipients := make([]string, len(tokens))
	for i, t := range tokens {
		recipients[i] = t.Token
	}

	if err := s.pusher.Push(ctx, recipients, title); err != nil {
		s.logger.Error("push notification failed",
			"title", title,
			"recipients", len(recipients),
			"error", err,
		)
		return
	}
	s.logger.Debug("push notification sent", "title", title, "recipients", len(recipients))
}

// RegisterToken persists a push token announced over the socket. Invalid
// or duplicate tokens are logged and dropped.
func (s *Service) RegisterToken(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.repo.Save(ctx, token); err != nil {
		s.logger.Warn("failed to register push token", "error", err)
		return
	}
	s.logger.Debug("push token registered")
}

// Close waits for in-flight notification dispatches to finish.
func (s *Service) Close() {
	s.wg.Wait()
}
