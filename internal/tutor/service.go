package tutor

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"pandapal_bot/internal/ai"
	"pandapal_bot/internal/aigate"
	"pandapal_bot/internal/storage"
	"pandapal_bot/pkg/metrics"
)

// ErrDailyLimitReached is returned by Reply when a non-premium user has spent
// the day's free message quota.
var ErrDailyLimitReached = errors.New("tutor: daily message limit reached")

// AIClient is the slice of the AI client the tutor needs.
type AIClient interface {
	Chat(ctx context.Context, messages []ai.Message) (ai.Result, error)
}

// Service ties together the AI client, the request gate and chat history.
// Every AI call goes through the injected gate, so the number of in-flight
// provider requests never exceeds the configured capacity regardless of how
// many chats are active.
//
// It is safe for use by multiple goroutines; internal methods are stateless
// except for IO operations delegated to thread-safe dependencies.
type Service struct {
	ai             AIClient
	gate           *aigate.Gate
	history        storage.HistoryStore
	log            *zap.SugaredLogger
	historyLimit   int
	freeDailyLimit int
}

// New constructs a Service instance. The gate is mandatory and must be the
// single process-wide instance built in main.
func New(aiClient AIClient, gate *aigate.Gate, history storage.HistoryStore,
	logger *zap.SugaredLogger, historyLimit, freeDailyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 20
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		ai:             aiClient,
		gate:           gate,
		history:        history,
		log:            logger,
		historyLimit:   historyLimit,
		freeDailyLimit: freeDailyLimit,
	}
}

// Reply answers one child message:
//  1. Enforce the free-tier daily quota (premium users skip it).
//  2. Load recent history and build the message list with the persona prompt.
//  3. Issue the AI call through the gate.
//  4. Persist both sides of the exchange.
//
// Any error from the AI provider is returned unchanged; nothing is persisted
// in that case, so a failed exchange can simply be retried.
func (s *Service) Reply(ctx context.Context, user *storage.User, text string) (string, error) {
	chatID := user.ChatID

	if !user.Premium && s.freeDailyLimit > 0 {
		sent, err := s.history.CountUserMessagesSince(ctx, chatID, startOfDay(time.Now()))
		if err != nil {
			metrics.IncrementDatabaseError("count_messages")
			return "", err
		}
		if sent >= s.freeDailyLimit {
			metrics.IncrementTutorReply("quota_exceeded")
			return "", ErrDailyLimitReached
		}
	}

	recent, err := s.history.RecentMessages(ctx, chatID, s.historyLimit)
	if err != nil {
		metrics.IncrementDatabaseError("recent_messages")
		return "", err
	}

	messages := make([]ai.Message, 0, len(recent)+2)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: personaPrompt(user)})
	for _, m := range recent {
		messages = append(messages, ai.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, ai.Message{Role: ai.RoleUser, Content: text})

	res, err := aigate.Run(ctx, s.gate, func(ctx context.Context) (ai.Result, error) {
		return s.ai.Chat(ctx, messages)
	})
	if err != nil {
		metrics.IncrementAIRequest("error")
		metrics.IncrementTutorReply("failed")
		return "", err
	}
	metrics.IncrementAIRequest("ok")

	if err := s.history.AppendMessage(ctx, chatID, ai.RoleUser, text); err != nil {
		s.log.Warnw("tutor: save user message failed", "chat_id", chatID, "err", err)
		metrics.IncrementDatabaseError("append_message")
	}
	if err := s.history.AppendMessage(ctx, chatID, ai.RoleAssistant, res.Text); err != nil {
		s.log.Warnw("tutor: save assistant message failed", "chat_id", chatID, "err", err)
		metrics.IncrementDatabaseError("append_message")
	}

	metrics.IncrementTutorReply("ok")
	s.log.Debugw("tutor reply",
		"chat_id", chatID,
		"duration", res.Duration.String(),
		"total_tokens", res.Usage.TotalTokens,
		"gate_in_flight", s.gate.ActiveCount())

	return res.Text, nil
}

// startOfDay truncates t to local midnight; the quota window is a calendar day.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
