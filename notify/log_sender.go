package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/warp/club-dues/dues"
)

// LogSender is a development PushSender that logs each push and reports
// success.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "push").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg dues.PushMessage) (dues.SendResult, error) {
	s.logger.Info().
		Str("token", maskToken(msg.Token)).
		Str("title", msg.Title).
		Str("body", msg.Body).
		Interface("data", msg.Data).
		Msg("push")
	return dues.SendResult{SuccessCount: 1}, nil
}

// maskToken keeps the last four characters of a device token.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
