package message

import (
	"context"

	"go.uber.org/zap"
)

// Content is one chat message.
type Content struct {
	Text     string
	Mentions []string
}

// Sender delivers messages to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID string, content Content) error
}

// LogSender writes messages to the log instead of a chat. It backs dry runs
// and deployments without a chat token.
type LogSender struct{}

func (LogSender) SendMessage(_ context.Context, chatID string, content Content) error {
	zap.L().Info("message: dry run",
		zap.String("chat_id", chatID),
		zap.Strings("mentions", content.Mentions),
		zap.String("text", content.Text))
	return nil
}
