package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rotisserie/eris"
	"github.com/tavvarez/whatsapp-bot-resonance/internal/domain/message"
	"go.uber.org/zap"
)

// MaxMessageLen is Discord's limit for one message body.
const MaxMessageLen = 2000

type channelSender interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sender posts to Discord channels; chat IDs are channel IDs and mentions
// are user IDs.
type Sender struct {
	session channelSender
	close   func() error
}

var _ message.Sender = (*Sender)(nil)

// NewSender builds a REST-only session for the bot token. No gateway
// connection is opened.
func NewSender(token string) (*Sender, error) {
	if token == "" {
		return nil, eris.New("discord: token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, eris.Wrap(err, "discord: create session")
	}
	return &Sender{session: s, close: s.Close}, nil
}

func (s *Sender) SendMessage(ctx context.Context, chatID string, content message.Content) error {
	text := content.Text
	if len(content.Mentions) > 0 {
		tags := make([]string, 0, len(content.Mentions))
		for _, id := range content.Mentions {
			tags = append(tags, "<@"+id+">")
		}
		text += "\n" + strings.Join(tags, " ")
	}

	parts := split(text, MaxMessageLen)
	for i, part := range parts {
		msg := &discordgo.MessageSend{
			Content:         part,
			AllowedMentions: &discordgo.MessageAllowedMentions{Users: content.Mentions},
		}
		if _, err := s.session.ChannelMessageSendComplex(chatID, msg, discordgo.WithContext(ctx)); err != nil {
			return eris.Wrapf(err, "discord: send to %s (part %d of %d)", chatID, i+1, len(parts))
		}
	}
	zap.L().Debug("discord: message sent", zap.String("channel", chatID), zap.Int("parts", len(parts)))
	return nil
}

func (s *Sender) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// split cuts text into pieces of at most limit bytes, preferring line
// breaks. A single overlong line is cut on a rune boundary.
func split(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, cur.String())
			cur.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !runeStart(line[cut]) {
				cut--
			}
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return parts
}

func runeStart(b byte) bool {
	return b&0xC0 != 0x80
}
