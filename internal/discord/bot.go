// Package discord publishes messages to Discord and answers questions
// asked in reply to them.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/Aero123421/RSS7/internal/ai"
	"github.com/Aero123421/RSS7/internal/model"
	"github.com/Aero123421/RSS7/internal/qa"
)

// maxMessageRunes is Discord's limit for plain message content.
const maxMessageRunes = 2000

const answerTimeout = 2 * time.Minute

// Answerer answers a question about a delivered message.
type Answerer interface {
	Answer(ctx context.Context, messageID, question string) (string, error)
}

// ChannelCleaner drops subscriptions of a deleted channel.
type ChannelCleaner interface {
	RemoveByChannel(ctx context.Context, channelID string) (int, error)
}

// Bot represents the Discord bot
type Bot struct {
	session  *discordgo.Session
	answerer Answerer
	channels ChannelCleaner
	log      *slog.Logger
}

// NewBot creates a new Discord bot
func NewBot(token string, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	if logger == nil {
		logger = slog.Default()
	}

	bot := &Bot{
		session: session,
		log:     logger.With("component", "discord"),
	}
	session.AddHandler(bot.messageHandler)
	session.AddHandler(bot.channelDeleteHandler)
	return bot, nil
}

// Attach sets the handlers for replies and channel deletions. Either may be
// nil.
func (b *Bot) Attach(answerer Answerer, channels ChannelCleaner) {
	b.answerer = answerer
	b.channels = channels
}

// Start starts the Discord bot
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	b.log.Info("Discord bot connected")
	return nil
}

// Stop stops the Discord bot
func (b *Bot) Stop() error {
	return b.session.Close()
}

// Publish sends msg as an embed and returns the Discord message id.
func (b *Bot) Publish(ctx context.Context, channelID string, msg model.Message) (string, error) {
	m, err := b.session.ChannelMessageSendEmbed(channelID, Embed(msg), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to send embed: %w", err)
	}
	return m.ID, nil
}

// SendPlain sends a text message.
func (b *Bot) SendPlain(ctx context.Context, channelID, text string) error {
	_, err := b.session.ChannelMessageSend(channelID, ai.Truncate(text, maxMessageRunes), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Embed converts a rendered message to a Discord embed.
func Embed(msg model.Message) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		URL:         msg.URL,
		Description: msg.Body,
		Color:       msg.Color,
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   f.Name,
			Value:  f.Value,
			Inline: f.Inline,
		})
	}
	if msg.Thumbnail != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: msg.Thumbnail}
	}
	if msg.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	return embed
}

// messageHandler answers replies to the bot's own messages.
func (b *Bot) messageHandler(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.answerer == nil || s.State == nil || s.State.User == nil {
		return
	}
	target, ok := questionTarget(m.Message, s.State.User.ID)
	if !ok {
		return
	}

	if err := s.ChannelTyping(m.ChannelID); err != nil {
		b.log.Debug("typing indicator failed", "err", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), answerTimeout)
	defer cancel()
	answer, err := b.answerer.Answer(ctx, target, m.Content)
	if errors.Is(err, qa.ErrUnknownMessage) {
		answer = "元の記事が見つかりませんでした。"
	} else if err != nil {
		b.log.Error("question failed", "message_id", target, "err", err)
		answer = qa.Apology
	}

	if _, err := s.ChannelMessageSendReply(m.ChannelID, ai.Truncate(answer, maxMessageRunes), m.Reference()); err != nil {
		b.log.Error("failed to send answer", "channel", m.ChannelID, "err", err)
	}
}

// questionTarget returns the id of the bot message m replies to.
func questionTarget(m *discordgo.Message, botID string) (string, bool) {
	if m == nil || m.Author == nil || m.Author.ID == botID || m.Author.Bot {
		return "", false
	}
	if m.Content == "" {
		return "", false
	}
	ref := m.ReferencedMessage
	if ref == nil || ref.Author == nil || ref.Author.ID != botID {
		return "", false
	}
	return ref.ID, true
}

// channelDeleteHandler removes feeds that delivered to a deleted channel.
func (b *Bot) channelDeleteHandler(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	if b.channels == nil || c.Channel == nil {
		return
	}
	n, err := b.channels.RemoveByChannel(context.Background(), c.ID)
	if err != nil {
		b.log.Error("channel cleanup failed", "channel", c.ID, "err", err)
		return
	}
	if n > 0 {
		b.log.Info("channel deleted", "channel", c.ID, "feeds_removed", n)
	}
}
