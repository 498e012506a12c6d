// Package notify delivers league announcements to a chat destination.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Announcer sends a message to a destination inside a community scope.
// Callers treat it as fire-and-forget and only log failures.
type Announcer interface {
	Announce(ctx context.Context, scopeID, destinationID, message string) error
}

type messageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordAnnouncer posts announcements into a guild text channel.
type DiscordAnnouncer struct {
	session messageSender
}

func NewDiscordAnnouncer(session *discordgo.Session) *DiscordAnnouncer {
	return &DiscordAnnouncer{session: session}
}

func (a *DiscordAnnouncer) Announce(ctx context.Context, guildID, channelID, message string) error {
	if channelID == "" {
		return fmt.Errorf("no announcement channel configured for guild %s", guildID)
	}
	if _, err := a.session.ChannelMessageSend(channelID, message, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send announcement to channel %s: %w", channelID, err)
	}
	return nil
}

// LogAnnouncer writes announcements to the structured log. Used when no chat
// token is configured.
type LogAnnouncer struct {
	logger *slog.Logger
}

func NewLogAnnouncer(logger *slog.Logger) *LogAnnouncer {
	return &LogAnnouncer{logger: logger}
}

func (a *LogAnnouncer) Announce(ctx context.Context, scopeID, destinationID, message string) error {
	a.logger.InfoContext(ctx, "announcement", "scope", scopeID, "destination", destinationID, "message", message)
	return nil
}
