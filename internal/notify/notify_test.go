package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	channelID string
	content   string
	err       error
}

func (f *fakeSender) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channelID = channelID
	f.content = content
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestDiscordAnnouncer(t *testing.T) {
	sender := &fakeSender{}
	announcer := &DiscordAnnouncer{session: sender}

	err := announcer.Announce(context.Background(), "guild-1", "chan-1", "Round 1 has started!")
	require.NoError(t, err)
	assert.Equal(t, "chan-1", sender.channelID)
	assert.Equal(t, "Round 1 has started!", sender.content)
}

func TestDiscordAnnouncerErrors(t *testing.T) {
	sender := &fakeSender{err: errors.New("unknown channel")}
	announcer := &DiscordAnnouncer{session: sender}

	err := announcer.Announce(context.Background(), "guild-1", "chan-1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chan-1")
	assert.ErrorIs(t, err, sender.err)

	err = announcer.Announce(context.Background(), "guild-1", "", "hello")
	assert.Error(t, err)
}

func TestLogAnnouncer(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := NewLogAnnouncer(logger).Announce(context.Background(), "guild-1", "chan-1", "Round 2: 15 minutes remaining.")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "destination=chan-1")
	assert.Contains(t, buf.String(), "15 minutes remaining")
}
