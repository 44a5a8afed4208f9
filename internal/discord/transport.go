// Package discord carries the Discord-facing boundary: the REST message
// transport, the slash command registry with typed option decoding, and
// the interactions webhook handler.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/svglol/dinkdonkbot/internal/domain"
)

// Transport implements domain.MessageTransport over the Discord REST
// API. The gateway is never opened; everything runs over plain HTTP.
type Transport struct {
	session *discordgo.Session
	appID   string
}

func NewTransport(botToken, appID string) (*Transport, error) {
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: failed to create session: %w", err)
	}
	return &Transport{session: session, appID: appID}, nil
}

// Session exposes the underlying session for command registration.
func (t *Transport) Session() *discordgo.Session {
	return t.session
}

// CreateMessage posts a new message and returns its Discord ID.
func (t *Transport) CreateMessage(ctx context.Context, channelID string, body domain.MessageBody) (string, error) {
	msg, err := t.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    body.Content,
		Embeds:     body.Embeds,
		Components: body.Components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: failed to create message: %w", err)
	}
	return msg.ID, nil
}

// UpdateMessage edits an existing message in place.
func (t *Transport) UpdateMessage(ctx context.Context, channelID, messageID string, body domain.MessageBody) error {
	edit := &discordgo.MessageEdit{
		ID:         messageID,
		Channel:    channelID,
		Content:    &body.Content,
		Embeds:     &body.Embeds,
		Components: &body.Components,
	}
	if _, err := t.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: failed to update message: %w", err)
	}
	return nil
}

// UpdateDeferredResponse edits the original deferred interaction
// response identified by its token.
func (t *Transport) UpdateDeferredResponse(ctx context.Context, interactionToken string, body domain.MessageBody) error {
	edit := &discordgo.WebhookEdit{
		Content:    &body.Content,
		Embeds:     &body.Embeds,
		Components: &body.Components,
	}
	_, err := t.session.WebhookMessageEdit(t.appID, interactionToken, "@original", edit, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: failed to edit deferred response: %w", err)
	}
	return nil
}
