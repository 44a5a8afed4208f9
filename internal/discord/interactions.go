package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/labstack/echo/v4"

	"github.com/svglol/dinkdonkbot/internal/app"
	"github.com/svglol/dinkdonkbot/internal/correlation"
	"github.com/svglol/dinkdonkbot/internal/metrics"
)

// InteractionHandler receives interaction webhooks over HTTP. Commands
// are acknowledged with a deferred response inside Discord's 3 second
// window; the actual work runs detached and edits that response.
type InteractionHandler struct {
	publicKey ed25519.PublicKey
	registry  *Registry
	tasks     *app.TaskRunner
}

func NewInteractionHandler(publicKeyHex string, registry *Registry, tasks *app.TaskRunner) (*InteractionHandler, error) {
	key, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("discord: invalid public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("discord: public key has wrong size: %d", len(key))
	}
	return &InteractionHandler{
		publicKey: ed25519.PublicKey(key),
		registry:  registry,
		tasks:     tasks,
	}, nil
}

// HandleInteraction is the Echo handler for POST /webhooks/discord.
func (h *InteractionHandler) HandleInteraction(c echo.Context) error {
	if !discordgo.VerifyInteraction(c.Request(), h.publicKey) {
		slog.Warn("Rejected interaction with bad signature")
		return c.NoContent(http.StatusUnauthorized)
	}

	var inter discordgo.Interaction
	if err := json.NewDecoder(c.Request().Body).Decode(&inter); err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	switch inter.Type {
	case discordgo.InteractionPing:
		return c.JSON(http.StatusOK, discordgo.InteractionResponse{
			Type: discordgo.InteractionResponsePong,
		})

	case discordgo.InteractionApplicationCommand:
		return h.handleCommand(c, &inter)

	case discordgo.InteractionApplicationCommandAutocomplete:
		return h.handleAutocomplete(c, &inter)

	default:
		return c.NoContent(http.StatusBadRequest)
	}
}

func (h *InteractionHandler) handleCommand(c echo.Context, inter *discordgo.Interaction) error {
	name := inter.ApplicationCommandData().Name

	cmd, ok := h.registry.Get(name)
	if !ok {
		metrics.CommandInvocationsTotal.WithLabelValues(name, "unknown").Inc()
		slog.Warn("Received unknown command", "command", name)
		return c.NoContent(http.StatusBadRequest)
	}
	metrics.CommandInvocationsTotal.WithLabelValues(name, "accepted").Inc()

	parent, hasParent := correlation.ID(c.Request().Context())
	h.tasks.Submit("command-"+name, func(ctx context.Context) {
		if hasParent {
			ctx = correlation.WithID(ctx, parent)
		}
		cmd.Handle(ctx, inter)
	})

	response := discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}
	if cmd.Ephemeral {
		response.Data = &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		}
	}
	return c.JSON(http.StatusOK, response)
}

func (h *InteractionHandler) handleAutocomplete(c echo.Context, inter *discordgo.Interaction) error {
	cmd, ok := h.registry.Get(inter.ApplicationCommandData().Name)
	if !ok || cmd.Autocomplete == nil {
		return c.JSON(http.StatusOK, discordgo.InteractionResponse{
			Type: discordgo.InteractionApplicationCommandAutocompleteResult,
			Data: &discordgo.InteractionResponseData{},
		})
	}

	choices := cmd.Autocomplete(c.Request().Context(), inter)
	return c.JSON(http.StatusOK, discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{Choices: choices},
	})
}
