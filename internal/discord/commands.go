package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/svglol/dinkdonkbot/internal/app"
	"github.com/svglol/dinkdonkbot/internal/domain"
	apperrors "github.com/svglol/dinkdonkbot/internal/errors"
	"github.com/svglol/dinkdonkbot/internal/redis"
	"github.com/svglol/dinkdonkbot/internal/resolver"
)

// HandlerFunc runs a command after the interaction has been acknowledged
// with a deferred response. It reports back by editing that response.
type HandlerFunc func(ctx context.Context, inter *discordgo.Interaction)

// AutocompleteFunc produces choices for a focused option. It runs
// synchronously inside the interaction request.
type AutocompleteFunc func(ctx context.Context, inter *discordgo.Interaction) []*discordgo.ApplicationCommandOptionChoice

// Command is one slash command: its Discord definition plus the typed
// handlers operating on decoded options.
type Command struct {
	Definition   *discordgo.ApplicationCommand
	Handle       HandlerFunc
	Autocomplete AutocompleteFunc
	Ephemeral    bool
}

// Registry maps command names to descriptors, preserving registration
// order for deterministic bulk overwrites.
type Registry struct {
	order    []string
	commands map[string]*Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

func (r *Registry) Register(cmd *Command) {
	name := cmd.Definition.Name
	if _, exists := r.commands[name]; !exists {
		r.order = append(r.order, name)
	}
	r.commands[name] = cmd
}

func (r *Registry) Get(name string) (*Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Definitions returns the command definitions in registration order.
func (r *Registry) Definitions() []*discordgo.ApplicationCommand {
	defs := make([]*discordgo.ApplicationCommand, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.commands[name].Definition)
	}
	return defs
}

// RegisterCommands overwrites the application's global command set with
// the registry's definitions.
func RegisterCommands(session *discordgo.Session, appID string, registry *Registry) error {
	if _, err := session.ApplicationCommandBulkOverwrite(appID, "", registry.Definitions()); err != nil {
		return fmt.Errorf("discord: failed to register commands: %w", err)
	}
	return nil
}

// Commands wires the slash commands to the application service.
type Commands struct {
	service   *app.Service
	transport domain.MessageTransport
	names     *redis.NameCache
}

func NewCommands(service *app.Service, transport domain.MessageTransport, names *redis.NameCache) *Commands {
	return &Commands{service: service, transport: transport, names: names}
}

// BuildRegistry assembles the full command set.
func (c *Commands) BuildRegistry() *Registry {
	manageChannels := int64(discordgo.PermissionManageChannels)

	platformOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "platform",
		Description: "Streaming platform",
		Required:    true,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "Twitch", Value: string(domain.PlatformTwitch)},
			{Name: "Kick", Value: string(domain.PlatformKick)},
		},
	}
	streamerOption := &discordgo.ApplicationCommandOption{
		Type:         discordgo.ApplicationCommandOptionString,
		Name:         "streamer",
		Description:  "Streamer name",
		Required:     true,
		Autocomplete: true,
	}

	registry := NewRegistry()

	registry.Register(&Command{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "track",
			Description:              "Get notified when a streamer goes live",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				platformOption,
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "streamer",
					Description: "Streamer name",
					Required:    true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "Channel to post alerts in",
					Required:     true,
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews},
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "role",
					Description: "Role to ping",
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "message",
					Description: "Custom alert text ({{name}}, {{url}}, {{game}}, {{title}}, {{everyone}}, {{here}})",
				},
			},
		},
		Handle:    c.handleTrack,
		Ephemeral: true,
	})

	registry.Register(&Command{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "untrack",
			Description:              "Stop tracking a streamer",
			DefaultMemberPermissions: &manageChannels,
			Options:                  []*discordgo.ApplicationCommandOption{platformOption, streamerOption},
		},
		Handle:       c.handleUntrack,
		Autocomplete: c.autocompleteStreamer,
		Ephemeral:    true,
	})

	registry.Register(&Command{
		Definition: &discordgo.ApplicationCommand{
			Name:        "list",
			Description: "List tracked streamers in this server",
			Options:     []*discordgo.ApplicationCommandOption{platformOption},
		},
		Handle:    c.handleList,
		Ephemeral: true,
	})

	registry.Register(&Command{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "link",
			Description:              "Combine a Twitch and a Kick streamer into one multistream alert",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "twitch",
					Description:  "Tracked Twitch streamer",
					Required:     true,
					Autocomplete: true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "kick",
					Description:  "Tracked Kick streamer",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		Handle:       c.handleLink,
		Autocomplete: c.autocompleteStreamer,
		Ephemeral:    true,
	})

	registry.Register(&Command{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "unlink",
			Description:              "Split a multistream pair back into separate alerts",
			DefaultMemberPermissions: &manageChannels,
			Options:                  []*discordgo.ApplicationCommandOption{platformOption, streamerOption},
		},
		Handle:       c.handleUnlink,
		Autocomplete: c.autocompleteStreamer,
		Ephemeral:    true,
	})

	registry.Register(&Command{
		Definition: &discordgo.ApplicationCommand{
			Name:                     "test",
			Description:              "Preview or send a test notification for tracked streamers",
			DefaultMemberPermissions: &manageChannels,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "twitch",
					Description:  "Tracked Twitch streamer",
					Autocomplete: true,
				},
				{
					Type:         discordgo.ApplicationCommandOptionString,
					Name:         "kick",
					Description:  "Tracked Kick streamer",
					Autocomplete: true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "mode",
					Description: "Render the live or the ended state",
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "Live", Value: string(resolver.ModeLive)},
						{Name: "Offline", Value: string(resolver.ModeOffline)},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "global",
					Description: "Send to the configured alert channel instead of a private preview",
				},
			},
		},
		Handle:       c.handleTest,
		Autocomplete: c.autocompleteStreamer,
		Ephemeral:    true,
	})

	return registry
}

func (c *Commands) handleTrack(ctx context.Context, inter *discordgo.Interaction) {
	opts, err := decodeTrackOptions(inter)
	if err != nil {
		c.reply(ctx, inter, err.Error())
		return
	}

	sub, err := c.service.AddSubscription(ctx, app.AddArgs{
		Platform:        opts.Platform,
		GuildID:         inter.GuildID,
		Name:            opts.Streamer,
		ChannelID:       opts.ChannelID,
		RoleID:          opts.RoleID,
		MessageTemplate: opts.Message,
	})
	if err != nil {
		c.replyError(ctx, inter, err)
		return
	}

	c.names.Invalidate(ctx, inter.GuildID)
	c.reply(ctx, inter, fmt.Sprintf("Now tracking **%s**, alerts will be posted in <#%s>.", sub.DisplayName, sub.ChannelID))
}

func (c *Commands) handleUntrack(ctx context.Context, inter *discordgo.Interaction) {
	opts, err := decodeStreamerOptions(inter)
	if err != nil {
		c.reply(ctx, inter, err.Error())
		return
	}

	name, err := c.service.RemoveSubscription(ctx, opts.Platform, inter.GuildID, opts.Streamer)
	if err != nil {
		c.replyError(ctx, inter, err)
		return
	}

	c.names.Invalidate(ctx, inter.GuildID)
	c.reply(ctx, inter, fmt.Sprintf("No longer tracking **%s**.", name))
}

func (c *Commands) handleList(ctx context.Context, inter *discordgo.Interaction) {
	opts, err := decodePlatformOption(inter)
	if err != nil {
		c.reply(ctx, inter, err.Error())
		return
	}

	names, err := c.service.ListSubscriptions(ctx, opts.Platform, inter.GuildID)
	if err != nil {
		c.replyError(ctx, inter, err)
		return
	}
	if len(names) == 0 {
		c.reply(ctx, inter, fmt.Sprintf("No %s streamers are tracked in this server yet.", opts.Platform))
		return
	}
	c.reply(ctx, inter, fmt.Sprintf("Tracked %s streamers: %s", opts.Platform, strings.Join(names, ", ")))
}

func (c *Commands) handleLink(ctx context.Context, inter *discordgo.Interaction) {
	opts, err := decodeLinkOptions(inter)
	if err != nil {
		c.reply(ctx, inter, err.Error())
		return
	}

	pair, err := c.service.LinkChannels(ctx, inter.GuildID, opts.Twitch, opts.Kick)
	if err != nil {
		c.replyError(ctx, inter, err)
		return
	}
	c.reply(ctx, inter, fmt.Sprintf("Linked **%s** (Twitch) and **%s** (Kick) into one multistream alert.",
		pair.Twitch.DisplayName, pair.Kick.DisplayName))
}

func (c *Commands) handleUnlink(ctx context.Context, inter *discordgo.Interaction) {
	opts, err := decodeStreamerOptions(inter)
	if err != nil {
		c.reply(ctx, inter, err.Error())
		return
	}

	a, b, err := c.service.UnlinkChannels(ctx, opts.Platform, inter.GuildID, opts.Streamer)
	if err != nil {
		c.replyError(ctx, inter, err)
		return
	}
	c.reply(ctx, inter, fmt.Sprintf("Unlinked **%s** and **%s**.", a, b))
}

func (c *Commands) handleTest(ctx context.Context, inter *discordgo.Interaction) {
	opts, err := decodeTestOptions(inter)
	if err != nil {
		c.reply(ctx, inter, err.Error())
		return
	}

	// TestNotification owns its own replies, including failures.
	c.service.TestNotification(ctx, app.TestArgs{
		GuildID:          inter.GuildID,
		TwitchName:       opts.Twitch,
		KickName:         opts.Kick,
		Mode:             opts.Mode,
		Global:           opts.Global,
		InteractionToken: inter.Token,
	})
}

// autocompleteStreamer serves choices for any focused streamer option
// from the cached per-guild name lists.
func (c *Commands) autocompleteStreamer(ctx context.Context, inter *discordgo.Interaction) []*discordgo.ApplicationCommandOptionChoice {
	option, platform := focusedStreamerOption(inter)
	if option == nil {
		return nil
	}

	names, err := c.names.ListNames(ctx, platform, inter.GuildID)
	if err != nil {
		slog.Warn("Autocomplete lookup failed", "guild_id", inter.GuildID, "error", err)
		return nil
	}

	prefix := strings.ToLower(option.StringValue())
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, maxAutocompleteChoices)
	for _, name := range names {
		if prefix != "" && !strings.Contains(strings.ToLower(name), prefix) {
			continue
		}
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
		if len(choices) == maxAutocompleteChoices {
			break
		}
	}
	return choices
}

func (c *Commands) reply(ctx context.Context, inter *discordgo.Interaction, content string) {
	body := domain.MessageBody{Content: content}
	if err := c.transport.UpdateDeferredResponse(ctx, inter.Token, body); err != nil {
		slog.Error("Failed to edit deferred response", "error", err)
	}
}

func (c *Commands) replyError(ctx context.Context, inter *discordgo.Interaction, err error) {
	content := "Something went wrong, please try again later."
	if apperrors.IsUserFacing(err) {
		content = apperrors.AsStructuredError(err).Message
	} else {
		slog.Error("Command failed", "command", inter.ApplicationCommandData().Name, "error", err)
	}
	c.reply(ctx, inter, content)
}
