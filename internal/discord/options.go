package discord

import (
	"errors"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/svglol/dinkdonkbot/internal/domain"
	"github.com/svglol/dinkdonkbot/internal/resolver"
)

const maxAutocompleteChoices = 25

// Option decoding happens once at the interaction boundary; everything
// past this file operates on typed arguments only.

type trackOptions struct {
	Platform  domain.Platform
	Streamer  string
	ChannelID string
	RoleID    string
	Message   string
}

type streamerOptions struct {
	Platform domain.Platform
	Streamer string
}

type platformOptions struct {
	Platform domain.Platform
}

type linkOptions struct {
	Twitch string
	Kick   string
}

type testOptions struct {
	Twitch string
	Kick   string
	Mode   resolver.Mode
	Global bool
}

func optionMap(inter *discordgo.Interaction) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	options := inter.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func decodePlatform(opts map[string]*discordgo.ApplicationCommandInteractionDataOption) (domain.Platform, error) {
	opt, ok := opts["platform"]
	if !ok {
		return "", errors.New("A platform is required.")
	}
	switch platform := domain.Platform(opt.StringValue()); platform {
	case domain.PlatformTwitch, domain.PlatformKick:
		return platform, nil
	default:
		return "", errors.New("Unknown platform.")
	}
}

func decodeTrackOptions(inter *discordgo.Interaction) (*trackOptions, error) {
	opts := optionMap(inter)

	platform, err := decodePlatform(opts)
	if err != nil {
		return nil, err
	}

	decoded := &trackOptions{Platform: platform}
	if opt, ok := opts["streamer"]; ok {
		decoded.Streamer = strings.TrimSpace(opt.StringValue())
	}
	if opt, ok := opts["channel"]; ok {
		id, ok := opt.Value.(string)
		if !ok {
			return nil, errors.New("Invalid channel option.")
		}
		decoded.ChannelID = id
	}
	if opt, ok := opts["role"]; ok {
		id, ok := opt.Value.(string)
		if !ok {
			return nil, errors.New("Invalid role option.")
		}
		decoded.RoleID = id
	}
	if opt, ok := opts["message"]; ok {
		decoded.Message = opt.StringValue()
	}

	if decoded.Streamer == "" {
		return nil, errors.New("A streamer name is required.")
	}
	if decoded.ChannelID == "" {
		return nil, errors.New("An alert channel is required.")
	}
	return decoded, nil
}

func decodeStreamerOptions(inter *discordgo.Interaction) (*streamerOptions, error) {
	opts := optionMap(inter)

	platform, err := decodePlatform(opts)
	if err != nil {
		return nil, err
	}

	decoded := &streamerOptions{Platform: platform}
	if opt, ok := opts["streamer"]; ok {
		decoded.Streamer = strings.TrimSpace(opt.StringValue())
	}
	if decoded.Streamer == "" {
		return nil, errors.New("A streamer name is required.")
	}
	return decoded, nil
}

func decodePlatformOption(inter *discordgo.Interaction) (*platformOptions, error) {
	platform, err := decodePlatform(optionMap(inter))
	if err != nil {
		return nil, err
	}
	return &platformOptions{Platform: platform}, nil
}

func decodeLinkOptions(inter *discordgo.Interaction) (*linkOptions, error) {
	opts := optionMap(inter)

	decoded := &linkOptions{}
	if opt, ok := opts["twitch"]; ok {
		decoded.Twitch = strings.TrimSpace(opt.StringValue())
	}
	if opt, ok := opts["kick"]; ok {
		decoded.Kick = strings.TrimSpace(opt.StringValue())
	}
	if decoded.Twitch == "" || decoded.Kick == "" {
		return nil, errors.New("Both a Twitch and a Kick streamer are required.")
	}
	return decoded, nil
}

func decodeTestOptions(inter *discordgo.Interaction) (*testOptions, error) {
	opts := optionMap(inter)

	decoded := &testOptions{Mode: resolver.ModeLive}
	if opt, ok := opts["twitch"]; ok {
		decoded.Twitch = strings.TrimSpace(opt.StringValue())
	}
	if opt, ok := opts["kick"]; ok {
		decoded.Kick = strings.TrimSpace(opt.StringValue())
	}
	if opt, ok := opts["mode"]; ok {
		switch mode := resolver.Mode(opt.StringValue()); mode {
		case resolver.ModeLive, resolver.ModeOffline:
			decoded.Mode = mode
		default:
			return nil, errors.New("Unknown test mode.")
		}
	}
	if opt, ok := opts["global"]; ok {
		decoded.Global = opt.BoolValue()
	}
	return decoded, nil
}

// focusedStreamerOption finds the option currently being typed and maps
// it to the platform its choices come from.
func focusedStreamerOption(inter *discordgo.Interaction) (*discordgo.ApplicationCommandInteractionDataOption, domain.Platform) {
	data := inter.ApplicationCommandData()

	var platform domain.Platform = domain.PlatformTwitch
	for _, opt := range data.Options {
		if opt.Name == "platform" {
			platform = domain.Platform(opt.StringValue())
		}
	}

	for _, opt := range data.Options {
		if !opt.Focused {
			continue
		}
		switch opt.Name {
		case "twitch":
			return opt, domain.PlatformTwitch
		case "kick":
			return opt, domain.PlatformKick
		case "streamer":
			return opt, platform
		}
	}
	return nil, platform
}
