// Package composer renders a session snapshot into the Discord message
// body. Compose is a pure transform: identical snapshots always yield
// byte-identical bodies, so re-rendering on update is idempotent. No
// clock reads, no randomness.
package composer

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/svglol/dinkdonkbot/internal/domain"
)

const (
	twitchColor  = 0x9146FF
	kickColor    = 0x53FC18
	offlineColor = 0x747F8D
)

// Compose renders the message body for a session snapshot. Exactly one
// embed is emitted per platform that is currently online or was online
// during this session. Block state is driven solely by the snapshot's
// flags and timestamps, never by wall-clock time.
func Compose(msg *domain.StreamMessage) domain.MessageBody {
	var body domain.MessageBody

	var buttons []discordgo.MessageComponent
	for _, leg := range []*domain.StreamLeg{msg.Twitch, msg.Kick} {
		if !renderable(leg) {
			continue
		}
		body.Embeds = append(body.Embeds, composeEmbed(leg))
		if line := contentLine(leg); line != "" {
			if body.Content != "" {
				body.Content += "\n"
			}
			body.Content += line
		}
		if btn := legButton(leg); btn != nil {
			buttons = append(buttons, *btn)
		}
	}

	if len(buttons) > 0 {
		body.Components = []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: buttons},
		}
	}

	return body
}

// renderable reports whether the leg gets a visual block: it is online
// now or was online during this session.
func renderable(leg *domain.StreamLeg) bool {
	return leg != nil && (leg.Online || leg.EndedAt != nil)
}

func composeEmbed(leg *domain.StreamLeg) *discordgo.MessageEmbed {
	if leg.Online {
		return liveEmbed(leg)
	}
	return endedEmbed(leg)
}

func liveEmbed(leg *domain.StreamLeg) *discordgo.MessageEmbed {
	sub := leg.Subscription
	embed := &discordgo.MessageEmbed{
		Color: platformColor(sub.Platform),
		URL:   streamURL(sub),
		Title: fmt.Sprintf("%s is live on %s!", displayName(leg), platformLabel(sub.Platform)),
		Author: &discordgo.MessageEmbedAuthor{
			Name: displayName(leg),
			URL:  streamURL(sub),
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: "🔴 Live", Inline: true},
		},
	}

	if leg.Live != nil {
		if leg.Live.Title != "" {
			embed.Description = leg.Live.Title
		}
		if leg.Live.Game != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Category", Value: leg.Live.Game, Inline: true,
			})
		}
		if leg.Live.ViewerCount > 0 {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name: "Viewers", Value: fmt.Sprintf("%d", leg.Live.ViewerCount), Inline: true,
			})
		}
		if leg.Live.ThumbnailURL != "" {
			embed.Image = &discordgo.MessageEmbedImage{URL: thumbnailURL(leg.Live.ThumbnailURL)}
		}
		if leg.Live.ProfileImageURL != "" {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: leg.Live.ProfileImageURL}
		}
	}

	// Timestamp comes from the snapshot, keeping the render deterministic.
	if leg.StartedAt != nil {
		embed.Timestamp = leg.StartedAt.UTC().Format(time.RFC3339)
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Live since"}
	}

	return embed
}

func endedEmbed(leg *domain.StreamLeg) *discordgo.MessageEmbed {
	sub := leg.Subscription
	embed := &discordgo.MessageEmbed{
		Color: offlineColor,
		URL:   streamURL(sub),
		Title: fmt.Sprintf("%s was live on %s", displayName(leg), platformLabel(sub.Platform)),
		Author: &discordgo.MessageEmbedAuthor{
			Name: displayName(leg),
			URL:  streamURL(sub),
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Status", Value: "⚫ Offline", Inline: true},
		},
	}

	if leg.StartedAt != nil && leg.EndedAt != nil {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "Streamed for", Value: formatDuration(leg.EndedAt.Sub(*leg.StartedAt)), Inline: true,
		})
	}

	// Missing VOD data renders a degraded-but-valid block, never an error.
	if leg.VOD != nil {
		value := fmt.Sprintf("[%s](%s)", vodTitle(leg.VOD), leg.VOD.URL)
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "VOD", Value: value, Inline: false,
		})
		if leg.VOD.ThumbnailURL != "" {
			embed.Image = &discordgo.MessageEmbedImage{URL: thumbnailURL(leg.VOD.ThumbnailURL)}
		}
	} else {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: "VOD", Value: "No VOD available", Inline: false,
		})
	}

	if leg.EndedAt != nil {
		embed.Timestamp = leg.EndedAt.UTC().Format(time.RFC3339)
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Ended"}
	}

	return embed
}

// contentLine renders the ping/announcement line for a leg. A custom
// per-subscription template is interpolated without altering the
// structural rendering rules.
func contentLine(leg *domain.StreamLeg) string {
	sub := leg.Subscription

	var line string
	switch {
	case sub.MessageTemplate != "":
		line = interpolate(sub.MessageTemplate, leg)
	case leg.Online:
		line = fmt.Sprintf("**%s** is now live!", displayName(leg))
	default:
		return mention(sub.RoleID)
	}

	if m := mention(sub.RoleID); m != "" {
		line = m + " " + line
	}
	return line
}

func interpolate(template string, leg *domain.StreamLeg) string {
	var game, title string
	if leg.Live != nil {
		game = leg.Live.Game
		title = leg.Live.Title
	}
	replacer := strings.NewReplacer(
		"{{name}}", displayName(leg),
		"{{url}}", streamURL(leg.Subscription),
		"{{game}}", game,
		"{{title}}", title,
		"{{everyone}}", "@everyone",
		"{{here}}", "@here",
	)
	return replacer.Replace(template)
}

func legButton(leg *domain.StreamLeg) *discordgo.Button {
	if leg.Online {
		return &discordgo.Button{
			Label: "Watch on " + platformLabel(leg.Subscription.Platform),
			Style: discordgo.LinkButton,
			URL:   streamURL(leg.Subscription),
		}
	}
	if leg.VOD != nil {
		return &discordgo.Button{
			Label: platformLabel(leg.Subscription.Platform) + " VOD",
			Style: discordgo.LinkButton,
			URL:   leg.VOD.URL,
		}
	}
	return nil
}

func displayName(leg *domain.StreamLeg) string {
	if leg.Live != nil && leg.Live.StreamerName != "" {
		return leg.Live.StreamerName
	}
	if leg.Subscription.DisplayName != "" {
		return leg.Subscription.DisplayName
	}
	return leg.Subscription.Name
}

func streamURL(sub *domain.Subscription) string {
	if sub.Platform == domain.PlatformKick {
		return "https://kick.com/" + sub.Name
	}
	return "https://twitch.tv/" + sub.Name
}

func platformColor(p domain.Platform) int {
	if p == domain.PlatformKick {
		return kickColor
	}
	return twitchColor
}

func platformLabel(p domain.Platform) string {
	if p == domain.PlatformKick {
		return "Kick"
	}
	return "Twitch"
}

func mention(roleID string) string {
	if roleID == "" {
		return ""
	}
	return fmt.Sprintf("<@&%s>", roleID)
}

func vodTitle(vod *domain.VOD) string {
	if vod.Title != "" {
		return vod.Title
	}
	return "Watch the VOD"
}

// thumbnailURL fills Twitch's size template if present.
func thumbnailURL(raw string) string {
	replacer := strings.NewReplacer("{width}", "1280", "{height}", "720")
	return replacer.Replace(raw)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}
