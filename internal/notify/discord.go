// Package notify announces finished batch runs.
package notify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/alexisbeaulieu97/reportcheck/internal/batch"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Notifier announces a batch summary.
type Notifier interface {
	NotifyBatch(ctx context.Context, project string, summary batch.Summary) error
}

// Nop discards notifications.
type Nop struct{}

// NotifyBatch implements Notifier.
func (Nop) NotifyBatch(context.Context, string, batch.Summary) error { return nil }

// EmbedSender is the part of a discordgo session the notifier uses.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

const (
	colorSuccess = 0x2ECC71
	colorPartial = 0xF39C12
	colorFailed  = 0xE74C3C

	maxListed = 10
)

// Discord posts batch summaries as an embed to one channel.
type Discord struct {
	sender    EmbedSender
	session   *discordgo.Session
	channelID string
	now       func() time.Time
}

// NewDiscord opens a bot session for token.
func NewDiscord(token, channelID string) (*Discord, error) {
	if strings.TrimSpace(token) == "" {
		return nil, rcerrors.NewConfigurationError("discord", "bot token")
	}
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	d := NewDiscordWithSender(session, channelID)
	d.session = session
	return d, nil
}

// NewDiscordWithSender posts through sender.
func NewDiscordWithSender(sender EmbedSender, channelID string) *Discord {
	return &Discord{sender: sender, channelID: channelID, now: time.Now}
}

// NotifyBatch implements Notifier.
func (d *Discord) NotifyBatch(ctx context.Context, project string, summary batch.Summary) error {
	embed := buildEmbed(project, summary, d.now())
	_, err := d.sender.ChannelMessageSendEmbed(d.channelID, embed, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send discord summary: %w", err)
	}
	return nil
}

// Close releases the session, if one was opened.
func (d *Discord) Close() error {
	if d.session == nil {
		return nil
	}
	return d.session.Close()
}

func buildEmbed(project string, summary batch.Summary, now time.Time) *discordgo.MessageEmbed {
	color := colorSuccess
	switch {
	case summary.Failed > 0 && summary.Succeeded == 0:
		color = colorFailed
	case summary.Failed > 0:
		color = colorPartial
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Review batch finished: %s", filepath.Base(project)),
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Processed", Value: fmt.Sprint(summary.Total), Inline: true},
			{Name: "Succeeded", Value: fmt.Sprint(summary.Succeeded), Inline: true},
			{Name: "Failed", Value: fmt.Sprint(summary.Failed), Inline: true},
			{Name: "Skipped", Value: fmt.Sprint(summary.Skipped), Inline: true},
		},
		Timestamp: now.Format(time.RFC3339),
		Footer:    &discordgo.MessageEmbedFooter{Text: "reportcheck"},
	}

	var failed []string
	for _, outcome := range summary.Outcomes {
		if outcome.Status != batch.OutcomeError {
			continue
		}
		if len(failed) == maxListed {
			failed = append(failed, fmt.Sprintf("and %d more", summary.Failed-maxListed))
			break
		}
		failed = append(failed, outcome.Report)
	}
	if len(failed) > 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Failed reports",
			Value: strings.Join(failed, "\n"),
		})
	}
	return embed
}
