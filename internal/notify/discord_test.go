package notify

import (
	"context"
	stdErrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/reportcheck/internal/batch"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

type fakeSender struct {
	channel string
	embeds  []*discordgo.MessageEmbed
	err     error
}

func (f *fakeSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.channel = channelID
	f.embeds = append(f.embeds, embed)
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ID: "1"}, nil
}

func TestNotifyBatchSendsSummary(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	d := NewDiscordWithSender(sender, "42")
	d.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	summary := batch.Summary{
		Total:     3,
		Succeeded: 1,
		Failed:    1,
		Skipped:   1,
		Outcomes: []batch.Outcome{
			{Report: "a.txt", Status: batch.OutcomeSuccess},
			{Report: "b.pdf", Status: batch.OutcomeError},
			{Report: "c.md", Status: batch.OutcomeSkipped},
		},
	}
	require.NoError(t, d.NotifyBatch(context.Background(), "/srv/projects/spring", summary))

	require.Len(t, sender.embeds, 1)
	embed := sender.embeds[0]
	assert.Equal(t, "42", sender.channel)
	assert.Equal(t, "Review batch finished: spring", embed.Title)
	assert.Equal(t, colorPartial, embed.Color)
	assert.Equal(t, "2024-01-02T03:04:05Z", embed.Timestamp)
	require.Len(t, embed.Fields, 5)
	assert.Equal(t, "3", embed.Fields[0].Value)
	assert.Equal(t, "b.pdf", embed.Fields[4].Value)
}

func TestEmbedColor(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.Equal(t, colorSuccess, buildEmbed("p", batch.Summary{Succeeded: 2}, now).Color)
	assert.Equal(t, colorFailed, buildEmbed("p", batch.Summary{Failed: 2}, now).Color)
}

func TestEmbedTruncatesFailures(t *testing.T) {
	t.Parallel()

	summary := batch.Summary{Failed: 12}
	for i := 0; i < 12; i++ {
		summary.Outcomes = append(summary.Outcomes, batch.Outcome{Report: fmt.Sprintf("r%02d.txt", i), Status: batch.OutcomeError})
	}
	embed := buildEmbed("p", summary, time.Now())
	last := embed.Fields[len(embed.Fields)-1]
	assert.Contains(t, last.Value, "r09.txt")
	assert.NotContains(t, last.Value, "r10.txt")
	assert.Contains(t, last.Value, "and 2 more")
}

func TestNotifyBatchWrapsSendError(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{err: stdErrors.New("401 unauthorized")}
	err := NewDiscordWithSender(sender, "42").NotifyBatch(context.Background(), "p", batch.Summary{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewDiscordRequiresToken(t *testing.T) {
	t.Parallel()

	_, err := NewDiscord(" ", "42")
	var cfgErr *rcerrors.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}
