package eventlog

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if chatID == 0 {
		return nil, errors.New("telegram chat id not set")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Notify(_ context.Context, text string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text))
	return err
}

type Discord struct {
	session   *discordgo.Session
	channelID string
}

// NewDiscord only uses the REST API, so no gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	if channelID == "" {
		return nil, errors.New("discord channel id not set")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &Discord{session: s, channelID: channelID}, nil
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) Notify(ctx context.Context, text string) error {
	_, err := d.session.ChannelMessageSend(d.channelID, text, discordgo.WithContext(ctx))
	return err
}
