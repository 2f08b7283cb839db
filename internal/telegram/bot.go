package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"role-chatter/internal/dialogue"
)

const (
	selectPersonaPrefix = "select_role_"

	cmdStart  = "start"
	cmdFinish = "finish"
	cmdEnd    = "end"
	cmdRename = "rename"
)

// Submitter accepts converted events. *dialogue.Dispatcher implements it.
type Submitter interface {
	Submit(ev dialogue.Event) bool
}

// Limits caps how many bytes a single attachment download may read.
type Limits struct {
	Voice int64
	Image int64
}

// Bot adapts the Telegram Bot API to dialogue events and implements
// dialogue.Sink for the replies.
type Bot struct {
	api    *tgbotapi.BotAPI
	s      sender
	http   *http.Client
	limits Limits
	log    zerolog.Logger

	mu         sync.Mutex
	chats      map[int64]int64
	lastPrompt map[int64]int
}

func New(botToken string, limits Limits, log zerolog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	b := newBot(api, limits, log)
	b.api = api
	return b, nil
}

func newBot(s sender, limits Limits, log zerolog.Logger) *Bot {
	return &Bot{
		s:          s,
		http:       &http.Client{Timeout: 2 * time.Minute},
		limits:     limits,
		log:        log.With().Str("component", "telegram").Logger(),
		chats:      make(map[int64]int64),
		lastPrompt: make(map[int64]int),
	}
}

// Run long-polls for updates and hands them to sub until ctx is done.
func (b *Bot) Run(ctx context.Context, sub Submitter) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)
	b.log.Info().Str("bot", b.api.Self.UserName).Msg("polling for updates")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(update, sub)
		}
	}
}

func (b *Bot) dispatch(update tgbotapi.Update, sub Submitter) {
	if cb := update.CallbackQuery; cb != nil {
		if _, err := b.s.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			b.log.Warn().Err(err).Msg("failed to answer callback")
		}
	}
	ev, ok := b.toEvent(update)
	if !ok {
		return
	}
	if !sub.Submit(ev) {
		b.log.Warn().Int64("user_id", ev.UserID).Msg("dispatcher closed, dropping update")
	}
}

// toEvent converts an update into a dialogue event. Updates the bot does not
// act on (edits, channel posts, foreign callbacks) yield false.
func (b *Bot) toEvent(update tgbotapi.Update) (dialogue.Event, bool) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.From == nil || !strings.HasPrefix(cb.Data, selectPersonaPrefix) {
			return dialogue.Event{}, false
		}
		if cb.Message != nil && cb.Message.Chat != nil {
			b.rememberChat(cb.From.ID, cb.Message.Chat.ID)
		}
		return dialogue.Event{
			Kind:      dialogue.KindSelectPersona,
			UserID:    cb.From.ID,
			PersonaID: strings.TrimPrefix(cb.Data, selectPersonaPrefix),
		}, true
	}

	msg := update.Message
	if msg == nil || msg.From == nil {
		return dialogue.Event{}, false
	}
	if msg.Chat != nil {
		b.rememberChat(msg.From.ID, msg.Chat.ID)
	}
	ev := dialogue.Event{UserID: msg.From.ID}

	switch {
	case msg.IsCommand():
		switch msg.Command() {
		case cmdStart:
			ev.Kind = dialogue.KindStart
		case cmdFinish, cmdEnd:
			ev.Kind = dialogue.KindEnd
		case cmdRename:
			ev.Kind = dialogue.KindRename
			ev.Text = msg.CommandArguments()
		default:
			ev.Kind = dialogue.KindText
			ev.Text = msg.Text
		}
	case msg.Voice != nil:
		ev.Kind = dialogue.KindVoice
		ev.Media = b.attachment(msg.Voice.FileID, int64(msg.Voice.FileSize), msg.Voice.MimeType, "voice.ogg", b.limits.Voice)
	case msg.Audio != nil:
		ev.Kind = dialogue.KindVoice
		ev.Media = b.attachment(msg.Audio.FileID, int64(msg.Audio.FileSize), msg.Audio.MimeType, msg.Audio.FileName, b.limits.Voice)
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		ev.Kind = dialogue.KindImage
		ev.Text = msg.Caption
		ev.Media = b.attachment(largest.FileID, int64(largest.FileSize), "image/jpeg", "photo.jpg", b.limits.Image)
	case msg.Document != nil:
		d := msg.Document
		if strings.HasPrefix(d.MimeType, "audio/") {
			ev.Kind = dialogue.KindVoice
			ev.Media = b.attachment(d.FileID, int64(d.FileSize), d.MimeType, d.FileName, b.limits.Voice)
			break
		}
		ev.Kind = dialogue.KindImage
		ev.Text = msg.Caption
		mime := d.MimeType
		if mime == "" {
			mime = "application/octet-stream"
		}
		ev.Media = b.attachment(d.FileID, int64(d.FileSize), mime, d.FileName, b.limits.Image)
	case msg.Text != "":
		ev.Kind = dialogue.KindText
		ev.Text = msg.Text
	default:
		return dialogue.Event{}, false
	}
	return ev, true
}

func (b *Bot) attachment(fileID string, size int64, mime, filename string, limit int64) *dialogue.Attachment {
	return &dialogue.Attachment{
		Size:     size,
		MimeType: mime,
		Filename: filename,
		Fetch: func(ctx context.Context) ([]byte, error) {
			return b.download(ctx, fileID, limit)
		},
	}
}

// download reads at most limit+1 bytes so that callers can tell an
// oversized file from one that is exactly at the limit.
func (b *Bot) download(ctx context.Context, fileID string, limit int64) ([]byte, error) {
	url, err := b.s.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("resolve file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: unexpected status %s", resp.Status)
	}

	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(resp.Body, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

func (b *Bot) rememberChat(userID, chatID int64) {
	b.mu.Lock()
	b.chats[userID] = chatID
	b.mu.Unlock()
}

// chatID falls back to the user id, which is the chat id of a private chat.
func (b *Bot) chatID(userID int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if id, ok := b.chats[userID]; ok {
		return id
	}
	return userID
}

func (b *Bot) SendText(ctx context.Context, userID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.s.Send(tgbotapi.NewMessage(b.chatID(userID), text))
	return err
}

func (b *Bot) SendVoice(ctx context.Context, userID int64, audio []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v := tgbotapi.NewVoice(b.chatID(userID), tgbotapi.FileBytes{Name: "reply.ogg", Bytes: audio})
	_, err := b.s.Send(v)
	return err
}

func (b *Bot) SendMenu(ctx context.Context, userID int64, text string, choices []dialogue.Choice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(b.chatID(userID), text)
	if len(choices) > 0 {
		msg.ReplyMarkup = keyboard(choices)
	}
	sent, err := b.s.Send(msg)
	if err != nil {
		return err
	}
	if len(choices) > 0 {
		b.mu.Lock()
		b.lastPrompt[userID] = sent.MessageID
		b.mu.Unlock()
	}
	return nil
}

func (b *Bot) EditLastPrompt(ctx context.Context, userID int64, text string, choices []dialogue.Choice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	msgID, ok := b.lastPrompt[userID]
	delete(b.lastPrompt, userID)
	b.mu.Unlock()
	if !ok {
		return b.SendMenu(ctx, userID, text, choices)
	}

	edit := tgbotapi.NewEditMessageText(b.chatID(userID), msgID, text)
	if len(choices) > 0 {
		kb := keyboard(choices)
		edit.ReplyMarkup = &kb
	}
	if _, err := b.s.Send(edit); err != nil {
		b.log.Warn().Err(err).Int64("user_id", userID).Msg("failed to edit prompt, sending a new one")
		return b.SendMenu(ctx, userID, text, choices)
	}
	return nil
}

func keyboard(choices []dialogue.Choice) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, c := range choices {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Label, selectPersonaPrefix+c.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
