package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"role-chatter/internal/dialogue"
)

type fakeSender struct {
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	nextID   int
	fileURL  string
	failEdit bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if _, ok := c.(tgbotapi.EditMessageTextConfig); ok && f.failEdit {
		return tgbotapi.Message{}, errors.New("message to edit not found")
	}
	f.sent = append(f.sent, c)
	f.nextID++
	return tgbotapi.Message{MessageID: f.nextID}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) GetFileDirectURL(string) (string, error) {
	return f.fileURL, nil
}

type collectingSubmitter struct{ events []dialogue.Event }

func (c *collectingSubmitter) Submit(ev dialogue.Event) bool {
	c.events = append(c.events, ev)
	return true
}

func newTestBot(fs *fakeSender) *Bot {
	return newBot(fs, Limits{Voice: 16, Image: 16}, zerolog.Nop())
}

func command(userID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func TestToEvent_Commands(t *testing.T) {
	b := newTestBot(&fakeSender{})
	cases := []struct {
		text string
		kind dialogue.Kind
		arg  string
	}{
		{"/start", dialogue.KindStart, ""},
		{"/finish", dialogue.KindEnd, ""},
		{"/end", dialogue.KindEnd, ""},
		{"/rename Alex", dialogue.KindRename, "Alex"},
		{"/help", dialogue.KindText, "/help"},
	}
	for _, tc := range cases {
		ev, ok := b.toEvent(command(5, tc.text))
		require.True(t, ok, tc.text)
		assert.Equal(t, tc.kind, ev.Kind, tc.text)
		assert.Equal(t, tc.arg, ev.Text, tc.text)
		assert.Equal(t, int64(5), ev.UserID)
	}
}

func TestToEvent_TextAndMedia(t *testing.T) {
	b := newTestBot(&fakeSender{})
	from := &tgbotapi.User{ID: 9}
	chat := &tgbotapi.Chat{ID: 90}

	ev, ok := b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{From: from, Chat: chat, Text: "你好"}})
	require.True(t, ok)
	assert.Equal(t, dialogue.KindText, ev.Kind)
	assert.Equal(t, "你好", ev.Text)

	ev, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{From: from, Chat: chat,
		Voice: &tgbotapi.Voice{FileID: "v1", FileSize: 12, MimeType: "audio/ogg"}}})
	require.True(t, ok)
	assert.Equal(t, dialogue.KindVoice, ev.Kind)
	assert.Equal(t, int64(12), ev.Media.Size)
	assert.Equal(t, "voice.ogg", ev.Media.Filename)

	ev, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{From: from, Chat: chat, Caption: "看",
		Photo: []tgbotapi.PhotoSize{{FileID: "small", FileSize: 1}, {FileID: "big", FileSize: 9}}}})
	require.True(t, ok)
	assert.Equal(t, dialogue.KindImage, ev.Kind)
	assert.Equal(t, "看", ev.Text)
	assert.Equal(t, int64(9), ev.Media.Size)
	assert.Equal(t, "image/jpeg", ev.Media.MimeType)

	ev, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{From: from, Chat: chat,
		Document: &tgbotapi.Document{FileID: "d", MimeType: "audio/mpeg", FileName: "a.mp3"}}})
	require.True(t, ok)
	assert.Equal(t, dialogue.KindVoice, ev.Kind)

	ev, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{From: from, Chat: chat,
		Document: &tgbotapi.Document{FileID: "d", MimeType: "application/pdf"}}})
	require.True(t, ok)
	assert.Equal(t, dialogue.KindImage, ev.Kind)
	assert.Equal(t, "application/pdf", ev.Media.MimeType)

	assert.Equal(t, int64(90), b.chatID(9))
}

func TestToEvent_Ignored(t *testing.T) {
	b := newTestBot(&fakeSender{})
	_, ok := b.toEvent(tgbotapi.Update{})
	assert.False(t, ok)
	_, ok = b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{Text: "no sender"}})
	assert.False(t, ok)
	_, ok = b.toEvent(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{From: &tgbotapi.User{ID: 1}, Data: "other"}})
	assert.False(t, ok)
}

func TestDispatch_CallbackSelectsPersona(t *testing.T) {
	fs := &fakeSender{}
	b := newTestBot(fs)
	sub := &collectingSubmitter{}
	b.dispatch(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 3},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}},
		Data:    "select_role_butler",
	}}, sub)

	require.Len(t, sub.events, 1)
	assert.Equal(t, dialogue.KindSelectPersona, sub.events[0].Kind)
	assert.Equal(t, "butler", sub.events[0].PersonaID)
	require.Len(t, fs.requests, 1)
	assert.Equal(t, "cb1", fs.requests[0].(tgbotapi.CallbackConfig).CallbackQueryID)
}

func TestSendMenu_ThenEditLastPrompt(t *testing.T) {
	fs := &fakeSender{}
	b := newTestBot(fs)
	ctx := context.Background()

	require.NoError(t, b.SendMenu(ctx, 4, "choose", []dialogue.Choice{{ID: "butler", Label: "管家"}}))
	menu := fs.sent[0].(tgbotapi.MessageConfig)
	kb := menu.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, kb.InlineKeyboard, 1)
	assert.Equal(t, "管家", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "select_role_butler", *kb.InlineKeyboard[0][0].CallbackData)

	require.NoError(t, b.EditLastPrompt(ctx, 4, "selected", nil))
	edit := fs.sent[1].(tgbotapi.EditMessageTextConfig)
	assert.Equal(t, 1, edit.MessageID)
	assert.Equal(t, "selected", edit.Text)

	// The prompt is consumed; a second edit falls back to a fresh message.
	require.NoError(t, b.EditLastPrompt(ctx, 4, "again", nil))
	assert.Equal(t, "again", fs.sent[2].(tgbotapi.MessageConfig).Text)
}

func TestEditLastPrompt_FallsBackWhenEditFails(t *testing.T) {
	fs := &fakeSender{}
	b := newTestBot(fs)
	ctx := context.Background()
	require.NoError(t, b.SendMenu(ctx, 4, "choose", []dialogue.Choice{{ID: "a", Label: "A"}}))

	fs.failEdit = true
	require.NoError(t, b.EditLastPrompt(ctx, 4, "selected", nil))
	assert.Equal(t, "selected", fs.sent[1].(tgbotapi.MessageConfig).Text)
}

func TestSendTextAndVoice(t *testing.T) {
	fs := &fakeSender{}
	b := newTestBot(fs)
	ctx := context.Background()

	require.NoError(t, b.SendText(ctx, 8, "hi"))
	require.NoError(t, b.SendVoice(ctx, 8, []byte("ogg")))
	assert.Equal(t, int64(8), fs.sent[0].(tgbotapi.MessageConfig).ChatID)
	voice := fs.sent[1].(tgbotapi.VoiceConfig)
	assert.Equal(t, tgbotapi.FileBytes{Name: "reply.ogg", Bytes: []byte("ogg")}, voice.File)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, b.SendText(cancelled, 8, "late"))
	assert.Len(t, fs.sent, 2)
}

func TestDownload_ReadsAtMostLimitPlusOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	fs := &fakeSender{fileURL: srv.URL}
	b := newTestBot(fs)
	ev, ok := b.toEvent(tgbotapi.Update{Message: &tgbotapi.Message{
		From:  &tgbotapi.User{ID: 1},
		Voice: &tgbotapi.Voice{FileID: "v", FileSize: 10},
	}})
	require.True(t, ok)

	data, err := ev.Media.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, data, 17)
}

func TestDownload_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := newTestBot(&fakeSender{fileURL: srv.URL})
	_, err := b.download(context.Background(), "x", 10)
	assert.ErrorContains(t, err, "unexpected status")
}
