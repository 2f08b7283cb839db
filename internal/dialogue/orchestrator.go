// Package dialogue turns inbound user events into persona replies.
//
// The Orchestrator owns the per-user state machine (no persona, persona
// selected, awaiting a custom name) and the single message routine shared by
// text, voice and image input. The Dispatcher feeds it events so that each
// user's events run one at a time and in arrival order.
package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"role-chatter/internal/history"
	"role-chatter/internal/llm"
	"role-chatter/internal/persona"
	"role-chatter/internal/ratelimit"
	"role-chatter/internal/session"
	"role-chatter/internal/storage"
)

const (
	maxCustomNameRunes = 32
	nameSeparator      = "："
)

var (
	audioTypes = map[string]bool{
		"audio/ogg": true, "audio/opus": true, "audio/mpeg": true, "audio/mp3": true,
		"audio/mp4": true, "audio/m4a": true, "audio/x-m4a": true, "audio/wav": true,
		"audio/x-wav": true, "audio/webm": true,
	}
	imageTypes = map[string]bool{
		"image/jpeg": true, "image/png": true, "image/webp": true, "image/gif": true,
	}
)

// Options are the numeric knobs of the orchestrator.
type Options struct {
	MaxVoiceBytes     int64
	MaxImageBytes     int64
	ProviderTimeout   time.Duration
	ReplyVoiceToVoice bool
}

// Deps are the collaborators of the orchestrator. Recorder is optional.
type Deps struct {
	Personas *persona.Registry
	History  *history.Store
	Sessions *session.Store
	Limits   *ratelimit.Set
	Provider llm.Provider
	Sink     Sink
	Recorder storage.Recorder
}

type Orchestrator struct {
	Deps
	opts Options
	log  zerolog.Logger
	now  func() time.Time
}

func New(deps Deps, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = time.Minute
	}
	return &Orchestrator{
		Deps: deps,
		opts: opts,
		log:  log.With().Str("component", "dialogue").Logger(),
		now:  time.Now,
	}
}

// Handle processes one event. Every failure has already been reported to the
// user by the time Handle returns; the returned error is for logging only.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) error {
	var err error
	switch ev.Kind {
	case KindStart:
		err = o.showMenu(ctx, ev.UserID)
	case KindEnd:
		err = o.end(ctx, ev.UserID)
	case KindRename:
		err = o.rename(ctx, ev)
	case KindSelectPersona:
		err = o.selectPersona(ctx, ev)
	case KindText:
		err = o.text(ctx, ev)
	case KindVoice:
		err = o.voice(ctx, ev)
	case KindImage:
		err = o.image(ctx, ev)
	default:
		err = fmt.Errorf("unhandled event kind %d", ev.Kind)
	}
	if err != nil {
		o.notify(ctx, ev.UserID, userMessage(err))
	}
	return err
}

func (o *Orchestrator) showMenu(ctx context.Context, userID int64) error {
	all := o.Personas.All()
	choices := make([]Choice, 0, len(all))
	for _, p := range all {
		choices = append(choices, Choice{ID: p.ID, Label: p.Name})
	}
	if err := o.Sink.SendMenu(ctx, userID, msgChoosePersona, choices); err != nil {
		o.log.Error().Err(err).Int64("user_id", userID).Msg("failed to send persona menu")
	}
	return nil
}

func (o *Orchestrator) end(ctx context.Context, userID int64) error {
	sess, ok := o.Sessions.End(userID)
	if !ok {
		o.notify(ctx, userID, msgNoConversation)
		return nil
	}
	o.History.Clear(userID, sess.PersonaID)
	return o.showMenu(ctx, userID)
}

func (o *Orchestrator) selectPersona(ctx context.Context, ev Event) error {
	p, ok := o.Personas.Get(ev.PersonaID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPersona, ev.PersonaID)
	}
	prev := o.Sessions.Select(ev.UserID, p.ID, p.CustomName)
	if prev != "" && prev != p.ID {
		o.History.Clear(ev.UserID, prev)
	}

	text := fmt.Sprintf(msgSelected, p.Name)
	if sess, _ := o.Sessions.Get(ev.UserID); sess.AwaitingName {
		text = fmt.Sprintf(msgSelectedAskName, p.Name, p.Name)
	}
	if err := o.Sink.EditLastPrompt(ctx, ev.UserID, text, nil); err != nil {
		o.log.Error().Err(err).Int64("user_id", ev.UserID).Msg("failed to confirm persona selection")
	}
	return nil
}

func (o *Orchestrator) rename(ctx context.Context, ev Event) error {
	sess, ok := o.Sessions.Get(ev.UserID)
	if !ok {
		return ErrNoActivePersona
	}
	name := strings.TrimSpace(ev.Text)
	if name == "" {
		o.Sessions.AwaitName(ev.UserID)
		p, _ := o.Personas.Get(sess.PersonaID)
		o.notify(ctx, ev.UserID, fmt.Sprintf(msgAskName, p.Name))
		return nil
	}
	o.applyName(ctx, ev.UserID, name)
	return nil
}

func (o *Orchestrator) applyName(ctx context.Context, userID int64, name string) {
	if utf8.RuneCountInString(name) > maxCustomNameRunes {
		name = string([]rune(name)[:maxCustomNameRunes])
	}
	o.Sessions.SetCustomName(userID, name)
	o.notify(ctx, userID, fmt.Sprintf(msgNameSet, name))
}

// active resolves the user's session and persona. A session whose persona
// vanished from the registry counts as no session.
func (o *Orchestrator) active(userID int64) (session.Session, persona.Persona, error) {
	sess, ok := o.Sessions.Get(userID)
	if !ok {
		return session.Session{}, persona.Persona{}, ErrNoActivePersona
	}
	p, ok := o.Personas.Get(sess.PersonaID)
	if !ok {
		o.Sessions.End(userID)
		return session.Session{}, persona.Persona{}, ErrNoActivePersona
	}
	return sess, p, nil
}

func (o *Orchestrator) text(ctx context.Context, ev Event) error {
	sess, p, err := o.active(ev.UserID)
	if err != nil {
		return err
	}
	if sess.AwaitingName {
		name := strings.TrimSpace(ev.Text)
		if name == "" {
			o.notify(ctx, ev.UserID, msgNameEmpty)
			return nil
		}
		o.applyName(ctx, ev.UserID, name)
		return nil
	}
	return o.respond(ctx, turn{sess: sess, persona: p, userID: ev.UserID, input: ev.Text, modality: storage.ModalityText})
}

func (o *Orchestrator) voice(ctx context.Context, ev Event) error {
	sess, p, err := o.active(ev.UserID)
	if err != nil {
		return err
	}
	if sess.AwaitingName {
		o.notify(ctx, ev.UserID, fmt.Sprintf(msgAskName, p.Name))
		return nil
	}
	if err := checkMedia(ev.Media, o.opts.MaxVoiceBytes, audioTypes, "audio/ogg"); err != nil {
		return err
	}
	// The declared size may be missing, so the downloaded bytes are checked
	// again before any quota is spent.
	audio, err := o.fetch(ctx, ev.Media, o.opts.MaxVoiceBytes)
	if err != nil {
		return err
	}
	if !o.Limits.Allow(ratelimit.ClassTranscription) {
		return rateLimited(ratelimit.ClassTranscription)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
	text, err := o.Provider.Transcribe(callCtx, audio, filenameOr(ev.Media.Filename, "voice.ogg"))
	cancel()
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		o.notify(ctx, ev.UserID, msgNotHeard)
		return nil
	}
	return o.respond(ctx, turn{
		sess: sess, persona: p, userID: ev.UserID,
		input: text, modality: storage.ModalityVoice,
		wantVoice: o.opts.ReplyVoiceToVoice,
	})
}

func (o *Orchestrator) image(ctx context.Context, ev Event) error {
	sess, p, err := o.active(ev.UserID)
	if err != nil {
		return err
	}
	if sess.AwaitingName {
		o.notify(ctx, ev.UserID, fmt.Sprintf(msgAskName, p.Name))
		return nil
	}
	if err := checkMedia(ev.Media, o.opts.MaxImageBytes, imageTypes, "image/jpeg"); err != nil {
		return err
	}
	// The declared size may be missing, so the downloaded bytes are checked
	// again before any quota is spent.
	img, err := o.fetch(ctx, ev.Media, o.opts.MaxImageBytes)
	if err != nil {
		return err
	}
	if !o.Limits.Allow(ratelimit.ClassVision) {
		return rateLimited(ratelimit.ClassVision)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
	caption, err := o.Provider.Describe(callCtx, img, mimeOr(ev.Media.MimeType, "image/jpeg"), p.VisionPrompt)
	cancel()
	if err != nil {
		return err
	}

	input := fmt.Sprintf("（傳送了一張圖片：%s）", caption)
	if c := strings.TrimSpace(ev.Text); c != "" {
		input += "\n" + c
	}
	return o.respond(ctx, turn{sess: sess, persona: p, userID: ev.UserID, input: input, modality: storage.ModalityImage})
}

// turn is one pass through the shared message routine.
type turn struct {
	sess      session.Session
	persona   persona.Persona
	userID    int64
	input     string
	modality  storage.Modality
	wantVoice bool
}

func (o *Orchestrator) respond(ctx context.Context, t turn) error {
	log := o.log.With().Int64("user_id", t.userID).Str("persona", t.persona.ID).Str("modality", string(t.modality)).Logger()

	if containsAny(t.input, o.Personas.VoiceTriggers()) {
		o.Sessions.SetVoiceMode(t.userID, true)
		t.sess.VoiceMode = true
		o.notify(ctx, t.userID, msgVoiceModeOn)
	}

	if !o.Limits.Allow(ratelimit.ClassChat) {
		return rateLimited(ratelimit.ClassChat)
	}

	o.History.AppendUser(t.userID, t.persona.ID, t.input)
	msgs := o.History.Get(t.userID, t.persona.ID)
	system := history.FormatPrompt(t.persona, msgs)

	callCtx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
	resp, err := o.Provider.Complete(callCtx, system, history.Window(msgs))
	cancel()
	if err != nil {
		return err
	}
	o.History.AppendAssistant(t.userID, t.persona.ID, resp.Content)
	log.Debug().Str("model", resp.Model).Int("total_tokens", resp.TotalTokens).Msg("chat completion")

	spoken := false
	if t.sess.VoiceMode || t.wantVoice {
		spoken = o.deliverVoice(ctx, t, resp.Content)
	} else {
		o.deliverText(ctx, t, resp.Content)
	}
	o.record(t, resp.Content, spoken)
	return nil
}

func (o *Orchestrator) displayName(t turn) string {
	if t.sess.CustomName != "" {
		return t.sess.CustomName
	}
	return t.persona.Name
}

func (o *Orchestrator) deliverText(ctx context.Context, t turn, reply string) {
	if err := o.Sink.SendText(ctx, t.userID, o.displayName(t)+nameSeparator+reply); err != nil {
		o.log.Error().Err(err).Int64("user_id", t.userID).Msg("failed to send reply")
	}
}

// deliverVoice speaks the reply. When synthesis is refused or fails the
// user is told why and still gets the reply as text.
func (o *Orchestrator) deliverVoice(ctx context.Context, t turn, reply string) bool {
	var err error
	if !o.Limits.Allow(ratelimit.ClassSynthesis) {
		err = rateLimited(ratelimit.ClassSynthesis)
	} else {
		callCtx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
		var audio []byte
		audio, err = o.Provider.Synthesize(callCtx, reply, t.persona.Voice, t.persona.Speed)
		cancel()
		if err == nil {
			if sendErr := o.Sink.SendVoice(ctx, t.userID, audio); sendErr != nil {
				o.log.Error().Err(sendErr).Int64("user_id", t.userID).Msg("failed to send voice reply")
			}
			return true
		}
	}
	o.log.Warn().Err(err).Int64("user_id", t.userID).Msg("voice reply fell back to text")
	o.notify(ctx, t.userID, userMessage(err))
	o.deliverText(ctx, t, reply)
	return false
}

func (o *Orchestrator) record(t turn, reply string, voice bool) {
	if o.Recorder == nil {
		return
	}
	err := o.Recorder.AppendInteraction(storage.Event{
		Timestamp:         o.now().UTC(),
		UserID:            t.userID,
		PersonaID:         t.persona.ID,
		Modality:          t.modality,
		UserMessage:       t.input,
		AssistantResponse: reply,
		VoiceReply:        voice,
	})
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to record interaction")
	}
}

func (o *Orchestrator) fetch(ctx context.Context, m *Attachment, limit int64) ([]byte, error) {
	if m.Fetch == nil {
		return nil, fmt.Errorf("%w: attachment has no content", ErrUnsupportedFormat)
	}
	callCtx, cancel := context.WithTimeout(ctx, o.opts.ProviderTimeout)
	defer cancel()
	data, err := m.Fetch(callCtx)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %d bytes", ErrAttachmentTooLarge, len(data))
	}
	return data, nil
}

func (o *Orchestrator) notify(ctx context.Context, userID int64, text string) {
	if err := o.Sink.SendText(ctx, userID, text); err != nil {
		o.log.Error().Err(err).Int64("user_id", userID).Msg("failed to send message")
	}
}

// checkMedia applies the size and format guards that run before any
// rate limiter or provider call.
func checkMedia(m *Attachment, limit int64, allowed map[string]bool, fallbackMime string) error {
	if m == nil {
		return fmt.Errorf("%w: missing attachment", ErrUnsupportedFormat)
	}
	if limit > 0 && m.Size > limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrAttachmentTooLarge, m.Size, limit)
	}
	mime := strings.ToLower(mimeOr(m.MimeType, fallbackMime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if !allowed[mime] {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, mime)
	}
	return nil
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func mimeOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func filenameOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
