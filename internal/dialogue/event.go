package dialogue

import "context"

type Kind int

const (
	KindText Kind = iota + 1
	KindVoice
	KindImage
	KindSelectPersona
	KindStart
	KindEnd
	KindRename
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindVoice:
		return "voice"
	case KindImage:
		return "image"
	case KindSelectPersona:
		return "select_persona"
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Attachment describes media announced by the transport. Size and MimeType
// are what the transport declared; Fetch downloads the bytes and is only
// called once the size and format guards have passed.
type Attachment struct {
	Size     int64
	MimeType string
	Filename string
	Fetch    func(ctx context.Context) ([]byte, error)
}

// Event is one inbound action of a user.
type Event struct {
	ID     string
	Kind   Kind
	UserID int64

	// Text is the message body, the image caption, or the rename argument.
	Text      string
	PersonaID string
	Media     *Attachment
}

// Choice is one selectable option of a menu prompt.
type Choice struct {
	ID    string
	Label string
}

// Sink delivers replies to a user.
type Sink interface {
	SendText(ctx context.Context, userID int64, text string) error
	SendVoice(ctx context.Context, userID int64, audio []byte) error
	SendMenu(ctx context.Context, userID int64, text string, choices []Choice) error
	// EditLastPrompt rewrites the last menu shown to the user, or sends a
	// new message when there is none.
	EditLastPrompt(ctx context.Context, userID int64, text string, choices []Choice) error
}
