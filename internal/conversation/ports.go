package conversation

import (
	"context"

	"github.com/m3rciful/insurebot/internal/model"
)

// Kind classifies an inbound event.
type Kind string

const (
	KindCommand     Kind = "command"
	KindText        Kind = "text"
	KindPhoto       Kind = "photo"
	KindCallback    Kind = "callback"
	KindUnsupported Kind = "unsupported"
)

// Event is a transport-neutral inbound update.
type Event struct {
	ChatID       int64
	Kind         Kind
	Text         string
	PhotoRef     string
	CallbackID   string
	CallbackData string
}

// Button is an inline button whose callback data is sent verbatim.
type Button struct {
	Text string
	Data string
}

// Keyboard is a list of inline button rows.
type Keyboard [][]Button

// Message is an outbound text reply. Text uses Markdown unless Plain is set.
type Message struct {
	Text     string
	Keyboard Keyboard
	Plain    bool
}

// Document is an outbound file.
type Document struct {
	FileName string
	Caption  string
	MIME     string
	Data     []byte
}

// Transport delivers replies and fetches attachments for one update.
type Transport interface {
	SendText(ctx context.Context, chatID int64, msg Message) error
	SendDocument(ctx context.Context, chatID int64, doc Document) error
	FetchAttachment(ctx context.Context, ref string) ([]byte, error)
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Store persists sessions by chat id.
type Store interface {
	Get(ctx context.Context, chatID int64) (*model.Session, error)
	Add(ctx context.Context, s *model.Session) error
	Update(ctx context.Context, s *model.Session) error
	Delete(ctx context.Context, chatID int64) error
}

// VehiclePages is one vehicle extraction request. Front or Back may be nil.
type VehiclePages struct {
	Profile model.CountryProfile
	Front   []byte
	Back    []byte
}

// Extractor reads documents from photos. Failures are *model.ExtractionError.
type Extractor interface {
	ExtractPassport(ctx context.Context, image []byte) (model.Passport, error)
	ExtractVehicle(ctx context.Context, pages VehiclePages) (model.Vehicle, error)
}

// Profiles resolves country profiles for vehicle documents.
type Profiles interface {
	// Lookup returns the explicitly configured profile for code.
	Lookup(code string) (model.CountryProfile, bool)
	// Resolve returns the profile for code or the default profile.
	Resolve(code string) model.CountryProfile
	// List returns the selectable countries in display order.
	List() []model.CountryProfile
}

// Renderer turns a policy record into a document.
type Renderer interface {
	Render(ctx context.Context, rec model.PolicyRecord) ([]byte, error)
}

// Responder answers free text the flow did not expect.
type Responder interface {
	Answer(ctx context.Context, message, instruction string) (string, error)
}
