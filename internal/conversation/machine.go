// Package conversation drives the per-chat insurance intake flow.
//
// Every inbound event is resolved against a transition table keyed by the
// session state, the event kind and the callback action. /start and the
// restart button reset the session from any state.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/internal/model"
)

const comp = logger.CompConversation

// Trigger identifies one entry of the transition table.
type Trigger struct {
	State  model.State
	Kind   Kind
	Action string
}

type transition func(ctx context.Context, t *turn) error

// Options wires the machine's collaborators. Responder and Pending are optional.
type Options struct {
	Store     Store
	Extractor Extractor
	Profiles  Profiles
	Renderer  Renderer
	Responder Responder
	Pending   Pending
	Now       func() time.Time
}

// Machine handles events for all chats.
type Machine struct {
	store     Store
	extractor Extractor
	profiles  Profiles
	renderer  Renderer
	responder Responder
	pending   Pending
	now       func() time.Time

	locks *chatLocks
	table map[Trigger]transition
}

// New validates opts and builds the transition table.
func New(opts Options) (*Machine, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("conversation: store is required")
	case opts.Extractor == nil:
		return nil, errors.New("conversation: extractor is required")
	case opts.Profiles == nil:
		return nil, errors.New("conversation: profiles are required")
	case opts.Renderer == nil:
		return nil, errors.New("conversation: renderer is required")
	}
	m := &Machine{
		store:     opts.Store,
		extractor: opts.Extractor,
		profiles:  opts.Profiles,
		renderer:  opts.Renderer,
		responder: opts.Responder,
		pending:   opts.Pending,
		now:       opts.Now,
		locks:     newChatLocks(),
	}
	if m.pending == nil {
		m.pending = NewPendingPages()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.table = m.buildTable()
	return m, nil
}

// Triggers lists the transition table in a stable order.
func (m *Machine) Triggers() []Trigger {
	out := make([]Trigger, 0, len(m.table))
	for t := range m.table {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.State != b.State {
			return a.State < b.State
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Action < b.Action
	})
	return out
}

// Handle processes one event end to end. Failures inside a transition are
// reported to the user and returned; the session keeps its last persisted state.
func (m *Machine) Handle(ctx context.Context, tr Transport, ev Event) (err error) {
	if ev.ChatID == 0 {
		logger.Error(ctx, comp, "event.drop",
			slog.String("reason", "missing_chat_id"),
			slog.String("kind", string(ev.Kind)),
		)
		return nil
	}

	unlock, err := m.locks.acquire(ctx, ev.ChatID)
	if err != nil {
		return fmt.Errorf("conversation: wait for chat %d: %w", ev.ChatID, err)
	}
	defer unlock()

	if ev.Kind == KindCallback && ev.CallbackID != "" {
		if aerr := tr.AnswerCallback(ctx, ev.CallbackID); aerr != nil {
			logger.Warn(ctx, comp, "callback.answer.fail", slog.String("err", aerr.Error()))
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("conversation: panic: %v", rec)
		}
		if err == nil {
			return
		}
		logger.Error(ctx, comp, "event.fail",
			slog.Int64("chat_id", ev.ChatID),
			slog.String("kind", string(ev.Kind)),
			slog.String("err", err.Error()),
		)
		if serr := tr.SendText(ctx, ev.ChatID, Message{Text: msgErrorOccurred}); serr != nil {
			logger.Warn(ctx, comp, "error_notice.fail", slog.String("err", serr.Error()))
		}
	}()

	return m.dispatch(ctx, tr, ev)
}

func (m *Machine) dispatch(ctx context.Context, tr Transport, ev Event) error {
	if isCommand(ev) {
		if isStart(ev.Text) {
			return m.reset(ctx, tr, ev.ChatID)
		}
		return tr.SendText(ctx, ev.ChatID, Message{Text: msgUnrecognizedCmd})
	}
	if ev.Kind == KindCallback && ev.CallbackData == ActionRestart {
		return m.reset(ctx, tr, ev.ChatID)
	}
	if ev.Kind == KindUnsupported {
		logger.Info(ctx, comp, "event.ignored", slog.String("kind", string(ev.Kind)))
		return nil
	}

	s, err := m.store.Get(ctx, ev.ChatID)
	if errors.Is(err, model.ErrSessionNotFound) {
		return m.miss(ctx, &turn{m: m, tr: tr, ev: ev})
	}
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	t := &turn{m: m, tr: tr, ev: ev, s: s}
	if s.State == model.StateCompleted {
		return t.reply(ctx, msgAlreadyIssued, nil)
	}

	key := Trigger{State: s.State, Kind: ev.Kind, Action: actionOf(ev)}
	fn, ok := m.table[key]
	if !ok {
		return m.miss(ctx, t)
	}
	logger.Debug(ctx, comp, "trigger",
		slog.String("state", string(key.State)),
		slog.String("trigger", string(key.Kind)+":"+key.Action),
	)
	return fn(ctx, t)
}

// reset replaces any session for the chat with a fresh one.
func (m *Machine) reset(ctx context.Context, tr Transport, chatID int64) error {
	m.pending.Clear(chatID)
	if err := m.store.Delete(ctx, chatID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s := model.NewSession(chatID, m.now())
	if err := m.store.Add(ctx, s); err != nil {
		return fmt.Errorf("add session: %w", err)
	}
	logger.Info(ctx, comp, "session.start", slog.String("state", string(s.State)))
	return tr.SendText(ctx, chatID, Message{Text: msgStart, Keyboard: kbStart})
}

// miss handles events with no table entry. t.s is nil when the chat has no session.
func (m *Machine) miss(ctx context.Context, t *turn) error {
	var state model.State
	if t.s != nil {
		state = t.s.State
	}
	switch t.ev.Kind {
	case KindText:
		return m.unrecognized(ctx, t, state)
	case KindPhoto:
		if t.s == nil {
			return t.reply(ctx, unrecognizedMessage(state), nil)
		}
		return t.reply(ctx, msgPhotoNotExpected, nil)
	default:
		logger.Warn(ctx, comp, "callback.invalid",
			slog.String("state", string(state)),
			slog.String("cb_key", t.ev.CallbackData),
		)
		return t.reply(ctx, msgInvalidAction, nil)
	}
}

func (m *Machine) unrecognized(ctx context.Context, t *turn, state model.State) error {
	instruction := Instruction(state)
	if m.responder != nil && strings.TrimSpace(t.ev.Text) != "" {
		answer, err := m.responder.Answer(ctx, t.ev.Text, instruction)
		if err == nil && strings.TrimSpace(answer) != "" {
			return t.tr.SendText(ctx, t.ev.ChatID, Message{Text: answer, Plain: true})
		}
		if err != nil {
			logger.Warn(ctx, comp, "fallback.fail", slog.String("err", err.Error()))
		}
	}
	return t.reply(ctx, unrecognizedMessage(state), nil)
}

func isCommand(ev Event) bool {
	if ev.Kind == KindCommand {
		return true
	}
	return ev.Kind == KindText && strings.HasPrefix(strings.TrimSpace(ev.Text), "/")
}

func isStart(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return false
	}
	cmd := fields[0]
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.EqualFold(cmd, StartCommand)
}

func actionOf(ev Event) string {
	if ev.Kind != KindCallback {
		return ""
	}
	if strings.HasPrefix(ev.CallbackData, CountryPrefix) {
		return ActionCountry
	}
	return ev.CallbackData
}

// turn carries one event through a transition.
type turn struct {
	m  *Machine
	tr Transport
	ev Event
	s  *model.Session
}

func (t *turn) reply(ctx context.Context, text string, kb Keyboard) error {
	return t.tr.SendText(ctx, t.ev.ChatID, Message{Text: text, Keyboard: kb})
}

// moveTo persists the session in state.
func (t *turn) moveTo(ctx context.Context, state model.State) error {
	from := t.s.State
	t.s.State = state
	t.s.UpdatedAt = t.m.now().UTC()
	if err := t.m.store.Update(ctx, t.s); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	if from != state {
		logger.Info(ctx, comp, "transition",
			slog.String("state_from", string(from)),
			slog.String("state_to", string(state)),
		)
	}
	return nil
}

// save persists the session without changing its state.
func (t *turn) save(ctx context.Context) error {
	return t.moveTo(ctx, t.s.State)
}
