package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/insurebot/internal/model"
	"github.com/m3rciful/insurebot/internal/sessionstore"
)

const chatID int64 = 42

// memStore is the in-memory session store that also records every state it
// persisted.
type memStore struct {
	*sessionstore.Memory
	mu      sync.Mutex
	history []model.State
}

func newMemStore() *memStore {
	return &memStore{Memory: sessionstore.NewMemory()}
}

func (s *memStore) Add(ctx context.Context, sess *model.Session) error {
	if err := s.Memory.Add(ctx, sess); err != nil {
		return err
	}
	s.record(sess.State)
	return nil
}

func (s *memStore) Update(ctx context.Context, sess *model.Session) error {
	if _, err := s.Memory.Get(ctx, sess.ChatID); err == nil {
		s.record(sess.State)
	}
	return s.Memory.Update(ctx, sess)
}

func (s *memStore) record(st model.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, st)
}

func (s *memStore) states() []model.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.State(nil), s.history...)
}

type sentText struct {
	ChatID int64
	Msg    Message
}

type fakeTransport struct {
	mu         sync.Mutex
	texts      []sentText
	docs       []Document
	answered   []string
	files      map[string][]byte
	fetchErr   error
	sendDocErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{files: make(map[string][]byte)}
}

func (f *fakeTransport) SendText(_ context.Context, id int64, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{ChatID: id, Msg: msg})
	return nil
}

func (f *fakeTransport) SendDocument(_ context.Context, _ int64, doc Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendDocErr != nil {
		return f.sendDocErr
	}
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeTransport) FetchAttachment(_ context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	data, ok := f.files[ref]
	if !ok {
		return nil, fmt.Errorf("file %q not found", ref)
	}
	return data, nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeTransport) last() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return Message{}
	}
	return f.texts[len(f.texts)-1].Msg
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakeExtractor struct {
	mu       sync.Mutex
	passport func(ctx context.Context, img []byte) (model.Passport, error)
	vehicle  func(ctx context.Context, pages VehiclePages) (model.Vehicle, error)
	calls    []VehiclePages
}

func (f *fakeExtractor) ExtractPassport(ctx context.Context, img []byte) (model.Passport, error) {
	if f.passport != nil {
		return f.passport(ctx, img)
	}
	return samplePassport(), nil
}

func (f *fakeExtractor) ExtractVehicle(ctx context.Context, pages VehiclePages) (model.Vehicle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, pages)
	f.mu.Unlock()
	if f.vehicle != nil {
		return f.vehicle(ctx, pages)
	}
	return defaultVehicle(pages), nil
}

func (f *fakeExtractor) vehicleCalls() []VehiclePages {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]VehiclePages(nil), f.calls...)
}

// defaultVehicle mimics an OCR service: the front page of a two-sided document
// carries the registration number and year, the back page the rest.
func defaultVehicle(p VehiclePages) model.Vehicle {
	if !p.Profile.HasBackPage {
		return sampleVehicle()
	}
	var v model.Vehicle
	if p.Front != nil {
		v.RegistrationNumber = "AA1234BB"
		v.Year = 2019
	}
	if p.Back != nil {
		v.VIN = "WVWZZZ1JZXW000001"
		v.Make = "Volkswagen"
		v.Model = "Golf"
	}
	return v
}

type staticProfiles []model.CountryProfile

func (p staticProfiles) Lookup(code string) (model.CountryProfile, bool) {
	for _, c := range p {
		if c.Code == code {
			return c, true
		}
	}
	return model.CountryProfile{}, false
}

func (p staticProfiles) Resolve(code string) model.CountryProfile {
	if c, ok := p.Lookup(code); ok {
		return c
	}
	return model.CountryProfile{Code: model.DefaultCountry}
}

func (p staticProfiles) List() []model.CountryProfile {
	return p
}

var testProfiles = staticProfiles{
	{Code: "UA", Label: "Ukraine", HasBackPage: true},
	{Code: "PL", Label: "Poland"},
}

type fakeRenderer struct {
	err     error
	records []model.PolicyRecord
}

func (r *fakeRenderer) Render(_ context.Context, rec model.PolicyRecord) ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.records = append(r.records, rec)
	return []byte("%PDF-1.3 " + rec.PolicyNumber), nil
}

type fakeResponder struct {
	answer       string
	err          error
	instructions []string
}

func (r *fakeResponder) Answer(_ context.Context, _ string, instruction string) (string, error) {
	r.instructions = append(r.instructions, instruction)
	return r.answer, r.err
}

type harness struct {
	t     *testing.T
	m     *Machine
	store *memStore
	tr    *fakeTransport
	ext   *fakeExtractor
	rend  *fakeRenderer
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		store: newMemStore(),
		tr:    newFakeTransport(),
		ext:   &fakeExtractor{},
		rend:  &fakeRenderer{},
	}
	clock := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	opts := Options{
		Store:     h.store,
		Extractor: h.ext,
		Profiles:  testProfiles,
		Renderer:  h.rend,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.m = m
	h.tr.files["photo-1"] = []byte("jpeg-1")
	h.tr.files["photo-2"] = []byte("jpeg-2")
	return h
}

func (h *harness) handle(ev Event) error {
	if ev.ChatID == 0 {
		ev.ChatID = chatID
	}
	return h.m.Handle(context.Background(), h.tr, ev)
}

func (h *harness) mustHandle(ev Event) {
	h.t.Helper()
	if err := h.handle(ev); err != nil {
		h.t.Fatalf("Handle(%+v): %v", ev, err)
	}
}

func (h *harness) text(s string) {
	h.t.Helper()
	kind := KindText
	if len(s) > 0 && s[0] == '/' {
		kind = KindCommand
	}
	h.mustHandle(Event{Kind: kind, Text: s})
}

func (h *harness) photo(ref string) {
	h.t.Helper()
	h.mustHandle(Event{Kind: KindPhoto, PhotoRef: ref})
}

func (h *harness) press(data string) {
	h.t.Helper()
	h.mustHandle(Event{Kind: KindCallback, CallbackID: "cb-" + data, CallbackData: data})
}

func (h *harness) session() *model.Session {
	h.t.Helper()
	s, err := h.store.Get(context.Background(), chatID)
	if err != nil {
		h.t.Fatalf("Get session: %v", err)
	}
	return s
}

func (h *harness) seed(s *model.Session) {
	h.t.Helper()
	_ = h.store.Delete(context.Background(), s.ChatID)
	if err := h.store.Add(context.Background(), s); err != nil {
		h.t.Fatalf("seed: %v", err)
	}
}

func (h *harness) wantState(want model.State) {
	h.t.Helper()
	if got := h.session().State; got != want {
		h.t.Fatalf("state = %s, want %s", got, want)
	}
}

func (h *harness) wantText(want string) {
	h.t.Helper()
	if got := h.tr.last().Text; got != want {
		h.t.Fatalf("last reply = %q, want %q", got, want)
	}
}

func samplePassport() model.Passport {
	return model.Passport{
		FullName:    "Jane Doe",
		Number:      "AB123",
		DateOfBirth: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
		IssueDate:   time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func sampleVehicle() model.Vehicle {
	return model.Vehicle{
		VIN:                "1HGCM82633A004352",
		Make:               "Honda",
		Model:              "Accord",
		Year:               2003,
		RegistrationNumber: "REG-99",
	}
}

// filledSession returns a session in state carrying every piece of collected data.
func filledSession(state model.State) *model.Session {
	s := model.NewSession(chatID, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	s.State = state
	p := samplePassport()
	v := sampleVehicle()
	s.Passport = &p
	s.Vehicle = &v
	s.CountryCode = "PL"
	return s
}

var errBoom = errors.New("boom")
