package conversation

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/insurebot/internal/model"
)

func TestNewRequiresCollaborators(t *testing.T) {
	base := Options{
		Store:     newMemStore(),
		Extractor: &fakeExtractor{},
		Profiles:  testProfiles,
		Renderer:  &fakeRenderer{},
	}
	cases := map[string]func(*Options){
		"store":     func(o *Options) { o.Store = nil },
		"extractor": func(o *Options) { o.Extractor = nil },
		"profiles":  func(o *Options) { o.Profiles = nil },
		"renderer":  func(o *Options) { o.Renderer = nil },
	}
	for name, mutate := range cases {
		opts := base
		mutate(&opts)
		if _, err := New(opts); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := New(base); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestStartResetsFromEveryState(t *testing.T) {
	for _, state := range model.States() {
		h := newHarness(t)
		h.seed(filledSession(state))
		h.m.pending.SetFront(chatID, []byte("front"))

		h.text("/start")

		s := h.session()
		if s.State != model.StateAwaitingPassport {
			t.Fatalf("%s: state = %s", state, s.State)
		}
		if s.Passport != nil || s.Vehicle != nil || s.CountryCode != "" || s.PriceDeclined {
			t.Fatalf("%s: data survived reset: %+v", state, s)
		}
		if p := h.m.pending.Pages(chatID); p.Front != nil || p.Back != nil {
			t.Fatalf("%s: pending pages survived reset", state)
		}
		h.wantText(msgStart)
		if !reflect.DeepEqual(h.tr.last().Keyboard, kbStart) {
			t.Fatalf("%s: start keyboard = %+v", state, h.tr.last().Keyboard)
		}
	}
}

func TestStartAcceptsBotSuffixAndRestartButton(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateConfirmingVehicleDoc))
	h.text("/start@insure_bot")
	h.wantState(model.StateAwaitingPassport)

	h.seed(filledSession(model.StateAwaitingPriceConfirmation))
	h.press(ActionRestart)
	h.wantState(model.StateAwaitingPassport)
	if h.session().Passport != nil {
		t.Fatalf("restart kept passport")
	}
}

func TestStartWithoutSession(t *testing.T) {
	h := newHarness(t)
	h.text("/start")
	s := h.session()
	if s.ChatID != chatID || s.State != model.StateAwaitingPassport {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateConfirmingPassport))
	h.text("/help")
	h.wantText(msgUnrecognizedCmd)
	h.wantState(model.StateConfirmingPassport)

	// a command-looking text message is still a command
	h.mustHandle(Event{Kind: KindText, Text: "/price"})
	h.wantText(msgUnrecognizedCmd)
}

func TestNoSession(t *testing.T) {
	h := newHarness(t)
	h.mustHandle(Event{Kind: KindText, Text: "hello"})
	h.wantText(unrecognizedMessage(""))
	if !strings.Contains(h.tr.last().Text, "/start") {
		t.Fatalf("default instruction should mention /start")
	}

	h.photo("photo-1")
	h.wantText(unrecognizedMessage(""))

	h.press(ActionConfirmPassport)
	h.wantText(msgInvalidAction)
	if _, err := h.store.Get(context.Background(), chatID); !errors.Is(err, model.ErrSessionNotFound) {
		t.Fatalf("session created without /start: %v", err)
	}
}

func TestZeroChatIDIsDropped(t *testing.T) {
	h := newHarness(t)
	err := h.m.Handle(context.Background(), h.tr, Event{Kind: KindText, Text: "/start"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if h.tr.count() != 0 {
		t.Fatalf("expected no reply, got %d", h.tr.count())
	}
}

func TestUnsupportedIgnored(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateAwaitingPassport))
	h.mustHandle(Event{Kind: KindUnsupported})
	if h.tr.count() != 0 {
		t.Fatalf("expected no reply")
	}
}

func TestCallbackIsAnswered(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateAwaitingPassport))
	h.press(ActionManualPassport)
	if len(h.tr.answered) != 1 || h.tr.answered[0] != "cb-"+ActionManualPassport {
		t.Fatalf("answered = %v", h.tr.answered)
	}
}

func TestManualPassportEntry(t *testing.T) {
	h := newHarness(t)
	h.text("/start")
	h.press(ActionManualPassport)
	h.wantState(model.StateEnteringPassportData)
	h.wantText(msgManualPassport)

	h.mustHandle(Event{Kind: KindText, Text: "Jane Doe;AB123;01.01.1990"})
	h.wantState(model.StateEnteringPassportData)
	h.wantText(msgPassportFormat)

	h.mustHandle(Event{Kind: KindText, Text: "Jane Doe;AB123;01.01.1990;01.01.2020;01.01.2015"})
	h.wantState(model.StateEnteringPassportData)
	h.wantText(msgPassportDate)
	if h.session().Passport != nil {
		t.Fatalf("invalid text stored a passport")
	}

	h.mustHandle(Event{Kind: KindText, Text: "Jane Doe;AB123;01.01.1990;01.01.2020;01.01.2030"})
	h.wantState(model.StateConfirmingPassport)
	if got := h.session().Passport; got == nil || *got != samplePassport() {
		t.Fatalf("passport = %+v", got)
	}
	if !reflect.DeepEqual(h.tr.last().Keyboard, kbPassportConfirm) {
		t.Fatalf("keyboard = %+v", h.tr.last().Keyboard)
	}
	if !strings.Contains(h.tr.last().Text, "01.01.2030") {
		t.Fatalf("prompt does not echo the expiry date: %q", h.tr.last().Text)
	}
}

func TestPassportPhotoFlow(t *testing.T) {
	var seen model.State
	h := newHarness(t)
	h.ext.passport = func(ctx context.Context, img []byte) (model.Passport, error) {
		s, _ := h.store.Get(ctx, chatID)
		seen = s.State
		if string(img) != "jpeg-1" {
			t.Errorf("image = %q", img)
		}
		return samplePassport(), nil
	}
	h.text("/start")
	h.photo("photo-1")

	if seen != model.StateConfirmingPassport {
		t.Fatalf("state during extraction = %s, want persisted confirming_passport", seen)
	}
	h.wantState(model.StateConfirmingPassport)
	if h.session().Passport == nil {
		t.Fatalf("passport not stored")
	}

	h.press(ActionConfirmPassport)
	h.wantState(model.StateAwaitingVehicleCountry)
	kb := h.tr.last().Keyboard
	if len(kb) != 1 || len(kb[0]) != 2 || kb[0][0].Data != "country_UA" || kb[0][1].Data != "country_PL" {
		t.Fatalf("country keyboard = %+v", kb)
	}
}

func TestPassportPhotoFailure(t *testing.T) {
	h := newHarness(t)
	h.ext.passport = func(context.Context, []byte) (model.Passport, error) {
		return model.Passport{}, &model.ExtractionError{Side: model.SidePassport, Err: errBoom}
	}
	h.seed(filledSession(model.StateAwaitingPassport))
	h.photo("photo-1")

	h.wantState(model.StateConfirmingPassport)
	h.wantText(msgPassportExtractionFailed)
	if !reflect.DeepEqual(h.tr.last().Keyboard, kbPassportFailed) {
		t.Fatalf("keyboard = %+v", h.tr.last().Keyboard)
	}
	if h.session().Passport != nil {
		t.Fatalf("stale passport kept after failed extraction")
	}

	h.press(ActionConfirmPassport)
	h.wantState(model.StateConfirmingPassport)
	h.wantText(msgPassportExtractionFailed)

	h.press(ActionRetryPassport)
	h.wantState(model.StateAwaitingPassport)
}

func TestPhotoFetchFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	h.tr.fetchErr = errBoom
	h.seed(filledSession(model.StateAwaitingPassport))
	h.photo("photo-1")
	h.wantState(model.StateAwaitingPassport)
	h.wantText(msgPhotoFailed)
}

func TestPhotoNotExpected(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateConfirmingVehicleDoc))
	h.photo("photo-1")
	h.wantText(msgPhotoNotExpected)
	h.wantState(model.StateConfirmingVehicleDoc)
}

func TestCountrySelection(t *testing.T) {
	h := newHarness(t)
	s := filledSession(model.StateAwaitingVehicleCountry)
	s.CountryCode = ""
	h.seed(s)

	h.press("country_XX")
	h.wantText(msgInvalidAction)
	h.wantState(model.StateAwaitingVehicleCountry)

	h.press("country_UA")
	h.wantState(model.StateAwaitingVehicleFront)
	if got := h.session().CountryCode; got != "UA" {
		t.Fatalf("country = %q", got)
	}
}

func TestSingleSidedVehicleSkipsBackStep(t *testing.T) {
	h := newHarness(t)
	s := filledSession(model.StateAwaitingVehicleFront)
	s.Vehicle = nil
	h.seed(s)

	h.photo("photo-1")

	h.wantState(model.StateConfirmingVehicleDoc)
	for _, st := range h.store.states() {
		if st == model.StateAwaitingVehicleBack {
			t.Fatalf("visited awaiting_vehicle_back: %v", h.store.states())
		}
	}
	if got := h.session().Vehicle; got == nil || *got != sampleVehicle() {
		t.Fatalf("vehicle = %+v", got)
	}
	if !reflect.DeepEqual(h.tr.last().Keyboard, vehicleDocKeyboard(false)) {
		t.Fatalf("keyboard = %+v", h.tr.last().Keyboard)
	}
	calls := h.ext.vehicleCalls()
	if len(calls) != 1 || calls[0].Back != nil || calls[0].Profile.Code != "PL" {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestTwoSidedVehicleFlow(t *testing.T) {
	h := newHarness(t)
	s := filledSession(model.StateAwaitingVehicleFront)
	s.Vehicle = nil
	s.CountryCode = "UA"
	h.seed(s)

	h.photo("photo-1")
	h.wantState(model.StateAwaitingVehicleBack)
	v := h.session().Vehicle
	if v == nil || v.RegistrationNumber != "AA1234BB" || v.Year != 2019 || v.VIN != "" {
		t.Fatalf("partial vehicle = %+v", v)
	}
	if !reflect.DeepEqual(h.tr.last().Keyboard, kbFrontConfirm) {
		t.Fatalf("keyboard = %+v", h.tr.last().Keyboard)
	}

	h.press(ActionConfirmVehicleFront)
	h.wantText(msgFrontConfirmed)
	h.wantState(model.StateAwaitingVehicleBack)

	h.photo("photo-2")
	h.wantState(model.StateConfirmingVehicleDoc)
	v = h.session().Vehicle
	if v == nil || !v.Complete() || v.Make != "Volkswagen" || v.RegistrationNumber != "AA1234BB" {
		t.Fatalf("vehicle = %+v", v)
	}
	calls := h.ext.vehicleCalls()
	if len(calls) != 2 || calls[1].Front != nil || string(calls[1].Back) != "jpeg-2" {
		t.Fatalf("back call pages = %+v", calls)
	}
	if p := h.m.pending.Pages(chatID); p.Front != nil || p.Back != nil {
		t.Fatalf("buffer not cleared after success")
	}
	if !reflect.DeepEqual(h.tr.last().Keyboard, vehicleDocKeyboard(true)) {
		t.Fatalf("keyboard = %+v", h.tr.last().Keyboard)
	}

	h.press(ActionConfirmVehicleDoc)
	h.wantState(model.StateAwaitingPriceConfirmation)
	if !strings.Contains(h.tr.last().Text, "$100.00") {
		t.Fatalf("price prompt = %q", h.tr.last().Text)
	}
}

func TestVehicleFrontFailure(t *testing.T) {
	h := newHarness(t)
	h.ext.vehicle = func(context.Context, VehiclePages) (model.Vehicle, error) {
		return model.Vehicle{}, &model.ExtractionError{Side: model.SideVehicleFront, Err: errBoom}
	}
	h.seed(filledSession(model.StateAwaitingVehicleFront))

	h.photo("photo-1")
	h.wantState(model.StateAwaitingVehicleFront)
	h.wantText(msgFrontFailed)
	if !reflect.DeepEqual(h.tr.last().Keyboard, kbFrontFailed) {
		t.Fatalf("keyboard = %+v", h.tr.last().Keyboard)
	}
	if got := h.session().Vehicle; got == nil || *got != sampleVehicle() {
		t.Fatalf("failed extraction touched the vehicle: %+v", got)
	}
}

func TestVehicleBackFailureKeepsFront(t *testing.T) {
	h := newHarness(t)
	failBack := true
	h.ext.vehicle = func(_ context.Context, p VehiclePages) (model.Vehicle, error) {
		if p.Back != nil && failBack {
			return model.Vehicle{}, &model.ExtractionError{Side: model.SideVehicleBack, Err: errBoom}
		}
		return defaultVehicle(p), nil
	}
	s := filledSession(model.StateAwaitingVehicleFront)
	s.Vehicle = nil
	s.CountryCode = "UA"
	h.seed(s)

	h.photo("photo-1")
	h.photo("photo-2")
	h.wantState(model.StateAwaitingVehicleBack)
	h.wantText(msgBackFailed)
	if !reflect.DeepEqual(h.tr.last().Keyboard, kbBackFailed) {
		t.Fatalf("keyboard = %+v", h.tr.last().Keyboard)
	}
	if p := h.m.pending.Pages(chatID); string(p.Front) != "jpeg-1" {
		t.Fatalf("front page lost: %+v", p)
	}

	failBack = false
	h.press(ActionRetryVehicleBack)
	h.wantText(msgAwaitingBack)
	h.photo("photo-2")
	h.wantState(model.StateConfirmingVehicleDoc)
	if !h.session().VehicleComplete() {
		t.Fatalf("vehicle incomplete: %+v", h.session().Vehicle)
	}
}

func TestVehicleFrontErrorDuringJointCall(t *testing.T) {
	h := newHarness(t)
	h.ext.vehicle = func(_ context.Context, p VehiclePages) (model.Vehicle, error) {
		if p.Back != nil {
			return model.Vehicle{}, &model.ExtractionError{Side: model.SideVehicleFront, Err: errBoom}
		}
		return defaultVehicle(p), nil
	}
	s := filledSession(model.StateAwaitingVehicleBack)
	s.Vehicle = nil
	s.CountryCode = "UA"
	h.seed(s)
	h.m.pending.SetFront(chatID, []byte("jpeg-1"))

	h.photo("photo-2")
	calls := h.ext.vehicleCalls()
	if len(calls) != 1 || string(calls[0].Front) != "jpeg-1" {
		t.Fatalf("front fields unknown, want a joint call: %+v", calls)
	}
	h.wantState(model.StateAwaitingVehicleFront)
	h.wantText(msgFrontFailed)
	if p := h.m.pending.Pages(chatID); p.Front != nil || p.Back != nil {
		t.Fatalf("buffer kept after front failure: %+v", p)
	}
}

func TestBackPhotoDoesNotResubmitReadFront(t *testing.T) {
	h := newHarness(t)
	fronts := 0
	h.ext.vehicle = func(_ context.Context, p VehiclePages) (model.Vehicle, error) {
		if p.Front != nil {
			fronts++
			if fronts > 1 {
				return model.Vehicle{}, &model.ExtractionError{Side: model.SideVehicleFront, Err: errBoom}
			}
		}
		return defaultVehicle(p), nil
	}
	s := filledSession(model.StateAwaitingVehicleFront)
	s.Vehicle = nil
	s.CountryCode = "UA"
	h.seed(s)

	h.photo("photo-1")
	h.press(ActionConfirmVehicleFront)
	h.photo("photo-2")

	h.wantState(model.StateConfirmingVehicleDoc)
	if fronts != 1 {
		t.Fatalf("front page sent to OCR %d times", fronts)
	}
	if !h.session().VehicleComplete() {
		t.Fatalf("vehicle = %+v", h.session().Vehicle)
	}
}

func TestRetryBackOnlyForTwoSidedCountries(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateConfirmingVehicleDoc))
	h.press(ActionRetryVehicleBack)
	h.wantText(msgInvalidAction)
	h.wantState(model.StateConfirmingVehicleDoc)

	s := filledSession(model.StateConfirmingVehicleDoc)
	s.CountryCode = "UA"
	h.seed(s)
	h.press(ActionRetryVehicleBack)
	h.wantState(model.StateAwaitingVehicleBack)
}

func TestManualVehicleEntryReplaces(t *testing.T) {
	h := newHarness(t)
	s := filledSession(model.StateAwaitingVehicleFront)
	s.Vehicle = &model.Vehicle{RegistrationNumber: "OLD-1", Make: "Old"}
	h.seed(s)
	h.m.pending.SetFront(chatID, []byte("front"))

	h.press(ActionManualVehicle)
	h.wantState(model.StateEnteringVehicleData)
	if p := h.m.pending.Pages(chatID); p.Front != nil {
		t.Fatalf("manual entry kept the buffered page")
	}

	h.mustHandle(Event{Kind: KindText, Text: "1HGCM82633A004352;Honda;Accord;abcd;REG-99"})
	h.wantText(msgVehicleYear)
	h.wantState(model.StateEnteringVehicleData)

	h.mustHandle(Event{Kind: KindText, Text: "1HGCM82633A004352;Honda;Accord"})
	h.wantText(msgVehicleFormat)

	h.mustHandle(Event{Kind: KindText, Text: "1HGCM82633A004352;Honda;Accord;2003;REG-99"})
	h.wantState(model.StateConfirmingVehicleDoc)
	if got := h.session().Vehicle; got == nil || *got != sampleVehicle() {
		t.Fatalf("vehicle = %+v", got)
	}
}

func TestConfirmIncompleteVehicle(t *testing.T) {
	h := newHarness(t)
	s := filledSession(model.StateConfirmingVehicleDoc)
	s.Vehicle = &model.Vehicle{RegistrationNumber: "AA1234BB", Year: 2019}
	h.seed(s)

	h.press(ActionConfirmVehicleDoc)
	h.wantState(model.StateConfirmingVehicleDoc)
	last := h.tr.last()
	if !strings.Contains(last.Text, "VIN") || !reflect.DeepEqual(last.Keyboard, kbFrontFailed) {
		t.Fatalf("reply = %+v", last)
	}
}

func TestDeclinePrice(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateAwaitingPriceConfirmation))

	h.press(ActionDeclinePrice)
	h.wantState(model.StateAwaitingPriceConfirmation)
	last := h.tr.last()
	if !strings.Contains(last.Text, "$100.00") {
		t.Fatalf("declined reply = %q", last.Text)
	}
	if !reflect.DeepEqual(last.Keyboard, kbDeclined) {
		t.Fatalf("keyboard = %+v", last.Keyboard)
	}
	if !h.session().PriceDeclined {
		t.Fatalf("decline not recorded")
	}

	for _, data := range []string{ActionDeclinePrice, ActionConfirmVehicleDoc, "country_PL"} {
		before := h.session()
		h.press(data)
		h.wantText(msgInvalidAction)
		after := h.session()
		if after.State != before.State || !reflect.DeepEqual(after.Vehicle, before.Vehicle) {
			t.Fatalf("%s mutated session", data)
		}
	}

	h.press(ActionAgreePrice)
	h.wantState(model.StateCompleted)
}

func TestPolicyIssuance(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateAwaitingPriceConfirmation))

	h.press(ActionAgreePrice)

	h.wantState(model.StateCompleted)
	if len(h.rend.records) != 1 || len(h.tr.docs) != 1 {
		t.Fatalf("records=%d docs=%d", len(h.rend.records), len(h.tr.docs))
	}
	rec := h.rend.records[0]
	doc := h.tr.docs[0]
	if rec.Price != model.PolicyPrice || len(rec.PolicyNumber) != 8 {
		t.Fatalf("record = %+v", rec)
	}
	if doc.FileName != "policy_"+rec.PolicyNumber+".pdf" || doc.Caption != "Your insurance policy #"+rec.PolicyNumber {
		t.Fatalf("document = %+v", doc)
	}
	if doc.MIME != "application/pdf" {
		t.Fatalf("mime = %q", doc.MIME)
	}
	if !strings.Contains(h.tr.last().Text, rec.PolicyNumber) {
		t.Fatalf("success notice = %q", h.tr.last().Text)
	}
	states := h.store.states()
	if states[len(states)-2] != model.StateGeneratingPolicy {
		t.Fatalf("generating_policy not persisted before issuance: %v", states)
	}

	h.mustHandle(Event{Kind: KindText, Text: "hello?"})
	h.wantText(msgAlreadyIssued)
	h.press(ActionAgreePrice)
	h.wantText(msgAlreadyIssued)
	if len(h.tr.docs) != 1 {
		t.Fatalf("completed session issued another policy")
	}
}

func TestPolicyFailureRevertsToPrice(t *testing.T) {
	for name, setup := range map[string]func(*harness){
		"render": func(h *harness) { h.rend.err = errBoom },
		"send":   func(h *harness) { h.tr.sendDocErr = errBoom },
	} {
		h := newHarness(t)
		setup(h)
		s := filledSession(model.StateAwaitingPriceConfirmation)
		s.PriceDeclined = true
		h.seed(s)

		h.press(ActionAgreePrice)
		h.wantState(model.StateAwaitingPriceConfirmation)
		h.wantText(msgPolicyFailed)
		if !reflect.DeepEqual(h.tr.last().Keyboard, kbDeclined) {
			t.Fatalf("%s: keyboard = %+v", name, h.tr.last().Keyboard)
		}
	}
}

func TestMissingDataAtIssuance(t *testing.T) {
	h := newHarness(t)
	s := filledSession(model.StateAwaitingPriceConfirmation)
	s.Passport = nil
	h.seed(s)

	h.press(ActionAgreePrice)
	h.wantState(model.StateGeneratingPolicy)
	h.wantText(msgMissingPolicyData)
	if len(h.rend.records) != 0 {
		t.Fatalf("rendered without data")
	}

	h.text("/start")
	h.wantState(model.StateAwaitingPassport)
}

func TestCompletedThenStartIsFresh(t *testing.T) {
	h := newHarness(t)
	done := filledSession(model.StateCompleted)
	h.seed(done)

	h.text("/start")

	s := h.session()
	if s.State != model.StateAwaitingPassport || s.Passport != nil || s.Vehicle != nil || s.CountryCode != "" {
		t.Fatalf("session leaked data: %+v", s)
	}
	if !s.CreatedAt.After(done.CreatedAt) {
		t.Fatalf("created_at not renewed: %v", s.CreatedAt)
	}
}

func TestInvalidCallbacksNeverMutate(t *testing.T) {
	h := newHarness(t)
	callbacks := append(Actions(), "country_UA", "country_XX", "bogus", "")
	for _, state := range model.States() {
		for _, data := range callbacks {
			if data == ActionRestart {
				continue
			}
			ev := Event{Kind: KindCallback, CallbackData: data}
			if _, ok := h.m.table[Trigger{State: state, Kind: KindCallback, Action: actionOf(ev)}]; ok {
				continue
			}
			seeded := filledSession(state)
			h.seed(seeded)
			h.press(data)
			got := h.session()
			if got.State != state ||
				!reflect.DeepEqual(got.Passport, seeded.Passport) ||
				!reflect.DeepEqual(got.Vehicle, seeded.Vehicle) {
				t.Fatalf("%s/%q mutated session: %+v", state, data, got)
			}
			want := msgInvalidAction
			if state == model.StateCompleted {
				want = msgAlreadyIssued
			}
			h.wantText(want)
		}
	}
}

func TestTextOutsideEntryStates(t *testing.T) {
	h := newHarness(t)
	h.seed(filledSession(model.StateConfirmingPassport))
	h.mustHandle(Event{Kind: KindText, Text: "what now?"})
	h.wantText(unrecognizedMessage(model.StateConfirmingPassport))
	h.wantState(model.StateConfirmingPassport)
}

func TestResponderAnswersUnexpectedText(t *testing.T) {
	resp := &fakeResponder{answer: "Please confirm your passport first."}
	h := newHarness(t, func(o *Options) { o.Responder = resp })
	h.seed(filledSession(model.StateConfirmingPassport))

	h.mustHandle(Event{Kind: KindText, Text: "how much is it?"})
	last := h.tr.last()
	if last.Text != resp.answer || !last.Plain {
		t.Fatalf("reply = %+v", last)
	}
	if len(resp.instructions) != 1 || resp.instructions[0] != Instruction(model.StateConfirmingPassport) {
		t.Fatalf("instructions = %v", resp.instructions)
	}

	resp.err = errBoom
	h.mustHandle(Event{Kind: KindText, Text: "hello"})
	h.wantText(unrecognizedMessage(model.StateConfirmingPassport))

	resp.err = nil
	resp.answer = "   "
	h.mustHandle(Event{Kind: KindText, Text: "hello"})
	h.wantText(unrecognizedMessage(model.StateConfirmingPassport))
	h.wantState(model.StateConfirmingPassport)
}

func TestPanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.ext.passport = func(context.Context, []byte) (model.Passport, error) {
		panic("ocr exploded")
	}
	h.seed(filledSession(model.StateAwaitingPassport))

	err := h.handle(Event{Kind: KindPhoto, PhotoRef: "photo-1"})
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("err = %v", err)
	}
	h.wantText(msgErrorOccurred)
	h.wantState(model.StateConfirmingPassport)

	h.text("/start")
	h.wantState(model.StateAwaitingPassport)
}

func TestCancelledExtractionReportsError(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.ext.passport = func(ctx context.Context, _ []byte) (model.Passport, error) {
		cancel()
		<-ctx.Done()
		return model.Passport{}, ctx.Err()
	}
	h.seed(filledSession(model.StateAwaitingPassport))

	err := h.m.Handle(ctx, h.tr, Event{ChatID: chatID, Kind: KindPhoto, PhotoRef: "photo-1"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	h.wantState(model.StateConfirmingPassport)
}

func TestSameChatEventsAreSerialized(t *testing.T) {
	h := newHarness(t)
	var calls, inflight, maxInflight int32
	h.ext.passport = func(context.Context, []byte) (model.Passport, error) {
		atomic.AddInt32(&calls, 1)
		n := atomic.AddInt32(&inflight, 1)
		for {
			m := atomic.LoadInt32(&maxInflight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return samplePassport(), nil
	}
	h.seed(filledSession(model.StateAwaitingPassport))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.handle(Event{Kind: KindPhoto, PhotoRef: "photo-1"})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Fatalf("duplicate delivery extracted %d times", calls)
	}
	if maxInflight != 1 {
		t.Fatalf("max in flight = %d", maxInflight)
	}
	if h.m.locks.size() != 0 {
		t.Fatalf("locks leaked: %d", h.m.locks.size())
	}
}

func TestTriggersEnumerateTable(t *testing.T) {
	h := newHarness(t)
	triggers := h.m.Triggers()
	if len(triggers) != len(h.m.table) {
		t.Fatalf("triggers = %d, table = %d", len(triggers), len(h.m.table))
	}
	photoStates := map[model.State]bool{
		model.StateAwaitingPassport:     true,
		model.StateAwaitingVehicleFront: true,
		model.StateAwaitingVehicleBack:  true,
	}
	textStates := map[model.State]bool{
		model.StateEnteringPassportData: true,
		model.StateEnteringVehicleData:  true,
	}
	for _, tr := range triggers {
		if !tr.State.Valid() {
			t.Fatalf("invalid state in table: %+v", tr)
		}
		switch tr.Kind {
		case KindPhoto:
			if !photoStates[tr.State] {
				t.Fatalf("photo accepted in %s", tr.State)
			}
		case KindText:
			if !textStates[tr.State] {
				t.Fatalf("text accepted in %s", tr.State)
			}
		case KindCallback:
		default:
			t.Fatalf("unexpected kind %+v", tr)
		}
		if tr.State == model.StateCompleted || tr.State == model.StateGeneratingPolicy {
			t.Fatalf("terminal state in table: %+v", tr)
		}
	}
	for i := 1; i < len(triggers); i++ {
		a, b := triggers[i-1], triggers[i]
		if a.State > b.State {
			t.Fatalf("triggers not sorted at %d", i)
		}
	}
}

func TestFullHappyPath(t *testing.T) {
	h := newHarness(t)
	h.text("/start")
	h.photo("photo-1")
	h.press(ActionConfirmPassport)
	h.press("country_UA")
	h.photo("photo-1")
	h.press(ActionConfirmVehicleFront)
	h.photo("photo-2")
	h.press(ActionConfirmVehicleDoc)
	h.press(ActionAgreePrice)

	h.wantState(model.StateCompleted)
	if len(h.tr.docs) != 1 {
		t.Fatalf("docs = %d", len(h.tr.docs))
	}
	for _, st := range h.store.states() {
		if !st.Valid() {
			t.Fatalf("invalid state persisted: %q", st)
		}
	}
}
