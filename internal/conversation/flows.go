package conversation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m3rciful/insurebot/core/logger"
	"github.com/m3rciful/insurebot/internal/manual"
	"github.com/m3rciful/insurebot/internal/model"
)

// Passport.

func passportPhoto(ctx context.Context, t *turn) error {
	img, ok, err := t.fetchPhoto(ctx)
	if !ok {
		return err
	}

	t.s.Passport = nil
	if err := t.moveTo(ctx, model.StateConfirmingPassport); err != nil {
		return err
	}
	p, err := t.m.extractor.ExtractPassport(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logExtractionFailure(ctx, model.SidePassport, err)
		return t.reply(ctx, msgPassportExtractionFailed, kbPassportFailed)
	}
	t.s.Passport = &p
	if err := t.save(ctx); err != nil {
		return err
	}
	return t.reply(ctx, passportPrompt(p), kbPassportConfirm)
}

func passportText(ctx context.Context, t *turn) error {
	p, err := manual.ParsePassport(t.ev.Text, t.m.now())
	if err != nil {
		logger.Debug(ctx, comp, "manual.invalid", slog.String("err", err.Error()))
		if errors.Is(err, manual.ErrDate) {
			return t.reply(ctx, msgPassportDate, nil)
		}
		return t.reply(ctx, msgPassportFormat, nil)
	}
	t.s.Passport = &p
	if err := t.moveTo(ctx, model.StateConfirmingPassport); err != nil {
		return err
	}
	return t.reply(ctx, passportPrompt(p), kbPassportConfirm)
}

func enterPassport(ctx context.Context, t *turn) error {
	if err := t.moveTo(ctx, model.StateEnteringPassportData); err != nil {
		return err
	}
	return t.reply(ctx, msgManualPassport, nil)
}

func retryPassport(ctx context.Context, t *turn) error {
	if err := t.moveTo(ctx, model.StateAwaitingPassport); err != nil {
		return err
	}
	return t.reply(ctx, msgAwaitingPassport, nil)
}

func confirmPassport(ctx context.Context, t *turn) error {
	if t.s.Passport == nil {
		logger.Warn(ctx, comp, "guard.fail", slog.String("state", string(t.s.State)), slog.String("reason", "no_passport"))
		return t.reply(ctx, msgPassportExtractionFailed, kbPassportFailed)
	}
	if err := t.moveTo(ctx, model.StateAwaitingVehicleCountry); err != nil {
		return err
	}
	return t.reply(ctx, msgChooseCountry, countryKeyboard(t.m.profiles.List()))
}

// Country.

func selectCountry(ctx context.Context, t *turn) error {
	code := t.ev.CallbackData[len(CountryPrefix):]
	profile, ok := t.m.profiles.Lookup(code)
	if !ok {
		logger.Warn(ctx, comp, "guard.fail", slog.String("reason", "unknown_country"), slog.String("country", code))
		return t.reply(ctx, msgInvalidAction, nil)
	}
	t.s.CountryCode = profile.Code
	if err := t.moveTo(ctx, model.StateAwaitingVehicleFront); err != nil {
		return err
	}
	return t.reply(ctx, msgAwaitingFront, nil)
}

// Vehicle document.

func vehicleFrontPhoto(ctx context.Context, t *turn) error {
	img, ok, err := t.fetchPhoto(ctx)
	if !ok {
		return err
	}
	chatID := t.ev.ChatID
	profile := t.m.profiles.Resolve(t.s.CountryCode)
	t.m.pending.Clear(chatID)

	if !profile.HasBackPage {
		if err := t.moveTo(ctx, model.StateConfirmingVehicleDoc); err != nil {
			return err
		}
	}
	v, err := t.m.extractor.ExtractVehicle(ctx, VehiclePages{Profile: profile, Front: img})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logExtractionFailure(ctx, model.SideVehicleFront, err)
		if err := t.moveTo(ctx, model.StateAwaitingVehicleFront); err != nil {
			return err
		}
		return t.reply(ctx, msgFrontFailed, kbFrontFailed)
	}
	t.mergeVehicle(v)

	if profile.HasBackPage {
		t.m.pending.SetFront(chatID, img)
		if err := t.moveTo(ctx, model.StateAwaitingVehicleBack); err != nil {
			return err
		}
		return t.reply(ctx, frontPrompt(*t.s.Vehicle), kbFrontConfirm)
	}
	if err := t.save(ctx); err != nil {
		return err
	}
	return t.reply(ctx, vehiclePrompt(*t.s.Vehicle), vehicleDocKeyboard(false))
}

func vehicleBackPhoto(ctx context.Context, t *turn) error {
	img, ok, err := t.fetchPhoto(ctx)
	if !ok {
		return err
	}
	chatID := t.ev.ChatID
	profile := t.m.profiles.Resolve(t.s.CountryCode)
	t.m.pending.SetBack(chatID, img)
	pages := t.m.pending.Pages(chatID)

	if err := t.moveTo(ctx, model.StateConfirmingVehicleDoc); err != nil {
		return err
	}
	front := pages.Front
	if v := t.s.Vehicle; v != nil && v.RegistrationNumber != "" && v.Year > 0 {
		// read when the front page arrived
		front = nil
	}
	v, err := t.m.extractor.ExtractVehicle(ctx, VehiclePages{Profile: profile, Front: front, Back: pages.Back})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var xe *model.ExtractionError
		if errors.As(err, &xe) && xe.Side == model.SideVehicleFront {
			logExtractionFailure(ctx, model.SideVehicleFront, err)
			t.m.pending.Clear(chatID)
			if err := t.moveTo(ctx, model.StateAwaitingVehicleFront); err != nil {
				return err
			}
			return t.reply(ctx, msgFrontFailed, kbFrontFailed)
		}
		logExtractionFailure(ctx, model.SideVehicleBack, err)
		if err := t.moveTo(ctx, model.StateAwaitingVehicleBack); err != nil {
			return err
		}
		return t.reply(ctx, msgBackFailed, kbBackFailed)
	}
	t.m.pending.Clear(chatID)
	t.mergeVehicle(v)
	if err := t.save(ctx); err != nil {
		return err
	}
	return t.reply(ctx, vehiclePrompt(*t.s.Vehicle), vehicleDocKeyboard(true))
}

func vehicleText(ctx context.Context, t *turn) error {
	v, err := manual.ParseVehicle(t.ev.Text, t.m.now())
	if err != nil {
		logger.Debug(ctx, comp, "manual.invalid", slog.String("err", err.Error()))
		if errors.Is(err, manual.ErrYear) {
			return t.reply(ctx, msgVehicleYear, nil)
		}
		return t.reply(ctx, msgVehicleFormat, nil)
	}
	t.m.pending.Clear(t.ev.ChatID)
	t.s.Vehicle = &v
	if err := t.moveTo(ctx, model.StateConfirmingVehicleDoc); err != nil {
		return err
	}
	return t.reply(ctx, vehiclePrompt(v), vehicleDocKeyboard(t.hasBackPage()))
}

func enterVehicle(ctx context.Context, t *turn) error {
	t.m.pending.Clear(t.ev.ChatID)
	if err := t.moveTo(ctx, model.StateEnteringVehicleData); err != nil {
		return err
	}
	return t.reply(ctx, msgManualVehicle, nil)
}

func retryVehicleFront(ctx context.Context, t *turn) error {
	t.m.pending.Clear(t.ev.ChatID)
	if err := t.moveTo(ctx, model.StateAwaitingVehicleFront); err != nil {
		return err
	}
	return t.reply(ctx, msgAwaitingFront, nil)
}

func retryVehicleBack(ctx context.Context, t *turn) error {
	if !t.hasBackPage() {
		return t.reply(ctx, msgInvalidAction, nil)
	}
	if err := t.moveTo(ctx, model.StateAwaitingVehicleBack); err != nil {
		return err
	}
	return t.reply(ctx, msgAwaitingBack, nil)
}

func confirmVehicleFront(ctx context.Context, t *turn) error {
	return t.reply(ctx, msgFrontConfirmed, nil)
}

func showVehicleDoc(ctx context.Context, t *turn) error {
	if t.s.Vehicle == nil {
		return t.reply(ctx, vehicleIncomplete(model.Vehicle{}), kbFrontFailed)
	}
	return t.reply(ctx, vehiclePrompt(*t.s.Vehicle), vehicleDocKeyboard(t.hasBackPage()))
}

func confirmVehicleDoc(ctx context.Context, t *turn) error {
	if !t.s.VehicleComplete() {
		var v model.Vehicle
		if t.s.Vehicle != nil {
			v = *t.s.Vehicle
		}
		logger.Warn(ctx, comp, "guard.fail", slog.String("state", string(t.s.State)), slog.String("reason", "vehicle_incomplete"))
		return t.reply(ctx, vehicleIncomplete(v), kbFrontFailed)
	}
	t.s.PriceDeclined = false
	if err := t.moveTo(ctx, model.StateAwaitingPriceConfirmation); err != nil {
		return err
	}
	return t.reply(ctx, pricePrompt(), kbPrice)
}

// Price and issuance.

func declinePrice(ctx context.Context, t *turn) error {
	if t.s.PriceDeclined {
		logger.Warn(ctx, comp, "guard.fail", slog.String("state", string(t.s.State)), slog.String("reason", "already_declined"))
		return t.reply(ctx, msgInvalidAction, nil)
	}
	t.s.PriceDeclined = true
	if err := t.moveTo(ctx, model.StateAwaitingPriceConfirmation); err != nil {
		return err
	}
	return t.reply(ctx, declinedOffer(), kbDeclined)
}

func agreePrice(ctx context.Context, t *turn) error {
	if err := t.moveTo(ctx, model.StateGeneratingPolicy); err != nil {
		return err
	}
	if t.s.Passport == nil || !t.s.VehicleComplete() {
		logger.Error(ctx, comp, "policy.missing_data",
			slog.Bool("passport", t.s.Passport != nil),
			slog.Bool("vehicle", t.s.VehicleComplete()),
		)
		return t.reply(ctx, msgMissingPolicyData, nil)
	}

	rec := model.NewPolicyRecord(*t.s.Passport, *t.s.Vehicle, t.m.now())
	data, err := t.m.renderer.Render(ctx, rec)
	if err == nil {
		err = t.tr.SendDocument(ctx, t.ev.ChatID, Document{
			FileName: rec.FileName(),
			Caption:  policyCaption(rec.PolicyNumber),
			MIME:     "application/pdf",
			Data:     data,
		})
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error(ctx, comp, "policy.fail",
			slog.String("policy_number", rec.PolicyNumber),
			slog.String("err", err.Error()),
		)
		if err := t.moveTo(ctx, model.StateAwaitingPriceConfirmation); err != nil {
			return err
		}
		return t.reply(ctx, msgPolicyFailed, priceKeyboard(t.s))
	}

	if err := t.moveTo(ctx, model.StateCompleted); err != nil {
		return err
	}
	logger.Info(ctx, comp, "policy.issued", slog.String("policy_number", rec.PolicyNumber))
	return t.reply(ctx, policyIssued(rec.PolicyNumber), nil)
}

// Helpers.

// fetchPhoto downloads the event photo. ok is false when the caller should stop;
// err is then non-nil only for faults that are not the user's to fix.
func (t *turn) fetchPhoto(ctx context.Context) ([]byte, bool, error) {
	img, err := t.tr.FetchAttachment(ctx, t.ev.PhotoRef)
	if err == nil && len(img) > 0 {
		return img, true, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	attrs := []slog.Attr{slog.String("state", string(t.s.State))}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	logger.Warn(ctx, comp, "photo.fetch.fail", attrs...)
	return nil, false, t.reply(ctx, msgPhotoFailed, nil)
}

func (t *turn) mergeVehicle(v model.Vehicle) {
	if t.s.Vehicle == nil {
		t.s.Vehicle = &model.Vehicle{}
	}
	t.s.Vehicle.Merge(v)
}

func (t *turn) hasBackPage() bool {
	return t.m.profiles.Resolve(t.s.CountryCode).HasBackPage
}

func logExtractionFailure(ctx context.Context, side model.Side, err error) {
	logger.Warn(ctx, comp, "extraction.fail",
		slog.String("side", string(side)),
		slog.String("err", err.Error()),
	)
}
