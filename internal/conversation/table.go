package conversation

import "github.com/m3rciful/insurebot/internal/model"

func (m *Machine) buildTable() map[Trigger]transition {
	table := make(map[Trigger]transition)
	on := func(state model.State, kind Kind, action string, fn transition) {
		table[Trigger{State: state, Kind: kind, Action: action}] = fn
	}
	cb := func(state model.State, action string, fn transition) {
		on(state, KindCallback, action, fn)
	}

	// Passport.
	on(model.StateAwaitingPassport, KindPhoto, "", passportPhoto)
	cb(model.StateAwaitingPassport, ActionManualPassport, enterPassport)
	cb(model.StateAwaitingPassport, ActionRetryPassport, retryPassport)

	on(model.StateEnteringPassportData, KindText, "", passportText)
	cb(model.StateEnteringPassportData, ActionManualPassport, enterPassport)
	cb(model.StateEnteringPassportData, ActionRetryPassport, retryPassport)

	cb(model.StateConfirmingPassport, ActionConfirmPassport, confirmPassport)
	cb(model.StateConfirmingPassport, ActionRetryPassport, retryPassport)
	cb(model.StateConfirmingPassport, ActionManualPassport, enterPassport)

	// Country.
	cb(model.StateAwaitingVehicleCountry, ActionCountry, selectCountry)

	// Vehicle document.
	on(model.StateAwaitingVehicleFront, KindPhoto, "", vehicleFrontPhoto)
	cb(model.StateAwaitingVehicleFront, ActionRetryVehicleFront, retryVehicleFront)
	cb(model.StateAwaitingVehicleFront, ActionManualVehicle, enterVehicle)

	on(model.StateAwaitingVehicleBack, KindPhoto, "", vehicleBackPhoto)
	cb(model.StateAwaitingVehicleBack, ActionConfirmVehicleFront, confirmVehicleFront)
	cb(model.StateAwaitingVehicleBack, ActionRetryVehicleFront, retryVehicleFront)
	cb(model.StateAwaitingVehicleBack, ActionRetryVehicleBack, retryVehicleBack)
	cb(model.StateAwaitingVehicleBack, ActionManualVehicle, enterVehicle)

	on(model.StateEnteringVehicleData, KindText, "", vehicleText)
	cb(model.StateEnteringVehicleData, ActionManualVehicle, enterVehicle)
	cb(model.StateEnteringVehicleData, ActionRetryVehicleFront, retryVehicleFront)

	cb(model.StateConfirmingVehicleDoc, ActionConfirmVehicleDoc, confirmVehicleDoc)
	cb(model.StateConfirmingVehicleDoc, ActionConfirmVehicleBack, showVehicleDoc)
	cb(model.StateConfirmingVehicleDoc, ActionRetryVehicleFront, retryVehicleFront)
	cb(model.StateConfirmingVehicleDoc, ActionRetryVehicleBack, retryVehicleBack)
	cb(model.StateConfirmingVehicleDoc, ActionManualVehicle, enterVehicle)

	// Price and issuance.
	cb(model.StateAwaitingPriceConfirmation, ActionAgreePrice, agreePrice)
	cb(model.StateAwaitingPriceConfirmation, ActionDeclinePrice, declinePrice)

	return table
}
