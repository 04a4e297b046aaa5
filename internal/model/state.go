package model

import "fmt"

// State is a named position in the intake conversation.
type State string

const (
	StateAwaitingPassport          State = "awaiting_passport"
	StateEnteringPassportData      State = "entering_passport_data"
	StateConfirmingPassport        State = "confirming_passport"
	StateAwaitingVehicleCountry    State = "awaiting_vehicle_country"
	StateAwaitingVehicleFront      State = "awaiting_vehicle_front"
	StateAwaitingVehicleBack       State = "awaiting_vehicle_back"
	StateEnteringVehicleData       State = "entering_vehicle_data"
	StateConfirmingVehicleDoc      State = "confirming_vehicle_doc"
	StateAwaitingPriceConfirmation State = "awaiting_price_confirmation"
	StateGeneratingPolicy          State = "generating_policy"
	StateCompleted                 State = "completed"
)

var allStates = []State{
	StateAwaitingPassport,
	StateEnteringPassportData,
	StateConfirmingPassport,
	StateAwaitingVehicleCountry,
	StateAwaitingVehicleFront,
	StateAwaitingVehicleBack,
	StateEnteringVehicleData,
	StateConfirmingVehicleDoc,
	StateAwaitingPriceConfirmation,
	StateGeneratingPolicy,
	StateCompleted,
}

// States lists every valid state in flow order.
func States() []State {
	return append([]State(nil), allStates...)
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	for _, v := range allStates {
		if v == s {
			return true
		}
	}
	return false
}

// ParseState converts a stored value back into a State.
func ParseState(raw string) (State, error) {
	s := State(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown conversation state %q", raw)
	}
	return s, nil
}

// AfterPassportConfirmation reports whether the state can only be reached with a confirmed passport.
func (s State) AfterPassportConfirmation() bool {
	switch s {
	case StateAwaitingVehicleCountry, StateAwaitingVehicleFront, StateAwaitingVehicleBack,
		StateEnteringVehicleData, StateConfirmingVehicleDoc, StateAwaitingPriceConfirmation,
		StateGeneratingPolicy, StateCompleted:
		return true
	}
	return false
}
