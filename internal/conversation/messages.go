package conversation

import (
	"fmt"
	"strings"

	"github.com/m3rciful/insurebot/core/telegram/format"
	"github.com/m3rciful/insurebot/internal/model"
)

// Callback vocabulary. Button data is sent and matched verbatim.
const (
	ActionConfirmPassport     = "confirmPassport"
	ActionRetryPassport       = "retryPassport"
	ActionManualPassport      = "manualPassport"
	ActionConfirmVehicleFront = "confirmVehicleFront"
	ActionRetryVehicleFront   = "retryVehicleFront"
	ActionConfirmVehicleBack  = "confirmVehicleBack"
	ActionRetryVehicleBack    = "retryVehicleBack"
	ActionConfirmVehicleDoc   = "confirmVehicleDoc"
	ActionManualVehicle       = "manualVehicle"
	ActionAgreePrice          = "agreePrice"
	ActionDeclinePrice        = "declinePrice"
	ActionRestart             = "restart"

	// ActionCountry is the table action for any CountryPrefix callback.
	ActionCountry = "country"
	// CountryPrefix precedes the country code in country selection callbacks.
	CountryPrefix = "country_"

	// StartCommand resets the conversation.
	StartCommand = "/start"
)

// Actions lists every fixed callback value.
func Actions() []string {
	return []string{
		ActionConfirmPassport, ActionRetryPassport, ActionManualPassport,
		ActionConfirmVehicleFront, ActionRetryVehicleFront,
		ActionConfirmVehicleBack, ActionRetryVehicleBack,
		ActionConfirmVehicleDoc, ActionManualVehicle,
		ActionAgreePrice, ActionDeclinePrice, ActionRestart,
	}
}

const (
	msgStart = "👋 Hi there! I'm your car insurance bot. \n" +
		"To get started, please send me a clear photo of your *passport*. 🛂"
	msgErrorOccurred      = "Oops! 😟 Something went wrong. Please try again, or use /start to begin a new session."
	msgUnrecognizedPrefix = "I didn't quite understand that. 🤔 Please follow the current instruction:\n\n"
	msgUnrecognizedCmd    = "I don't recognize that command. 🚫 Use /start to begin a new session."
	msgAlreadyIssued      = "Your insurance policy has already been issued. 🎉 Use /start to purchase a new policy."
	msgInvalidAction      = "This action isn't valid right now. ❌ Please follow the options provided in the messages above or use /start to begin a new session."
	msgPhotoNotExpected   = "I wasn't expecting a photo right now. 📷 Please follow the current instruction or use /start to begin a new session."
	msgPhotoFailed        = "I couldn't process that photo. 📸 Please try again with a clearer image."
	msgMissingPolicyData  = "Sorry, I'm missing some data to generate your policy. 😔 Please start over with /start."
	msgPolicyFailed       = "I couldn't generate your policy right now. 😔 Please accept the offer again, or use /start to begin a new session."
	msgDeclinedOffer      = "Unfortunately, we don't have different pricing options available at this time. 🤷‍♀️\n" +
		"The offer of *%s* still stands."
	msgDefaultInstruction = "Please use /start to begin a new session."

	msgAwaitingPassport = "Let's try again. Please send a clear photo of your *passport*. 🛂"
	msgManualPassport   = "Please enter your passport data in the following format: \n\n" +
		"*Full Name;Passport Number;Date Of Birth;Issue Date;Expiry Date*\n\n" +
		"Example date format: `31.12.2000`"
	msgPassportFormat = "❌ Wrong format! Please ensure you follow this example:\n\n" +
		"*Full Name;Passport Number;Date Of Birth;Issue Date;Expiry Date*\n\n" +
		"Date format example: `31.12.2000`"
	msgPassportDate = "Can't read the date. 🗓️ Please make sure every date is real, uses the `dd.MM.yyyy` format, " +
		"and that the expiry date comes after the issue date, then try again."
	msgPassportExtractionFailed = "I couldn't extract data from your passport photo. What would you like to do? 👇"
	msgChooseCountry            = "Excellent! Passport confirmed. ✅ Now, choose the country for vehicle documents"

	msgAwaitingFront     = "Please send a clear photo of the *front side* of your vehicle registration. 📸"
	msgFrontFailed       = "I couldn't extract data from the vehicle front photo. What's next? 👇"
	msgFrontConfirmed    = "Great! Front side confirmed. ✅ Now, please send a clear photo of the *back side* of your vehicle registration document. 🔙"
	msgAwaitingBack      = "Next please send a clear photo of the *back side* of your vehicle registration. 📸"
	msgBackFailed        = "I couldn't extract data from the vehicle back photo. What's next? 👇"
	msgManualVehicle     = "Please enter your vehicle data in the following format: \n\n*VIN;Make;Model;Year;Registration number*"
	msgVehicleFormat     = "❌ Wrong input! Please follow this example:\n\n*VIN;Make;Model;Year;Registration number*"
	msgVehicleYear       = "Can't read the year. 🗓️ Please ensure the year is a valid number and try again following the example:\n\n*VIN;Make;Model;Year;Registration number*"
	msgVehicleIncomplete = "Some vehicle fields are still missing: *%s*. Please send the front photo again or enter the data manually. 👇"
)

var instructions = map[model.State]string{
	model.StateAwaitingPassport:          msgAwaitingPassport,
	model.StateEnteringPassportData:      msgManualPassport,
	model.StateConfirmingPassport:        "Please confirm if the extracted passport data is correct using the buttons in the message above.",
	model.StateAwaitingVehicleCountry:    "Please choose the country for your vehicle documents using the buttons in the message above.",
	model.StateAwaitingVehicleFront:      msgAwaitingFront,
	model.StateAwaitingVehicleBack:       msgAwaitingBack,
	model.StateEnteringVehicleData:       msgManualVehicle,
	model.StateConfirmingVehicleDoc:      "Please confirm if the extracted vehicle data is correct using the buttons in the message above.",
	model.StateAwaitingPriceConfirmation: "Please agree or decline the insurance price using the buttons in the message above. Only the offered price is available.",
}

// Instruction returns the fixed hint for a state.
func Instruction(state model.State) string {
	if s, ok := instructions[state]; ok {
		return s
	}
	return msgDefaultInstruction
}

func unrecognizedMessage(state model.State) string {
	return msgUnrecognizedPrefix + Instruction(state)
}

// PriceLabel formats the fixed policy price.
func PriceLabel() string {
	return fmt.Sprintf("$%d.00", model.PolicyPrice)
}

func pricePrompt() string {
	return fmt.Sprintf("Your vehicle insurance price is *%s*. Do you accept this offer? 💰", PriceLabel())
}

func declinedOffer() string {
	return fmt.Sprintf(msgDeclinedOffer, PriceLabel())
}

func policyIssued(number string) string {
	return fmt.Sprintf("🎉 Your insurance policy *#%s* has been issued! \n"+
		"Thank you for choosing us. Use /start if you'd like to purchase another policy.", number)
}

func policyCaption(number string) string {
	return "Your insurance policy #" + number
}

func passportPrompt(p model.Passport) string {
	return "Here's the passport information: \n" +
		"👤 *Full Name*: " + format.EscapeMarkdown(p.FullName) + "\n" +
		"🆔 *Passport Number*: " + format.EscapeMarkdown(p.Number) + "\n" +
		"🎂 *Date of Birth*: " + model.FormatDate(p.DateOfBirth) + "\n" +
		"📅 *Issue Date*: " + model.FormatDate(p.IssueDate) + "\n" +
		"⏳ *Expiry Date*: " + model.FormatDate(p.ExpiryDate) + "\n\n" +
		"Is this correct?"
}

func vehiclePrompt(v model.Vehicle) string {
	return "Here's the vehicle document information: \n" +
		"🚗 *VIN*: " + format.EscapeMarkdown(v.VIN) + "\n" +
		"🛠️ *Make*: " + format.EscapeMarkdown(v.Make) + "\n" +
		"🏎️ *Model*: " + format.EscapeMarkdown(v.Model) + "\n" +
		"📅 *Year*: " + v.YearString() + "\n" +
		"🏷️ *Registration Number*: " + format.EscapeMarkdown(v.RegistrationNumber) + "\n\n" +
		"Is this correct?"
}

func frontPrompt(v model.Vehicle) string {
	return "Here's what I read from the *front side*: \n" +
		"🏷️ *Registration Number*: " + format.EscapeMarkdown(v.RegistrationNumber) + "\n" +
		"📅 *Year*: " + v.YearString() + "\n\n" +
		"If this is correct, send a clear photo of the *back side* of your vehicle registration. 🔙"
}

func vehicleIncomplete(v model.Vehicle) string {
	return fmt.Sprintf(msgVehicleIncomplete, strings.Join(v.Missing(), ", "))
}

var (
	kbStart = Keyboard{
		{{Text: "✍️ Enter manually", Data: ActionManualPassport}},
	}
	kbPassportConfirm = Keyboard{
		{{Text: "✅ Confirm", Data: ActionConfirmPassport}, {Text: "🔄 Try again with photo", Data: ActionRetryPassport}},
		{{Text: "✍️ Enter manual again", Data: ActionManualPassport}},
	}
	kbPassportFailed = Keyboard{
		{{Text: "🔄 Try again", Data: ActionRetryPassport}},
		{{Text: "✍️ Enter manually", Data: ActionManualPassport}},
	}
	kbFrontConfirm = Keyboard{
		{{Text: "✅ Confirm", Data: ActionConfirmVehicleFront}, {Text: "🔄 Try again with photo", Data: ActionRetryVehicleFront}},
		{{Text: "✍️ Enter manually", Data: ActionManualVehicle}},
	}
	kbFrontFailed = Keyboard{
		{{Text: "🔄 Try again", Data: ActionRetryVehicleFront}},
		{{Text: "✍️ Enter manually", Data: ActionManualVehicle}},
	}
	kbBackFailed = Keyboard{
		{{Text: "🔄 Try again", Data: ActionRetryVehicleBack}},
		{{Text: "✍️ Enter manually", Data: ActionManualVehicle}},
	}
	kbPrice = Keyboard{
		{{Text: "✅ Accept", Data: ActionAgreePrice}, {Text: "❌ Decline", Data: ActionDeclinePrice}},
	}
	kbDeclined = Keyboard{
		{{Text: "✅ Accept", Data: ActionAgreePrice}, {Text: "🔄 Start over", Data: ActionRestart}},
	}
)

func vehicleDocKeyboard(withBack bool) Keyboard {
	kb := Keyboard{
		{{Text: "✅ Confirm", Data: ActionConfirmVehicleDoc}, {Text: "🔄 Try again with photo", Data: ActionRetryVehicleFront}},
	}
	if withBack {
		kb = append(kb, []Button{{Text: "🔙 Retake back side", Data: ActionRetryVehicleBack}})
	}
	return append(kb, []Button{{Text: "✍️ Enter manual again", Data: ActionManualVehicle}})
}

func countryKeyboard(profiles []model.CountryProfile) Keyboard {
	var kb Keyboard
	var row []Button
	for _, p := range profiles {
		label := p.Label
		if label == "" {
			label = p.Code
		}
		row = append(row, Button{Text: label, Data: CountryPrefix + p.Code})
		if len(row) == 2 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return kb
}

func priceKeyboard(s *model.Session) Keyboard {
	if s.PriceDeclined {
		return kbDeclined
	}
	return kbPrice
}
