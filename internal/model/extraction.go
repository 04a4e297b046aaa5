package model

import "fmt"

// DefaultCountry names the profile used for country codes without their own entry.
const DefaultCountry = "Default"

// CountryProfile describes how vehicle documents of one country are read.
type CountryProfile struct {
	Code          string `yaml:"code"`
	Label         string `yaml:"label"`
	FrontEndpoint string `yaml:"front_endpoint"`
	BackEndpoint  string `yaml:"back_endpoint"`
	HasBackPage   bool   `yaml:"has_back_page"`
}

// Side identifies which document page an extraction was for.
type Side string

const (
	SidePassport     Side = "passport"
	SideVehicleFront Side = "vehicle_front"
	SideVehicleBack  Side = "vehicle_back"
)

// ExtractionError reports a failed OCR call for one document side.
type ExtractionError struct {
	Side Side
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Side, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
