package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the day.month.year form used for manual entry and display.
const DateLayout = "02.01.2006"

// Passport holds identity document fields.
type Passport struct {
	FullName    string    `json:"full_name"`
	Number      string    `json:"number"`
	DateOfBirth time.Time `json:"date_of_birth"`
	IssueDate   time.Time `json:"issue_date"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

// Summary renders the passport as plain multi-line text.
func (p Passport) Summary() string {
	return fmt.Sprintf("Full Name: %s\nPassport Number: %s\nDate of Birth: %s\nIssue Date: %s\nExpiry Date: %s",
		p.FullName, p.Number, FormatDate(p.DateOfBirth), FormatDate(p.IssueDate), FormatDate(p.ExpiryDate))
}

// Vehicle holds registration document fields. Year 0 means unknown.
type Vehicle struct {
	VIN                string `json:"vin,omitempty"`
	Make               string `json:"make,omitempty"`
	Model              string `json:"model,omitempty"`
	Year               int    `json:"year,omitempty"`
	RegistrationNumber string `json:"registration_number,omitempty"`
}

// Merge copies every non-empty field of other into v, keeping fields other leaves empty.
func (v *Vehicle) Merge(other Vehicle) {
	if s := strings.TrimSpace(other.VIN); s != "" {
		v.VIN = s
	}
	if s := strings.TrimSpace(other.Make); s != "" {
		v.Make = s
	}
	if s := strings.TrimSpace(other.Model); s != "" {
		v.Model = s
	}
	if other.Year > 0 {
		v.Year = other.Year
	}
	if s := strings.TrimSpace(other.RegistrationNumber); s != "" {
		v.RegistrationNumber = s
	}
}

// MinYear is the earliest accepted year for vehicle and passport dates.
const MinYear = 1900

// ValidYear reports whether year lies in [MinYear, now.Year()].
func ValidYear(year int, now time.Time) bool {
	return year >= MinYear && year <= now.Year()
}

// Complete reports whether all five fields are known.
func (v Vehicle) Complete() bool {
	return v.VIN != "" && v.Make != "" && v.Model != "" && v.Year > 0 && v.RegistrationNumber != ""
}

// Missing lists the names of unknown fields.
func (v Vehicle) Missing() []string {
	var out []string
	if v.VIN == "" {
		out = append(out, "VIN")
	}
	if v.Make == "" {
		out = append(out, "Make")
	}
	if v.Model == "" {
		out = append(out, "Model")
	}
	if v.Year <= 0 {
		out = append(out, "Year")
	}
	if v.RegistrationNumber == "" {
		out = append(out, "Registration Number")
	}
	return out
}

// YearString returns the year or an empty string when unknown.
func (v Vehicle) YearString() string {
	if v.Year <= 0 {
		return ""
	}
	return strconv.Itoa(v.Year)
}

// Summary renders the vehicle as plain multi-line text.
func (v Vehicle) Summary() string {
	return fmt.Sprintf("VIN: %s\nMake: %s\nModel: %s\nYear: %s\nRegistration Number: %s",
		v.VIN, v.Make, v.Model, v.YearString(), v.RegistrationNumber)
}

// FormatDate formats t with DateLayout; the zero time renders as "unknown".
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return t.Format(DateLayout)
}
