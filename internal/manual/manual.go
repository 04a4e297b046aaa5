// Package manual parses typed passport and vehicle data.
//
// Both formats are five fields separated by ';':
//
//	FullName;PassportNumber;DateOfBirth;IssueDate;ExpiryDate
//	VIN;Make;Model;Year;RegistrationNumber
package manual

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/insurebot/core/telegram/helpers"
	"github.com/m3rciful/insurebot/internal/model"
)

const (
	separator = ";"
	fieldN    = 5
)

var (
	// ErrFormat reports a wrong field count or an empty required field.
	ErrFormat = errors.New("manual: wrong format")
	// ErrDate reports an unparseable or inconsistent passport date.
	ErrDate = errors.New("manual: invalid date")
	// ErrYear reports an unparseable or out of range vehicle year.
	ErrYear = errors.New("manual: invalid year")
)

// ParsePassport parses and validates a manual passport line. now bounds the accepted years.
func ParsePassport(text string, now time.Time) (model.Passport, error) {
	parts, err := split(text)
	if err != nil {
		return model.Passport{}, err
	}
	name, number := parts[0], parts[1]
	if name == "" || number == "" {
		return model.Passport{}, fmt.Errorf("%w: full name and passport number are required", ErrFormat)
	}

	dates := make([]time.Time, 3)
	for i, raw := range parts[2:] {
		d, ok := helpers.ParseDate(raw)
		if !ok {
			return model.Passport{}, fmt.Errorf("%w: cannot parse %q", ErrDate, raw)
		}
		dates[i] = d
	}
	dob, issue, expiry := dates[0], dates[1], dates[2]

	if !yearInRange(dob.Year(), now) {
		return model.Passport{}, fmt.Errorf("%w: date of birth year %d out of range", ErrDate, dob.Year())
	}
	if !yearInRange(issue.Year(), now) {
		return model.Passport{}, fmt.Errorf("%w: issue year %d out of range", ErrDate, issue.Year())
	}
	if issue.Before(dob) {
		return model.Passport{}, fmt.Errorf("%w: issue date before date of birth", ErrDate)
	}
	if !expiry.After(issue) {
		return model.Passport{}, fmt.Errorf("%w: expiry date must be after issue date", ErrDate)
	}

	return model.Passport{
		FullName:    name,
		Number:      number,
		DateOfBirth: dob,
		IssueDate:   issue,
		ExpiryDate:  expiry,
	}, nil
}

// ParseVehicle parses and validates a manual vehicle line. now bounds the accepted year.
func ParseVehicle(text string, now time.Time) (model.Vehicle, error) {
	parts, err := split(text)
	if err != nil {
		return model.Vehicle{}, err
	}
	year, err := strconv.Atoi(parts[3])
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("%w: %q is not a number", ErrYear, parts[3])
	}
	if !yearInRange(year, now) {
		return model.Vehicle{}, fmt.Errorf("%w: %d out of range", ErrYear, year)
	}
	v := model.Vehicle{
		VIN:                parts[0],
		Make:               parts[1],
		Model:              parts[2],
		Year:               year,
		RegistrationNumber: parts[4],
	}
	if !v.Complete() {
		return model.Vehicle{}, fmt.Errorf("%w: empty %s", ErrFormat, strings.Join(v.Missing(), ", "))
	}
	return v, nil
}

func split(text string) ([]string, error) {
	parts := strings.Split(strings.TrimSpace(text), separator)
	if len(parts) != fieldN {
		return nil, fmt.Errorf("%w: got %d fields, want %d", ErrFormat, len(parts), fieldN)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts, nil
}

func yearInRange(year int, now time.Time) bool {
	return model.ValidYear(year, now)
}
