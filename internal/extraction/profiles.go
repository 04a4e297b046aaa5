package extraction

import (
	"fmt"
	"strings"

	"github.com/m3rciful/insurebot/internal/model"
)

// Profiles indexes the configured country profiles. Codes match case-insensitively.
type Profiles struct {
	list     []model.CountryProfile
	byCode   map[string]model.CountryProfile
	fallback model.CountryProfile
}

// NewProfiles validates countries. A profile with code model.DefaultCountry is required;
// it serves every code without its own entry.
func NewProfiles(countries []model.CountryProfile) (*Profiles, error) {
	p := &Profiles{byCode: make(map[string]model.CountryProfile, len(countries))}
	for _, c := range countries {
		if c.Code == "" {
			return nil, fmt.Errorf("country profile without code")
		}
		key := strings.ToUpper(c.Code)
		if _, dup := p.byCode[key]; dup {
			return nil, fmt.Errorf("duplicate country profile %q", c.Code)
		}
		if c.FrontEndpoint == "" {
			return nil, fmt.Errorf("country %q: front_endpoint is required", c.Code)
		}
		if c.HasBackPage && c.BackEndpoint == "" {
			return nil, fmt.Errorf("country %q: back_endpoint is required when has_back_page is set", c.Code)
		}
		if c.Label == "" {
			c.Label = c.Code
		}
		p.byCode[key] = c
		p.list = append(p.list, c)
	}
	fallback, ok := p.byCode[strings.ToUpper(model.DefaultCountry)]
	if !ok {
		return nil, fmt.Errorf("country profiles must include %q", model.DefaultCountry)
	}
	p.fallback = fallback
	return p, nil
}

func (p *Profiles) Lookup(code string) (model.CountryProfile, bool) {
	c, ok := p.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// Resolve returns the profile for code, or the default profile.
func (p *Profiles) Resolve(code string) model.CountryProfile {
	if c, ok := p.Lookup(code); ok {
		return c
	}
	return p.fallback
}

// List returns the profiles in configuration order.
func (p *Profiles) List() []model.CountryProfile {
	return append([]model.CountryProfile(nil), p.list...)
}
