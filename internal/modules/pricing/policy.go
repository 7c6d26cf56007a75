package pricing

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"studioboard/internal/domain"
)

// Policy holds the business pricing configuration. The figures are injected
// configuration, not algorithm invariants: they come from a TOML file and
// differ per deployment.
type Policy struct {
	Currency string `toml:"currency"`

	// HourlyRates is keyed by space identifier.
	HourlyRates map[string]float64 `toml:"hourly_rates"`

	Peak PeakWindow `toml:"peak"`

	// Equipment surcharges keyed by item name.
	Equipment map[string]EquipmentRate `toml:"equipment"`

	// Headcount above FreeHeadcount adds ExtraPersonPerHour per person.
	FreeHeadcount      int     `toml:"free_headcount"`
	ExtraPersonPerHour float64 `toml:"extra_person_per_hour"`
}

// PeakWindow is a daily [StartHour, EndHour) window with a per-hour
// surcharge for booked hours that fall inside it.
type PeakWindow struct {
	StartHour        int     `toml:"start_hour"`
	EndHour          int     `toml:"end_hour"`
	SurchargePerHour float64 `toml:"surcharge_per_hour"`
}

// Load reads a policy from a TOML file.
func Load(path string) (*Policy, error) {
	var p Policy
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return nil, fmt.Errorf("load pricing policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Default returns an illustrative policy for local development and tests.
func Default() *Policy {
	return &Policy{
		Currency: "KZT",
		HourlyRates: map[string]float64{
			string(domain.SpaceMainStudio):  15000,
			string(domain.SpaceSmallStudio): 9000,
			string(domain.SpaceOutdoorArea): 6000,
		},
		Peak: PeakWindow{StartHour: 17, EndHour: 21, SurchargePerHour: 3000},
		Equipment: map[string]EquipmentRate{
			"lighting_kit": {PerHour: true, Amount: 2000},
			"backdrop":     {Amount: 1500},
			"fog_machine":  {Amount: 2500},
		},
		FreeHeadcount:      5,
		ExtraPersonPerHour: 500,
	}
}

func (p *Policy) Validate() error {
	if len(p.HourlyRates) == 0 {
		return fmt.Errorf("%w: pricing policy has no hourly rates", domain.ErrValidation)
	}
	for space, rate := range p.HourlyRates {
		if rate < 0 {
			return fmt.Errorf("%w: negative hourly rate for %s", domain.ErrValidation, space)
		}
	}
	if p.Peak.StartHour < 0 || p.Peak.EndHour > 24 || p.Peak.StartHour > p.Peak.EndHour {
		return fmt.Errorf("%w: peak window %d-%d", domain.ErrValidation, p.Peak.StartHour, p.Peak.EndHour)
	}
	if p.FreeHeadcount < 0 || p.ExtraPersonPerHour < 0 {
		return fmt.Errorf("%w: negative headcount policy", domain.ErrValidation)
	}
	return nil
}

// EquipmentRate is the surcharge for one equipment item, either flat per
// booking or multiplied by the booked hours.
type EquipmentRate struct {
	PerHour bool    `toml:"per_hour"`
	Amount  float64 `toml:"amount"`
}
