package flows

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/excellent-lang/excellent/pkg/dates"
)

// Org carries the organization level settings which influence how a flow
// runs: the country used for phone and location parsing, the primary
// language, the timezone and date conventions for expression evaluation, and
// whether contact identities are masked.
type Org struct {
	Country         string
	PrimaryLanguage string
	Timezone        *time.Location
	DateStyle       dates.Style
	Anon            bool
}

type orgEnvelope struct {
	Country         string `json:"country"`
	PrimaryLanguage string `json:"primary_language"`
	Timezone        string `json:"timezone"`
	DateStyle       string `json:"date_style"`
	Anon            bool   `json:"anon"`
}

func (o *Org) MarshalJSON() ([]byte, error) {
	style := "day_first"
	if o.DateStyle == dates.MonthFirst {
		style = "month_first"
	}
	return json.Marshal(&orgEnvelope{
		Country:         o.Country,
		PrimaryLanguage: o.PrimaryLanguage,
		Timezone:        o.Timezone.String(),
		DateStyle:       style,
		Anon:            o.Anon,
	})
}

func (o *Org) UnmarshalJSON(data []byte) error {
	envelope := &orgEnvelope{}
	if err := json.Unmarshal(data, envelope); err != nil {
		return err
	}

	tz, err := time.LoadLocation(envelope.Timezone)
	if err != nil {
		return fmt.Errorf("reading org: %w", err)
	}

	var style dates.Style
	switch envelope.DateStyle {
	case "day_first":
		style = dates.DayFirst
	case "month_first":
		style = dates.MonthFirst
	default:
		return fmt.Errorf("reading org: unknown date style %q", envelope.DateStyle)
	}

	o.Country = envelope.Country
	o.PrimaryLanguage = envelope.PrimaryLanguage
	o.Timezone = tz
	o.DateStyle = style
	o.Anon = envelope.Anon
	return nil
}
