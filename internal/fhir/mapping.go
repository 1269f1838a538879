package fhir

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/internal/patients"
	"stealthcompany.com/glycorisk/internal/risk"
)

// LOINC codes read from Observations.
const (
	loincHbA1cPercent = "4548-4"
	loincHbA1cIFCC    = "59261-8"
	loincGlucose      = "2339-0"
	loincCholesterol  = "2093-3"
	loincLDLDirect    = "18262-6"
	loincLDLCalc      = "13457-7"
	loincBPPanel      = "85354-9"
	loincSystolic     = "8480-6"
	loincDiastolic    = "8462-4"
	loincBMI          = "39156-5"
	loincEGFR         = "33914-3"
	loincEGFRCKDEPI   = "62238-1"
	loincACR          = "9318-7"
	loincACRMass      = "14959-1"
)

// ObservationCodes is the code filter sent to the server.
var ObservationCodes = []string{
	loincHbA1cPercent, loincHbA1cIFCC, loincGlucose, loincCholesterol,
	loincLDLDirect, loincLDLCalc, loincBPPanel, loincSystolic, loincDiastolic,
	loincBMI, loincEGFR, loincEGFRCKDEPI, loincACR, loincACRMass,
}

// PercentToMmolMol converts a DCCT HbA1c percentage to IFCC mmol/mol,
// rounded to one decimal.
func PercentToMmolMol(pct float64) float64 {
	return math.Round((pct-2.15)*10.929*10) / 10
}

// parseTime accepts the FHIR dateTime forms that carry at least a date.
func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable FHIR dateTime %q", s)
}

func hasCode(c CodeableConcept, codes ...string) (string, bool) {
	for _, coding := range c.Coding {
		if slices.Contains(codes, coding.Code) {
			return coding.Code, true
		}
	}
	return "", false
}

// hba1cValue returns the reading in mmol/mol. 4548-4 is normally reported
// in %, but some servers send mmol/mol under that code; the unit decides.
func hba1cValue(code string, q *Quantity) (float64, bool) {
	if q == nil || q.Value == nil {
		return 0, false
	}
	v := *q.Value
	unit := strings.ToLower(q.Unit + q.Code)
	if code == loincHbA1cPercent && !strings.Contains(unit, "mmol") {
		return PercentToMmolMol(v), true
	}
	return v, true
}

func quantity(q *Quantity) (float64, bool) {
	if q == nil || q.Value == nil {
		return 0, false
	}
	return *q.Value, true
}

// panelBuilder accumulates the observations of one patient on one day.
type panelBuilder struct {
	panel    risk.LabPanel
	hasHbA1c bool
}

// panelKey groups observations taken on the same UTC calendar day.
func panelKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// add folds one observation into the panel. Only recognised codes move the
// panel timestamp.
func (b *panelBuilder) add(obs Observation, at time.Time) {
	code, ok := hasCode(obs.Code, ObservationCodes...)
	if !ok {
		return
	}
	if at.After(b.panel.MeasuredAt) {
		b.panel.MeasuredAt = at
	}

	switch code {
	case loincHbA1cPercent, loincHbA1cIFCC:
		if v, ok := hba1cValue(code, obs.ValueQuantity); ok {
			b.panel.HbA1c = v
			b.hasHbA1c = true
		}
	case loincGlucose:
		if v, ok := quantity(obs.ValueQuantity); ok {
			b.panel.Glucose = v
		}
	case loincCholesterol:
		if v, ok := quantity(obs.ValueQuantity); ok {
			b.panel.Cholesterol = v
		}
	case loincLDLDirect, loincLDLCalc:
		if v, ok := quantity(obs.ValueQuantity); ok {
			b.panel.LDL = &v
		}
	case loincSystolic:
		if v, ok := quantity(obs.ValueQuantity); ok {
			b.panel.BloodPressure.Systolic = v
		}
	case loincDiastolic:
		if v, ok := quantity(obs.ValueQuantity); ok {
			b.panel.BloodPressure.Diastolic = v
		}
	case loincBPPanel:
		for _, c := range obs.Component {
			if cc, ok := hasCode(c.Code, loincSystolic, loincDiastolic); ok {
				if v, ok := quantity(c.ValueQuantity); ok {
					if cc == loincSystolic {
						b.panel.BloodPressure.Systolic = v
					} else {
						b.panel.BloodPressure.Diastolic = v
					}
				}
			}
		}
	case loincBMI:
		if v, ok := quantity(obs.ValueQuantity); ok {
			b.panel.BMI = v
		}
	case loincEGFR, loincEGFRCKDEPI:
		if v, ok := quantity(obs.ValueQuantity); ok {
			b.panel.EGFR = &v
		}
	case loincACR, loincACRMass:
		if v, ok := quantity(obs.ValueQuantity); ok {
			b.panel.AlbuminCreatinineRatio = &v
		}
	}
}

// BuildLabPanels groups a patient's observations into day panels. Only days
// with an HbA1c reading become panels; the rest is context the engine does
// not use on its own. The result is ordered most recent first.
func BuildLabPanels(patientID string, observations []Observation) []risk.LabPanel {
	builders := map[string]*panelBuilder{}
	for _, obs := range observations {
		if obs.Status == "entered-in-error" || obs.Status == "cancelled" {
			continue
		}
		when := obs.EffectiveDateTime
		if when == "" {
			when = obs.Issued
		}
		at, err := parseTime(when)
		if err != nil {
			log.Debug().Err(err).Str("observation_id", obs.ID).Msg("Skipping observation without usable time")
			continue
		}

		key := panelKey(at)
		b, ok := builders[key]
		if !ok {
			b = &panelBuilder{panel: risk.LabPanel{ID: patientID + "/" + key}}
			builders[key] = b
		}
		b.add(obs, at)
	}

	var panels []risk.LabPanel
	for _, b := range builders {
		if b.hasHbA1c {
			panels = append(panels, b.panel)
		}
	}
	return patients.Normalize(risk.Patient{LabPanels: panels}).LabPanels
}

// BuildVisits turns encounters into visit records. Encounters without a
// start time or that never happened are skipped.
func BuildVisits(encounters []Encounter) []risk.VisitRecord {
	var visits []risk.VisitRecord
	for _, enc := range encounters {
		if enc.Status == "cancelled" || enc.Status == "entered-in-error" || enc.Status == "planned" {
			continue
		}
		if enc.Period == nil || enc.Period.Start == "" {
			continue
		}
		at, err := parseTime(enc.Period.Start)
		if err != nil {
			log.Debug().Err(err).Str("encounter_id", enc.ID).Msg("Skipping encounter without usable start")
			continue
		}

		visitType := ""
		if len(enc.Type) > 0 {
			visitType = enc.Type[0].Label()
		}
		if visitType == "" && enc.Class != nil {
			visitType = enc.Class.Code
		}

		provider := ""
		for _, part := range enc.Participant {
			if part.Individual != nil {
				provider = part.Individual.Display
				if provider == "" {
					provider = part.Individual.Reference
				}
				break
			}
		}

		visits = append(visits, risk.VisitRecord{
			ID:       enc.ID,
			At:       at,
			Type:     visitType,
			Provider: provider,
		})
	}
	return visits
}

// BuildPatient assembles one engine input record.
func BuildPatient(p Patient, observations []Observation, encounters []Encounter) risk.Patient {
	return risk.Patient{
		ID:        p.ID,
		Name:      p.DisplayName(),
		LabPanels: BuildLabPanels(p.ID, observations),
		Visits:    BuildVisits(encounters),
	}
}
