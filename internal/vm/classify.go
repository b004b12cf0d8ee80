package vm

import "nirsvault/internal/apperr"

// Factor names of the visuomotor design.
const (
	FactorVisual = "Visual Stimulus"
	FactorMotor  = "Motor Stimulus"
)

// Condition is the experimental condition a file-name acronym encodes.
type Condition struct {
	Acronym string
	Visual  bool
	Motor   bool
	Group   string
}

var conditions = map[string]Condition{
	"ViMo": {Acronym: "ViMo", Visual: true, Motor: true, Group: "Visual and Motor Stimulus"},
	"Viso": {Acronym: "Viso", Visual: true, Motor: false, Group: "Visual Stimulus"},
	"Moto": {Acronym: "Moto", Visual: false, Motor: true, Group: "Motor Stimulus"},
	"Rest": {Acronym: "Rest", Visual: false, Motor: false, Group: "Rest"},
}

// Classify maps an acronym to its condition. Unknown acronyms are an error,
// never a default.
func Classify(acronym string) (Condition, error) {
	c, ok := conditions[acronym]
	if !ok {
		return Condition{}, apperr.UnknownAcronym(acronym)
	}
	return c, nil
}

// Levels returns the factor levels of the condition, in factor order.
func (c Condition) Levels() []FactorLevel {
	return []FactorLevel{
		{Factor: FactorVisual, Present: c.Visual},
		{Factor: FactorMotor, Present: c.Motor},
	}
}

// FactorLevel is one factor's presence in a condition.
type FactorLevel struct {
	Factor  string
	Present bool
}

// Value is the stored level text.
func (l FactorLevel) Value() string {
	if l.Present {
		return "True"
	}
	return "False"
}
