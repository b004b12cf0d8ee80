package vault

import "time"

// Row is one record of a warehouse table. Values are in the order of the
// table's catalog fields.
type Row interface {
	Table() string
	Values() []any
}

// ── Hubs ───────────────────────────────────────────────────

type HubMetaData struct{ Sequence string }

func (HubMetaData) Table() string   { return TableHubMetaData }
func (r HubMetaData) Values() []any { return []any{r.Sequence} }

type HubExperiment struct{ Sequence string }

func (HubExperiment) Table() string   { return TableHubExperiment }
func (r HubExperiment) Values() []any { return []any{r.Sequence} }

type HubExperimentalUnit struct{ Sequence string }

func (HubExperimentalUnit) Table() string   { return TableHubExperimentalUnit }
func (r HubExperimentalUnit) Values() []any { return []any{r.Sequence} }

type HubSubject struct{ Sequence string }

func (HubSubject) Table() string   { return TableHubSubject }
func (r HubSubject) Values() []any { return []any{r.Sequence} }

type HubFactor struct {
	Sequence   string
	Experiment string
	IsCofactor bool
}

func (HubFactor) Table() string   { return TableHubFactor }
func (r HubFactor) Values() []any { return []any{r.Sequence, r.Experiment, r.IsCofactor} }

type HubTreatment struct {
	Sequence   string
	Experiment string
}

func (HubTreatment) Table() string   { return TableHubTreatment }
func (r HubTreatment) Values() []any { return []any{r.Sequence, r.Experiment} }

type HubGroup struct {
	Sequence  string
	Treatment string
}

func (HubGroup) Table() string   { return TableHubGroup }
func (r HubGroup) Values() []any { return []any{r.Sequence, r.Treatment} }

type HubSession struct{ Sequence string }

func (HubSession) Table() string   { return TableHubSession }
func (r HubSession) Values() []any { return []any{r.Sequence} }

type HubObservation struct {
	Sequence           string
	CollectedAtSession string
}

func (HubObservation) Table() string   { return TableHubObservation }
func (r HubObservation) Values() []any { return []any{r.Sequence, r.CollectedAtSession} }

// ── Links ──────────────────────────────────────────────────

type ParticipatesIn struct {
	Sequence         string
	ExperimentalUnit string
	Experiment       string
}

func (ParticipatesIn) Table() string { return TableParticipatesIn }
func (r ParticipatesIn) Values() []any {
	return []any{r.Sequence, r.ExperimentalUnit, r.Experiment}
}

type AssignedTo struct {
	Sequence         string
	ExperimentalUnit string
	Group            string
}

func (AssignedTo) Table() string   { return TableAssignedTo }
func (r AssignedTo) Values() []any { return []any{r.Sequence, r.ExperimentalUnit, r.Group} }

type AttendsSession struct {
	Sequence         string
	ExperimentalUnit string
	Group            string
	Session          string
}

func (AttendsSession) Table() string { return TableAttendsSession }
func (r AttendsSession) Values() []any {
	return []any{r.Sequence, r.ExperimentalUnit, r.Group, r.Session}
}

type SessionMetaData struct {
	Sequence string
	Session  string
	MetaData string
}

func (SessionMetaData) Table() string   { return TableSessionMetaData }
func (r SessionMetaData) Values() []any { return []any{r.Sequence, r.Session, r.MetaData} }

type ObservationMetaData struct {
	Sequence    string
	Observation string
	MetaData    string
}

func (ObservationMetaData) Table() string   { return TableObservationMetaData }
func (r ObservationMetaData) Values() []any { return []any{r.Sequence, r.Observation, r.MetaData} }

// ── Satellites ─────────────────────────────────────────────

// SatMetaDataKeyValuePair holds one flattened header field; Value is the
// field's binary encoding (header.Value.MarshalBinary).
type SatMetaDataKeyValuePair struct {
	Sequence string
	Key      string
	Value    []byte
}

func (SatMetaDataKeyValuePair) Table() string   { return TableSatMetaDataKeyValuePair }
func (r SatMetaDataKeyValuePair) Values() []any { return []any{r.Sequence, r.Key, r.Value} }

type SatExperimentTitle struct{ Sequence, Title string }

func (SatExperimentTitle) Table() string   { return TableSatExperimentTitle }
func (r SatExperimentTitle) Values() []any { return []any{r.Sequence, r.Title} }

type SatExperimentAcronym struct{ Sequence, Acronym string }

func (SatExperimentAcronym) Table() string   { return TableSatExperimentAcronym }
func (r SatExperimentAcronym) Values() []any { return []any{r.Sequence, r.Acronym} }

type SatExperimentalUnitIdentifier struct{ Sequence, Identifier string }

func (SatExperimentalUnitIdentifier) Table() string   { return TableSatExperimentalUnitIdentifier }
func (r SatExperimentalUnitIdentifier) Values() []any { return []any{r.Sequence, r.Identifier} }

type SatSubjectAge struct {
	Sequence string
	Age      int
}

func (SatSubjectAge) Table() string   { return TableSatSubjectAge }
func (r SatSubjectAge) Values() []any { return []any{r.Sequence, r.Age} }

type SatSubjectName struct{ Sequence, Name string }

func (SatSubjectName) Table() string   { return TableSatSubjectName }
func (r SatSubjectName) Values() []any { return []any{r.Sequence, r.Name} }

type SatFactorName struct{ Sequence, Name string }

func (SatFactorName) Table() string   { return TableSatFactorName }
func (r SatFactorName) Values() []any { return []any{r.Sequence, r.Name} }

type SatFactorLevel struct{ Sequence, LevelValue string }

func (SatFactorLevel) Table() string   { return TableSatFactorLevel }
func (r SatFactorLevel) Values() []any { return []any{r.Sequence, r.LevelValue} }

// SatTreatmentFactorLevel ties a treatment to one factor level; FactorLevel
// is the factor's sequence.
type SatTreatmentFactorLevel struct{ Sequence, FactorLevel string }

func (SatTreatmentFactorLevel) Table() string   { return TableSatTreatmentFactorLevel }
func (r SatTreatmentFactorLevel) Values() []any { return []any{r.Sequence, r.FactorLevel} }

type SatGroupName struct{ Sequence, Name string }

func (SatGroupName) Table() string   { return TableSatGroupName }
func (r SatGroupName) Values() []any { return []any{r.Sequence, r.Name} }

type SatSessionName struct{ Sequence, Name string }

func (SatSessionName) Table() string   { return TableSatSessionName }
func (r SatSessionName) Values() []any { return []any{r.Sequence, r.Name} }

type SatObservationName struct{ Sequence, Name string }

func (SatObservationName) Table() string   { return TableSatObservationName }
func (r SatObservationName) Values() []any { return []any{r.Sequence, r.Name} }

// SatObservationValue is a sample matrix (rows = samples) with one
// timestamp per row.
type SatObservationValue struct {
	Sequence   string
	Value      [][]float64
	Timestamps []time.Time
}

func (SatObservationValue) Table() string   { return TableSatObservationValue }
func (r SatObservationValue) Values() []any { return []any{r.Sequence, r.Value, r.Timestamps} }
