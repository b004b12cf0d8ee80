package vault

import "nirsvault/internal/etl"

// Table names.
const (
	TableHubMetaData                   = "HubMetaData"
	TableSatMetaDataKeyValuePair       = "SatMetaDataKeyValuePair"
	TableHubExperiment                 = "HubExperiment"
	TableSatExperimentTitle            = "SatExperimentTitle"
	TableSatExperimentAcronym          = "SatExperimentAcronym"
	TableHubExperimentalUnit           = "HubExperimentalUnit"
	TableSatExperimentalUnitIdentifier = "SatExperimentalUnitIdentifier"
	TableHubSubject                    = "HubSubject"
	TableSatSubjectAge                 = "SatSubjectAge"
	TableSatSubjectName                = "SatSubjectName"
	TableParticipatesIn                = "ParticipatesIn"
	TableHubFactor                     = "HubFactor"
	TableSatFactorName                 = "SatFactorName"
	TableSatFactorLevel                = "SatFactorLevel"
	TableHubTreatment                  = "HubTreatment"
	TableSatTreatmentFactorLevel       = "SatTreatmentFactorLevel"
	TableHubGroup                      = "HubGroup"
	TableSatGroupName                  = "SatGroupName"
	TableAssignedTo                    = "AssignedTo"
	TableHubSession                    = "HubSession"
	TableSatSessionName                = "SatSessionName"
	TableAttendsSession                = "AttendsSession"
	TableSessionMetaData               = "SessionMetaData"
	TableHubObservation                = "HubObservation"
	TableObservationMetaData           = "ObservationMetaData"
	TableSatObservationName            = "SatObservationName"
	TableSatObservationValue           = "SatObservationValue"
)

// Definition is the schema of one warehouse table.
type Definition struct {
	Name   string
	Kind   etl.TableKind
	Schema etl.Schema
}

func seq(ref string) etl.Field { return etl.Field{Name: "sequence", Type: etl.TypeSequence, Ref: ref} }
func fk(name, ref string) etl.Field {
	return etl.Field{Name: name, Type: etl.TypeSequence, Ref: ref}
}
func text(name string) etl.Field { return etl.Field{Name: name, Type: etl.TypeText} }

func def(name string, kind etl.TableKind, fields ...etl.Field) Definition {
	return Definition{Name: name, Kind: kind, Schema: etl.Schema{Fields: fields}}
}

// catalog lists every table in load order within its kind. A hub's own
// sequence has no Ref; a satellite's sequence refers to its hub.
var catalog = []Definition{
	def(TableHubMetaData, etl.KindHub, seq("")),
	def(TableHubExperiment, etl.KindHub, seq("")),
	def(TableHubExperimentalUnit, etl.KindHub, seq("")),
	def(TableHubSubject, etl.KindHub, seq("")),
	def(TableHubFactor, etl.KindHub, seq(""), fk("experiment", TableHubExperiment),
		etl.Field{Name: "isCofactor", Type: etl.TypeBoolean}),
	def(TableHubTreatment, etl.KindHub, seq(""), fk("experiment", TableHubExperiment)),
	def(TableHubGroup, etl.KindHub, seq(""), fk("treatment", TableHubTreatment)),
	def(TableHubSession, etl.KindHub, seq("")),
	def(TableHubObservation, etl.KindHub, seq(""), fk("collectedAtSession", TableHubSession)),

	def(TableParticipatesIn, etl.KindLink, seq(""),
		fk("experimentalUnit", TableHubExperimentalUnit), fk("experiment", TableHubExperiment)),
	def(TableAssignedTo, etl.KindLink, seq(""),
		fk("experimentalUnit", TableHubExperimentalUnit), fk("group", TableHubGroup)),
	def(TableAttendsSession, etl.KindLink, seq(""),
		fk("experimentalUnit", TableHubExperimentalUnit), fk("group", TableHubGroup), fk("session", TableHubSession)),
	def(TableSessionMetaData, etl.KindLink, seq(""),
		fk("session", TableHubSession), fk("metadata", TableHubMetaData)),
	def(TableObservationMetaData, etl.KindLink, seq(""),
		fk("observation", TableHubObservation), fk("metadata", TableHubMetaData)),

	def(TableSatMetaDataKeyValuePair, etl.KindSatellite, seq(TableHubMetaData),
		text("key"), etl.Field{Name: "value", Type: etl.TypeBinary}),
	def(TableSatExperimentTitle, etl.KindSatellite, seq(TableHubExperiment), text("title")),
	def(TableSatExperimentAcronym, etl.KindSatellite, seq(TableHubExperiment), text("acronym")),
	def(TableSatExperimentalUnitIdentifier, etl.KindSatellite, seq(TableHubExperimentalUnit), text("identifier")),
	def(TableSatSubjectAge, etl.KindSatellite, seq(TableHubSubject), etl.Field{Name: "age", Type: etl.TypeInteger}),
	def(TableSatSubjectName, etl.KindSatellite, seq(TableHubSubject), text("name")),
	def(TableSatFactorName, etl.KindSatellite, seq(TableHubFactor), text("name")),
	def(TableSatFactorLevel, etl.KindSatellite, seq(TableHubFactor), text("levelValue")),
	def(TableSatTreatmentFactorLevel, etl.KindSatellite, seq(TableHubTreatment), fk("factorLevel", TableHubFactor)),
	def(TableSatGroupName, etl.KindSatellite, seq(TableHubGroup), text("name")),
	def(TableSatSessionName, etl.KindSatellite, seq(TableHubSession), text("name")),
	def(TableSatObservationName, etl.KindSatellite, seq(TableHubObservation), text("name")),
	def(TableSatObservationValue, etl.KindSatellite, seq(TableHubObservation),
		etl.Field{Name: "value", Type: etl.TypeMatrix}, etl.Field{Name: "timestamps", Type: etl.TypeTimestamps}),
}

var catalogIndex = func() map[string]int {
	m := make(map[string]int, len(catalog))
	for i, d := range catalog {
		m[d.Name] = i
	}
	return m
}()

// Catalog returns every table definition, hubs first, then links, then
// satellites.
func Catalog() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the definition of a table.
func Lookup(name string) (Definition, bool) {
	i, ok := catalogIndex[name]
	if !ok {
		return Definition{}, false
	}
	return catalog[i], true
}

// Table returns an empty etl table for the definition.
func (d Definition) Table() etl.Table {
	return etl.Table{Name: d.Name, Kind: d.Kind, Schema: d.Schema}
}

// Tables returns an empty etl table per catalog entry, for creating the
// warehouse schema.
func Tables() []etl.Table {
	out := make([]etl.Table, len(catalog))
	for i, d := range catalog {
		out[i] = d.Table()
	}
	return out
}
