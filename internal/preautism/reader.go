package preautism

import (
	"fmt"
	"io"
	"strings"

	"nirsvault/internal/header"
)

// Section layout of a .hdr file: the flat fields and array blocks read
// from each bracketed section, in file order.
type sectionLayout struct {
	Name   string
	Fields []string
	Arrays []string
}

// Header field names used outside the reader.
const (
	FieldFileName     = "FileName"
	FieldDate         = "Date"
	FieldTime         = "Time"
	FieldSamplingRate = "SamplingRate"
)

var layout = []sectionLayout{
	{Name: "GeneralInfo", Fields: []string{FieldFileName, FieldDate, FieldTime, "Device", "Source", "Mod", "APD", "NIRStar", "Subject"}},
	{Name: "ImagingParameters", Fields: []string{
		"Sources", "Detectors", "ShortDetectors", "ShortBundles", "ShortDetIndex", "Steps",
		"Wavelengths", "TrigIns", "TrigOuts", "AnIns", FieldSamplingRate, "Mod Amp", "Threshold",
	}},
	{Name: "Paradigm", Fields: []string{"StimulusType"}},
	{Name: "ExperimentNotes", Fields: []string{"Notes"}},
	{Name: "GainSettings", Arrays: []string{"Gains"}},
	{Name: "Markers", Arrays: []string{"Events"}},
	{Name: "DataStructure", Fields: []string{"S-D-Key"}, Arrays: []string{"S-D-Mask"}},
	{Name: "DarkNoise", Arrays: []string{"Wavelength1", "Wavelength2"}},
	{Name: "ChannelsDistance", Fields: []string{"ChanDis"}},
}

// Sections lists the section names read from a header, in order.
func Sections() []string {
	names := make([]string, len(layout))
	for i, l := range layout {
		names[i] = l.Name
	}
	return names
}

// ReadHeader parses a .hdr file into section → field → value.
//
// Flat fields are looked up within their section; a missing field or
// section reads as "". Array blocks are required: a missing array or one
// without its "#" terminator fails the whole file.
func ReadHeader(r io.Reader) (*header.Header, error) {
	s, err := header.NewScanner(r)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	h := header.New()
	for _, l := range layout {
		sec, ok := s.Section(l.Name)
		if !ok {
			sec = header.ScanString("")
		}
		fields := header.New()
		for _, name := range l.Fields {
			fields.Set(name, header.Scalar(cleanValue(sec.Field(name))))
		}
		for _, name := range l.Arrays {
			sec.Rewind()
			m, err := sec.ReadArray(name)
			if err != nil {
				return nil, fmt.Errorf("[%s] %s: %w", l.Name, name, err)
			}
			fields.Set(name, header.Matrix(m))
		}
		h.Set(l.Name, header.Mapping(fields))
	}
	return h, nil
}

var valueCleaner = strings.NewReplacer("\n", "", `"`, "", "=", "", "\t", ",")

// cleanValue drops quotes, "=" signs and line breaks, and turns tabs into
// commas.
func cleanValue(v string) string {
	return strings.TrimSpace(valueCleaner.Replace(v))
}
