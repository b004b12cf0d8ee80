package vm

import (
	"fmt"
	"io"
	"strings"

	"nirsvault/internal/apperr"
	"nirsvault/internal/header"
	"nirsvault/internal/table"
)

// Header field names, in the order they are stored.
const (
	FieldID             = "ID"
	FieldName           = "Name"
	FieldAge            = "Age"
	FieldSex            = "Sex"
	FieldAnalyzeMode    = "AnalyzeMode"
	FieldPreTime        = "Pre Time[s]"
	FieldPostTime       = "Post Time[s]"
	FieldRecoveryTime   = "Recovery Time[s]"
	FieldBaseTime       = "Base Time[s]"
	FieldDate           = "Date"
	FieldMode           = "Mode"
	FieldWave           = "Wave[nm]"
	FieldSamplingPeriod = "Sampling Period[s]"
	FieldStimType       = "StimType"
	FieldStimTime       = "Stim Time[s]"
	FieldRepeatCount    = "Repeat Count"
)

// dataMarker precedes the sample table.
const dataMarker = "Data"

// Fields lists the header fields read from a VM file.
var Fields = []string{
	FieldID, FieldName, FieldAge, FieldSex, FieldAnalyzeMode,
	FieldPreTime, FieldPostTime, FieldRecoveryTime, FieldBaseTime,
	FieldDate, FieldMode, FieldWave, FieldSamplingPeriod, FieldStimType,
	FieldStimTime, FieldRepeatCount,
}

// ReadFile parses a VM export: "field,value" header lines, then a line
// holding the "Data" marker, then a comma-delimited table with a header row.
//
// Missing header fields read as "". A file without the marker, or with an
// unreadable table, is an error.
func ReadFile(r io.Reader) (*header.Header, *table.Table, error) {
	s, err := header.NewScanner(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read vm file: %w", err)
	}
	h := ReadHeader(s)

	s.Rewind()
	if !s.Seek(dataMarker) {
		return nil, nil, apperr.MalformedTable(`no "Data" marker`, nil)
	}
	data, err := table.ReadLines(s.Rest())
	if err != nil {
		return nil, nil, err
	}
	return h, data, nil
}

// ReadHeader extracts the VM header fields from s. The cursor is left at
// the start of the region.
func ReadHeader(s *header.Scanner) *header.Header {
	h := header.New()
	for _, field := range Fields {
		s.Rewind()
		switch field {
		case FieldWave:
			h.Set(field, header.List(strings.Split(cleanValue(s.Field(field)), ",")))
		case FieldStimTime:
			h.Set(field, header.Mapping(readStimTime(s)))
		default:
			h.Set(field, header.Scalar(cleanValue(s.Field(field))))
		}
	}
	s.Rewind()
	return h
}

// cleanValue drops line breaks and the separator commas around a value.
func cleanValue(v string) string {
	v = strings.ReplaceAll(v, "\n", "")
	return strings.Trim(v, ",")
}

// readStimTime decodes the line after the "Stim Time[s]" marker as
// alternating key,value tokens. A trailing unpaired token is dropped.
func readStimTime(s *header.Scanner) *header.Header {
	m := header.New()
	if !s.Seek(FieldStimTime) {
		return m
	}
	line, ok := s.NextLine()
	if !ok {
		return m
	}
	tokens := strings.Split(strings.ReplaceAll(line, ",,", ""), ",")
	for i := 0; i+1 < len(tokens); i += 2 {
		m.Set(tokens[i], header.Scalar(tokens[i+1]))
	}
	return m
}
