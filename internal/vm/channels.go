package vm

import (
	"fmt"
	"strings"
)

// Scheme is a channel naming scheme for the sample table.
type Scheme string

const (
	// SchemePlain is hemoglobin data: CH1..CH24.
	SchemePlain Scheme = "plain"
	// SchemeMES is raw dual-wavelength intensity: CHn(wavelength) pairs.
	SchemeMES Scheme = "MES"
)

// SchemeFor picks the scheme from a file name.
func SchemeFor(fileName string) Scheme {
	if strings.Contains(fileName, "MES") {
		return SchemeMES
	}
	return SchemePlain
}

var plainChannels = func() []string {
	cols := make([]string, 24)
	for i := range cols {
		cols[i] = fmt.Sprintf("CH%d", i+1)
	}
	return cols
}()

// mesWavelengths are the two calibrated wavelengths of each probe channel.
var mesWavelengths = [24][2]string{
	{"698.1", "828.7"}, {"697.1", "828.2"}, {"698.1", "828.7"}, {"698.3", "828.4"},
	{"697.1", "828.2"}, {"698.3", "828.4"}, {"698.3", "828.4"}, {"697.5", "828.7"},
	{"698.3", "828.4"}, {"697.9", "829.0"}, {"697.5", "828.7"}, {"697.9", "829.0"},
	{"698.7", "828.2"}, {"698.2", "827.5"}, {"698.7", "828.2"}, {"697.7", "828.6"},
	{"698.2", "827.5"}, {"697.7", "828.6"}, {"697.7", "828.6"}, {"698.4", "828.9"},
	{"697.7", "828.6"}, {"697.1", "828.8"}, {"698.4", "828.9"}, {"697.1", "828.8"},
}

var mesChannels = func() []string {
	cols := make([]string, 0, 2*len(mesWavelengths))
	for i, w := range mesWavelengths {
		cols = append(cols,
			fmt.Sprintf("CH%d(%s)", i+1, w[0]),
			fmt.Sprintf("CH%d(%s)", i+1, w[1]))
	}
	return cols
}()

// Columns returns the table columns the scheme selects, in order.
func (s Scheme) Columns() []string {
	src := plainChannels
	if s == SchemeMES {
		src = mesChannels
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
