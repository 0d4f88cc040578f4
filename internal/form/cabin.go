// internal/form/cabin.go
package form

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/flightscout/api/schemas"
)

// CabinMapper translates requested cabin classes into the labels shown by the
// booking form's cabin dropdown.
type CabinMapper struct {
	labels map[schemas.CabinClass]string
	logger *zap.Logger
}

// NewCabinMapper builds a mapper from the configured class-to-label table.
func NewCabinMapper(table map[string]string, logger *zap.Logger) *CabinMapper {
	labels := make(map[schemas.CabinClass]string, len(table))
	for k, v := range table {
		if c, ok := schemas.ParseCabinClass(k); ok && v != "" {
			labels[c] = v
		}
	}
	return &CabinMapper{labels: labels, logger: logger.Named("cabin")}
}

// Label returns the dropdown label for class. Unknown or unmapped classes log
// a warning and report false so the form keeps its default selection.
func (m *CabinMapper) Label(class schemas.CabinClass) (string, bool) {
	c, known := schemas.ParseCabinClass(string(class))
	if !known {
		m.logger.Warn("Unknown cabin class; leaving the form default.", zap.String("cabin", string(class)))
		return "", false
	}
	label, ok := m.labels[c]
	if !ok {
		m.logger.Warn("No label configured for cabin class; leaving the form default.", zap.String("cabin", string(c)))
		return "", false
	}
	return label, true
}
