package weather

import (
	"errors"
	"fmt"
)

// ErrUnknownLabel is returned by strict lookups for labels outside the fixed set.
var ErrUnknownLabel = errors.New("unknown weather label")

// LabelEncoding is the fixed mapping between conditions and class indices.
// It has no exported fields and no mutating methods.
type LabelEncoding struct {
	labels []Condition
	index  map[Condition]int
}

var defaultLabels = newLabelEncoding(
	ConditionClear,
	ConditionCloudy,
	ConditionRain,
	ConditionStorm,
	ConditionSnow,
)

// DefaultLabels returns the process-wide encoding:
// clear=0, cloudy=1, rain=2, storm=3, snow=4.
func DefaultLabels() *LabelEncoding {
	return defaultLabels
}

func newLabelEncoding(labels ...Condition) *LabelEncoding {
	e := &LabelEncoding{
		labels: append([]Condition(nil), labels...),
		index:  make(map[Condition]int, len(labels)),
	}
	for i, l := range labels {
		e.index[l] = i
	}
	return e
}

// Len returns the number of classes.
func (e *LabelEncoding) Len() int {
	return len(e.labels)
}

// Encode maps c to its class index. Unknown labels map to 0, which is also
// the index of "clear"; use Lookup to tell the two apart.
func (e *LabelEncoding) Encode(c Condition) int {
	if i, ok := e.index[c]; ok {
		return i
	}
	return 0
}

// Lookup is the strict form of Encode.
func (e *LabelEncoding) Lookup(c Condition) (int, error) {
	i, ok := e.index[c]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, c)
	}
	return i, nil
}

// Decode maps a class index back to its condition.
func (e *LabelEncoding) Decode(i int) (Condition, error) {
	if i < 0 || i >= len(e.labels) {
		return ConditionUnknown, fmt.Errorf("%w: index %d", ErrUnknownLabel, i)
	}
	return e.labels[i], nil
}

// Labels returns the conditions in index order.
func (e *LabelEncoding) Labels() []Condition {
	return append([]Condition(nil), e.labels...)
}
