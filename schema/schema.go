// Package schema is the feature contract shared by data preparation,
// training and serving: the ordered list of the 13 clinical attributes, the
// target derivation, and a fingerprint stored with every trained artifact.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/YuminosukeSato/heartml/pkg/errors"
)

// Kind describes how a feature is encoded in the source data.
type Kind string

const (
	// Continuous is a real valued measurement.
	Continuous Kind = "continuous"
	// Categorical is an integer code.
	Categorical Kind = "categorical"
)

// Field is one named feature column.
type Field struct {
	Name        string
	Kind        Kind
	Description string
}

// Schema is an ordered list of feature fields plus the raw target column.
type Schema struct {
	Fields []Field
	Target string
}

// Heart is the 13 feature schema of the heart disease dataset. Column order
// is the order of the raw CSV and the order the pipeline consumes.
var Heart = Schema{
	Fields: []Field{
		{"age", Continuous, "Age in years"},
		{"sex", Categorical, "0=female, 1=male"},
		{"cp", Categorical, "Chest pain type"},
		{"trestbps", Continuous, "Resting blood pressure (mm Hg)"},
		{"chol", Continuous, "Serum cholesterol (mg/dl)"},
		{"fbs", Categorical, "Fasting blood sugar > 120 mg/dl (0/1)"},
		{"restecg", Categorical, "Resting ECG result"},
		{"thalach", Continuous, "Maximum heart rate achieved"},
		{"exang", Categorical, "Exercise induced angina (0/1)"},
		{"oldpeak", Continuous, "ST depression induced by exercise"},
		{"slope", Categorical, "Slope of the peak exercise ST segment"},
		{"ca", Continuous, "Number of major vessels colored by fluoroscopy (0-3)"},
		{"thal", Categorical, "Thalassemia code"},
	},
	Target: "target",
}

// Len returns the number of features.
func (s Schema) Len() int {
	return len(s.Fields)
}

// RawWidth is the number of columns of a raw data row: features + target.
func (s Schema) RawWidth() int {
	return len(s.Fields) + 1
}

// Names returns the feature names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the column position of a feature.
func (s Schema) Index(name string) (int, bool) {
	for i, f := range s.Fields {
		if f.Name == name {
			return i, true
		}
	}
	return -1, false
}

// ColumnName returns the raw column name at position j, including the target.
func (s Schema) ColumnName(j int) string {
	if j == len(s.Fields) {
		return s.Target
	}
	if j >= 0 && j < len(s.Fields) {
		return s.Fields[j].Name
	}
	return fmt.Sprintf("column_%d", j)
}

// Fingerprint hashes the ordered name:kind pairs. Two schemas with the same
// fingerprint feed identical column layouts to the pipeline.
func (s Schema) Fingerprint() string {
	var b strings.Builder
	for _, f := range s.Fields {
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(string(f.Kind))
		b.WriteByte(';')
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(b.String()))
}

// CheckCompatible verifies that an artifact trained with featureNames and
// fingerprint can be fed vectors built from s.
func (s Schema) CheckCompatible(featureNames []string, fingerprint string) error {
	if len(featureNames) != s.Len() {
		return errors.NewDimensionError("schema.CheckCompatible", s.Len(), len(featureNames), 1)
	}
	for i, name := range featureNames {
		if name != s.Fields[i].Name {
			return errors.NewValueError("schema.CheckCompatible",
				fmt.Sprintf("feature %d is '%s' in the artifact but '%s' in the service schema", i, name, s.Fields[i].Name))
		}
	}
	if want := s.Fingerprint(); fingerprint != want {
		return errors.NewValueError("schema.CheckCompatible",
			fmt.Sprintf("schema fingerprint mismatch: artifact %s, service %s", fingerprint, want))
	}
	return nil
}

// DeriveLabel maps the raw multi-class severity code to the binary target.
func DeriveLabel(raw float64) float64 {
	if raw > 0 {
		return 1
	}
	return 0
}

// Vector converts a decoded JSON object into a feature vector in schema
// order. Every field must be present exactly once with a finite JSON number;
// unknown fields are rejected. Values may be float64 or json.Number.
func (s Schema) Vector(obj map[string]interface{}) ([]float64, error) {
	vec := make([]float64, len(s.Fields))
	for i, f := range s.Fields {
		raw, ok := obj[f.Name]
		if !ok {
			return nil, errors.NewValidationError(f.Name, "field required", nil)
		}
		v, err := toFloat(raw)
		if err != nil {
			return nil, errors.NewValidationError(f.Name, err.Error(), raw)
		}
		vec[i] = v
	}

	if len(obj) != len(s.Fields) {
		var unknown []string
		for k := range obj {
			if _, ok := s.Index(k); !ok {
				unknown = append(unknown, k)
			}
		}
		sort.Strings(unknown)
		if len(unknown) > 0 {
			return nil, errors.NewValidationError(unknown[0], "unknown field", nil)
		}
	}
	return vec, nil
}

// Map is the inverse of Vector, used for logging.
func (s Schema) Map(vec []float64) map[string]float64 {
	m := make(map[string]float64, len(s.Fields))
	for i, f := range s.Fields {
		if i < len(vec) {
			m[f.Name] = vec[i]
		}
	}
	return m
}

func toFloat(raw interface{}) (float64, error) {
	var v float64
	switch x := raw.(type) {
	case float64:
		v = x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("must be a number")
		}
		v = f
	case nil:
		return 0, fmt.Errorf("must not be null")
	default:
		return 0, fmt.Errorf("must be a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("must be a finite number")
	}
	return v, nil
}
