package health

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MetricType names one variant of Metric. Values double as the catalog key
// and the envelope "type" field.
type MetricType string

const (
	HeartRate       MetricType = "heart_rate"
	BloodPressure   MetricType = "blood_pressure"
	Sleep           MetricType = "sleep"
	Activity        MetricType = "activity"
	Workout         MetricType = "workout"
	Respiratory     MetricType = "respiratory"
	BodyMeasurement MetricType = "body_measurement"
	Temperature     MetricType = "temperature"
	Nutrition       MetricType = "nutrition"
	BloodGlucose    MetricType = "blood_glucose"
	Metabolic       MetricType = "metabolic"
	Symptom         MetricType = "symptom"
	Menstrual       MetricType = "menstrual"
	Fertility       MetricType = "fertility"
	Environmental   MetricType = "environmental"
	AudioExposure   MetricType = "audio_exposure"
	SafetyEvent     MetricType = "safety_event"
	Mindfulness     MetricType = "mindfulness"
	MentalHealth    MetricType = "mental_health"
	Hygiene         MetricType = "hygiene"
	Mobility        MetricType = "mobility"
)

// AllTypes lists every metric type in catalog order.
var AllTypes = []MetricType{
	HeartRate, BloodPressure, Sleep, Activity, Workout, Respiratory,
	BodyMeasurement, Temperature, Nutrition, BloodGlucose, Metabolic,
	Symptom, Menstrual, Fertility, Environmental, AudioExposure,
	SafetyEvent, Mindfulness, MentalHealth, Hygiene, Mobility,
}

func (t MetricType) String() string { return string(t) }

// Valid reports whether t is one of AllTypes.
func (t MetricType) Valid() bool {
	_, ok := catalog.byType[t]
	return ok
}

// Unspecified is stored and keyed in place of a missing discriminant, so two
// metrics that both omit it still collide.
const Unspecified = "unspecified"

// Metric is the closed set of health metric variants. The unexported method
// keeps implementations inside this package.
type Metric interface {
	Type() MetricType
	Owner() uuid.UUID
	Timestamp() time.Time
	DedupKey() DedupKey
	// Values returns bind parameters in catalog column order.
	Values() []any

	sealed()
}

// DedupKey identifies logically identical metrics. It is comparable and used
// directly as a map key.
type DedupKey struct {
	Type         MetricType
	UserID       uuid.UUID
	At           int64 // unix microseconds
	Until        int64 // unix microseconds, sleep only
	Discriminant string
}

func timeKey(t MetricType, user uuid.UUID, at time.Time) DedupKey {
	return DedupKey{Type: t, UserID: user, At: at.UnixMicro()}
}

func discKey(t MetricType, user uuid.UUID, at time.Time, d *string) DedupKey {
	k := timeKey(t, user, at)
	k.Discriminant = disc(d)
	return k
}

// disc normalizes an optional discriminant. Blank counts as missing.
func disc(d *string) string {
	if d == nil {
		return Unspecified
	}
	v := strings.TrimSpace(*d)
	if v == "" {
		return Unspecified
	}
	return v
}

// ts matches the storage precision (microseconds, UTC) so the in-batch key
// and the table constraint agree.
func ts(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
