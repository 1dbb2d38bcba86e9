package health

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Type MetricType      `json:"type"`
	Data json.RawMessage `json:"data"`
}

// EncodeBatch serializes metrics as a JSON array of {"type", "data"} objects.
func EncodeBatch(metrics []Metric) ([]byte, error) {
	out := make([]envelope, 0, len(metrics))
	for i, m := range metrics {
		data, err := json.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode metric %d (%s): %w", i, m.Type(), err)
		}
		out = append(out, envelope{Type: m.Type(), Data: data})
	}
	return json.Marshal(out)
}

// DecodeBatch is the inverse of EncodeBatch. An unknown type fails the whole
// batch.
func DecodeBatch(raw []byte) ([]Metric, error) {
	var envs []envelope
	if err := json.Unmarshal(raw, &envs); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	out := make([]Metric, 0, len(envs))
	for i, e := range envs {
		m, err := decodeOne(e)
		if err != nil {
			return nil, fmt.Errorf("decode metric %d: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func decodeOne(e envelope) (Metric, error) {
	switch e.Type {
	case HeartRate:
		return decodeAs[HeartRateMetric](e.Data)
	case BloodPressure:
		return decodeAs[BloodPressureMetric](e.Data)
	case Sleep:
		return decodeAs[SleepMetric](e.Data)
	case Activity:
		return decodeAs[ActivityMetric](e.Data)
	case Workout:
		return decodeAs[WorkoutMetric](e.Data)
	case Respiratory:
		return decodeAs[RespiratoryMetric](e.Data)
	case BodyMeasurement:
		return decodeAs[BodyMeasurementMetric](e.Data)
	case Temperature:
		return decodeAs[TemperatureMetric](e.Data)
	case Nutrition:
		return decodeAs[NutritionMetric](e.Data)
	case BloodGlucose:
		return decodeAs[BloodGlucoseMetric](e.Data)
	case Metabolic:
		return decodeAs[MetabolicMetric](e.Data)
	case Symptom:
		return decodeAs[SymptomMetric](e.Data)
	case Menstrual:
		return decodeAs[MenstrualMetric](e.Data)
	case Fertility:
		return decodeAs[FertilityMetric](e.Data)
	case Environmental:
		return decodeAs[EnvironmentalMetric](e.Data)
	case AudioExposure:
		return decodeAs[AudioExposureMetric](e.Data)
	case SafetyEvent:
		return decodeAs[SafetyEventMetric](e.Data)
	case Mindfulness:
		return decodeAs[MindfulnessMetric](e.Data)
	case MentalHealth:
		return decodeAs[MentalHealthMetric](e.Data)
	case Hygiene:
		return decodeAs[HygieneMetric](e.Data)
	case Mobility:
		return decodeAs[MobilityMetric](e.Data)
	default:
		return nil, fmt.Errorf("unknown metric type %q", e.Type)
	}
}

func decodeAs[T Metric](data json.RawMessage) (Metric, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Type(), err)
	}
	return m, nil
}
