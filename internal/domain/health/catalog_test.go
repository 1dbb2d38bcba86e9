package health

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zeroOf(t MetricType) Metric {
	switch t {
	case HeartRate:
		return HeartRateMetric{}
	case BloodPressure:
		return BloodPressureMetric{}
	case Sleep:
		return SleepMetric{}
	case Activity:
		return ActivityMetric{}
	case Workout:
		return WorkoutMetric{}
	case Respiratory:
		return RespiratoryMetric{}
	case BodyMeasurement:
		return BodyMeasurementMetric{}
	case Temperature:
		return TemperatureMetric{}
	case Nutrition:
		return NutritionMetric{}
	case BloodGlucose:
		return BloodGlucoseMetric{}
	case Metabolic:
		return MetabolicMetric{}
	case Symptom:
		return SymptomMetric{}
	case Menstrual:
		return MenstrualMetric{}
	case Fertility:
		return FertilityMetric{}
	case Environmental:
		return EnvironmentalMetric{}
	case AudioExposure:
		return AudioExposureMetric{}
	case SafetyEvent:
		return SafetyEventMetric{}
	case Mindfulness:
		return MindfulnessMetric{}
	case MentalHealth:
		return MentalHealthMetric{}
	case Hygiene:
		return HygieneMetric{}
	case Mobility:
		return MobilityMetric{}
	}
	return nil
}

func TestCatalogCoversEveryType(t *testing.T) {
	require.Len(t, Specs(), len(AllTypes))
	for _, mt := range AllTypes {
		spec, ok := Spec(mt)
		require.True(t, ok, mt)
		assert.True(t, mt.Valid())

		m := zeroOf(mt)
		require.NotNil(t, m, mt)
		assert.Equal(t, mt, m.Type())
		assert.Len(t, m.Values(), len(spec.Columns), "values/columns mismatch for %s", mt)
		assert.Equal(t, len(spec.Columns), ParamsPerRecord(mt))
		assert.Equal(t, "user_id", spec.Key[0])
	}
	assert.False(t, MetricType("steps").Valid())
	assert.Equal(t, 0, ParamsPerRecord("steps"))
}

func TestParamsPerRecord(t *testing.T) {
	assert.Equal(t, 10, ParamsPerRecord(HeartRate))
	assert.Equal(t, 6, ParamsPerRecord(BloodPressure))
	assert.Equal(t, 17, ParamsPerRecord(Activity))
	assert.Equal(t, 15, ParamsPerRecord(Nutrition))
}

func TestDiscriminantColumnsDefaultToSentinel(t *testing.T) {
	for _, mt := range []MetricType{BodyMeasurement, Temperature, BloodGlucose, Symptom, SafetyEvent, Mindfulness, Hygiene} {
		spec, _ := Spec(mt)
		require.Len(t, spec.Key, 3, mt)
		for _, c := range spec.Columns {
			if c.Name == spec.Key[2] {
				assert.Contains(t, c.SQL, "DEFAULT '"+Unspecified+"'")
			}
		}
	}
}

func TestUpdateColumnsExcludeKey(t *testing.T) {
	spec, _ := Spec(Sleep)
	upd := spec.UpdateColumns()
	assert.NotContains(t, upd, "user_id")
	assert.NotContains(t, upd, "sleep_start")
	assert.NotContains(t, upd, "sleep_end")
	assert.Len(t, upd, len(spec.Columns)-3)
}

func TestCreateTableSQL(t *testing.T) {
	spec, _ := Spec(BloodGlucose)
	ddl := spec.CreateTableSQL()
	assert.True(t, strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS blood_glucose_metrics ("))
	assert.Contains(t, ddl, "CONSTRAINT blood_glucose_metrics_dedup_key UNIQUE (user_id, recorded_at, glucose_source)")
}

func TestLoadCatalogRejectsBadKey(t *testing.T) {
	_, err := loadCatalog([]byte(`
types:
  - type: heart_rate
    table: hr
    key: [user_id, missing]
    columns:
      - {name: user_id, sql: UUID}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}
