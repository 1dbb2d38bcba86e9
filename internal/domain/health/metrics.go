package health

import (
	"time"

	"github.com/google/uuid"
)

type HeartRateMetric struct {
	UserID                     uuid.UUID `json:"user_id"`
	RecordedAt                 time.Time `json:"recorded_at"`
	HeartRate                  *int      `json:"heart_rate,omitempty"`
	RestingHeartRate           *int      `json:"resting_heart_rate,omitempty"`
	HeartRateVariability       *float64  `json:"heart_rate_variability,omitempty"`
	WalkingHeartRateAverage    *int      `json:"walking_heart_rate_average,omitempty"`
	HeartRateRecoveryOneMinute *int      `json:"heart_rate_recovery_one_minute,omitempty"`
	AtrialFibrillationBurden   *float64  `json:"atrial_fibrillation_burden_percentage,omitempty"`
	VO2Max                     *float64  `json:"vo2_max_ml_kg_min,omitempty"`
	SourceDevice               *string   `json:"source_device,omitempty"`
}

func (m HeartRateMetric) Type() MetricType     { return HeartRate }
func (m HeartRateMetric) Owner() uuid.UUID     { return m.UserID }
func (m HeartRateMetric) Timestamp() time.Time { return m.RecordedAt }
func (m HeartRateMetric) DedupKey() DedupKey   { return timeKey(HeartRate, m.UserID, m.RecordedAt) }
func (m HeartRateMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.HeartRate, m.RestingHeartRate, m.HeartRateVariability,
		m.WalkingHeartRateAverage, m.HeartRateRecoveryOneMinute, m.AtrialFibrillationBurden, m.VO2Max, m.SourceDevice}
}
func (HeartRateMetric) sealed() {}

type BloodPressureMetric struct {
	UserID       uuid.UUID `json:"user_id"`
	RecordedAt   time.Time `json:"recorded_at"`
	Systolic     int       `json:"systolic"`
	Diastolic    int       `json:"diastolic"`
	Pulse        *int      `json:"pulse,omitempty"`
	SourceDevice *string   `json:"source_device,omitempty"`
}

func (m BloodPressureMetric) Type() MetricType     { return BloodPressure }
func (m BloodPressureMetric) Owner() uuid.UUID     { return m.UserID }
func (m BloodPressureMetric) Timestamp() time.Time { return m.RecordedAt }
func (m BloodPressureMetric) DedupKey() DedupKey {
	return timeKey(BloodPressure, m.UserID, m.RecordedAt)
}
func (m BloodPressureMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.Systolic, m.Diastolic, m.Pulse, m.SourceDevice}
}
func (BloodPressureMetric) sealed() {}

type SleepMetric struct {
	UserID            uuid.UUID `json:"user_id"`
	SleepStart        time.Time `json:"sleep_start"`
	SleepEnd          time.Time `json:"sleep_end"`
	DurationMinutes   *int      `json:"duration_minutes,omitempty"`
	DeepSleepMinutes  *int      `json:"deep_sleep_minutes,omitempty"`
	RemSleepMinutes   *int      `json:"rem_sleep_minutes,omitempty"`
	LightSleepMinutes *int      `json:"light_sleep_minutes,omitempty"`
	AwakeMinutes      *int      `json:"awake_minutes,omitempty"`
	Efficiency        *float64  `json:"efficiency,omitempty"`
	SourceDevice      *string   `json:"source_device,omitempty"`
}

func (m SleepMetric) Type() MetricType     { return Sleep }
func (m SleepMetric) Owner() uuid.UUID     { return m.UserID }
func (m SleepMetric) Timestamp() time.Time { return m.SleepStart }
func (m SleepMetric) DedupKey() DedupKey {
	k := timeKey(Sleep, m.UserID, m.SleepStart)
	k.Until = m.SleepEnd.UnixMicro()
	return k
}
func (m SleepMetric) Values() []any {
	return []any{m.UserID, ts(m.SleepStart), ts(m.SleepEnd), m.DurationMinutes, m.DeepSleepMinutes,
		m.RemSleepMinutes, m.LightSleepMinutes, m.AwakeMinutes, m.Efficiency, m.SourceDevice}
}
func (SleepMetric) sealed() {}

type ActivityMetric struct {
	UserID                   uuid.UUID `json:"user_id"`
	RecordedAt               time.Time `json:"recorded_at"`
	StepCount                *int      `json:"step_count,omitempty"`
	DistanceMeters           *float64  `json:"distance_meters,omitempty"`
	ActiveEnergyBurnedKcal   *float64  `json:"active_energy_burned_kcal,omitempty"`
	BasalEnergyBurnedKcal    *float64  `json:"basal_energy_burned_kcal,omitempty"`
	FlightsClimbed           *int      `json:"flights_climbed,omitempty"`
	DistanceCyclingMeters    *float64  `json:"distance_cycling_meters,omitempty"`
	DistanceSwimmingMeters   *float64  `json:"distance_swimming_meters,omitempty"`
	DistanceWheelchairMeters *float64  `json:"distance_wheelchair_meters,omitempty"`
	PushCount                *int      `json:"push_count,omitempty"`
	SwimmingStrokeCount      *int      `json:"swimming_stroke_count,omitempty"`
	ExerciseTimeMinutes      *int      `json:"exercise_time_minutes,omitempty"`
	StandTimeMinutes         *int      `json:"stand_time_minutes,omitempty"`
	MoveTimeMinutes          *int      `json:"move_time_minutes,omitempty"`
	StandHourAchieved        *bool     `json:"stand_hour_achieved,omitempty"`
	SourceDevice             *string   `json:"source_device,omitempty"`
}

func (m ActivityMetric) Type() MetricType     { return Activity }
func (m ActivityMetric) Owner() uuid.UUID     { return m.UserID }
func (m ActivityMetric) Timestamp() time.Time { return m.RecordedAt }
func (m ActivityMetric) DedupKey() DedupKey   { return timeKey(Activity, m.UserID, m.RecordedAt) }
func (m ActivityMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.StepCount, m.DistanceMeters, m.ActiveEnergyBurnedKcal,
		m.BasalEnergyBurnedKcal, m.FlightsClimbed, m.DistanceCyclingMeters, m.DistanceSwimmingMeters,
		m.DistanceWheelchairMeters, m.PushCount, m.SwimmingStrokeCount, m.ExerciseTimeMinutes,
		m.StandTimeMinutes, m.MoveTimeMinutes, m.StandHourAchieved, m.SourceDevice}
}
func (ActivityMetric) sealed() {}

type WorkoutMetric struct {
	UserID          uuid.UUID `json:"user_id"`
	WorkoutType     string    `json:"workout_type"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	TotalEnergyKcal *float64  `json:"total_energy_kcal,omitempty"`
	DistanceMeters  *float64  `json:"distance_meters,omitempty"`
	AvgHeartRate    *int      `json:"avg_heart_rate,omitempty"`
	MaxHeartRate    *int      `json:"max_heart_rate,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m WorkoutMetric) Type() MetricType     { return Workout }
func (m WorkoutMetric) Owner() uuid.UUID     { return m.UserID }
func (m WorkoutMetric) Timestamp() time.Time { return m.StartedAt }
func (m WorkoutMetric) DedupKey() DedupKey   { return timeKey(Workout, m.UserID, m.StartedAt) }
func (m WorkoutMetric) Values() []any {
	return []any{m.UserID, m.WorkoutType, ts(m.StartedAt), ts(m.EndedAt), m.TotalEnergyKcal,
		m.DistanceMeters, m.AvgHeartRate, m.MaxHeartRate, m.SourceDevice}
}
func (WorkoutMetric) sealed() {}

type RespiratoryMetric struct {
	UserID                 uuid.UUID `json:"user_id"`
	RecordedAt             time.Time `json:"recorded_at"`
	RespiratoryRate        *float64  `json:"respiratory_rate,omitempty"`
	OxygenSaturation       *float64  `json:"oxygen_saturation,omitempty"`
	ForcedVitalCapacity    *float64  `json:"forced_vital_capacity,omitempty"`
	ForcedExpiratoryVolume *float64  `json:"forced_expiratory_volume_1,omitempty"`
	PeakExpiratoryFlowRate *float64  `json:"peak_expiratory_flow_rate,omitempty"`
	InhalerUsage           *int      `json:"inhaler_usage,omitempty"`
	SourceDevice           *string   `json:"source_device,omitempty"`
}

func (m RespiratoryMetric) Type() MetricType     { return Respiratory }
func (m RespiratoryMetric) Owner() uuid.UUID     { return m.UserID }
func (m RespiratoryMetric) Timestamp() time.Time { return m.RecordedAt }
func (m RespiratoryMetric) DedupKey() DedupKey {
	return timeKey(Respiratory, m.UserID, m.RecordedAt)
}
func (m RespiratoryMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.RespiratoryRate, m.OxygenSaturation, m.ForcedVitalCapacity,
		m.ForcedExpiratoryVolume, m.PeakExpiratoryFlowRate, m.InhalerUsage, m.SourceDevice}
}
func (RespiratoryMetric) sealed() {}

type BodyMeasurementMetric struct {
	UserID               uuid.UUID `json:"user_id"`
	RecordedAt           time.Time `json:"recorded_at"`
	MeasurementSource    *string   `json:"measurement_source,omitempty"`
	BodyWeightKg         *float64  `json:"body_weight_kg,omitempty"`
	BodyMassIndex        *float64  `json:"body_mass_index,omitempty"`
	BodyFatPercentage    *float64  `json:"body_fat_percentage,omitempty"`
	LeanBodyMassKg       *float64  `json:"lean_body_mass_kg,omitempty"`
	HeightCm             *float64  `json:"height_cm,omitempty"`
	WaistCircumferenceCm *float64  `json:"waist_circumference_cm,omitempty"`
	SourceDevice         *string   `json:"source_device,omitempty"`
}

func (m BodyMeasurementMetric) Type() MetricType     { return BodyMeasurement }
func (m BodyMeasurementMetric) Owner() uuid.UUID     { return m.UserID }
func (m BodyMeasurementMetric) Timestamp() time.Time { return m.RecordedAt }
func (m BodyMeasurementMetric) DedupKey() DedupKey {
	return discKey(BodyMeasurement, m.UserID, m.RecordedAt, m.MeasurementSource)
}
func (m BodyMeasurementMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), disc(m.MeasurementSource), m.BodyWeightKg, m.BodyMassIndex,
		m.BodyFatPercentage, m.LeanBodyMassKg, m.HeightCm, m.WaistCircumferenceCm, m.SourceDevice}
}
func (BodyMeasurementMetric) sealed() {}

type TemperatureMetric struct {
	UserID                   uuid.UUID `json:"user_id"`
	RecordedAt               time.Time `json:"recorded_at"`
	TemperatureSource        *string   `json:"temperature_source,omitempty"`
	BodyTemperature          *float64  `json:"body_temperature,omitempty"`
	BasalBodyTemperature     *float64  `json:"basal_body_temperature,omitempty"`
	SleepingWristTemperature *float64  `json:"sleeping_wrist_temperature,omitempty"`
	WaterTemperature         *float64  `json:"water_temperature,omitempty"`
	SourceDevice             *string   `json:"source_device,omitempty"`
}

func (m TemperatureMetric) Type() MetricType     { return Temperature }
func (m TemperatureMetric) Owner() uuid.UUID     { return m.UserID }
func (m TemperatureMetric) Timestamp() time.Time { return m.RecordedAt }
func (m TemperatureMetric) DedupKey() DedupKey {
	return discKey(Temperature, m.UserID, m.RecordedAt, m.TemperatureSource)
}
func (m TemperatureMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), disc(m.TemperatureSource), m.BodyTemperature,
		m.BasalBodyTemperature, m.SleepingWristTemperature, m.WaterTemperature, m.SourceDevice}
}
func (TemperatureMetric) sealed() {}

type NutritionMetric struct {
	UserID            uuid.UUID `json:"user_id"`
	RecordedAt        time.Time `json:"recorded_at"`
	MealType          *string   `json:"meal_type,omitempty"`
	DietaryEnergyKcal *float64  `json:"dietary_energy_kcal,omitempty"`
	DietaryWaterMl    *float64  `json:"dietary_water_ml,omitempty"`
	ProteinG          *float64  `json:"protein_g,omitempty"`
	CarbohydratesG    *float64  `json:"carbohydrates_g,omitempty"`
	FatTotalG         *float64  `json:"fat_total_g,omitempty"`
	FatSaturatedG     *float64  `json:"fat_saturated_g,omitempty"`
	FiberG            *float64  `json:"fiber_g,omitempty"`
	SugarG            *float64  `json:"sugar_g,omitempty"`
	SodiumMg          *float64  `json:"sodium_mg,omitempty"`
	CaffeineMg        *float64  `json:"caffeine_mg,omitempty"`
	CholesterolMg     *float64  `json:"cholesterol_mg,omitempty"`
	SourceDevice      *string   `json:"source_device,omitempty"`
}

func (m NutritionMetric) Type() MetricType     { return Nutrition }
func (m NutritionMetric) Owner() uuid.UUID     { return m.UserID }
func (m NutritionMetric) Timestamp() time.Time { return m.RecordedAt }
func (m NutritionMetric) DedupKey() DedupKey   { return timeKey(Nutrition, m.UserID, m.RecordedAt) }
func (m NutritionMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.MealType, m.DietaryEnergyKcal, m.DietaryWaterMl,
		m.ProteinG, m.CarbohydratesG, m.FatTotalG, m.FatSaturatedG, m.FiberG, m.SugarG, m.SodiumMg,
		m.CaffeineMg, m.CholesterolMg, m.SourceDevice}
}
func (NutritionMetric) sealed() {}

type BloodGlucoseMetric struct {
	UserID               uuid.UUID `json:"user_id"`
	RecordedAt           time.Time `json:"recorded_at"`
	GlucoseSource        *string   `json:"glucose_source,omitempty"`
	BloodGlucoseMgDl     float64   `json:"blood_glucose_mg_dl"`
	MeasurementContext   *string   `json:"measurement_context,omitempty"`
	MedicationTaken      *bool     `json:"medication_taken,omitempty"`
	InsulinDeliveryUnits *float64  `json:"insulin_delivery_units,omitempty"`
	SourceDevice         *string   `json:"source_device,omitempty"`
}

func (m BloodGlucoseMetric) Type() MetricType     { return BloodGlucose }
func (m BloodGlucoseMetric) Owner() uuid.UUID     { return m.UserID }
func (m BloodGlucoseMetric) Timestamp() time.Time { return m.RecordedAt }
func (m BloodGlucoseMetric) DedupKey() DedupKey {
	return discKey(BloodGlucose, m.UserID, m.RecordedAt, m.GlucoseSource)
}
func (m BloodGlucoseMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), disc(m.GlucoseSource), m.BloodGlucoseMgDl,
		m.MeasurementContext, m.MedicationTaken, m.InsulinDeliveryUnits, m.SourceDevice}
}
func (BloodGlucoseMetric) sealed() {}

type MetabolicMetric struct {
	UserID               uuid.UUID `json:"user_id"`
	RecordedAt           time.Time `json:"recorded_at"`
	BloodAlcoholContent  *float64  `json:"blood_alcohol_content,omitempty"`
	InsulinDeliveryUnits *float64  `json:"insulin_delivery_units,omitempty"`
	DeliveryMethod       *string   `json:"delivery_method,omitempty"`
	SourceDevice         *string   `json:"source_device,omitempty"`
}

func (m MetabolicMetric) Type() MetricType     { return Metabolic }
func (m MetabolicMetric) Owner() uuid.UUID     { return m.UserID }
func (m MetabolicMetric) Timestamp() time.Time { return m.RecordedAt }
func (m MetabolicMetric) DedupKey() DedupKey   { return timeKey(Metabolic, m.UserID, m.RecordedAt) }
func (m MetabolicMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.BloodAlcoholContent, m.InsulinDeliveryUnits,
		m.DeliveryMethod, m.SourceDevice}
}
func (MetabolicMetric) sealed() {}

type SymptomMetric struct {
	UserID          uuid.UUID `json:"user_id"`
	RecordedAt      time.Time `json:"recorded_at"`
	SymptomType     *string   `json:"symptom_type,omitempty"`
	Severity        *string   `json:"severity,omitempty"`
	DurationMinutes *int      `json:"duration_minutes,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m SymptomMetric) Type() MetricType     { return Symptom }
func (m SymptomMetric) Owner() uuid.UUID     { return m.UserID }
func (m SymptomMetric) Timestamp() time.Time { return m.RecordedAt }
func (m SymptomMetric) DedupKey() DedupKey {
	return discKey(Symptom, m.UserID, m.RecordedAt, m.SymptomType)
}
func (m SymptomMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), disc(m.SymptomType), m.Severity, m.DurationMinutes,
		m.Notes, m.SourceDevice}
}
func (SymptomMetric) sealed() {}

type MenstrualMetric struct {
	UserID         uuid.UUID `json:"user_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	MenstrualFlow  *string   `json:"menstrual_flow,omitempty"`
	Spotting       *bool     `json:"spotting,omitempty"`
	CycleDay       *int      `json:"cycle_day,omitempty"`
	CrampsSeverity *int      `json:"cramps_severity,omitempty"`
	MoodRating     *int      `json:"mood_rating,omitempty"`
	SourceDevice   *string   `json:"source_device,omitempty"`
}

func (m MenstrualMetric) Type() MetricType     { return Menstrual }
func (m MenstrualMetric) Owner() uuid.UUID     { return m.UserID }
func (m MenstrualMetric) Timestamp() time.Time { return m.RecordedAt }
func (m MenstrualMetric) DedupKey() DedupKey   { return timeKey(Menstrual, m.UserID, m.RecordedAt) }
func (m MenstrualMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.MenstrualFlow, m.Spotting, m.CycleDay,
		m.CrampsSeverity, m.MoodRating, m.SourceDevice}
}
func (MenstrualMetric) sealed() {}

type FertilityMetric struct {
	UserID               uuid.UUID `json:"user_id"`
	RecordedAt           time.Time `json:"recorded_at"`
	CervicalMucusQuality *string   `json:"cervical_mucus_quality,omitempty"`
	OvulationTestResult  *string   `json:"ovulation_test_result,omitempty"`
	SexualActivity       *bool     `json:"sexual_activity,omitempty"`
	PregnancyTestResult  *string   `json:"pregnancy_test_result,omitempty"`
	BasalBodyTemperature *float64  `json:"basal_body_temperature,omitempty"`
	TemperatureContext   *string   `json:"temperature_context,omitempty"`
	LHLevel              *float64  `json:"lh_level,omitempty"`
	SourceDevice         *string   `json:"source_device,omitempty"`
}

func (m FertilityMetric) Type() MetricType     { return Fertility }
func (m FertilityMetric) Owner() uuid.UUID     { return m.UserID }
func (m FertilityMetric) Timestamp() time.Time { return m.RecordedAt }
func (m FertilityMetric) DedupKey() DedupKey   { return timeKey(Fertility, m.UserID, m.RecordedAt) }
func (m FertilityMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.CervicalMucusQuality, m.OvulationTestResult,
		m.SexualActivity, m.PregnancyTestResult, m.BasalBodyTemperature, m.TemperatureContext,
		m.LHLevel, m.SourceDevice}
}
func (FertilityMetric) sealed() {}

type EnvironmentalMetric struct {
	UserID                    uuid.UUID `json:"user_id"`
	RecordedAt                time.Time `json:"recorded_at"`
	UVIndex                   *float64  `json:"uv_index,omitempty"`
	UVExposureMinutes         *int      `json:"uv_exposure_minutes,omitempty"`
	AmbientTemperatureCelsius *float64  `json:"ambient_temperature_celsius,omitempty"`
	HumidityPercent           *float64  `json:"humidity_percent,omitempty"`
	AirPressureHpa            *float64  `json:"air_pressure_hpa,omitempty"`
	AltitudeMeters            *float64  `json:"altitude_meters,omitempty"`
	TimeInDaylightMinutes     *int      `json:"time_in_daylight_minutes,omitempty"`
	SourceDevice              *string   `json:"source_device,omitempty"`
}

func (m EnvironmentalMetric) Type() MetricType     { return Environmental }
func (m EnvironmentalMetric) Owner() uuid.UUID     { return m.UserID }
func (m EnvironmentalMetric) Timestamp() time.Time { return m.RecordedAt }
func (m EnvironmentalMetric) DedupKey() DedupKey {
	return timeKey(Environmental, m.UserID, m.RecordedAt)
}
func (m EnvironmentalMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.UVIndex, m.UVExposureMinutes, m.AmbientTemperatureCelsius,
		m.HumidityPercent, m.AirPressureHpa, m.AltitudeMeters, m.TimeInDaylightMinutes, m.SourceDevice}
}
func (EnvironmentalMetric) sealed() {}

type AudioExposureMetric struct {
	UserID                       uuid.UUID `json:"user_id"`
	RecordedAt                   time.Time `json:"recorded_at"`
	EnvironmentalAudioExposureDB *float64  `json:"environmental_audio_exposure_db,omitempty"`
	HeadphoneAudioExposureDB     *float64  `json:"headphone_audio_exposure_db,omitempty"`
	ExposureDurationMinutes      *int      `json:"exposure_duration_minutes,omitempty"`
	AudioExposureEvent           *bool     `json:"audio_exposure_event,omitempty"`
	SourceDevice                 *string   `json:"source_device,omitempty"`
}

func (m AudioExposureMetric) Type() MetricType     { return AudioExposure }
func (m AudioExposureMetric) Owner() uuid.UUID     { return m.UserID }
func (m AudioExposureMetric) Timestamp() time.Time { return m.RecordedAt }
func (m AudioExposureMetric) DedupKey() DedupKey {
	return timeKey(AudioExposure, m.UserID, m.RecordedAt)
}
func (m AudioExposureMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.EnvironmentalAudioExposureDB, m.HeadphoneAudioExposureDB,
		m.ExposureDurationMinutes, m.AudioExposureEvent, m.SourceDevice}
}
func (AudioExposureMetric) sealed() {}

type SafetyEventMetric struct {
	UserID                    uuid.UUID `json:"user_id"`
	RecordedAt                time.Time `json:"recorded_at"`
	EventType                 *string   `json:"event_type,omitempty"`
	SeverityLevel             *int      `json:"severity_level,omitempty"`
	LocationLatitude          *float64  `json:"location_latitude,omitempty"`
	LocationLongitude         *float64  `json:"location_longitude,omitempty"`
	EmergencyContactsNotified *bool     `json:"emergency_contacts_notified,omitempty"`
	SourceDevice              *string   `json:"source_device,omitempty"`
}

func (m SafetyEventMetric) Type() MetricType     { return SafetyEvent }
func (m SafetyEventMetric) Owner() uuid.UUID     { return m.UserID }
func (m SafetyEventMetric) Timestamp() time.Time { return m.RecordedAt }
func (m SafetyEventMetric) DedupKey() DedupKey {
	return discKey(SafetyEvent, m.UserID, m.RecordedAt, m.EventType)
}
func (m SafetyEventMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), disc(m.EventType), m.SeverityLevel, m.LocationLatitude,
		m.LocationLongitude, m.EmergencyContactsNotified, m.SourceDevice}
}
func (SafetyEventMetric) sealed() {}

type MindfulnessMetric struct {
	UserID                 uuid.UUID `json:"user_id"`
	RecordedAt             time.Time `json:"recorded_at"`
	MeditationType         *string   `json:"meditation_type,omitempty"`
	SessionDurationMinutes *int      `json:"session_duration_minutes,omitempty"`
	StressLevelBefore      *int      `json:"stress_level_before,omitempty"`
	StressLevelAfter       *int      `json:"stress_level_after,omitempty"`
	FocusRating            *int      `json:"focus_rating,omitempty"`
	Notes                  *string   `json:"notes,omitempty"`
	SourceDevice           *string   `json:"source_device,omitempty"`
}

func (m MindfulnessMetric) Type() MetricType     { return Mindfulness }
func (m MindfulnessMetric) Owner() uuid.UUID     { return m.UserID }
func (m MindfulnessMetric) Timestamp() time.Time { return m.RecordedAt }
func (m MindfulnessMetric) DedupKey() DedupKey {
	return discKey(Mindfulness, m.UserID, m.RecordedAt, m.MeditationType)
}
func (m MindfulnessMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), disc(m.MeditationType), m.SessionDurationMinutes,
		m.StressLevelBefore, m.StressLevelAfter, m.FocusRating, m.Notes, m.SourceDevice}
}
func (MindfulnessMetric) sealed() {}

type MentalHealthMetric struct {
	UserID          uuid.UUID `json:"user_id"`
	RecordedAt      time.Time `json:"recorded_at"`
	MoodRating      *int      `json:"mood_rating,omitempty"`
	AnxietyLevel    *int      `json:"anxiety_level,omitempty"`
	StressLevel     *int      `json:"stress_level,omitempty"`
	EnergyLevel     *int      `json:"energy_level,omitempty"`
	DepressionScore *int      `json:"depression_score,omitempty"`
	MedicationTaken *bool     `json:"medication_taken,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m MentalHealthMetric) Type() MetricType     { return MentalHealth }
func (m MentalHealthMetric) Owner() uuid.UUID     { return m.UserID }
func (m MentalHealthMetric) Timestamp() time.Time { return m.RecordedAt }
func (m MentalHealthMetric) DedupKey() DedupKey {
	return timeKey(MentalHealth, m.UserID, m.RecordedAt)
}
func (m MentalHealthMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.MoodRating, m.AnxietyLevel, m.StressLevel,
		m.EnergyLevel, m.DepressionScore, m.MedicationTaken, m.Notes, m.SourceDevice}
}
func (MentalHealthMetric) sealed() {}

type HygieneMetric struct {
	UserID          uuid.UUID `json:"user_id"`
	RecordedAt      time.Time `json:"recorded_at"`
	EventType       *string   `json:"event_type,omitempty"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	QualityRating   *int      `json:"quality_rating,omitempty"`
	Notes           *string   `json:"notes,omitempty"`
	SourceDevice    *string   `json:"source_device,omitempty"`
}

func (m HygieneMetric) Type() MetricType     { return Hygiene }
func (m HygieneMetric) Owner() uuid.UUID     { return m.UserID }
func (m HygieneMetric) Timestamp() time.Time { return m.RecordedAt }
func (m HygieneMetric) DedupKey() DedupKey {
	return discKey(Hygiene, m.UserID, m.RecordedAt, m.EventType)
}
func (m HygieneMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), disc(m.EventType), m.DurationSeconds, m.QualityRating,
		m.Notes, m.SourceDevice}
}
func (HygieneMetric) sealed() {}

type MobilityMetric struct {
	UserID                     uuid.UUID `json:"user_id"`
	RecordedAt                 time.Time `json:"recorded_at"`
	WalkingSpeed               *float64  `json:"walking_speed_m_per_s,omitempty"`
	WalkingStepLengthCm        *float64  `json:"walking_step_length_cm,omitempty"`
	WalkingAsymmetryPercentage *float64  `json:"walking_asymmetry_percentage,omitempty"`
	DoubleSupportPercentage    *float64  `json:"double_support_percentage,omitempty"`
	SixMinuteWalkDistanceM     *float64  `json:"six_minute_walk_distance_m,omitempty"`
	StairAscentSpeed           *float64  `json:"stair_ascent_speed,omitempty"`
	StairDescentSpeed          *float64  `json:"stair_descent_speed,omitempty"`
	SourceDevice               *string   `json:"source_device,omitempty"`
}

func (m MobilityMetric) Type() MetricType     { return Mobility }
func (m MobilityMetric) Owner() uuid.UUID     { return m.UserID }
func (m MobilityMetric) Timestamp() time.Time { return m.RecordedAt }
func (m MobilityMetric) DedupKey() DedupKey   { return timeKey(Mobility, m.UserID, m.RecordedAt) }
func (m MobilityMetric) Values() []any {
	return []any{m.UserID, ts(m.RecordedAt), m.WalkingSpeed, m.WalkingStepLengthCm,
		m.WalkingAsymmetryPercentage, m.DoubleSupportPercentage, m.SixMinuteWalkDistanceM,
		m.StairAscentSpeed, m.StairDescentSpeed, m.SourceDevice}
}
func (MobilityMetric) sealed() {}
