package health

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strp(s string) *string { return &s }

func TestDedupKeyNilDiscriminantsCollide(t *testing.T) {
	user := uuid.New()
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	a := BloodGlucoseMetric{UserID: user, RecordedAt: at, BloodGlucoseMgDl: 101}
	b := BloodGlucoseMetric{UserID: user, RecordedAt: at, BloodGlucoseMgDl: 99, GlucoseSource: strp("  ")}
	c := BloodGlucoseMetric{UserID: user, RecordedAt: at, BloodGlucoseMgDl: 99, GlucoseSource: strp("cgm")}

	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.NotEqual(t, a.DedupKey(), c.DedupKey())
	assert.Equal(t, Unspecified, a.DedupKey().Discriminant)
	assert.Equal(t, Unspecified, a.Values()[2])
}

func TestDedupKeyUsesMicrosecondPrecision(t *testing.T) {
	user := uuid.New()
	base := time.Date(2025, 3, 1, 8, 0, 0, 1000, time.UTC)
	a := HeartRateMetric{UserID: user, RecordedAt: base}
	b := HeartRateMetric{UserID: user, RecordedAt: base.Add(300 * time.Nanosecond)}
	c := HeartRateMetric{UserID: user, RecordedAt: base.In(time.FixedZone("x", 3600))}

	assert.Equal(t, a.DedupKey(), b.DedupKey())
	assert.Equal(t, a.DedupKey(), c.DedupKey())
	assert.Equal(t, base, b.Values()[1])
}

func TestSleepKeyIncludesEnd(t *testing.T) {
	user := uuid.New()
	start := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
	a := SleepMetric{UserID: user, SleepStart: start, SleepEnd: start.Add(7 * time.Hour)}
	b := SleepMetric{UserID: user, SleepStart: start, SleepEnd: start.Add(8 * time.Hour)}
	assert.NotEqual(t, a.DedupKey(), b.DedupKey())
}

func TestDedupKeyDiffersAcrossTypesAndUsers(t *testing.T) {
	at := time.Now()
	u1, u2 := uuid.New(), uuid.New()
	assert.NotEqual(t, HeartRateMetric{UserID: u1, RecordedAt: at}.DedupKey(), ActivityMetric{UserID: u1, RecordedAt: at}.DedupKey())
	assert.NotEqual(t, HeartRateMetric{UserID: u1, RecordedAt: at}.DedupKey(), HeartRateMetric{UserID: u2, RecordedAt: at}.DedupKey())
}

func TestCodecRoundTrip(t *testing.T) {
	user := uuid.New()
	at := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	hr := 72
	in := []Metric{
		HeartRateMetric{UserID: user, RecordedAt: at, HeartRate: &hr},
		SymptomMetric{UserID: user, RecordedAt: at, SymptomType: strp("headache")},
		SleepMetric{UserID: user, SleepStart: at, SleepEnd: at.Add(time.Hour)},
	}
	raw, err := EncodeBatch(in)
	require.NoError(t, err)

	out, err := DecodeBatch(raw)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i := range in {
		assert.Equal(t, in[i].Type(), out[i].Type())
		assert.Equal(t, in[i].DedupKey(), out[i].DedupKey())
	}
	assert.Equal(t, 72, *out[0].(HeartRateMetric).HeartRate)
}

func TestDecodeBatchRejectsUnknownType(t *testing.T) {
	_, err := DecodeBatch([]byte(`[{"type":"steps","data":{}}]`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown metric type "steps"`)

	_, err = DecodeBatch([]byte(`{`))
	require.Error(t, err)
}
