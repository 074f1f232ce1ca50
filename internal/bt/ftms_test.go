package bt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIndoorBikeData_SpeedCadencePower(t *testing.T) {
	// Flags 0x0044: speed present (bit 0 clear), instantaneous cadence,
	// instantaneous power.
	buf := []byte{
		0x44, 0x00,
		0xB8, 0x0B, // 3000 * 0.01 = 30.00 km/h
		0xB4, 0x00, // 180 * 0.5 = 90 rpm
		0xFA, 0x00, // 250 W
	}

	data, err := parseIndoorBikeData(buf)
	require.NoError(t, err)
	require.NotNil(t, data.SpeedKmh)
	assert.InDelta(t, 30.0, *data.SpeedKmh, 0.001)
	require.NotNil(t, data.CadenceRpm)
	assert.Equal(t, 90.0, *data.CadenceRpm)
	require.NotNil(t, data.PowerWatts)
	assert.Equal(t, 250.0, *data.PowerWatts)
	assert.Nil(t, data.HeartRate)
}

func TestParseIndoorBikeData_PowerAndHeartRateOnly(t *testing.T) {
	// Flags 0x0241: more-data bit set (no speed), instantaneous power,
	// heart rate.
	buf := []byte{
		0x41, 0x02,
		0xC8, 0x00, // 200 W
		0x96, // 150 bpm
	}

	data, err := parseIndoorBikeData(buf)
	require.NoError(t, err)
	assert.Nil(t, data.SpeedKmh)
	assert.Nil(t, data.CadenceRpm)
	require.NotNil(t, data.PowerWatts)
	assert.Equal(t, 200.0, *data.PowerWatts)
	require.NotNil(t, data.HeartRate)
	assert.Equal(t, 150.0, *data.HeartRate)
}

func TestParseIndoorBikeData_NegativePower(t *testing.T) {
	buf := []byte{
		0x41, 0x00,
		0xCE, 0xFF, // -50 W
	}

	data, err := parseIndoorBikeData(buf)
	require.NoError(t, err)
	require.NotNil(t, data.PowerWatts)
	assert.Equal(t, -50.0, *data.PowerWatts)
}

func TestParseIndoorBikeData_SkipsUnusedFields(t *testing.T) {
	// Flags: no speed, average speed, total distance, resistance level,
	// instantaneous power. The power value must be read past the skipped
	// fields. 0x0001|0x0002|0x0010|0x0020|0x0040 = 0x0073.
	buf := []byte{
		0x73, 0x00,
		0x10, 0x27, // average speed, skipped
		0xE8, 0x03, 0x00, // total distance UINT24, skipped
		0x32, 0x00, // resistance level, skipped
		0x2C, 0x01, // 300 W
	}

	data, err := parseIndoorBikeData(buf)
	require.NoError(t, err)
	require.NotNil(t, data.PowerWatts)
	assert.Equal(t, 300.0, *data.PowerWatts)
}

func TestParseIndoorBikeData_Truncated(t *testing.T) {
	_, err := parseIndoorBikeData([]byte{0x44})
	assert.Error(t, err)

	// Flags promise power but the payload ends early.
	_, err = parseIndoorBikeData([]byte{0x41, 0x00, 0xC8})
	assert.Error(t, err)
}

func TestParseHeartRate_Uint8(t *testing.T) {
	bpm, err := parseHeartRate([]byte{0x00, 72})
	require.NoError(t, err)
	assert.Equal(t, 72.0, bpm)
}

func TestParseHeartRate_Uint16(t *testing.T) {
	bpm, err := parseHeartRate([]byte{0x01, 0x2C, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 300.0, bpm)
}

func TestParseHeartRate_TooShort(t *testing.T) {
	_, err := parseHeartRate([]byte{0x00})
	assert.Error(t, err)

	_, err = parseHeartRate([]byte{0x01, 0x48})
	assert.Error(t, err)
}
