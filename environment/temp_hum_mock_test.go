package environment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockTemperatureAndHumiditySensor_DynamicBehavior(t *testing.T) {
	currentTemp := float32(20.0)
	currentHum := float32(50.0)
	sensor := NewMockSHT2x(
		func(ctx context.Context) (float32, error) { return currentTemp, nil },
		func(ctx context.Context) (float32, error) { return currentHum, nil },
	)
	ctx := context.Background()

	temp, hum, err := sensor.GetTempAndHum(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(20.0), temp)
	assert.Equal(t, float32(50.0), hum)

	currentTemp, currentHum = 25.0, 60.0
	temp, err = sensor.GetTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(25.0), temp)
	hum, err = sensor.GetHumidity(ctx)
	require.NoError(t, err)
	assert.Equal(t, float32(60.0), hum)
}

func TestMockTemperatureAndHumiditySensor_ErrorHandling(t *testing.T) {
	humCalls := 0
	sensor := NewMockTemperatureAndHumiditySensor(
		func(ctx context.Context) (float32, error) { return 0, errors.New("temperature sensor error") },
		func(ctx context.Context) (float32, error) {
			humCalls++
			return 50.0, nil
		},
	)
	_, _, err := sensor.GetTempAndHum(context.Background())
	assert.EqualError(t, err, "temperature sensor error")
	assert.Zero(t, humCalls)
}

func TestOscillating(t *testing.T) {
	behavior := Oscillating(21, 2, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := behavior(ctx)
		require.NoError(t, err)
		assert.InDelta(t, 21, v, 2)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := behavior(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
