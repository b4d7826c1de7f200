package environment

import (
	"context"
	"math"
	"time"
)

// TemperatureBehaviorFunc returns the temperature in Celsius or an error.
type TemperatureBehaviorFunc func(ctx context.Context) (float32, error)

// HumidityBehaviorFunc returns the relative humidity in %RH or an error.
type HumidityBehaviorFunc func(ctx context.Context) (float32, error)

var (
	_ TempHumSensor = (*SHT2x)(nil)
	_ TempHumSensor = (*MockTemperatureAndHumiditySensor)(nil)
)

// MockTemperatureAndHumiditySensor produces readings from behavior functions
// so that consumers of TempHumSensor run without hardware.
type MockTemperatureAndHumiditySensor struct {
	tempBehavior TemperatureBehaviorFunc
	humBehavior  HumidityBehaviorFunc
}

// NewMockTemperatureAndHumiditySensor creates a mock with the given behavior functions.
//
// Example usage:
//
//	sensor := NewMockTemperatureAndHumiditySensor(
//		func(ctx context.Context) (float32, error) { return 22.5, nil },
//		func(ctx context.Context) (float32, error) { return 45.0, nil },
//	)
func NewMockTemperatureAndHumiditySensor(tempBehavior TemperatureBehaviorFunc, humBehavior HumidityBehaviorFunc) *MockTemperatureAndHumiditySensor {
	return &MockTemperatureAndHumiditySensor{
		tempBehavior: tempBehavior,
		humBehavior:  humBehavior,
	}
}

// NewMockSHT2x is an alias for NewMockTemperatureAndHumiditySensor.
func NewMockSHT2x(tempBehavior TemperatureBehaviorFunc, humBehavior HumidityBehaviorFunc) *MockTemperatureAndHumiditySensor {
	return NewMockTemperatureAndHumiditySensor(tempBehavior, humBehavior)
}

func (m *MockTemperatureAndHumiditySensor) GetTemperature(ctx context.Context) (float32, error) {
	return m.tempBehavior(ctx)
}

func (m *MockTemperatureAndHumiditySensor) GetHumidity(ctx context.Context) (float32, error) {
	return m.humBehavior(ctx)
}

func (m *MockTemperatureAndHumiditySensor) GetTempAndHum(ctx context.Context) (float32, float32, error) {
	temp, err := m.tempBehavior(ctx)
	if err != nil {
		return 0, 0, err
	}
	hum, err := m.humBehavior(ctx)
	if err != nil {
		return 0, 0, err
	}
	return temp, hum, nil
}

// Oscillating returns a behavior swinging around base by amplitude with the
// given period, measured from the first call.
func Oscillating(base, amplitude float32, period time.Duration) func(ctx context.Context) (float32, error) {
	var start time.Time
	return func(ctx context.Context) (float32, error) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if start.IsZero() {
			start = time.Now()
		}
		phase := 2 * math.Pi * float64(time.Since(start)) / float64(period)
		return base + amplitude*float32(math.Sin(phase)), nil
	}
}
