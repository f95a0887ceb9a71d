package backoff

import (
	"testing"
	"time"
)

func TestCalculatorDelegatesToStrategy(t *testing.T) {
	c := NewCalculator(ExponentialStrategy{})

	got := c.Calculate(2, 100*time.Millisecond, 0, 2.0, 0)
	if got != 400*time.Millisecond {
		t.Errorf("Calculate() = %v, want 400ms", got)
	}
}

func TestGetExponentialCalculator(t *testing.T) {
	c := GetExponentialCalculator()

	if _, ok := c.GetStrategy().(ExponentialStrategy); !ok {
		t.Errorf("GetStrategy() = %T, want ExponentialStrategy", c.GetStrategy())
	}
}

func TestGetDecorrelatedJitterCalculator(t *testing.T) {
	c := GetDecorrelatedJitterCalculator()

	if _, ok := c.GetStrategy().(DecorrelatedJitterStrategy); !ok {
		t.Errorf("GetStrategy() = %T, want DecorrelatedJitterStrategy", c.GetStrategy())
	}
}
