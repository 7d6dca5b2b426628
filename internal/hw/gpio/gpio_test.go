package gpio

import "testing"

func TestMockDriver_ReadBackWrittenLevel(t *testing.T) {
	drv := NewMockDriver()
	if err := drv.SetupPin(17, Output); err != nil {
		t.Fatalf("SetupPin: %v", err)
	}

	if got, _ := drv.ReadPin(17); got != Low {
		t.Errorf("initial level = %v, want LOW", got)
	}
	if err := drv.WritePin(17, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	if got, _ := drv.ReadPin(17); got != High {
		t.Errorf("level after write = %v, want HIGH", got)
	}
}

func TestMockDriver_ZeroValueUsable(t *testing.T) {
	var drv MockDriver
	if err := drv.WritePin(4, High); err != nil {
		t.Fatalf("WritePin: %v", err)
	}
	if got, _ := drv.ReadPin(4); got != High {
		t.Errorf("level = %v, want HIGH", got)
	}
}

func TestNewDriver_Mock(t *testing.T) {
	drv, err := NewDriver(true)
	if err != nil {
		t.Fatalf("NewDriver(true): %v", err)
	}
	if _, ok := drv.(*MockDriver); !ok {
		t.Errorf("NewDriver(true) = %T, want *MockDriver", drv)
	}
	if err := drv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestLevel_String(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("unexpected level strings: %q %q", High.String(), Low.String())
	}
}
