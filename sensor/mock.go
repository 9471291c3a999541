package sensor

import "sync"

// MockThermocouple is a scripted Thermocouple for loop tests.
type MockThermocouple struct {
	mu    sync.Mutex
	TempC float64
	CJC   float64
	Fault uint8
	Err   error
}

func (self *MockThermocouple) Set(tempC, cjC float64, fault uint8, err error) {
	self.mu.Lock()
	self.TempC, self.CJC, self.Fault, self.Err = tempC, cjC, fault, err
	self.mu.Unlock()
}

func (self *MockThermocouple) Temperature() (float64, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.TempC, self.Err
}

func (self *MockThermocouple) ColdJunction() (float64, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.CJC, self.Err
}

func (self *MockThermocouple) Faults() (uint8, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.Fault, self.Err
}

func (self *MockThermocouple) Close() error { return nil }

// MockFlame is a scripted FlameSensor.
type MockFlame struct {
	mu  sync.Mutex
	Raw int
	Err error
}

func (self *MockFlame) Set(raw int, err error) {
	self.mu.Lock()
	self.Raw, self.Err = raw, err
	self.mu.Unlock()
}

func (self *MockFlame) ReadRaw() (int, error) {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.Raw, self.Err
}

func (self *MockFlame) Close() error { return nil }
