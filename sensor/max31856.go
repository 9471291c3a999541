package sensor

import (
	"strings"
	"sync"

	"github.com/juju/errors"

	"furnace-agent/log2"
	sensor_config "furnace-agent/sensor/config"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

const modName string = "max31856"

// MAX31856 registers. Write address = read address | 0x80.
const (
	regCR0   = 0x00
	regCR1   = 0x01
	regCJTH  = 0x0a
	regLTCBH = 0x0c
	regSR    = 0x0f
	regWrite = 0x80
)

// CR0: continuous conversion + one-shot fault clear.
const cr0Init = 0x82

// Linearized TC temperature is 19 bits, 2^-7 C per LSB. Cold junction
// is 14 bits, 2^-6 C per LSB.
const (
	tcResolution = 0.0078125
	cjResolution = 0.015625
)

// CR1 thermocouple type codes, datasheet table 2.
var tcTypeCodes = map[string]byte{
	"B": 0x00, "E": 0x01, "J": 0x02, "K": 0x03,
	"N": 0x04, "R": 0x05, "S": 0x06, "T": 0x07,
}

// MAX31856 drives the converter over SPI mode 1. All register access is
// serialized on txlk; Temperature/ColdJunction/Faults are called from
// the same loop but the FAULT pin watcher may read SR concurrently.
type MAX31856 struct {
	Log     *log2.Log
	txlk    sync.Mutex
	spiPort spi.PortCloser
	spiConn spi.Conn
	txBuf   [8]byte
	rxBuf   [8]byte
}

func NewMAX31856(cfg sensor_config.Config, log *log2.Log) (*MAX31856, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Annotate(err, "periph/init")
	}

	spiPort, err := spireg.Open(cfg.Thermocouple.Spi)
	if err != nil {
		return nil, errors.Annotatef(err, "%s SPI Open", modName)
	}
	spiSpeed := 2 * physic.MegaHertz
	spiMode := spi.Mode1
	spiConn, err := spiPort.Connect(spiSpeed, spiMode, 8)
	if err != nil {
		spiPort.Close()
		return nil, errors.Annotatef(err, "%s SPI Connect", modName)
	}

	self := &MAX31856{
		Log:     log,
		spiPort: spiPort,
		spiConn: spiConn,
	}

	tcType := strings.ToUpper(cfg.Thermocouple.Type)
	if tcType == "" {
		tcType = "S"
	}
	typeCode, ok := tcTypeCodes[tcType]
	if !ok {
		spiPort.Close()
		return nil, errors.NotValidf("%s thermocouple type=%s", modName, tcType)
	}

	if err := self.writeReg(regCR0, cr0Init); err != nil {
		spiPort.Close()
		return nil, errors.Annotatef(err, "%s init CR0", modName)
	}
	if err := self.writeReg(regCR1, typeCode); err != nil {
		spiPort.Close()
		return nil, errors.Annotatef(err, "%s init CR1 type=%s", modName, tcType)
	}
	self.Log.Debugf("%s init spi=%s type=%s", modName, cfg.Thermocouple.Spi, tcType)
	return self, nil
}

func (self *MAX31856) Close() error {
	self.txlk.Lock()
	defer self.txlk.Unlock()
	return self.spiPort.Close()
}

// Temperature reads the linearized thermocouple conversion.
func (self *MAX31856) Temperature() (float64, error) {
	b, err := self.readRegs(regLTCBH, 3)
	if err != nil {
		return 0, errors.Annotatef(err, "%s read LTCB", modName)
	}
	raw := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	raw >>= 5 // 19-bit value, left-justified
	if b[0]&0x80 != 0 {
		raw -= 1 << 19
	}
	return float64(raw) * tcResolution, nil
}

// ColdJunction reads the on-die reference junction temperature.
func (self *MAX31856) ColdJunction() (float64, error) {
	b, err := self.readRegs(regCJTH, 2)
	if err != nil {
		return 0, errors.Annotatef(err, "%s read CJT", modName)
	}
	// 14-bit two's complement, left-justified; int16 shift keeps sign
	raw := int16(uint16(b[0])<<8|uint16(b[1])) >> 2
	return float64(raw) * cjResolution, nil
}

// Faults reads the fault status register. Bits latch until the next
// fault clear, so callers see faults raised between reads.
func (self *MAX31856) Faults() (uint8, error) {
	b, err := self.readRegs(regSR, 1)
	if err != nil {
		return 0, errors.Annotatef(err, "%s read SR", modName)
	}
	return b[0], nil
}

// ClearFaults rewrites CR0 with the fault-clear bit, dropping latched
// status bits after they were reported.
func (self *MAX31856) ClearFaults() error {
	return self.writeReg(regCR0, cr0Init)
}

func (self *MAX31856) writeReg(reg byte, value byte) error {
	self.txlk.Lock()
	defer self.txlk.Unlock()
	self.txBuf[0] = reg | regWrite
	self.txBuf[1] = value
	return self.spiConn.Tx(self.txBuf[:2], nil)
}

// readRegs clocks n registers starting at reg. Result aliases rxBuf,
// valid until the next call.
func (self *MAX31856) readRegs(reg byte, n int) ([]byte, error) {
	self.txlk.Lock()
	defer self.txlk.Unlock()
	self.txBuf[0] = reg
	for i := 1; i <= n; i++ {
		self.txBuf[i] = 0
	}
	if err := self.spiConn.Tx(self.txBuf[:n+1], self.rxBuf[:n+1]); err != nil {
		return nil, err
	}
	return self.rxBuf[1 : n+1], nil
}
