package sensor

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// IIOFlame reads the flame sensor through the kernel IIO sysfs raw
// channel. One short file read per cycle, no persistent descriptor:
// IIO sysfs attributes must be re-read from offset 0 anyway.
type IIOFlame struct {
	path string
}

func NewIIOFlame(device string, channel int) *IIOFlame {
	return &IIOFlame{
		path: fmt.Sprintf("%s/in_voltage%d_raw", device, channel),
	}
}

func (self *IIOFlame) ReadRaw() (int, error) {
	b, err := ioutil.ReadFile(self.path)
	if err != nil {
		return 0, errors.Annotate(err, "flame read")
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, errors.Annotatef(err, "flame parse %s", self.path)
	}
	return v, nil
}

func (self *IIOFlame) Close() error { return nil }
