package tele

import (
	"bufio"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

// Radio reports link-level signal data, decoupled from the transport.
// The default implementation reads the Linux wireless stack; tests plug
// a mock.
type Radio interface {
	// Signal returns RSSI in dBm and whether the link is administratively up.
	// An error means the radio itself is unavailable (NO_RADIO).
	Signal() (rssi int, up bool, err error)
}

// WirelessRadio samples /proc/net/wireless and sysfs operstate for one
// interface. No netlink dependency: procfs is stable since 2.4 and this
// runs every 5 seconds, not in the hot path.
type WirelessRadio struct {
	Interface string

	procPath string
	sysPath  string
}

func NewWirelessRadio(iface string) *WirelessRadio {
	return &WirelessRadio{
		Interface: iface,
		procPath:  "/proc/net/wireless",
		sysPath:   "/sys/class/net/" + iface + "/operstate",
	}
}

func (r *WirelessRadio) Signal() (int, bool, error) {
	if r.Interface == "" {
		return 0, false, errors.NotValidf("radio_interface=empty")
	}
	rssi, err := r.rssi()
	if err != nil {
		return 0, false, err
	}
	up, err := r.operstateUp()
	if err != nil {
		return rssi, false, err
	}
	return rssi, up, nil
}

func (r *WirelessRadio) rssi() (int, error) {
	f, err := os.Open(r.procPath)
	if err != nil {
		return 0, errors.Annotate(err, "radio proc")
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, r.Interface+":") {
			continue
		}
		// Inter-| sta-|   Quality        | ...
		// wlan0: 0000   54.  -56.  -256 ...
		fields := strings.Fields(line)
		if len(fields) < 4 {
			return 0, errors.Errorf("radio proc malformed line=%q", line)
		}
		level := strings.TrimSuffix(fields[3], ".")
		v, err := strconv.ParseFloat(level, 64)
		if err != nil {
			return 0, errors.Annotatef(err, "radio proc level=%q", level)
		}
		return int(v), nil
	}
	return 0, errors.NotFoundf("radio interface=%s in %s", r.Interface, r.procPath)
}

func (r *WirelessRadio) operstateUp() (bool, error) {
	b, err := ioutil.ReadFile(r.sysPath)
	if err != nil {
		return false, errors.Annotate(err, "radio operstate")
	}
	return strings.TrimSpace(string(b)) == "up", nil
}
