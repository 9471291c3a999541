package state

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/errors"
)

const bootCountFile = "boot_count"

// FailsafeBootLimit is how many consecutive failed boots put the agent
// into safe mode (watchdog fed, no acquisition) for remote recovery.
const FailsafeBootLimit = 3

// BootCountIncrement reads, increments and stores the crash-loop counter.
// Returns the incremented value. A clean run must call BootCountReset
// once initialization succeeds.
func BootCountIncrement(root string) (int, error) {
	if root == "" {
		return 0, errors.NotValidf("persist.root=empty")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return 0, errors.Annotate(err, "boot counter mkdir")
	}
	path := filepath.Join(root, bootCountFile)
	n := 0
	if b, err := ioutil.ReadFile(path); err == nil {
		n, _ = strconv.Atoi(strings.TrimSpace(string(b)))
	} else if !os.IsNotExist(err) {
		return 0, errors.Annotate(err, "boot counter read")
	}
	n++
	err := ioutil.WriteFile(path, []byte(strconv.Itoa(n)), 0644)
	return n, errors.Annotate(err, "boot counter write")
}

func BootCountReset(root string) error {
	path := filepath.Join(root, bootCountFile)
	err := ioutil.WriteFile(path, []byte("0"), 0644)
	return errors.Annotate(err, "boot counter reset")
}
