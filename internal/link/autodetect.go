package link

import (
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tarm/serial"
)

// vendorSubstring filters the by-id directory to likely microcontroller
// entries (spec.md §4.2: "a by-id directory filtered by vendor substring").
const vendorSubstring = "Arduino"

// CandidatePaths enumerates device paths in a platform-appropriate way.
// The by-id directory is preferred when present because its names are
// stable across reboots; typical device-directory globs are the fallback.
func CandidatePaths() []string {
	var out []string

	byID, _ := filepath.Glob("/dev/serial/by-id/*")
	for _, p := range byID {
		if strings.Contains(p, vendorSubstring) {
			out = append(out, p)
		}
	}

	var globs []string
	switch runtime.GOOS {
	case "darwin":
		globs = []string{"/dev/cu.usbmodem*", "/dev/cu.usbserial*"}
	default:
		globs = []string{"/dev/ttyUSB*", "/dev/ttyACM*"}
	}
	for _, g := range globs {
		matches, _ := filepath.Glob(g)
		out = append(out, matches...)
	}

	return dedupe(out)
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// OpenSerialPort is the production Opener, backed by tarm/serial at the
// fixed baud rate spec.md §6 mandates (115200 8N1).
func OpenSerialPort(path string, readTimeout time.Duration) (SerialPort, error) {
	cfg := &serial.Config{
		Name:        path,
		Baud:        baudRate,
		ReadTimeout: readTimeout,
	}
	return serial.OpenPort(cfg)
}
