package tempsensor

import (
	"os"
	"strconv"
	"strings"
	"unicode"
)

// FileDevice reads an ASCII decimal temperature from a device file,
// the same protocol the teacher's Coil.updateTemp used against a
// thermocouple chip's sysfs/device-file interface. The specific
// thermocouple silicon driver is out of scope (§1); this is the
// generic "read decimal ASCII from a file" shape that driver exposes.
type FileDevice struct {
	f *os.File
	buf []byte
}

// OpenFileDevice opens path read-only for repeated polling.
func OpenFileDevice(path string) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	return &FileDevice{f: f, buf: make([]byte, 32)}, nil
}

// Read implements Device.
func (d *FileDevice) Read() (float64, error) {
	if _, err := d.f.Seek(0, 0); err != nil {
		return 0, err
	}
	n, err := d.f.Read(d.buf)
	if err != nil {
		return 0, err
	}
	s := strings.TrimFunc(string(d.buf[:n]), func(r rune) bool {
		return !unicode.IsNumber(r) && r != '.' && r != '-'
	})
	return strconv.ParseFloat(s, 64)
}

// Close releases the underlying device file.
func (d *FileDevice) Close() error { return d.f.Close() }
