package actuator

import "os"

// FileRelay drives a relay by writing "1"/"0" to a status device file,
// the same protocol the teacher's Coil used against its status device
// file. The concrete GPIO/relay-board driver is out of scope (§1);
// this is the generic "write a byte to a status file" shape that
// driver exposes.
type FileRelay struct {
	f *os.File
}

// OpenFileRelay opens path read-write for repeated on/off writes.
func OpenFileRelay(path string) (*FileRelay, error) {
	f, err := os.OpenFile(path, os.O_RDWR, os.ModeDevice)
	if err != nil {
		return nil, err
	}
	return &FileRelay{f: f}, nil
}

// On implements Relay.
func (r *FileRelay) On() error {
	_, err := r.f.WriteAt([]byte("1"), 0)
	return err
}

// Off implements Relay.
func (r *FileRelay) Off() error {
	_, err := r.f.WriteAt([]byte("0"), 0)
	return err
}

// Close releases the underlying device file.
func (r *FileRelay) Close() error { return r.f.Close() }
