package scan

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrNotObject marks files the inspector does not recognize as loadable
// objects. The scanner skips them.
var ErrNotObject = errors.New("not a loadable object")

// Object describes the dynamic linking information of one file.
type Object struct {
	Needed  []string
	RPath   []string
	RunPath []string
}

// Inspector extracts linking information from a file on disk.
type Inspector interface {
	Inspect(path string) (Object, error)
}

// ELFInspector reads DT_NEEDED, DT_RPATH and DT_RUNPATH entries.
type ELFInspector struct{}

// Inspect opens path as ELF. Files that are not ELF, or are ELF but neither
// executables nor shared objects, yield an error wrapping ErrNotObject.
func (ELFInspector) Inspect(path string) (Object, error) {
	f, err := elf.Open(path)
	if err != nil {
		var formatErr *elf.FormatError
		if errors.As(err, &formatErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Object{}, fmt.Errorf("%w: %s", ErrNotObject, path)
		}
		return Object{}, err
	}
	defer f.Close()

	if f.Type != elf.ET_EXEC && f.Type != elf.ET_DYN {
		return Object{}, fmt.Errorf("%w: %s (%s)", ErrNotObject, path, f.Type)
	}

	var obj Object
	// Static executables have no dynamic section; that is not an error.
	if obj.Needed, err = f.DynString(elf.DT_NEEDED); err != nil {
		return Object{}, fmt.Errorf("failed to read DT_NEEDED of %s: %w", path, err)
	}
	rpath, err := f.DynString(elf.DT_RPATH)
	if err != nil {
		return Object{}, fmt.Errorf("failed to read DT_RPATH of %s: %w", path, err)
	}
	runpath, err := f.DynString(elf.DT_RUNPATH)
	if err != nil {
		return Object{}, fmt.Errorf("failed to read DT_RUNPATH of %s: %w", path, err)
	}
	obj.RPath = splitSearchPath(rpath)
	obj.RunPath = splitSearchPath(runpath)
	return obj, nil
}

func splitSearchPath(entries []string) []string {
	var out []string
	for _, entry := range entries {
		for _, dir := range strings.Split(entry, ":") {
			if dir = strings.TrimSpace(dir); dir != "" {
				out = append(out, dir)
			}
		}
	}
	return out
}
