package meta

import (
	"fmt"
	"io"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/go-loom/loom/pkg/ffi"
)

// The YAML manifest is the serialized form of the generated tables. The
// binding generator emits it alongside the Go registration code; loading
// it is equivalent to calling RegisterType/RegisterLibrary by hand.

type manifest struct {
	Libraries map[string]manifestLibrary `yaml:"libraries"`
	Types     map[string]manifestType    `yaml:"types"`
}

type manifestLibrary struct {
	Names      string `yaml:"names"`
	MinVersion string `yaml:"minVersion"`
}

type manifestType struct {
	Library   string                  `yaml:"library"`
	Ctor      string                  `yaml:"ctor"`
	Props     map[string]manifestProp `yaml:"props"`
	Combined  []manifestCombined      `yaml:"combined"`
	Defaults  map[string]any          `yaml:"defaults"`
	Signals   map[string][]string     `yaml:"signals"`
	Container manifestContainer       `yaml:"container"`
	Present   string                  `yaml:"present"`
	Slots     map[string]string       `yaml:"slots"`
}

type manifestContainer struct {
	Kind    string            `yaml:"kind"`
	Symbols map[string]string `yaml:"symbols"`
}

type manifestProp struct {
	Getter string `yaml:"getter"`
	Setter string `yaml:"setter"`
	Type   string `yaml:"type"`
}

type manifestCombined struct {
	Keys   []string `yaml:"keys"`
	Setter string   `yaml:"setter"`
	Types  []string `yaml:"types"`
}

// Load reads a YAML bindings manifest into the registry.
func (r *Registry) Load(src io.Reader) error {
	data, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("meta: read manifest: %w", err)
	}
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("meta: parse manifest: %w", err)
	}

	for name, lib := range m.Libraries {
		if lib.MinVersion != "" && !semver.IsValid(lib.MinVersion) {
			return fmt.Errorf("meta: library %q minVersion %q is not valid semver", name, lib.MinVersion)
		}
		r.RegisterLibrary(name, LibraryInfo{Names: lib.Names, MinVersion: lib.MinVersion})
	}

	for name, mt := range m.Types {
		table := &TypeTable{
			Name:     name,
			Library:  mt.Library,
			Ctor:     mt.Ctor,
			Props:    make(map[string]PropAccess, len(mt.Props)),
			Defaults: mt.Defaults,
			Signals:  make(map[string][]ffi.Type, len(mt.Signals)),
			Container: ContainerSpec{
				Kind:    ContainerKind(mt.Container.Kind),
				Symbols: mt.Container.Symbols,
			},
			Present: mt.Present,
			Slots:   mt.Slots,
		}
		for prop, access := range mt.Props {
			typ, err := ParseType(access.Type)
			if err != nil {
				return fmt.Errorf("meta: type %s prop %s: %w", name, prop, err)
			}
			table.Props[prop] = PropAccess{Getter: access.Getter, Setter: access.Setter, Type: typ}
		}
		for _, c := range mt.Combined {
			types := make([]ffi.Type, len(c.Types))
			for i, ts := range c.Types {
				typ, err := ParseType(ts)
				if err != nil {
					return fmt.Errorf("meta: type %s combined %v: %w", name, c.Keys, err)
				}
				types[i] = typ
			}
			table.Combined = append(table.Combined, CombinedProp{Keys: c.Keys, Setter: c.Setter, Types: types})
		}
		for event, argNames := range mt.Signals {
			args := make([]ffi.Type, len(argNames))
			for i, ts := range argNames {
				typ, err := ParseType(ts)
				if err != nil {
					return fmt.Errorf("meta: type %s signal %s: %w", name, event, err)
				}
				args[i] = typ
			}
			table.Signals[event] = args
		}
		r.RegisterType(table)
	}
	return nil
}

// CheckVersion verifies a reported toolkit version against a library's
// pinned minimum. Unpinned libraries always pass.
func (r *Registry) CheckVersion(library, actual string) error {
	info, ok := r.libraries[library]
	if !ok || info.MinVersion == "" {
		return nil
	}
	if !semver.IsValid(actual) {
		return fmt.Errorf("meta: library %q reported version %q is not valid semver", library, actual)
	}
	if semver.Compare(actual, info.MinVersion) < 0 {
		return fmt.Errorf("meta: library %q version %s is below required %s", library, actual, info.MinVersion)
	}
	return nil
}

// ParseType resolves a manifest type string to a descriptor.
func ParseType(s string) (ffi.Type, error) {
	switch s {
	case "", "void":
		return ffi.Void(), nil
	case "bool":
		return ffi.Bool(), nil
	case "i8":
		return ffi.Int8(), nil
	case "u8":
		return ffi.Uint8(), nil
	case "i16":
		return ffi.Int16(), nil
	case "u16":
		return ffi.Uint16(), nil
	case "i32", "int":
		return ffi.Int32(), nil
	case "u32":
		return ffi.Uint32(), nil
	case "i64":
		return ffi.Int64(), nil
	case "u64":
		return ffi.Uint64(), nil
	case "f32":
		return ffi.Float32(), nil
	case "f64", "float":
		return ffi.Float64(), nil
	case "string":
		return ffi.String(true), nil
	case "string-owned":
		return ffi.String(false), nil
	case "object":
		return ffi.Object(true), nil
	case "object-owned":
		return ffi.Object(false), nil
	default:
		return ffi.Type{}, fmt.Errorf("unknown type %q", s)
	}
}
