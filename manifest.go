package memflow

import (
	"os"

	"gopkg.in/yaml.v3"
)

// ConnectorManifest is an optional allow-list restricting which file names
// an Inventory will even attempt to dlopen from a scanned directory. This is
// this port's addition: loading an untrusted directory of shared libraries
// is a much heavier trust boundary in Go than in the original Rust crate,
// so an operator can pin exactly which files are expected (SPEC_FULL.md's
// DOMAIN STACK section).
//
// manifest.yaml:
//
//	allow:
//	  - libmemflow_kvm.so
//	  - libmemflow_qemu.so
type ConnectorManifest struct {
	Allow []string `yaml:"allow"`
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(path string) (*ConnectorManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapErr(KindConfiguration, err, "reading connector manifest %s", path)
	}
	var m ConnectorManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, wrapErr(KindConfiguration, err, "parsing connector manifest %s", path)
	}
	return &m, nil
}

// Allows reports whether fileName may be loaded. An empty allow-list
// permits everything, matching the no-manifest default.
func (m *ConnectorManifest) Allows(fileName string) bool {
	if m == nil || len(m.Allow) == 0 {
		return true
	}
	for _, a := range m.Allow {
		if a == fileName {
			return true
		}
	}
	return false
}
