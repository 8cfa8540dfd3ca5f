// Package fact holds the process-wide address<->trust-domain fact
// tables every agent is handed at startup (spec §9 Global state): the
// driver populates them once, out of process here via a YAML file, and
// every agent treats the result as read-only for the life of the run.
package fact

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Table is an immutable pair of lookup maps built once and shared by
// reference across a process's agents. Nothing in this package ever
// mutates a Table after Load returns it.
type Table struct {
	tdToAddr map[string]string
	addrToTD map[string]string
}

// yamlFacts mirrors the on-disk shape: a flat list of (td_id, address)
// pairs, the way internal/cli/relay.go's yamlConfig nests plain fields
// under a top-level key.
type yamlFacts struct {
	Facts []struct {
		TD      string `yaml:"td_id"`
		Address string `yaml:"address"`
	} `yaml:"facts"`
}

// Load reads a fact-table YAML file and builds both directions of the
// map. A td_id or address that appears with two different counterparts
// is an error (an exact repeat of a pair is accepted): the fact table
// is assumed to describe a bijection (spec §9).
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fact: open %s: %w", path, err)
	}
	defer f.Close()

	var raw yamlFacts
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
		return nil, fmt.Errorf("fact: decode %s: %w", path, err)
	}

	t := &Table{
		tdToAddr: make(map[string]string, len(raw.Facts)),
		addrToTD: make(map[string]string, len(raw.Facts)),
	}
	for _, e := range raw.Facts {
		if e.TD == "" || e.Address == "" {
			return nil, fmt.Errorf("fact: %s: entry missing td_id or address", path)
		}
		if existing, ok := t.tdToAddr[e.TD]; ok && existing != e.Address {
			return nil, fmt.Errorf("fact: %s: td_id %q maps to both %q and %q", path, e.TD, existing, e.Address)
		}
		if existing, ok := t.addrToTD[e.Address]; ok && existing != e.TD {
			return nil, fmt.Errorf("fact: %s: address %q maps to both %q and %q", path, e.Address, existing, e.TD)
		}
		t.tdToAddr[e.TD] = e.Address
		t.addrToTD[e.Address] = e.TD
	}
	return t, nil
}

// New builds a Table directly from a td_id->address map, for tests and
// for agents that construct facts programmatically rather than from a
// file.
func New(tdToAddr map[string]string) *Table {
	t := &Table{
		tdToAddr: make(map[string]string, len(tdToAddr)),
		addrToTD: make(map[string]string, len(tdToAddr)),
	}
	for td, addr := range tdToAddr {
		t.tdToAddr[td] = addr
		t.addrToTD[addr] = td
	}
	return t
}

// AddressOf returns the RIB address owning a trust domain.
func (t *Table) AddressOf(td string) (string, bool) {
	addr, ok := t.tdToAddr[td]
	return addr, ok
}

// TDOf returns the trust domain owning an address.
func (t *Table) TDOf(addr string) (string, bool) {
	td, ok := t.addrToTD[addr]
	return td, ok
}

// Len reports the number of TD<->address pairs in the table.
func (t *Table) Len() int {
	return len(t.tdToAddr)
}
