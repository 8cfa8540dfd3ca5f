// Package config loads per-agent YAML configuration files, the way
// internal/cli/relay.go's loadConfig decodes an on-disk yamlConfig into
// a typed struct with defaulting for zero values (SPEC_FULL.md §2
// ambient stack).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultAdvertiseInterval mirrors edge.advertiseCadence; kept here too
// so a DC server config file can override it.
const defaultAdvertiseInterval = 5

// RIB is the on-disk shape of a RIB process's config file.
type RIB struct {
	TD        string   `yaml:"td_id"`
	BindAddr  string   `yaml:"bind_addr"`
	FactsFile string   `yaml:"facts_file"`
	Peers     []string `yaml:"peer_rib_addrs"`
	AdminAddr string   `yaml:"admin_addr"`
}

// Switch is the on-disk shape of an overlay switch process's config file.
type Switch struct {
	TD        uint32 `yaml:"td_id"`
	BindAddr  string `yaml:"bind_addr"`
	RIBAddr   string `yaml:"rib_addr"`
	AdminAddr string `yaml:"admin_addr"`
}

// DCServer is the on-disk shape of a DC server process's config file.
type DCServer struct {
	DCName             string `yaml:"dc_name"`
	TD                 string `yaml:"td_id"`
	ServerAddr         string `yaml:"server_addr"`
	RIBAddr            string `yaml:"rib_addr"`
	AdvertiseIntervalS int    `yaml:"advertise_interval_sec"`
}

// DCClient is the on-disk shape of a client process's config file.
type DCClient struct {
	Name    string `yaml:"client_name"`
	TD      string `yaml:"td_id"`
	RIBAddr string `yaml:"rib_addr"`
	DCName  string `yaml:"dc_name"`
}

// DCOwnerCert is one certificate entry in a dcowner config file.
type DCOwnerCert struct {
	Issuer        string `yaml:"issuer"`
	Entity        string `yaml:"entity"`
	Type          string `yaml:"type"`
	RTransitivity *int   `yaml:"r_transitivity"`
}

// DCOwner is the on-disk shape of the one-shot certificate-pusher's
// config file.
type DCOwner struct {
	RIBAddr string        `yaml:"rib_addr"`
	Certs   []DCOwnerCert `yaml:"certs"`
}

func load(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	if err := yaml.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("config: decode %s: %w", path, err)
	}
	return nil
}

// LoadRIB reads and validates a RIB config file.
func LoadRIB(path string) (*RIB, error) {
	var c RIB
	if err := load(path, &c); err != nil {
		return nil, err
	}
	if c.TD == "" || c.BindAddr == "" {
		return nil, fmt.Errorf("config: %s: td_id and bind_addr are required", path)
	}
	return &c, nil
}

// LoadSwitch reads and validates a switch config file.
func LoadSwitch(path string) (*Switch, error) {
	var c Switch
	if err := load(path, &c); err != nil {
		return nil, err
	}
	if c.BindAddr == "" || c.RIBAddr == "" {
		return nil, fmt.Errorf("config: %s: bind_addr and rib_addr are required", path)
	}
	return &c, nil
}

// LoadDCServer reads and validates a DC server config file, defaulting
// AdvertiseIntervalS when unset.
func LoadDCServer(path string) (*DCServer, error) {
	var c DCServer
	if err := load(path, &c); err != nil {
		return nil, err
	}
	if c.DCName == "" || c.ServerAddr == "" || c.RIBAddr == "" {
		return nil, fmt.Errorf("config: %s: dc_name, server_addr, and rib_addr are required", path)
	}
	if c.AdvertiseIntervalS == 0 {
		c.AdvertiseIntervalS = defaultAdvertiseInterval
	}
	return &c, nil
}

// LoadDCClient reads and validates a client config file.
func LoadDCClient(path string) (*DCClient, error) {
	var c DCClient
	if err := load(path, &c); err != nil {
		return nil, err
	}
	if c.Name == "" || c.RIBAddr == "" || c.DCName == "" {
		return nil, fmt.Errorf("config: %s: client_name, rib_addr, and dc_name are required", path)
	}
	return &c, nil
}

// LoadDCOwner reads and validates a dcowner config file.
func LoadDCOwner(path string) (*DCOwner, error) {
	var c DCOwner
	if err := load(path, &c); err != nil {
		return nil, err
	}
	if c.RIBAddr == "" || len(c.Certs) == 0 {
		return nil, fmt.Errorf("config: %s: rib_addr and at least one cert are required", path)
	}
	return &c, nil
}
