package config

import (
	"fmt"

	"github.com/wippyai/opcua-bridge/scalar"
)

// BuildInfo is the build metadata a server advertises.
type BuildInfo struct {
	ProductURI       string `yaml:"product_uri,omitempty"`
	ManufacturerName string `yaml:"manufacturer_name,omitempty"`
	ProductName      string `yaml:"product_name,omitempty"`
	SoftwareVersion  string `yaml:"software_version,omitempty"`
	BuildNumber      string `yaml:"build_number,omitempty"`
}

// Variable declares a variable created at build time.
type Variable struct {
	ID      string `yaml:"id"`
	Browse  string `yaml:"browse,omitempty"`
	Display string `yaml:"display,omitempty"`
	Type    string `yaml:"type"`
}

// Folder declares a folder under Objects and the variables it organizes.
type Folder struct {
	ID        string     `yaml:"id"`
	Browse    string     `yaml:"browse,omitempty"`
	Display   string     `yaml:"display,omitempty"`
	Variables []Variable `yaml:"variables,omitempty"`
}

// Server configures an embedded OPC UA server.
type Server struct {
	ApplicationName string    `yaml:"application_name,omitempty"`
	ApplicationURI  string    `yaml:"application_uri,omitempty"`
	Host            string    `yaml:"host,omitempty"`
	NamespaceURI    string    `yaml:"namespace_uri,omitempty"`
	Build           BuildInfo `yaml:"build,omitempty"`
	Folders         []Folder  `yaml:"folders,omitempty"`
	Port            int       `yaml:"port,omitempty"`
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		ApplicationName: "opcua-bridge server",
		ApplicationURI:  "urn:opcua-bridge:server",
		Host:            "localhost",
		Port:            4855,
		NamespaceURI:    "urn:opcua-bridge:nodes",
		Build: BuildInfo{
			ProductURI:       "urn:opcua-bridge",
			ManufacturerName: "wippy",
			ProductName:      "opcua-bridge",
			SoftwareVersion:  "0.1.0",
			BuildNumber:      "1",
		},
	}
}

// WithDefaults fills zero fields from DefaultServer.
func (s Server) WithDefaults() Server {
	d := DefaultServer()
	if s.ApplicationName == "" {
		s.ApplicationName = d.ApplicationName
	}
	if s.ApplicationURI == "" {
		s.ApplicationURI = d.ApplicationURI
	}
	if s.Host == "" {
		s.Host = d.Host
	}
	if s.Port == 0 {
		s.Port = d.Port
	}
	if s.NamespaceURI == "" {
		s.NamespaceURI = d.NamespaceURI
	}
	if s.Build == (BuildInfo{}) {
		s.Build = d.Build
	}
	for i := range s.Folders {
		f := &s.Folders[i]
		if f.Browse == "" {
			f.Browse = f.ID
		}
		if f.Display == "" {
			f.Display = f.Browse
		}
		for j := range f.Variables {
			v := &f.Variables[j]
			if v.Browse == "" {
				v.Browse = v.ID
			}
			if v.Display == "" {
				v.Display = v.Browse
			}
		}
	}
	return s
}

// Validate checks the server declaration.
func (s Server) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, s.Port)
	}
	if s.NamespaceURI == "" {
		return fmt.Errorf("%w: namespace_uri is required", ErrInvalidConfig)
	}

	seen := make(map[string]bool)
	for i, f := range s.Folders {
		if f.ID == "" {
			return fmt.Errorf("%w: folders[%d]: id is required", ErrInvalidConfig, i)
		}
		if seen[f.ID] {
			return fmt.Errorf("%w: folders[%d]: duplicate id %q", ErrInvalidConfig, i, f.ID)
		}
		seen[f.ID] = true
		for j, v := range f.Variables {
			if v.ID == "" {
				return fmt.Errorf("%w: folders[%d].variables[%d]: id is required", ErrInvalidConfig, i, j)
			}
			if seen[v.ID] {
				return fmt.Errorf("%w: folders[%d].variables[%d]: duplicate id %q", ErrInvalidConfig, i, j, v.ID)
			}
			seen[v.ID] = true
			if _, err := scalar.ParseName(v.Type); err != nil {
				return fmt.Errorf("%w: folders[%d].variables[%d]: %w", ErrInvalidConfig, i, j, err)
			}
		}
	}
	return nil
}

// LoadServer reads a server configuration file.
func LoadServer(path string) (Server, error) {
	var cfg Server
	if err := decodeFile(path, &cfg); err != nil {
		return Server{}, err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}
