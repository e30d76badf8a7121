package config

// BasicService is the shared base for any network-facing service config
// (the notary's HTTP surface, its Prometheus endpoint): whether it's
// enabled and which addresses it binds.
type BasicService struct {
	Enabled bool `yaml:"Enabled"`
	// Addresses holds the list of bind addresses in the form "address:port".
	Addresses []string `yaml:"Addresses"`
}
