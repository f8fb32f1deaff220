package topology

// DefaultDevicePattern classifies nodes as devices when no pattern is configured.
const DefaultDevicePattern = "device*"

// DefaultDatarate is the link data rate (bit/s) used when a link omits one.
const DefaultDatarate = 1e9

// Description is the declarative network structure discovery walks.
// Loaded from YAML as part of a scenario.
type Description struct {
	Network       string     `yaml:"network"`        // prefix for fully-qualified names, e.g. "simpleTsn"
	DevicePattern string     `yaml:"device_pattern"` // glob; matching nodes are Devices, the rest Switches
	Nodes         []NodeSpec `yaml:"nodes"`
	Links         []LinkSpec `yaml:"links"`
}

// NodeSpec declares one network node.
type NodeSpec struct {
	Name         string   `yaml:"name"`
	ModuleID     int      `yaml:"module_id,omitempty"`    // 0 = assign index+1
	Applications []string `yaml:"applications,omitempty"` // application sub-endpoints, e.g. "app[0]"
}

// LinkSpec declares a bidirectional cable between two nodes.
type LinkSpec struct {
	A        string  `yaml:"a"`
	B        string  `yaml:"b"`
	Datarate float64 `yaml:"datarate,omitempty"` // bit/s, 0 = DefaultDatarate
}
