package formats

import "gopkg.in/yaml.v3"

// YAML writes a YAML document
var YAML = &Format{
	Name:      "yaml",
	Extension: ".yaml",
	Marshal:   yaml.Marshal,
	Unmarshal: yaml.Unmarshal,
}
