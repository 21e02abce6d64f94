package formats

import "encoding/json"

// JSON writes indented JSON
var JSON = &Format{
	Name:      "json",
	Extension: ".json",
	Marshal: func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	},
	Unmarshal: json.Unmarshal,
}
