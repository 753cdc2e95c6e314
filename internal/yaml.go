package internal

import (
	"gopkg.in/yaml.v3"
)

func MarshalYAML(v any) ([]byte, error) {
	b, ok := v.([]byte)
	if ok {
		return b, nil
	}

	return yaml.Marshal(v)
}

func UnmarshalYAML[T any](b []byte) (T, error) {
	var t T
	err := yaml.Unmarshal(b, &t)
	return t, err
}
