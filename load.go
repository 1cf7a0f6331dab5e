package scjson

import (
	"os"
	"strings"

	"github.com/agentflare-ai/scjson-go/jsonload"
	"github.com/agentflare-ai/scjson-go/xmlload"
)

// LoadXML builds a Runtime from SCXML: pathOrSource is treated as inline
// markup when it starts with "<", otherwise as a file path.
func LoadXML(pathOrSource string, opts ...RunOption) (*Runtime, error) {
	source, name, err := resolveSource(pathOrSource, "<")
	if err != nil {
		return nil, err
	}
	doc, err := xmlload.Load(source, name, xmlload.ModeStrict)
	if err != nil {
		return nil, err
	}
	return NewRuntime(doc, opts...)
}

// LoadJSON builds a Runtime from SCJSON: pathOrSource is treated as inline
// JSON when it starts with "{", otherwise as a file path.
func LoadJSON(pathOrSource string, opts ...RunOption) (*Runtime, error) {
	source, name, err := resolveSource(pathOrSource, "{")
	if err != nil {
		return nil, err
	}
	doc, err := jsonload.Load(source, name, jsonload.ModeStrict)
	if err != nil {
		return nil, err
	}
	return NewRuntime(doc, opts...)
}

func resolveSource(pathOrSource, inlinePrefix string) (source, name string, err error) {
	if strings.HasPrefix(strings.TrimSpace(pathOrSource), inlinePrefix) {
		return pathOrSource, "<string>", nil
	}
	data, err := os.ReadFile(pathOrSource)
	if err != nil {
		return "", "", err
	}
	return string(data), pathOrSource, nil
}
