package settings

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BundledName is the name of the settings resource compiled into the binary.
const BundledName = "executor.cfg"

//go:embed bundled/executor.cfg
var bundled embed.FS

// Format identifies a settings file syntax.
type Format string

const (
	FormatCFG  Format = "cfg"
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from the file extension. Unknown
// extensions are read as the QuickFIX text format.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatCFG
	}
}

// Load reads a settings file, choosing the parser by extension.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings file %s: %w", path, err)
	}
	s, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("load settings %s: %w", path, err)
	}
	return s, nil
}

// Parse parses data in the given format.
func Parse(data []byte, format Format) (*Settings, error) {
	switch format {
	case FormatTOML:
		return ParseTOML(bytes.NewReader(data))
	case FormatYAML:
		return ParseYAML(data)
	default:
		return ParseCFG(bytes.NewReader(data))
	}
}

// Bundled loads the settings resource compiled into the binary.
func Bundled() (*Settings, error) {
	data, err := bundled.ReadFile("bundled/" + BundledName)
	if err != nil {
		return nil, fmt.Errorf("read bundled settings: %w", err)
	}
	return Parse(data, FormatCFG)
}
