package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// KVFileProvider is a koanf.Provider reading the daemon's plain
// "key=value" configuration file grammar: one assignment per line, blank
// lines ignored, lines beginning with '#' treated as comments. Keys use '.'
// to address nested sections, e.g. "log.level=debug".
//
// koanf ships file/env/yaml providers but no bundled provider for this flat
// grammar, so it's implemented here directly against the koanf.Provider
// interface.
type KVFileProvider struct {
	path string
}

// File returns a KVFileProvider reading the given path.
func File(path string) *KVFileProvider {
	return &KVFileProvider{path: path}
}

// ReadBytes is unsupported; koanf falls back to Read for this provider.
func (p *KVFileProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: KVFileProvider does not support ReadBytes")
}

// Read parses the key=value file into a nested map for koanf.Load, splitting
// each key on "." into its sections.
func (p *KVFileProvider) Read() (map[string]interface{}, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]interface{})
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config: %s:%d: missing '=' in %q", p.path, lineNo, line)
		}
		parts := strings.Split(strings.TrimSpace(key), ".")
		m := out
		for _, part := range parts[:len(parts)-1] {
			sub, ok := m[part].(map[string]interface{})
			if !ok {
				sub = make(map[string]interface{})
				m[part] = sub
			}
			m = sub
		}
		m[parts[len(parts)-1]] = strings.TrimSpace(val)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
