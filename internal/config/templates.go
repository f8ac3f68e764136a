package config

import (
	"fmt"
	"os"
	"strings"
)

// Template returns a commented starter config in the given format.
func Template(format string) (string, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "toml":
		return tomlTemplate, nil
	case "yaml", "yml":
		return yamlTemplate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func WriteTemplate(path, format string, overwrite bool) error {
	template, err := Template(format)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const tomlTemplate = `# token is usually supplied with EDGEIO_TOKEN
endpoint = "wss://api.wechaty.io/v0/websocket"
subprotocol = "io|0.0.1"
host_name = "edgeio"
host_version = "0.0.0"
security_mode = "development"

handshake_timeout = "10s"
write_timeout = "10s"
keep_alive = "30s"

backoff_initial = "100ms"
backoff_max = "10s"
backoff_multiplier = 2.0
backoff_jitter = false

admin_addr = "127.0.0.1:7070"
log_level = "info"
heartbeat_interval = "30s"
`

const yamlTemplate = `# token is usually supplied with EDGEIO_TOKEN
endpoint: wss://api.wechaty.io/v0/websocket
subprotocol: io|0.0.1
host_name: edgeio
host_version: 0.0.0
security_mode: development

handshake_timeout: 10s
write_timeout: 10s
keep_alive: 30s

backoff_initial: 100ms
backoff_max: 10s
backoff_multiplier: 2.0
backoff_jitter: false

admin_addr: 127.0.0.1:7070
log_level: info
heartbeat_interval: 30s
`
