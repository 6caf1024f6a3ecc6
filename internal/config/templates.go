package config

import (
	"fmt"
	"os"
)

func Template() string {
	return daemonTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(daemonTemplate), 0o600)
}

const daemonTemplate = `admin_addr = ":9464"
admin_token = ""
cors_origins = ["http://localhost:3000"]
enable_on_boot = true

bind_retry_count = 10
bind_retry_delay_ms = 100
flow_control_timeout_ms = 10000
keepalive_interval_ms = 5000

simulator_flow_control = true
simulator_keepalive = true
`
