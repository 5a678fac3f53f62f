package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "purity":
		return purityTemplate, nil
	case "patch":
		return patchTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
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

const purityTemplate = `[client]
receive_port = 14444
send_port = 15555
host = "localhost"
transport = "stream"
quit_after_send = false
quit_grace = "500ms"
connect_timeout = "5s"
handshake_timeout = "30s"
verbose = false

[engine]
launch = true
binary = "pd"
patch = "patches/purity.pd"
nogui = true
args = []
startup_delay = "1s"
startup_timeout = "10s"

[admin]
enabled = false
addr = "127.0.0.1:7020"
cors_origins = ["http://localhost:3000"]
token = ""

[log]
level = "info"
timestamp = false
nocolor = false
`

const patchTemplate = `pd dsp 1;
pd-main.pd obj 10 10 osc~ 440;
pd-main.pd obj 10 40 *~ 0.1;
pd-main.pd obj 10 70 dac~;
pd-main.pd connect 0 0 1 0;
pd-main.pd connect 1 0 2 0;
pd-main.pd connect 1 0 2 1;
`
