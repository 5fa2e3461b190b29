package config

import (
	"fmt"
	"os"
)

func Template() string {
	return defaultTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(defaultTemplate), 0o600)
}

const defaultTemplate = `[engine]
vendor = 0x004C
decode_workers = 2
subscriber_buffer = 64
dedup_window = "0s"
dedup_size = 1024
advertise_interval = "100ms"

[identity]
rotation_interval = "15m"
contacts = []

[transport]
kind = "radio"
max_payload_len = 29
local_name = ""

[server]
addr = "127.0.0.1:7420"
cors_origins = ["http://localhost:3000"]
recent_events = 256

[sinks.console]
enabled = true
json = false
no_color = false

[sinks.pubsub]
enabled = false
project = ""
topic = "continuity-events"
ordering = true

[sinks.kafka]
enabled = false
brokers = ["localhost:9092"]
topic = "continuity.events"
dlq_topic = "continuity.events.dlq"

[sinks.mqtt]
enabled = false
broker = "tcp://localhost:1883"
client_id = "continuityctl"
topic = "continuity"
qos = 0
`
