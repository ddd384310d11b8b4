// Package config loads patchwire.json or patchwire.yaml.
//
// # Configuration File Structure
//
//	{
//	  "url": "http://localhost:8080/",
//	  "log": {"level": "info", "format": "text"},
//	  "signals": {"localPrefix": "_", "maxCascadeDepth": 64},
//	  "stream": {"idleTimeout": "60s"},
//	  "retry": {"interval": "1s", "scaler": 2, "maxWait": "30s", "maxCount": 10},
//	  "metrics": {"addr": ":9090"},
//	  "record": {"file": "session.msgpack"},
//	  "demo": {"addr": ":8080"}
//	}
//
// The same keys are accepted in YAML. Durations are Go duration strings.
// Fields left out take the defaults from New.
package config
