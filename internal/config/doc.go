// Package config handles configuration loading for murmur.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment
// variable expansion. Every field has a default, so a file is optional.
//
// # Configuration File
//
// The format follows the file extension: .toml is TOML, anything else YAML.
//
//	server:
//	  http_addr: ":3001"
//	database:
//	  path: "data/murmur.db"
//	model:
//	  provider: "ollama"   # or "echo"
//	  base_url: "http://localhost:11434"
//	  name: "llama3.2:1b"
//	  timeout: "35s"
//	chat:
//	  max_message_length: 500
//	  max_context_messages: 15
//	  strict_rollback: false
//
// # Environment Variables
//
// Values can reference the environment with ${VAR_NAME}. After the file is
// read these variables override it:
//
//   - OLLAMA_API_URL: model.base_url
//   - OLLAMA_MODEL: model.name
//   - PORT: server.http_addr becomes ":$PORT"
//   - MURMUR_DB_PATH: database.path
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax ("35s", "5m").
package config
