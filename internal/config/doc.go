// Package config loads pagewire runtime configuration.
//
// Configuration comes from three layers, later ones winning: built-in
// defaults, a TOML file (pagewire.toml by default) and PAGEWIRE_*
// environment variables.
//
// # Configuration File Structure
//
//	[relay]
//	url = "wss://relay.example.com/socket"
//	api_key = "pk_live_..."
//	ping_interval = "1s"
//	transport = "gorilla"     # or "nhooyr"
//
//	[session]
//	max_disconnected = 128
//	retention = "2m"
//
//	[snapshot]
//	backend = "sqlite"        # none, memory, sqlite or s3
//	dsn = "file:pagewire.db"
//
//	[operator]
//	listen = "127.0.0.1:9090"
//
//	[log]
//	level = "info"
//	format = "text"
//
// # Environment
//
//	PAGEWIRE_RELAY_URL, PAGEWIRE_API_KEY, PAGEWIRE_INSTANCE_ID,
//	PAGEWIRE_TRANSPORT, PAGEWIRE_SNAPSHOT_BACKEND, PAGEWIRE_SNAPSHOT_DSN,
//	PAGEWIRE_S3_BUCKET, PAGEWIRE_OPERATOR_LISTEN, PAGEWIRE_LOG_LEVEL,
//	PAGEWIRE_LOG_FORMAT
//
// # Usage
//
//	cfg, err := config.Load("pagewire.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
