// Package config provides configuration management for policysync.
//
// Configuration is read from a YAML file, completed with defaults, optionally
// overridden from the environment and then validated. All validation
// failures are collected into a single ValidationError.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("policysync.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("policysync.yaml")
//
// References of the form ${NAME} inside the YAML document are expanded from
// the environment before decoding, which keeps tokens out of the file:
//
//	repository:
//	  auth:
//	    type: token
//	    token: ${GIT_TOKEN}
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention POLICYSYNC_SECTION_FIELD:
//
//   - POLICYSYNC_REPOSITORY_URL overrides repository.repository
//   - POLICYSYNC_CLIENT_DATA_TOPICS overrides client.data_topics (comma separated)
//   - POLICYSYNC_PUBSUB_URL overrides pubsub.url
//   - POLICYSYNC_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation
//
// # Singleton Pattern
//
// Commands install their configuration once with Initialize or SetConfig.
// Library packages never read the singleton; they receive the section they
// need explicitly.
package config
