// Package logging builds the agent's structured logger on log/slog.
//
// Every entry carries service and version attributes; subsystems log
// through Component children so that entries can be filtered by
// component=network, session, update, node, api or audit.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr or a file path
//
// Broker passwords, password hashes and API tokens are never logged.
package logging
