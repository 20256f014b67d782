// Package config loads the iotlink YAML configuration.
//
// Values come from hard-coded defaults, then the YAML file, then
// IOTLINK_* environment variables. Broker identity and static address
// fields are then truncated to their bounds so nothing downstream sees an
// oversize value, and Validate reports every problem at once.
//
// Secrets (broker password, InfluxDB token) are best supplied through the
// environment. The admin and update passwords are only ever stored as
// Argon2id hashes (see iotlink --hash-password).
package config
