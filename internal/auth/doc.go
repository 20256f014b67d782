// Package auth protects the administrative API.
//
// Passwords are stored as Argon2id PHC strings (OWASP 2025 parameters),
// generated with `iotlink --hash-password`. The admin API accepts HTTP
// basic credentials for a single "admin" account checked by BasicAuth.
package auth
