// Package settings persists operator overrides of the broker identity and
// the static address bundle.
//
// Overrides are written through Save, which enforces the same field bounds
// the configuration layer truncates to, and read once at startup by Load.
// An override only takes effect when it names a broker host (for the
// identity) or a complete address bundle (for static addressing); otherwise
// the YAML defaults apply.
package settings
