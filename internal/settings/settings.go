package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/iotlink/internal/infrastructure/config"
	"github.com/nerrad567/iotlink/internal/network"
	"github.com/nerrad567/iotlink/internal/session"
)

// Setting keys.
const (
	KeyBrokerHost     = "broker.host"
	KeyBrokerUsername = "broker.username"
	KeyBrokerPassword = "broker.password"
	KeyStaticAddress  = "static.address"
	KeyStaticGateway  = "static.gateway"
	KeyStaticMask     = "static.mask"
	KeyStaticDNS      = "static.dns"
)

// Overrides is the full set of persisted values. Empty fields are unset.
type Overrides struct {
	BrokerHost     string `json:"broker_host"`
	BrokerUsername string `json:"broker_username"`
	BrokerPassword string `json:"broker_password"`

	StaticAddress string `json:"static_address"`
	StaticGateway string `json:"static_gateway"`
	StaticMask    string `json:"static_mask"`
	StaticDNS     string `json:"static_dns"`
}

type field struct {
	key   string
	value *string
	limit int
}

func (o *Overrides) fields() []field {
	return []field{
		{KeyBrokerHost, &o.BrokerHost, config.MaxBrokerFieldLen},
		{KeyBrokerUsername, &o.BrokerUsername, config.MaxBrokerFieldLen},
		{KeyBrokerPassword, &o.BrokerPassword, config.MaxBrokerFieldLen},
		{KeyStaticAddress, &o.StaticAddress, config.MaxAddressFieldLen},
		{KeyStaticGateway, &o.StaticGateway, config.MaxAddressFieldLen},
		{KeyStaticMask, &o.StaticMask, config.MaxAddressFieldLen},
		{KeyStaticDNS, &o.StaticDNS, config.MaxAddressFieldLen},
	}
}

// Identity returns the broker identity override. It is invalid (and so
// ignored by session.ResolveIdentity) when no host is set.
func (o Overrides) Identity() session.Identity {
	return session.Identity{
		Host:     o.BrokerHost,
		Username: o.BrokerUsername,
		Password: o.BrokerPassword,
	}
}

// Static returns the static address override, or nil when none is set.
func (o Overrides) Static() *network.StaticAddress {
	if o.StaticAddress == "" {
		return nil
	}
	return &network.StaticAddress{
		Address: o.StaticAddress,
		Gateway: o.StaticGateway,
		Mask:    o.StaticMask,
		DNS:     o.StaticDNS,
	}
}

// Validate checks field bounds and the static address bundle.
func (o Overrides) Validate() error {
	for _, f := range o.fields() {
		if !config.Fits(*f.value, f.limit) {
			return fmt.Errorf("%w: %s longer than %d bytes", ErrValueTooLong, f.key, f.limit)
		}
	}

	anyStatic := o.StaticAddress != "" || o.StaticGateway != "" || o.StaticMask != "" || o.StaticDNS != ""
	if !anyStatic {
		return nil
	}
	if err := network.ValidateStaticAddress(*o.Static()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStaticAddress, err)
	}
	return nil
}

// Store reads and writes overrides in the settings table.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store over db. The settings migration must have run.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Load returns the persisted overrides. Missing keys are empty.
func (s *Store) Load(ctx context.Context) (Overrides, error) {
	var o Overrides

	for _, f := range o.fields() {
		var value string
		err := s.db.QueryRowContext(ctx,
			`SELECT value FROM settings WHERE key = ?`, f.key,
		).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return Overrides{}, fmt.Errorf("reading setting %s: %w", f.key, err)
		}
		*f.value = value
	}

	return o, nil
}

// Save validates o and replaces the persisted overrides in one
// transaction. Empty fields delete their key. Nothing is written when
// validation fails.
func (s *Store) Save(ctx context.Context, o Overrides) error {
	if err := o.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	for _, f := range o.fields() {
		if *f.value == "" {
			if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, f.key); err != nil {
				return fmt.Errorf("clearing setting %s: %w", f.key, err)
			}
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			f.key, *f.value, now,
		)
		if err != nil {
			return fmt.Errorf("writing setting %s: %w", f.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing settings: %w", err)
	}
	return nil
}
