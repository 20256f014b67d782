package settings

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nerrad567/iotlink/internal/infrastructure/config"
	"github.com/nerrad567/iotlink/internal/infrastructure/database"
	"github.com/nerrad567/iotlink/internal/session"
	"github.com/nerrad567/iotlink/migrations"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "settings.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewStore(db.DB)
}

var validStatic = Overrides{
	StaticAddress: "192.168.1.50",
	StaticGateway: "192.168.1.1",
	StaticMask:    "255.255.255.0",
	StaticDNS:     "192.168.1.1",
}

func TestStore_LoadEmpty(t *testing.T) {
	s := setupStore(t)

	o, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if o != (Overrides{}) {
		t.Errorf("Load() = %+v, want zero value", o)
	}
	if o.Identity().Valid() {
		t.Error("empty override identity should be invalid")
	}
	if o.Static() != nil {
		t.Error("Static() should be nil without an address")
	}
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	want := validStatic
	want.BrokerHost = "broker.local"
	want.BrokerUsername = "sensor"
	want.BrokerPassword = "pw"

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}

	// Clearing a field deletes its key.
	want.BrokerPassword = ""
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, _ = s.Load(ctx)
	if got.BrokerPassword != "" {
		t.Errorf("BrokerPassword = %q, want cleared", got.BrokerPassword)
	}
}

func TestStore_SaveRejectsWithoutWriting(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, Overrides{BrokerHost: "first"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	err := s.Save(ctx, Overrides{BrokerHost: strings.Repeat("h", config.MaxBrokerFieldLen+1)})
	if !errors.Is(err, ErrValueTooLong) {
		t.Fatalf("Save() error = %v, want ErrValueTooLong", err)
	}

	got, _ := s.Load(ctx)
	if got.BrokerHost != "first" {
		t.Errorf("BrokerHost = %q, want unchanged %q", got.BrokerHost, "first")
	}
}

func TestOverrides_Validate(t *testing.T) {
	tests := []struct {
		name    string
		o       Overrides
		wantErr error
	}{
		{"empty", Overrides{}, nil},
		{"host at bound", Overrides{BrokerHost: strings.Repeat("h", config.MaxBrokerFieldLen)}, nil},
		{"password over bound", Overrides{BrokerPassword: strings.Repeat("p", config.MaxBrokerFieldLen+1)}, ErrValueTooLong},
		{"address over bound", Overrides{StaticAddress: strings.Repeat("1", config.MaxAddressFieldLen+1)}, ErrValueTooLong},
		{"valid static", validStatic, nil},
		{"partial static", Overrides{StaticAddress: "192.168.1.50"}, ErrInvalidStaticAddress},
		{"bad gateway", func() Overrides { o := validStatic; o.StaticGateway = "gw"; return o }(), ErrInvalidStaticAddress},
		{"non-contiguous mask", func() Overrides { o := validStatic; o.StaticMask = "255.0.255.0"; return o }(), ErrInvalidStaticAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.o.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestOverrides_IdentityResolution(t *testing.T) {
	def := session.Identity{Host: "default.local", Username: "u"}

	got := session.ResolveIdentity(def, Overrides{BrokerUsername: "only-user"}.Identity())
	if got != def {
		t.Errorf("override without host should fall back, got %+v", got)
	}

	got = session.ResolveIdentity(def, Overrides{BrokerHost: "override.local"}.Identity())
	if got.Host != "override.local" || got.Username != "" {
		t.Errorf("ResolveIdentity() = %+v, want override host with empty username", got)
	}
}
