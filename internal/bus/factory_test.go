package bus

import (
	"path/filepath"
	"testing"

	"github.com/ricesearch/rice-chunk/internal/config"
	"github.com/ricesearch/rice-chunk/internal/pkg/errors"
	"github.com/ricesearch/rice-chunk/internal/pkg/logger"
)

func TestNewBus(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.BusConfig
		wantNil  bool
		wantType string
		wantErr  bool
	}{
		{name: "none", cfg: config.BusConfig{Type: "none"}, wantNil: true},
		{name: "empty", cfg: config.BusConfig{}, wantNil: true},
		{name: "memory", cfg: config.BusConfig{Type: "Memory"}, wantType: "memory"},
		{name: "kafka without brokers", cfg: config.BusConfig{Type: "kafka"}, wantErr: true},
		{name: "unknown", cfg: config.BusConfig{Type: "nats"}, wantErr: true},
		{
			name:     "event log only",
			cfg:      config.BusConfig{Type: "none", EventLog: filepath.Join(t.TempDir(), "events.jsonl")},
			wantType: "logged",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBus(tt.cfg, logger.Nop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBus() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.IsValidation(err) {
					t.Errorf("NewBus() error = %v, want validation error", err)
				}
				return
			}
			if tt.wantNil {
				if b != nil {
					t.Errorf("NewBus() = %T, want nil", b)
				}
				return
			}
			defer b.Close()

			switch tt.wantType {
			case "memory":
				if _, ok := b.(*MemoryBus); !ok {
					t.Errorf("NewBus() = %T, want *MemoryBus", b)
				}
			case "logged":
				if _, ok := b.(*LoggedBus); !ok {
					t.Errorf("NewBus() = %T, want *LoggedBus", b)
				}
			}
		})
	}
}
