package app

import (
	"context"
	"fmt"

	"remindbot/internal/config"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// OpenStore loads the config at cfgPath and opens its store without starting
// the transport. The operator CLI uses it to inspect and edit reminders while
// the bot is stopped (the file driver is single-writer).
func OpenStore(ctx context.Context, cfgPath string, log logx.Logger) (*storage.Defaulted, error) {
	cfg, err := config.NewManager(cfgPath).Load(ctx)
	if err != nil {
		return nil, err
	}
	sc, err := storageConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	st := storage.WithDefaults(raw, cfg.Reminders.DefaultTimezone)
	if err := st.Ping(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("storage ping: %w", err)
	}
	return st, nil
}
