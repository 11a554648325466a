package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/ritual/internal/model"
)

// AutoBackupKey holds the auto-backup configuration as plain JSON.
const AutoBackupKey = "auto_backup_config"

var frequencies = map[string]time.Duration{
	model.FrequencyDaily:   24 * time.Hour,
	model.FrequencyWeekly:  7 * 24 * time.Hour,
	model.FrequencyMonthly: 30 * 24 * time.Hour,
}

// AutoBackupConfig returns the stored auto-backup configuration, or the
// defaults when none is stored or it cannot be read.
func (m *Manager) AutoBackupConfig(ctx context.Context) (model.BackupConfig, error) {
	def := model.DefaultBackupConfig()
	def.MaxBackups = m.cfg.MaxBackups

	raw, err := m.kv.Get(ctx, AutoBackupKey)
	if err != nil {
		return def, err
	}
	if raw == nil {
		return def, nil
	}
	var cfg model.BackupConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		m.logger.Warn("auto-backup config unreadable, using defaults", "error", err)
		return def, nil
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = def.MaxBackups
	}
	if _, ok := frequencies[cfg.Frequency]; !ok {
		cfg.Frequency = def.Frequency
	}
	return cfg, nil
}

// ConfigureAutoBackup validates and stores cfg.
func (m *Manager) ConfigureAutoBackup(ctx context.Context, cfg model.BackupConfig) error {
	fields := model.FieldErrors{}
	if _, ok := frequencies[cfg.Frequency]; !ok {
		fields["frequency"] = "Invalid backup frequency"
	}
	if cfg.MaxBackups < 1 {
		fields["maxBackups"] = "Must keep at least one backup"
	}
	if len(fields) > 0 {
		return &model.ValidationError{Fields: fields}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode auto-backup config: %w", err)
	}
	if err := m.kv.Set(ctx, AutoBackupKey, raw); err != nil {
		return err
	}
	m.logger.Info("auto-backup configured", "enabled", cfg.AutoBackup, "frequency", cfg.Frequency, "max_backups", cfg.MaxBackups)
	return nil
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	done := m.done
	interval := m.cfg.CheckInterval
	m.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkSchedule(ctx)
			}
		}
	}()
}

// Stop gracefully stops the scheduled backup loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// checkSchedule creates a backup when auto-backup is on and the newest
// backup is older than the configured frequency.
func (m *Manager) checkSchedule(ctx context.Context) {
	due, err := m.backupDue(ctx)
	if err != nil {
		m.logger.Error("auto-backup check failed", "error", err)
		return
	}
	if !due {
		return
	}
	if _, err := m.CreateFullBackup(ctx); err != nil {
		m.logger.Error("scheduled backup failed", "error", err)
	}
}

func (m *Manager) backupDue(ctx context.Context) (bool, error) {
	cfg, err := m.AutoBackupConfig(ctx)
	if err != nil {
		return false, err
	}
	if !cfg.AutoBackup {
		return false, nil
	}

	list, err := m.index.List(ctx)
	if err != nil {
		return false, err
	}
	if len(list) == 0 {
		return true, nil
	}
	return m.cfg.Now().Sub(list[0].CreatedAt) >= frequencies[cfg.Frequency], nil
}
