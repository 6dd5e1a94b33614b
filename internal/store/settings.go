package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/model"
)

type SettingsStore struct {
	kv *kv.Store
}

func NewSettingsStore(kv *kv.Store) *SettingsStore {
	return &SettingsStore{kv: kv}
}

// Get returns the saved settings, or the defaults if nothing was saved yet.
func (s *SettingsStore) Get(ctx context.Context) (model.Settings, error) {
	settings := model.DefaultSettings()
	if _, err := s.kv.Get(ctx, kv.KeySettings, &settings); err != nil {
		return model.Settings{}, fmt.Errorf("get settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsStore) Update(ctx context.Context, p model.SettingsPatch) (model.Settings, error) {
	if err := apperr.Validate(p); err != nil {
		return model.Settings{}, err
	}
	settings, err := s.Get(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	p.Apply(&settings)
	if err := s.kv.Put(ctx, kv.KeySettings, settings); err != nil {
		return model.Settings{}, fmt.Errorf("update settings: %w", err)
	}
	return settings, nil
}

// Reset restores the defaults.
func (s *SettingsStore) Reset(ctx context.Context) (model.Settings, error) {
	if err := s.kv.Delete(ctx, kv.KeySettings); err != nil {
		return model.Settings{}, fmt.Errorf("reset settings: %w", err)
	}
	return model.DefaultSettings(), nil
}
