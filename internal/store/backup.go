package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/larder/internal/apperr"
	"github.com/dukerupert/larder/internal/kv"
	"github.com/dukerupert/larder/internal/model"
)

// BackupStore is the local catalog of uploaded backups, newest first.
type BackupStore struct {
	kv  *kv.Store
	now func() time.Time
}

func NewBackupStore(kv *kv.Store) *BackupStore {
	return &BackupStore{kv: kv, now: time.Now}
}

func (s *BackupStore) Create(ctx context.Context, key string) (*model.Backup, error) {
	b := model.Backup{
		ID:        uuid.NewString(),
		Key:       key,
		Status:    model.BackupStatusPending,
		StartedAt: s.now().UTC(),
	}
	_, err := kv.Update(ctx, s.kv, kv.KeyBackups, func(list *[]model.Backup) error {
		*list = append([]model.Backup{b}, *list...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create backup: %w", err)
	}
	return &b, nil
}

func (s *BackupStore) Get(ctx context.Context, id string) (*model.Backup, error) {
	all, err := load[model.Backup](ctx, s.kv, kv.KeyBackups)
	if err != nil {
		return nil, fmt.Errorf("get backup: %w", err)
	}
	for _, b := range all {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, apperr.NotFound("backup", id)
}

func (s *BackupStore) List(ctx context.Context, limit int) ([]model.Backup, error) {
	all, err := load[model.Backup](ctx, s.kv, kv.KeyBackups)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *BackupStore) update(ctx context.Context, id string, fn func(*model.Backup)) error {
	_, err := kv.Update(ctx, s.kv, kv.KeyBackups, func(list *[]model.Backup) error {
		for i := range *list {
			if (*list)[i].ID == id {
				fn(&(*list)[i])
				return nil
			}
		}
		return apperr.NotFound("backup", id)
	})
	return err
}

func (s *BackupStore) UpdateStatus(ctx context.Context, id string, status model.BackupStatus, errMsg string) error {
	err := s.update(ctx, id, func(b *model.Backup) {
		b.Status = status
		b.ErrorMessage = errMsg
	})
	if err != nil {
		return fmt.Errorf("update backup status: %w", err)
	}
	return nil
}

func (s *BackupStore) UpdateCompleted(ctx context.Context, id string, sizeBytes int64, records int) error {
	now := s.now().UTC()
	err := s.update(ctx, id, func(b *model.Backup) {
		b.Status = model.BackupStatusCompleted
		b.SizeBytes = sizeBytes
		b.Records = records
		b.ErrorMessage = ""
		b.CompletedAt = &now
	})
	if err != nil {
		return fmt.Errorf("complete backup: %w", err)
	}
	return nil
}

// LastCompleted returns the newest completed backup, or nil.
func (s *BackupStore) LastCompleted(ctx context.Context) (*model.Backup, error) {
	all, err := load[model.Backup](ctx, s.kv, kv.KeyBackups)
	if err != nil {
		return nil, fmt.Errorf("last backup: %w", err)
	}
	for _, b := range all {
		if b.Status == model.BackupStatusCompleted {
			return &b, nil
		}
	}
	return nil, nil
}

// DeleteOlderThan drops catalog entries started before the cutoff and
// returns their object keys.
func (s *BackupStore) DeleteOlderThan(ctx context.Context, before time.Time) ([]string, error) {
	var keys []string
	_, err := kv.Update(ctx, s.kv, kv.KeyBackups, func(list *[]model.Backup) error {
		*list = slices.DeleteFunc(*list, func(b model.Backup) bool {
			if b.StartedAt.Before(before) {
				keys = append(keys, b.Key)
				return true
			}
			return false
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("delete old backups: %w", err)
	}
	return keys, nil
}
