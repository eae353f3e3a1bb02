package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/himanishpuri/DeepQuery/pkg/models"
)

// MarkIndexed records (or refreshes) a manifest entry keyed by path.
func (c *DBClient) MarkIndexed(ctx context.Context, f models.IndexedFile) error {
	if err := c.check(); err != nil {
		return err
	}

	row := IndexedFile{
		Path:      f.Path,
		StoredAs:  f.StoredAs,
		Digest:    f.Digest,
		SizeBytes: f.SizeBytes,
	}
	err := c.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"stored_as", "digest", "size_bytes"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("recording %s in manifest: %w", f.Path, err)
	}
	return nil
}

func (c *DBClient) IsIndexed(ctx context.Context, path string) (bool, error) {
	if err := c.check(); err != nil {
		return false, err
	}
	var n int64
	if err := c.DB.WithContext(ctx).Model(&IndexedFile{}).Where("path = ?", path).Count(&n).Error; err != nil {
		return false, fmt.Errorf("checking manifest: %w", err)
	}
	return n > 0, nil
}

func (c *DBClient) UnmarkIndexed(ctx context.Context, path string) error {
	if err := c.check(); err != nil {
		return err
	}
	res := c.DB.WithContext(ctx).Where("path = ?", path).Delete(&IndexedFile{})
	if res.Error != nil {
		return fmt.Errorf("removing %s from manifest: %w", path, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotIndexed, path)
	}
	return nil
}

func (c *DBClient) ListIndexed(ctx context.Context) ([]models.IndexedFile, error) {
	if err := c.check(); err != nil {
		return nil, err
	}
	var rows []IndexedFile
	if err := c.DB.WithContext(ctx).Order("path ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing manifest: %w", err)
	}
	out := make([]models.IndexedFile, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// Aliases returns every identity under which path may appear in the engine's
// results: the name it was stored under, and the entries sharing its content digest.
func (c *DBClient) Aliases(ctx context.Context, path string) ([]string, error) {
	if err := c.check(); err != nil {
		return nil, err
	}

	var entry IndexedFile
	res := c.DB.WithContext(ctx).Where("path = ?", path).Limit(1).Find(&entry)
	if res.Error != nil {
		return nil, fmt.Errorf("looking up %s: %w", path, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	seen := map[string]bool{path: true}
	var aliases []string
	add := func(p string) {
		if p != "" && !seen[p] {
			seen[p] = true
			aliases = append(aliases, p)
		}
	}
	add(entry.StoredAs)

	if entry.Digest != "" {
		var twins []IndexedFile
		if err := c.DB.WithContext(ctx).Where("digest = ? AND path <> ?", entry.Digest, path).Find(&twins).Error; err != nil {
			return nil, fmt.Errorf("looking up digest twins: %w", err)
		}
		for _, t := range twins {
			add(t.Path)
			add(t.StoredAs)
		}
	}
	return aliases, nil
}

func (f IndexedFile) toModel() models.IndexedFile {
	return models.IndexedFile{
		Path:      f.Path,
		StoredAs:  f.StoredAs,
		Digest:    f.Digest,
		SizeBytes: f.SizeBytes,
		IndexedAt: f.CreatedAt,
	}
}
