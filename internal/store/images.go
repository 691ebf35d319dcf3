package store

import (
	"database/sql"
	"fmt"

	"github.com/daijiong1977/news-sub002/internal/core"
)

// PendingImages returns the image rows whose mobile rendition has not
// been produced, in image_id ascending order. A non-empty afterName
// resumes past the checkpointed filename.
func (s *Store) PendingImages(afterName string) ([]core.ArticleImage, error) {
	query := `
		SELECT image_id, article_id, image_name, original_url,
			COALESCE(local_location, ''), COALESCE(small_location, ''), COALESCE(new_url, '')
		FROM article_images
		WHERE small_location IS NULL`
	args := []any{}
	if afterName != "" {
		query += " AND image_name > ?"
		args = append(args, afterName)
	}
	query += " ORDER BY image_id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending images: %w", err)
	}
	defer rows.Close()

	var images []core.ArticleImage
	for rows.Next() {
		var img core.ArticleImage
		if err := rows.Scan(&img.ID, &img.ArticleID, &img.ImageName, &img.OriginalURL,
			&img.LocalLocation, &img.SmallLocation, &img.NewURL); err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// SetImageLocations records both rendition paths for an image row.
// Mobile path presence in the store implies both renditions exist on
// disk, so callers must write the files before committing here.
func (s *Store) SetImageLocations(imageID int64, webPath, mobilePath string) error {
	res, err := s.db.Exec(`
		UPDATE article_images SET local_location = ?, small_location = ?
		WHERE image_id = ?`, webPath, mobilePath, imageID)
	if err != nil {
		return &core.StoreError{Reason: "transaction", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &core.StoreError{Reason: "transaction", Err: err}
	}
	if n == 0 {
		return fmt.Errorf("image %d not found", imageID)
	}
	return nil
}

// ImageByArticle loads the image row an article points at.
func (s *Store) ImageByArticle(articleID string) (core.ArticleImage, error) {
	var img core.ArticleImage
	err := s.db.QueryRow(`
		SELECT image_id, article_id, image_name, original_url,
			COALESCE(local_location, ''), COALESCE(small_location, ''), COALESCE(new_url, '')
		FROM article_images WHERE article_id = ?`, articleID).
		Scan(&img.ID, &img.ArticleID, &img.ImageName, &img.OriginalURL,
			&img.LocalLocation, &img.SmallLocation, &img.NewURL)
	if err == sql.ErrNoRows {
		return core.ArticleImage{}, fmt.Errorf("no image for article %s", articleID)
	}
	if err != nil {
		return core.ArticleImage{}, fmt.Errorf("failed to load image for %s: %w", articleID, err)
	}
	return img, nil
}
