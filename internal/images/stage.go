// Package images produces the web and mobile renditions for every
// article image that lacks them. The stage is a single sequential worker
// ordered by image_id, resumable from a checkpoint file.
package images

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/daijiong1977/news-sub002/internal/config"
	"github.com/daijiong1977/news-sub002/internal/core"
	"github.com/daijiong1977/news-sub002/internal/store"
)

// Rendition bounds and the mobile byte budget.
const (
	webMaxWidth  = 1024
	webMaxHeight = 768

	mobileMaxWidth  = 600
	mobileMaxHeight = 450
	mobileBudget    = 50 * 1024

	// floorDim is the smallest linear dimension the downscale loop will
	// go to before emitting at the floor regardless of budget.
	floorDim = 100
)

// Stage generates renditions for pending article images.
type Stage struct {
	store *store.Store
	cfg   config.Config
}

// Stats summarizes one image-stage run.
type Stats struct {
	Processed int
	Skipped   int
	Failed    int
}

// New creates an image stage over the given store and configuration.
func New(st *store.Store, cfg config.Config) *Stage {
	return &Stage{store: st, cfg: cfg}
}

// Run processes every pending image in image_id order, committing the
// row update and advancing the checkpoint after each image. Re-entry
// after a crash resumes past the checkpointed filename.
func (s *Stage) Run(ctx context.Context, log *slog.Logger) (Stats, error) {
	cp, err := loadCheckpoint(s.cfg.Data.CheckpointFile)
	if err != nil {
		return Stats{}, err
	}

	pending, err := s.store.PendingImages(cp.LastProcessedFilename)
	if err != nil {
		return Stats{}, err
	}
	log.Info("image stage starting", "pending", len(pending), "resume_after", cp.LastProcessedFilename)

	var stats Stats
	for _, img := range pending {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		mobilePath := mobileRenditionPath(img.LocalLocation)

		// A pre-existing mobile file means an earlier run finished the
		// renditions but died before the row commit.
		if _, err := os.Stat(mobilePath); err == nil {
			if err := s.store.SetImageLocations(img.ID, img.LocalLocation, mobilePath); err != nil {
				return stats, err
			}
			stats.Skipped++
			cp.advance(img.ImageName, stats)
			if err := cp.save(s.cfg.Data.CheckpointFile); err != nil {
				return stats, err
			}
			continue
		}

		if err := s.processImage(img, mobilePath); err != nil {
			stats.Failed++
			log.Warn("image failed", "image", img.ImageName, "error", err.Error())
			cp.advance(img.ImageName, stats)
			if err := cp.save(s.cfg.Data.CheckpointFile); err != nil {
				return stats, err
			}
			continue
		}

		if err := s.store.SetImageLocations(img.ID, img.LocalLocation, mobilePath); err != nil {
			return stats, err
		}
		stats.Processed++
		cp.advance(img.ImageName, stats)
		if err := cp.save(s.cfg.Data.CheckpointFile); err != nil {
			return stats, err
		}
		log.Debug("image processed", "image", img.ImageName)
	}

	log.Info("image stage complete", "processed", stats.Processed, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

// processImage writes both renditions for one image. Web first, then
// mobile: mobile path presence implies both exist.
func (s *Stage) processImage(img core.ArticleImage, mobilePath string) error {
	src, format, err := decodeFile(img.LocalLocation)
	if err != nil {
		return &core.ImageError{Reason: "decode", URL: img.LocalLocation, Err: err}
	}

	web := fitWithin(src, webMaxWidth, webMaxHeight)
	webData, err := encodeFormat(web, format)
	if err != nil {
		return &core.ImageError{Reason: "encode", URL: img.LocalLocation, Err: err}
	}
	if err := os.WriteFile(img.LocalLocation, webData, 0644); err != nil {
		return fmt.Errorf("failed to write web rendition: %w", err)
	}

	mobileData, err := encodeMobile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(mobilePath, mobileData, 0644); err != nil {
		return fmt.Errorf("failed to write mobile rendition: %w", err)
	}
	return nil
}

// mobileRenditionPath derives <stem>_mobile.webp alongside the original.
func mobileRenditionPath(localLocation string) string {
	ext := filepath.Ext(localLocation)
	return strings.TrimSuffix(localLocation, ext) + "_mobile.webp"
}
