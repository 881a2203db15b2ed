package config

import (
	"context"
	"fmt"

	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/pkg/loader"
	s3source "github.com/marmos91/staticd/pkg/loader/s3"
)

// CreateSource builds the file origin selected by origin.type.
func CreateSource(ctx context.Context, cfg *Config) (loader.Source, error) {
	switch cfg.Origin.Type {
	case OriginDir, "":
		src, err := loader.NewDirSource(cfg.Server.StaticDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open static directory: %w", err)
		}
		logger.Info("Origin configured", logger.Source(src.Name()), "root", src.Root())
		return src, nil

	case OriginS3:
		s3cfg := cfg.Origin.S3
		src, err := s3source.NewFromConfig(ctx, s3source.Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			KeyPrefix:       s3cfg.KeyPrefix,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			ForcePathStyle:  s3cfg.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 origin: %w", err)
		}
		logger.Info("Origin configured", logger.Source(src.Name()),
			"bucket", s3cfg.Bucket, "prefix", s3cfg.KeyPrefix)
		return src, nil

	default:
		return nil, fmt.Errorf("unknown origin type: %q", cfg.Origin.Type)
	}
}

// Describe returns a short human-readable origin, e.g. "dir:/srv/www" or
// "s3://bucket/prefix".
func (o OriginConfig) Describe(staticDir string) string {
	if o.Type == OriginS3 {
		return "s3://" + o.S3.Bucket + "/" + o.S3.KeyPrefix
	}
	return "dir:" + staticDir
}
