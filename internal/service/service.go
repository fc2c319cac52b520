// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces ownership, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services never see an *http.Request and never build SQL. They take plain Go
// values, return model types, and report failures as apperror kinds that the
// handler layer maps to status codes.
//
// PRIMARY WRITE, THEN CLEANUP:
// The database and the media store are not transactional together. Every
// operation that touches both follows the same order:
//
//  1. store any new upload
//  2. perform the database write (the primary write)
//  3. if the write failed, remove the upload from step 1
//  4. if the write succeeded, remove whatever files it made obsolete
//
// Steps 3 and 4 are best-effort: a failure is logged at Error (which also
// reports it to Sentry) and never changes the operation's result.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sakif/media-backend/internal/apperror"
	"github.com/sakif/media-backend/internal/repository"
	"github.com/sakif/media-backend/internal/storage"
)

// Pagination limits for list and search endpoints.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// pageOptions turns client-supplied skip/take into repository options.
// take <= 0 means "not specified".
func pageOptions(skip, take int) repository.ListOptions {
	if take <= 0 {
		take = DefaultListLimit
	}
	if take > MaxListLimit {
		take = MaxListLimit
	}
	if skip < 0 {
		skip = 0
	}
	return repository.ListOptions{Limit: take, Offset: skip}
}

// removeFiles deletes media files without failing the caller.
//
// The request context may already be cancelled by the time cleanup runs (the
// client got its response), so deletion runs on a context that keeps the
// request's values (Sentry hub, request id) but drops its cancellation.
//
// URLs the store does not recognise (e.g. a Google profile picture used as an
// avatar) come back as validation errors and are skipped quietly.
func removeFiles(ctx context.Context, files storage.Store, logger *slog.Logger, reason string, urls ...string) {
	ctx = context.WithoutCancel(ctx)

	for _, url := range urls {
		if url == "" {
			continue
		}
		err := files.Delete(ctx, url)
		switch {
		case err == nil:
			logger.DebugContext(ctx, "media file removed", "reason", reason, "url", url)
		case errors.Is(err, apperror.ErrValidation):
			logger.DebugContext(ctx, "skipping media url not owned by the store", "reason", reason, "url", url)
		default:
			logger.ErrorContext(ctx, "removing media file", "reason", reason, "url", url, "error", err)
		}
	}
}
