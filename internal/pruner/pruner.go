package pruner

// Package pruner removes old projects from the service, keeping only the newest
// ones recorded in the local history.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"jscrambler-client/internal/store"
)

// History is the part of the store the pruner needs.
type History interface {
	GetPruneCandidates(keep int) ([]store.ProjectRecord, error)
	MarkDeleted(id string) error
}

// Deleter removes a project from the service.
type Deleter interface {
	Delete(ctx context.Context, projectID string) error
}

type Pruner struct {
	history History
	deleter Deleter
	keep    int
	logger  *slog.Logger
}

func NewPruner(history History, deleter Deleter, keep int, logger *slog.Logger) *Pruner {
	if keep < 0 {
		keep = 0
	}
	return &Pruner{
		history: history,
		deleter: deleter,
		keep:    keep,
		logger:  logger,
	}
}

// Prune deletes every recorded project beyond the newest keep, oldest first.
// A failed deletion is logged and skipped; the joined failures are returned
// together with the ids that were removed.
func (p *Pruner) Prune(ctx context.Context) ([]string, error) {
	candidates, err := p.history.GetPruneCandidates(p.keep)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prune candidates: %w", err)
	}

	if len(candidates) == 0 {
		p.logger.Debug("Nothing to prune", "keep", p.keep)
		return nil, nil
	}

	p.logger.Info("Pruning projects", "candidates", len(candidates), "keep", p.keep)

	var pruned []string
	var errs []error
	for _, rec := range candidates {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		if err := p.deleter.Delete(ctx, rec.ID); err != nil {
			p.logger.Error("Failed to delete project", "project_id", rec.ID, "error", err)
			errs = append(errs, fmt.Errorf("project %s: %w", rec.ID, err))
			continue
		}

		if err := p.history.MarkDeleted(rec.ID); err != nil {
			p.logger.Error("Failed to update history", "project_id", rec.ID, "error", err)
		}
		p.logger.Info("Pruned", "project_id", rec.ID, "created_at", rec.CreatedAt)
		pruned = append(pruned, rec.ID)
	}

	return pruned, errors.Join(errs...)
}
