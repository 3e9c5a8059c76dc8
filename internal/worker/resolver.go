package worker

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"tabimport/internal/jobs"
	"tabimport/internal/mapping"
	"tabimport/internal/rowprocessor"
	"tabimport/internal/target"
	"tabimport/internal/templates"
)

// Resolver picks the Mapping Configuration and target repositories for
// a job: the built-in vehicle preset when the job carries no
// template_id, or the template's persisted Mapping Configuration
// otherwise.
type Resolver struct {
	Pool      *pgxpool.Pool
	Templates *templates.Store
}

func NewResolver(pool *pgxpool.Pool, templateStore *templates.Store) *Resolver {
	return &Resolver{Pool: pool, Templates: templateStore}
}

func (r *Resolver) Resolve(ctx context.Context, job *jobs.Job) (*mapping.Config, rowprocessor.Target, error) {
	if job.TemplateID == nil {
		cfg := mapping.Vehicle()
		repo := target.NewVehicleRepository(r.Pool, job.ID)
		return cfg, rowprocessor.Target{Repo: repo}, nil
	}

	tmpl, err := r.Templates.Get(ctx, *job.TemplateID)
	if err != nil {
		return nil, rowprocessor.Target{}, fmt.Errorf("worker: resolve template %s: %w", job.TemplateID, err)
	}

	generic := target.NewGenericRepository(r.Pool, job.ID, tmpl.Mapping)
	if err := generic.EnsureTable(ctx, tmpl.Name); err != nil {
		return nil, rowprocessor.Target{}, fmt.Errorf("worker: ensure target table: %w", err)
	}

	var lookup target.LookupRepository
	for _, col := range tmpl.Mapping.Columns {
		if col.Type == mapping.TypeFK {
			lookup = generic
			break
		}
	}
	return tmpl.Mapping, rowprocessor.Target{Repo: generic, Lookup: lookup}, nil
}
