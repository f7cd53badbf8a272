// Package resolver decides which data centers to consult for a given
// lookup. The primary tenant always wins; the secondary is consulted only
// when the environment runs one and the primary had no answer.
package resolver

import (
	"context"
	"log/slog"

	"cdcam/internal/directory"
	"cdcam/pkg/requestcontext"
)

// Searcher is the subset of the directory client the resolver needs.
type Searcher interface {
	SearchByEmail(ctx context.Context, tenant directory.Tenant, email string) ([]directory.Account, error)
}

// Resolver performs cross-tenant account lookups.
type Resolver struct {
	search           Searcher
	logger           *slog.Logger
	primary          directory.Tenant
	secondary        directory.Tenant
	secondaryEnabled bool
}

// New builds a resolver. secondaryEnabled reflects whether the current
// environment runs the secondary data center at all.
func New(search Searcher, logger *slog.Logger, primary, secondary directory.Tenant, secondaryEnabled bool) *Resolver {
	return &Resolver{
		search:           search,
		logger:           logger,
		primary:          primary,
		secondary:        secondary,
		secondaryEnabled: secondaryEnabled,
	}
}

// Primary returns the primary tenant.
func (r *Resolver) Primary() directory.Tenant { return r.primary }

// Secondary returns the secondary tenant and whether it is enabled.
func (r *Resolver) Secondary() (directory.Tenant, bool) {
	return r.secondary, r.secondaryEnabled
}

// SearchAllTenants looks an email up in the primary tenant and, only when the
// primary has no matches, in the secondary. Results from the primary are
// never mixed with secondary results.
func (r *Resolver) SearchAllTenants(ctx context.Context, email string) ([]directory.Account, error) {
	accounts, err := r.search.SearchByEmail(ctx, r.primary, email)
	if err != nil {
		return nil, err
	}
	if len(accounts) > 0 || !r.secondaryEnabled {
		return accounts, nil
	}

	r.logger.DebugContext(ctx, "no primary match, falling back to secondary",
		"request_id", requestcontext.RequestID(ctx),
	)
	return r.search.SearchByEmail(ctx, r.secondary, email)
}

// IsEmailAvailable reports whether the email is unclaimed in every tenant
// that applies. The primary is checked first and a claim there short-circuits
// the secondary lookup.
func (r *Resolver) IsEmailAvailable(ctx context.Context, email string) (bool, error) {
	accounts, err := r.search.SearchByEmail(ctx, r.primary, email)
	if err != nil {
		return false, err
	}
	if len(accounts) > 0 {
		return false, nil
	}
	if !r.secondaryEnabled {
		return true, nil
	}

	accounts, err = r.search.SearchByEmail(ctx, r.secondary, email)
	if err != nil {
		return false, err
	}
	return len(accounts) == 0, nil
}

// PickAccount chooses the representative account from a search result: the
// first fully registered one, or the first account when none is registered.
// Returns false when the slice is empty.
func PickAccount(accounts []directory.Account) (directory.Account, bool) {
	if len(accounts) == 0 {
		return directory.Account{}, false
	}
	for _, a := range accounts {
		if a.IsRegistered {
			return a, true
		}
	}
	return accounts[0], true
}
