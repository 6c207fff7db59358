// Package voterloader batches voter lookups made while rendering one response.
package voterloader

import (
	"context"
	"fmt"
	"time"

	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/repository"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"
)

// Key identifies a voter inside one tenant.
type Key struct {
	OrganizationID uuid.UUID
	VoterID        uuid.UUID
}

func (k Key) String() string {
	return k.OrganizationID.String() + "/" + k.VoterID.String()
}

func (k Key) Raw() interface{} {
	return k
}

type VoterLoader struct {
	Loader *dataloader.Loader
}

func NewVoterLoader(repo repository.VoterRepository) *VoterLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		// Group ids by tenant so every query stays tenant scoped.
		byOrg := make(map[uuid.UUID][]uuid.UUID)
		parsed := make([]Key, len(keys))
		for i, k := range keys {
			key, ok := k.Raw().(Key)
			if !ok {
				return errorResults(len(keys), fmt.Errorf("invalid voter key %q", k.String()))
			}
			parsed[i] = key
			byOrg[key.OrganizationID] = append(byOrg[key.OrganizationID], key.VoterID)
		}

		found := make(map[Key]domain.Voter, len(keys))
		for orgID, ids := range byOrg {
			voters, err := repo.GetByIDs(ctx, orgID, ids)
			if err != nil {
				return errorResults(len(keys), err)
			}
			for _, v := range voters {
				found[Key{OrganizationID: orgID, VoterID: v.ID}] = v
			}
		}

		// Build results in the same order as keys
		results := make([]*dataloader.Result, len(keys))
		for i, key := range parsed {
			if v, ok := found[key]; ok {
				results[i] = &dataloader.Result{Data: v}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &VoterLoader{Loader: loader}
}

// Load resolves one voter. A missing voter yields (nil, nil).
func (l *VoterLoader) Load(ctx context.Context, organizationID, voterID uuid.UUID) (*domain.Voter, error) {
	data, err := l.Loader.Load(ctx, Key{OrganizationID: organizationID, VoterID: voterID})()
	if err != nil {
		return nil, err
	}
	v, ok := data.(domain.Voter)
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func errorResults(n int, err error) []*dataloader.Result {
	results := make([]*dataloader.Result, n)
	for i := range results {
		results[i] = &dataloader.Result{Error: err}
	}
	return results
}
