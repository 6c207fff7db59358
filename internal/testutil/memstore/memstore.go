// Package memstore is an in-memory repository.Store for service tests. Each
// WithTx works on a copy of the state that is swapped in only on success, so
// rollback behaviour matches the Postgres store.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/repository"

	"github.com/google/uuid"
)

// Interaction is the slice of an interaction row merges care about.
type Interaction struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	VoterID        uuid.UUID
}

// ListMember is the slice of a list membership row merges care about.
type ListMember struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	ListID         uuid.UUID
	VoterID        uuid.UUID
}

// QueuedMessage is a message captured by the fake job queue.
type QueuedMessage struct {
	ID       uuid.UUID
	JobName  string
	TenantID uuid.UUID
	Payload  json.RawMessage
}

type state struct {
	orgs         map[uuid.UUID]domain.Organization
	voters       map[uuid.UUID]domain.Voter
	jobs         map[uuid.UUID]domain.ImportJob
	alerts       map[uuid.UUID]domain.MergeAlert
	interactions map[uuid.UUID]Interaction
	listMembers  map[uuid.UUID]ListMember
	audit        []domain.AuditLogEntry
	queue        []QueuedMessage
}

func newState() *state {
	return &state{
		orgs:         map[uuid.UUID]domain.Organization{},
		voters:       map[uuid.UUID]domain.Voter{},
		jobs:         map[uuid.UUID]domain.ImportJob{},
		alerts:       map[uuid.UUID]domain.MergeAlert{},
		interactions: map[uuid.UUID]Interaction{},
		listMembers:  map[uuid.UUID]ListMember{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for k, v := range s.orgs {
		out.orgs[k] = v
	}
	for k, v := range s.voters {
		out.voters[k] = v
	}
	for k, v := range s.jobs {
		out.jobs[k] = v
	}
	for k, v := range s.alerts {
		out.alerts[k] = v
	}
	for k, v := range s.interactions {
		out.interactions[k] = v
	}
	for k, v := range s.listMembers {
		out.listMembers[k] = v
	}
	out.audit = append([]domain.AuditLogEntry(nil), s.audit...)
	out.queue = append([]QueuedMessage(nil), s.queue...)
	return out
}

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.Mutex
	state *state
	clock time.Time

	// Commits counts successful WithTx calls.
	Commits int
	// Rollbacks counts WithTx calls that returned an error.
	Rollbacks int

	// FailUpsert, when set, is consulted before every imported-voter upsert.
	FailUpsert func(domain.Voter) error
	// FailEnqueue, when set, is returned from every enqueue.
	FailEnqueue error
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store whose clock starts at a fixed instant.
func New() *Store {
	return &Store{
		state: newState(),
		clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// now advances a deterministic clock so ordering by timestamp is stable. Callers hold mu.
func (s *Store) now() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *Store) Repos() repository.Repositories {
	return s.repos(nil)
}

func (s *Store) WithTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(s.repos(working)); err != nil {
		s.Rollbacks++
		return err
	}
	s.state = working
	s.Commits++
	return nil
}

func (s *Store) repos(tx *state) repository.Repositories {
	b := base{store: s, tx: tx}
	return repository.Repositories{
		Organizations: orgRepo{b},
		Voters:        voterRepo{b},
		ImportJobs:    jobRepo{b},
		MergeAlerts:   alertRepo{b},
		Interactions:  interactionRepo{b},
		ListMembers:   listMemberRepo{b},
		AuditLogs:     auditRepo{b},
		Queue:         queueRepo{b},
	}
}

// base routes an operation to the transaction copy, or to the committed
// state under the store lock.
type base struct {
	store *Store
	tx    *state
}

func (b base) with(fn func(st *state) error) error {
	if b.tx != nil {
		return fn(b.tx)
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	return fn(b.store.state)
}

// SeedOrganization inserts a tenant and returns it.
func (s *Store) SeedOrganization(name string) domain.Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	org := domain.Organization{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.state.orgs[org.ID] = org
	return org
}

// SeedVoter inserts a voter as-is, filling id and timestamps when empty.
func (s *Store) SeedVoter(v domain.Voter) domain.Voter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	now := s.now()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	s.state.voters[v.ID] = v
	return v
}

// SeedImportJob inserts a job as-is, filling id and timestamps when empty.
func (s *Store) SeedImportJob(job domain.ImportJob) domain.ImportJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	s.state.jobs[job.ID] = job
	return job
}

// AddInteraction records an interaction against voterID.
func (s *Store) AddInteraction(organizationID, voterID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.state.interactions[id] = Interaction{ID: id, OrganizationID: organizationID, VoterID: voterID}
	return id
}

// AddListMember records a list membership for voterID.
func (s *Store) AddListMember(organizationID, listID, voterID uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.state.listMembers[id] = ListMember{ID: id, OrganizationID: organizationID, ListID: listID, VoterID: voterID}
	return id
}

// Voter returns the committed voter row.
func (s *Store) Voter(id uuid.UUID) (domain.Voter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state.voters[id]
	return v, ok
}

// VotersByOrganization returns committed voters of one tenant ordered by external id.
func (s *Store) VotersByOrganization(organizationID uuid.UUID) []domain.Voter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Voter{}
	for _, v := range s.state.voters {
		if v.OrganizationID == organizationID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return deref(out[i].ExternalID) < deref(out[j].ExternalID)
	})
	return out
}

// ImportJob returns the committed job row.
func (s *Store) ImportJob(id uuid.UUID) (domain.ImportJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.state.jobs[id]
	return j, ok
}

// Alerts returns committed alerts of one tenant ordered by creation.
func (s *Store) Alerts(organizationID uuid.UUID) []domain.MergeAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.MergeAlert{}
	for _, a := range s.state.alerts {
		if a.OrganizationID == organizationID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Interaction returns the committed interaction row.
func (s *Store) Interaction(id uuid.UUID) (Interaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.state.interactions[id]
	return i, ok
}

// ListMember returns the committed membership row.
func (s *Store) ListMember(id uuid.UUID) (ListMember, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.state.listMembers[id]
	return m, ok
}

// AuditLogs returns committed audit entries in insertion order.
func (s *Store) AuditLogs() []domain.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditLogEntry(nil), s.state.audit...)
}

// Queued returns committed queue messages in insertion order.
func (s *Store) Queued() []QueuedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QueuedMessage(nil), s.state.queue...)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
