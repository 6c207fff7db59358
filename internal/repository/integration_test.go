package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rpattn/canvass/internal/db"
	"github.com/rpattn/canvass/internal/domain"
	"github.com/rpattn/canvass/internal/ingestion"
	"github.com/rpattn/canvass/internal/queue"
	"github.com/rpattn/canvass/internal/repository"
	"github.com/rpattn/canvass/internal/storage"
)

// startPostgres boots a throwaway Postgres with the schema applied. Set
// CANVASS_INTEGRATION=1 to run these tests.
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() || os.Getenv("CANVASS_INTEGRATION") == "" {
		t.Skip("set CANVASS_INTEGRATION=1 to run postgres integration tests")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "canvass",
				"POSTGRES_PASSWORD": "canvass",
				"POSTGRES_DB":       "canvass",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := db.Config{
		Host:     host,
		Port:     portNum,
		User:     "canvass",
		Password: "canvass",
		DBName:   "canvass",
		SSLMode:  "disable",
	}
	require.NoError(t, db.RunMigrations(cfg.URL(), "up"))

	conn, err := db.NewConnection(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(conn.Close)
	return conn.Pool
}

func seedOrg(t *testing.T, repos repository.Repositories, name string) domain.Organization {
	t.Helper()
	org, err := domain.NewOrganization(name, "")
	require.NoError(t, err)
	org, err = repos.Organizations.Create(context.Background(), org)
	require.NoError(t, err)
	return org
}

func importedVoter(orgID uuid.UUID, externalID, phone string) domain.Voter {
	return domain.Voter{
		OrganizationID: orgID,
		ExternalID:     domain.StringPtr(externalID),
		FirstName:      "Imported",
		LastName:       externalID,
		Phone:          domain.StringPtr(phone),
		Address:        "1 Main St",
		City:           "Indianapolis",
		State:          "IN",
		Zip:            "46204",
	}
}

func TestPostgresRepositories(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	store := repository.NewStore(pool, queue.NewPublisher(queue.DefaultTable))
	repos := store.Repos()
	org := seedOrg(t, repos, "Ward 7")
	other := seedOrg(t, repos, "Ward 8")

	t.Run("upsert reports insert then update", func(t *testing.T) {
		first, inserted, err := repos.Voters.UpsertImported(ctx, importedVoter(org.ID, "IMP-1", "555-1111"))
		require.NoError(t, err)
		assert.True(t, inserted)

		changed := importedVoter(org.ID, "IMP-1", "555-1111")
		changed.FirstName = "Updated"
		second, inserted, err := repos.Voters.UpsertImported(ctx, changed)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Updated", second.FirstName)
		assert.Equal(t, domain.VoterSourceImport, second.Source)

		_, inserted, err = repos.Voters.UpsertImported(ctx, importedVoter(other.ID, "IMP-1", "555-1111"))
		require.NoError(t, err)
		assert.True(t, inserted, "external ids are unique per tenant")
	})

	t.Run("phone matches and alert uniqueness", func(t *testing.T) {
		lead, err := repos.Voters.CreateManual(ctx, domain.Voter{
			OrganizationID: org.ID,
			FirstName:      "Dana",
			LastName:       "Reyes",
			Phone:          domain.StringPtr("555-1111"),
			Address:        "Unknown",
			City:           "Unknown",
			State:          "NA",
			Zip:            "00000",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.VoterSourceManual, lead.Source)

		matches, err := repos.Voters.ListImportedByPhone(ctx, org.ID, "555-1111")
		require.NoError(t, err)
		require.Len(t, matches, 1)

		alert := domain.NewMergeAlert(org.ID, lead.ID, matches[0].ID, domain.MergeAlertReasonPhoneMatch)
		inserted, err := repos.MergeAlerts.CreateIfAbsent(ctx, alert)
		require.NoError(t, err)
		assert.True(t, inserted)

		again := domain.NewMergeAlert(org.ID, lead.ID, matches[0].ID, domain.MergeAlertReasonPhoneMatch)
		inserted, err = repos.MergeAlerts.CreateIfAbsent(ctx, again)
		require.NoError(t, err)
		assert.False(t, inserted)

		_, ok, err := repos.MergeAlerts.UpdateStatus(ctx, org.ID, alert.ID, domain.MergeAlertStatusOpen, domain.MergeAlertStatusDismissed)
		require.NoError(t, err)
		assert.True(t, ok)
		_, ok, err = repos.MergeAlerts.UpdateStatus(ctx, org.ID, alert.ID, domain.MergeAlertStatusOpen, domain.MergeAlertStatusResolved)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list member reassignment drops duplicates", func(t *testing.T) {
		target, _, err := repos.Voters.UpsertImported(ctx, importedVoter(org.ID, "IMP-9", "555-9999"))
		require.NoError(t, err)
		lead, err := repos.Voters.CreateManual(ctx, domain.Voter{
			OrganizationID: org.ID, FirstName: "L", LastName: "M",
			Address: "Unknown", City: "Unknown", State: "NA", Zip: "00000",
		})
		require.NoError(t, err)

		shared, own := uuid.New(), uuid.New()
		for _, list := range []uuid.UUID{shared, own} {
			_, err := pool.Exec(ctx, `INSERT INTO lists (id, organization_id, name) VALUES ($1, $2, 'walk')`, list, org.ID)
			require.NoError(t, err)
		}
		insertMember := func(list, voter uuid.UUID) uuid.UUID {
			id := uuid.New()
			_, err := pool.Exec(ctx, `INSERT INTO list_members (id, organization_id, list_id, voter_id) VALUES ($1, $2, $3, $4)`, id, org.ID, list, voter)
			require.NoError(t, err)
			return id
		}
		insertMember(shared, target.ID)
		dup := insertMember(shared, lead.ID)
		kept := insertMember(own, lead.ID)

		interaction := uuid.New()
		_, err = pool.Exec(ctx, `INSERT INTO interactions (id, organization_id, voter_id, outcome) VALUES ($1, $2, $3, 'contacted')`, interaction, org.ID, lead.ID)
		require.NoError(t, err)

		err = store.WithTx(ctx, func(tx repository.Repositories) error {
			ids, err := tx.Interactions.ReassignVoter(ctx, org.ID, lead.ID, target.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, []uuid.UUID{interaction}, ids)

			moved, dropped, err := tx.ListMembers.ReassignVoter(ctx, org.ID, lead.ID, target.ID)
			if err != nil {
				return err
			}
			assert.Equal(t, []uuid.UUID{kept}, moved)
			assert.Equal(t, []uuid.UUID{dup}, dropped)
			return tx.Voters.MarkMerged(ctx, org.ID, lead.ID, target.ID)
		})
		require.NoError(t, err)

		merged, err := repos.Voters.GetByID(ctx, org.ID, lead.ID)
		require.NoError(t, err)
		require.NotNil(t, merged.MergedIntoVoterID)
		assert.Equal(t, target.ID, *merged.MergedIntoVoterID)
	})

	t.Run("job transitions and outbox rollback", func(t *testing.T) {
		errBoom := errors.New("boom")
		var jobID uuid.UUID
		err := store.WithTx(ctx, func(tx repository.Repositories) error {
			job, err := tx.ImportJobs.Create(ctx, domain.ImportJob{
				OrganizationID: org.ID,
				Type:           domain.ImportJobTypeVoters,
				Status:         domain.ImportJobStatusPending,
			})
			if err != nil {
				return err
			}
			jobID = job.ID
			if _, err := tx.Queue.Enqueue(ctx, "voter_import", org.ID, json.RawMessage(`{}`)); err != nil {
				return err
			}
			return errBoom
		})
		require.ErrorIs(t, err, errBoom)
		_, err = repos.ImportJobs.GetByID(ctx, org.ID, jobID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		var queued int
		require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM queue_jobs`).Scan(&queued))
		assert.Zero(t, queued)

		job, err := repos.ImportJobs.Create(ctx, domain.ImportJob{
			OrganizationID: org.ID,
			Type:           domain.ImportJobTypeVoters,
			Status:         domain.ImportJobStatusPending,
		})
		require.NoError(t, err)

		_, err = repos.ImportJobs.MarkProcessing(ctx, org.ID, job.ID)
		require.NoError(t, err)
		_, err = repos.ImportJobs.MarkProcessing(ctx, org.ID, job.ID)
		assert.ErrorIs(t, err, repository.ErrImportJobStatusConflict)

		require.NoError(t, repos.ImportJobs.UpdateProgress(ctx, org.ID, job.ID, domain.ImportProgress{
			Phase: domain.ImportPhaseImporting, RowsProcessed: 10, TotalRows: 20,
		}))
		require.NoError(t, repos.ImportJobs.MarkFailed(ctx, org.ID, job.ID, "boom"))

		failed, err := repos.ImportJobs.GetByID(ctx, org.ID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ImportJobStatusFailed, failed.Status)
		assert.Equal(t, 10, failed.Metadata.RowsProcessed)
		require.NotNil(t, failed.Error)
		assert.Equal(t, "boom", *failed.Error)
	})

	t.Run("file import stores cleaned values", func(t *testing.T) {
		ward := seedOrg(t, repos, "Ward 9")
		objects, err := storage.NewFilesystemStore(t.TempDir())
		require.NoError(t, err)
		key := storage.ImportKey(ward.ID, "voters.csv")
		require.NoError(t, objects.Put(ctx, key, []byte("VOTER ID,FIRST NAME,LAST NAME,AGE,PHONE,LATITUDE\n"+
			"V1,Jos\xe9,O\x00Brien,3000000000,555-7777,NaN\n"), "text/csv"))

		job, err := ingestion.NewSubmitter(store).Submit(ctx, ingestion.SubmitRequest{TenantID: ward.ID, FileKey: key})
		require.NoError(t, err)

		service := ingestion.NewService(store, ingestion.WithObjectStore(objects), ingestion.WithRandom(func() float64 { return 0.5 }))
		require.NoError(t, service.Run(ctx, ingestion.Payload{JobID: job.ID, TenantID: ward.ID, FileKey: key}))

		done, err := repos.ImportJobs.GetByID(ctx, ward.ID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ImportJobStatusCompleted, done.Status)
		assert.Len(t, done.Metadata.FileHash, 64)

		voters, err := repos.Voters.ListImportedByPhone(ctx, ward.ID, "555-7777")
		require.NoError(t, err)
		require.Len(t, voters, 1)
		assert.Equal(t, "Jos\uFFFD", voters[0].FirstName)
		assert.Equal(t, "OBrien", voters[0].LastName)
		assert.Nil(t, voters[0].Age)
		assert.InDelta(t, 39.7684, voters[0].Latitude, 1e-9)

		_, err = ingestion.NewSubmitter(store).Submit(ctx, ingestion.SubmitRequest{TenantID: other.ID, FileKey: key})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}
