package jobstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	docerrors "github.com/cuemby/docpipe/pkg/errors"
	"github.com/cuemby/docpipe/pkg/types"
)

var (
	bucketJobs           = []byte("jobs")
	bucketJobsByTenant   = []byte("jobs_by_tenant")   // tenantID\x00createdAt\x00jobID -> jobID
	bucketJobsByStatus   = []byte("jobs_by_status")   // status\x00jobID -> jobID
	bucketTenants        = []byte("tenants")
	bucketTenantsByEmail = []byte("tenants_by_email") // email -> tenantID
	bucketPlans          = []byte("plans")
	bucketAPIKeys        = []byte("api_keys")
	bucketAPIKeysByHash  = []byte("api_keys_by_hash") // hash -> keyID
)

// BoltStore implements Store on top of a single bbolt database file. The
// (tenant_id, created_at) and (status) indexes are plain buckets holding
// composite keys that point back at the primary jobs bucket, following the
// teacher's one-bucket-per-entity layout. There is no (tenant_id, status)
// bucket: a per-tenant status filter is applied while scanning
// jobs_by_tenant.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database under dataDir and
// ensures every bucket this store uses exists.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "docpipe.db")

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketJobs, bucketJobsByTenant, bucketJobsByStatus,
			bucketTenants, bucketTenantsByEmail,
			bucketPlans,
			bucketAPIKeys, bucketAPIKeysByHash,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func tenantIndexKey(tenantID string, createdAt time.Time, jobID string) []byte {
	return []byte(tenantID + "\x00" + createdAt.UTC().Format(time.RFC3339Nano) + "\x00" + jobID)
}

func statusIndexKey(status types.JobStatus, jobID string) []byte {
	return []byte(string(status) + "\x00" + jobID)
}

// CreateJob persists a new job and its tenant/status index entries.
func (s *BoltStore) CreateJob(job *types.Job) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketJobs).Put([]byte(job.ID), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketJobsByTenant).Put(tenantIndexKey(job.TenantID, job.CreatedAt, job.ID), []byte(job.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketJobsByStatus).Put(statusIndexKey(job.Status, job.ID), []byte(job.ID))
	})
}

func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var job types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id))
		if data == nil {
			return docerrors.E("jobstore.GetJob", docerrors.NotFound, nil)
		}
		return json.Unmarshal(data, &job)
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *BoltStore) ListJobsByTenant(tenantID string, filter ListFilter) ([]*types.Job, error) {
	var all []*types.Job
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		c := tx.Bucket(bucketJobsByTenant).Cursor()
		prefix := []byte(tenantID + "\x00")
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			data := b.Get(v)
			if data == nil {
				continue
			}
			var job types.Job
			if err := json.Unmarshal(data, &job); err != nil {
				return err
			}
			if filter.Status != "" && job.Status != filter.Status {
				continue
			}
			if filter.Kind != "" && job.Kind != filter.Kind {
				continue
			}
			all = append(all, &job)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Index iterates ascending by created_at; the contract wants desc.
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	offset := filter.Offset
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *BoltStore) CountJobsInPeriod(tenantID string, since time.Time) (int, error) {
	count := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketJobsByTenant).Cursor()
		prefix := []byte(tenantID + "\x00" + since.UTC().Format(time.RFC3339Nano))
		tenantPrefix := []byte(tenantID + "\x00")
		for k, _ := c.Seek(prefix); k != nil && hasPrefix(k, tenantPrefix); k, _ = c.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func hasPrefix(b, prefix []byte) bool {
	if len(b) < len(prefix) {
		return false
	}
	for i := range prefix {
		if b[i] != prefix[i] {
			return false
		}
	}
	return true
}

// updateJobStatus is the shared implementation behind StartJob, CompleteJob,
// FailJob and CancelJob: read-check-write inside one transaction, with the
// expected-current-status guard that makes the transition optimistic.
func (s *BoltStore) updateJobStatus(jobID string, expected types.JobStatus, mutate func(job *types.Job)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(jobID))
		if data == nil {
			return docerrors.E("jobstore.updateJobStatus", docerrors.NotFound, nil)
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if job.Status != expected {
			return docerrors.E("jobstore.updateJobStatus", docerrors.InvalidInput,
				fmt.Errorf("job %s is %s, expected %s", jobID, job.Status, expected))
		}

		oldStatusKey := statusIndexKey(job.Status, job.ID)
		mutate(&job)

		newData, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(jobID), newData); err != nil {
			return err
		}
		statusBucket := tx.Bucket(bucketJobsByStatus)
		if err := statusBucket.Delete(oldStatusKey); err != nil {
			return err
		}
		return statusBucket.Put(statusIndexKey(job.Status, job.ID), []byte(job.ID))
	})
}

func (s *BoltStore) StartJob(jobID string, startedAt time.Time) error {
	return s.updateJobStatus(jobID, types.JobPending, func(job *types.Job) {
		job.Status = types.JobProcessing
		job.StartedAt = startedAt
	})
}

func (s *BoltStore) CompleteJob(jobID string, completedAt time.Time, outputPaths []string, outputName string, outputSize int64, resultData types.ResultData) error {
	return s.updateJobStatus(jobID, types.JobProcessing, func(job *types.Job) {
		job.Status = types.JobCompleted
		job.CompletedAt = completedAt
		job.OutputPaths = outputPaths
		job.OutputName = outputName
		job.OutputSize = outputSize
		job.ResultData = resultData
		job.ProcessingTimeMs = completedAt.Sub(job.StartedAt).Milliseconds()
	})
}

func (s *BoltStore) FailJob(jobID string, completedAt time.Time, errKind, errMessage string) error {
	return s.updateJobStatus(jobID, types.JobProcessing, func(job *types.Job) {
		job.Status = types.JobFailed
		job.CompletedAt = completedAt
		job.ErrorKind = errKind
		job.ErrorMessage = errMessage
		job.ProcessingTimeMs = completedAt.Sub(job.StartedAt).Milliseconds()
	})
}

func (s *BoltStore) CancelJob(jobID string, completedAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(jobID))
		if data == nil {
			return docerrors.E("jobstore.CancelJob", docerrors.NotFound, nil)
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if !job.Status.CanTransition(types.JobCancelled) {
			return docerrors.E("jobstore.CancelJob", docerrors.InvalidInput,
				fmt.Errorf("job %s in status %s cannot be cancelled", jobID, job.Status))
		}

		oldStatusKey := statusIndexKey(job.Status, job.ID)
		job.Status = types.JobCancelled
		job.CompletedAt = completedAt

		newData, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(jobID), newData); err != nil {
			return err
		}
		statusBucket := tx.Bucket(bucketJobsByStatus)
		if err := statusBucket.Delete(oldStatusKey); err != nil {
			return err
		}
		return statusBucket.Put(statusIndexKey(job.Status, job.ID), []byte(job.ID))
	})
}

func (s *BoltStore) DeleteJob(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		data := b.Get([]byte(id))
		if data == nil {
			return nil
		}
		var job types.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		if err := b.Delete([]byte(id)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketJobsByTenant).Delete(tenantIndexKey(job.TenantID, job.CreatedAt, job.ID)); err != nil {
			return err
		}
		return tx.Bucket(bucketJobsByStatus).Delete(statusIndexKey(job.Status, job.ID))
	})
}

func (s *BoltStore) DeleteTenantJobs(tenantID string) ([]*types.Job, error) {
	var deleted []*types.Job
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		tenantBucket := tx.Bucket(bucketJobsByTenant)
		statusBucket := tx.Bucket(bucketJobsByStatus)

		c := tenantBucket.Cursor()
		prefix := []byte(tenantID + "\x00")
		var keysToDelete [][]byte
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			data := b.Get(v)
			if data == nil {
				continue
			}
			var job types.Job
			if err := json.Unmarshal(data, &job); err != nil {
				return err
			}
			deleted = append(deleted, &job)
			keysToDelete = append(keysToDelete, append([]byte(nil), k...))
		}
		for _, job := range deleted {
			if err := b.Delete([]byte(job.ID)); err != nil {
				return err
			}
			if err := statusBucket.Delete(statusIndexKey(job.Status, job.ID)); err != nil {
				return err
			}
		}
		for _, k := range keysToDelete {
			if err := tenantBucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

func (s *BoltStore) ListTerminalJobsOlderThan(cutoff time.Time) ([]*types.Job, error) {
	var jobs []*types.Job
	for _, status := range []types.JobStatus{types.JobCompleted, types.JobFailed} {
		err := s.db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket(bucketJobs)
			c := tx.Bucket(bucketJobsByStatus).Cursor()
			prefix := []byte(string(status) + "\x00")
			for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
				data := b.Get(v)
				if data == nil {
					continue
				}
				var job types.Job
				if err := json.Unmarshal(data, &job); err != nil {
					return err
				}
				if job.CompletedAt.Before(cutoff) {
					jobs = append(jobs, &job)
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// Tenants

func (s *BoltStore) CreateTenant(tenant *types.Tenant) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(tenant)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketTenants).Put([]byte(tenant.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketTenantsByEmail).Put([]byte(tenant.Email), []byte(tenant.ID))
	})
}

func (s *BoltStore) GetTenant(id string) (*types.Tenant, error) {
	var tenant types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTenants).Get([]byte(id))
		if data == nil {
			return docerrors.E("jobstore.GetTenant", docerrors.NotFound, nil)
		}
		return json.Unmarshal(data, &tenant)
	})
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *BoltStore) GetTenantByEmail(email string) (*types.Tenant, error) {
	var tenant types.Tenant
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketTenantsByEmail).Get([]byte(email))
		if id == nil {
			return docerrors.E("jobstore.GetTenantByEmail", docerrors.NotFound, nil)
		}
		data := tx.Bucket(bucketTenants).Get(id)
		if data == nil {
			return docerrors.E("jobstore.GetTenantByEmail", docerrors.NotFound, nil)
		}
		return json.Unmarshal(data, &tenant)
	})
	if err != nil {
		return nil, err
	}
	return &tenant, nil
}

func (s *BoltStore) UpdateTenant(tenant *types.Tenant) error {
	return s.CreateTenant(tenant)
}

func (s *BoltStore) IncrementUsage(tenantID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		data := b.Get([]byte(tenantID))
		if data == nil {
			return docerrors.E("jobstore.IncrementUsage", docerrors.NotFound, nil)
		}
		var tenant types.Tenant
		if err := json.Unmarshal(data, &tenant); err != nil {
			return err
		}
		tenant.UsageCounter++
		tenant.UpdatedAt = time.Now()
		newData, err := json.Marshal(&tenant)
		if err != nil {
			return err
		}
		return b.Put([]byte(tenantID), newData)
	})
}

func (s *BoltStore) ResetUsageIfExpired(tenantID string, now time.Time, periodLength time.Duration) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketTenants)
		data := b.Get([]byte(tenantID))
		if data == nil {
			return docerrors.E("jobstore.ResetUsageIfExpired", docerrors.NotFound, nil)
		}
		var tenant types.Tenant
		if err := json.Unmarshal(data, &tenant); err != nil {
			return err
		}
		if now.Sub(tenant.LastReset) < periodLength {
			return nil
		}
		tenant.UsageCounter = 0
		tenant.LastReset = now
		tenant.UpdatedAt = now
		newData, err := json.Marshal(&tenant)
		if err != nil {
			return err
		}
		return b.Put([]byte(tenantID), newData)
	})
}

// Plans

func (s *BoltStore) GetPlan(id string) (*types.Plan, error) {
	var plan types.Plan
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPlans).Get([]byte(id))
		if data == nil {
			return docerrors.E("jobstore.GetPlan", docerrors.NotFound, nil)
		}
		return json.Unmarshal(data, &plan)
	})
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *BoltStore) ListPlans() ([]*types.Plan, error) {
	var plans []*types.Plan
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPlans).ForEach(func(k, v []byte) error {
			var plan types.Plan
			if err := json.Unmarshal(v, &plan); err != nil {
				return err
			}
			plans = append(plans, &plan)
			return nil
		})
	})
	return plans, err
}

func (s *BoltStore) PutPlan(plan *types.Plan) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(plan)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPlans).Put([]byte(plan.ID), data)
	})
}

// API keys

func (s *BoltStore) CreateAPIKey(key *types.APIKey) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(key)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketAPIKeys).Put([]byte(key.ID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketAPIKeysByHash).Put([]byte(key.KeyHash), []byte(key.ID))
	})
}

func (s *BoltStore) GetAPIKeyByHash(hash string) (*types.APIKey, error) {
	var key types.APIKey
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketAPIKeysByHash).Get([]byte(hash))
		if id == nil {
			return docerrors.E("jobstore.GetAPIKeyByHash", docerrors.NotFound, nil)
		}
		data := tx.Bucket(bucketAPIKeys).Get(id)
		if data == nil {
			return docerrors.E("jobstore.GetAPIKeyByHash", docerrors.NotFound, nil)
		}
		return json.Unmarshal(data, &key)
	})
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (s *BoltStore) ListAPIKeysByTenant(tenantID string) ([]*types.APIKey, error) {
	var keys []*types.APIKey
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAPIKeys).ForEach(func(k, v []byte) error {
			var key types.APIKey
			if err := json.Unmarshal(v, &key); err != nil {
				return err
			}
			if key.TenantID == tenantID {
				keys = append(keys, &key)
			}
			return nil
		})
	})
	return keys, err
}

func (s *BoltStore) RevokeAPIKey(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		data := b.Get([]byte(id))
		if data == nil {
			return docerrors.E("jobstore.RevokeAPIKey", docerrors.NotFound, nil)
		}
		var key types.APIKey
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}
		key.Revoked = true
		newData, err := json.Marshal(&key)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), newData)
	})
}

func (s *BoltStore) TouchAPIKey(id string, usedAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketAPIKeys)
		data := b.Get([]byte(id))
		if data == nil {
			return docerrors.E("jobstore.TouchAPIKey", docerrors.NotFound, nil)
		}
		var key types.APIKey
		if err := json.Unmarshal(data, &key); err != nil {
			return err
		}
		key.LastUsedAt = usedAt
		newData, err := json.Marshal(&key)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), newData)
	})
}
