package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection   = "idempotencyKeys"
	defaultTxAttempts   = 3
	defaultCleanupBatch = 100
)

type FirestoreOption func(*FirestoreStore)

func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithMaxAttempts bounds transaction retries under contention on a single key.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(s *FirestoreStore) {
		if attempts > 0 {
			s.attempts = attempts
		}
	}
}

// FirestoreStore shares reservations across instances. Each key is one
// document; reservation and completion run in transactions so two instances
// cannot both claim the same key.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	attempts   int
}

func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	s := &FirestoreStore{client: client, collection: defaultCollection, attempts: defaultTxAttempts}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	ref := s.ref(key)

	var out Reservation
	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		existing, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		res, claim, err := resolve(existing, found, fingerprint, now)
		if err != nil {
			return err
		}
		if !claim {
			out = res
			return nil
		}
		rec := pendingRecord(key, fingerprint, now, ttl)
		out = Reservation{State: ReservationStateNew, Record: rec}
		return tx.Set(ref, toDocument(rec))
	}, firestore.MaxAttempts(s.attempts))
	if err != nil {
		return Reservation{}, err
	}
	return out, nil
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ref := s.ref(key)
	return s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		existing, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		rec, err := prepareSave(existing, found, key, fingerprint)
		if err != nil {
			return err
		}
		return tx.Set(ref, toDocument(rec.completed(resp, now.UTC(), ttl)))
	}, firestore.MaxAttempts(s.attempts))
}

func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	if _, err := s.ref(key).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

// CleanupExpired deletes up to limit documents whose expiresAt has passed.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupBatch
	}
	snaps, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil || len(snaps) == 0 {
		return 0, err
	}

	writer := s.client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(snaps))
	for _, snap := range snaps {
		job, err := writer.Delete(snap.Ref)
		if err != nil {
			writer.End()
			return 0, err
		}
		jobs = append(jobs, job)
	}
	writer.End()

	removed := 0
	for _, job := range jobs {
		if _, err := job.Results(); err == nil {
			removed++
		}
	}
	return removed, nil
}

func (s *FirestoreStore) ref(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(recordID(key))
}

func readRecord(tx *firestore.Transaction, ref *firestore.DocumentRef) (Record, bool, error) {
	snap, err := tx.Get(ref)
	switch {
	case status.Code(err) == codes.NotFound:
		return Record{}, false, nil
	case err != nil:
		return Record{}, false, err
	}
	var doc recordDocument
	if err := snap.DataTo(&doc); err != nil {
		return Record{}, false, err
	}
	return doc.record(), true, nil
}

// recordDocument is the Firestore field layout of a Record.
type recordDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Status      string              `firestore:"status"`
	Code        int                 `firestore:"responseStatus"`
	Headers     map[string][]string `firestore:"responseHeaders,omitempty"`
	Body        []byte              `firestore:"responseBody,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func toDocument(r Record) recordDocument {
	return recordDocument{
		Key: r.Key, Fingerprint: r.Fingerprint, Status: string(r.Status),
		Code: r.ResponseStatus, Headers: r.ResponseHeaders, Body: r.ResponseBody,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, ExpiresAt: r.ExpiresAt,
	}
}

func (d recordDocument) record() Record {
	return Record{
		Key: d.Key, Fingerprint: d.Fingerprint, Status: Status(d.Status),
		ResponseStatus: d.Code, ResponseHeaders: d.Headers, ResponseBody: d.Body,
		CreatedAt: d.CreatedAt, UpdatedAt: d.UpdatedAt, ExpiresAt: d.ExpiresAt,
	}
}
