package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/lewis-wow/auth/internal/crypto"
	"github.com/lewis-wow/auth/internal/log"
)

// Firestore batch write limit
const maxBatchSize = 500

// FirestoreStorage persists sessions in Google Cloud Firestore.
// Attributes are stored encrypted since they carry profile data.
type FirestoreStorage struct {
	client     *firestore.Client
	projectID  string
	collection string
	encryptor  crypto.Encryptor
	now        func() time.Time
}

// Ensure FirestoreStorage implements SessionStore
var _ SessionStore = (*FirestoreStorage)(nil)

// SessionDoc is the document stored per session, keyed by session id.
type SessionDoc struct {
	UserID     string `firestore:"user_id"`
	Attributes string `firestore:"attributes"` // encrypted JSON
	ExpiresAt  int64  `firestore:"expires_at"` // unix millis
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, projectID, database, collection string, encryptor crypto.Encryptor) (*FirestoreStorage, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}

	var client *firestore.Client
	var err error
	if database != "" && database != firestore.DefaultDatabaseID {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, database)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &FirestoreStorage{
		client:     client,
		projectID:  projectID,
		collection: collection,
		encryptor:  encryptor,
		now:        time.Now,
	}, nil
}

func (s *FirestoreStorage) sessions() *firestore.CollectionRef {
	return s.client.Collection(s.collection)
}

func (s *FirestoreStorage) toDoc(record *SessionRecord) (*SessionDoc, error) {
	attributes, err := encodeAttributes(record.Attributes)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.encryptor.Encrypt(attributes)
	if err != nil {
		return nil, fmt.Errorf("encrypting session attributes: %w", err)
	}
	return &SessionDoc{
		UserID:     record.UserID,
		Attributes: encrypted,
		ExpiresAt:  toMillis(record.ExpiresAt),
	}, nil
}

func (s *FirestoreStorage) fromSnapshot(doc *firestore.DocumentSnapshot) (*SessionRecord, error) {
	var sessionDoc SessionDoc
	if err := doc.DataTo(&sessionDoc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	decrypted, err := s.encryptor.Decrypt(sessionDoc.Attributes)
	if err != nil {
		return nil, fmt.Errorf("decrypting session attributes: %w", err)
	}
	attributes, err := decodeAttributes(decrypted)
	if err != nil {
		return nil, err
	}
	return &SessionRecord{
		ID:         doc.Ref.ID,
		UserID:     sessionDoc.UserID,
		Attributes: attributes,
		ExpiresAt:  fromMillis(sessionDoc.ExpiresAt),
	}, nil
}

// GetSession loads a session by id.
func (s *FirestoreStorage) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	doc, err := s.sessions().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s.fromSnapshot(doc)
}

// SetSession inserts or replaces a session.
func (s *FirestoreStorage) SetSession(ctx context.Context, record *SessionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}
	doc, err := s.toDoc(record)
	if err != nil {
		return err
	}
	if _, err := s.sessions().Doc(record.ID).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// UpdateSessionExpiry changes the expiry inside a transaction so a
// concurrent delete is not resurrected.
func (s *FirestoreStorage) UpdateSessionExpiry(ctx context.Context, id string, expiresAt time.Time) error {
	ref := s.sessions().Doc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrSessionNotFound
			}
			return fmt.Errorf("failed to get session: %w", err)
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "expires_at", Value: toMillis(expiresAt)},
		})
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) || status.Code(err) == codes.NotFound {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to update session expiry: %w", err)
	}
	return nil
}

// DeleteSession removes a session if present.
func (s *FirestoreStorage) DeleteSession(ctx context.Context, id string) error {
	_, err := s.sessions().Doc(id).Delete(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// GetUserSessions lists a user's sessions.
func (s *FirestoreStorage) GetUserSessions(ctx context.Context, userID string) ([]*SessionRecord, error) {
	iter := s.sessions().Where("user_id", "==", userID).Documents(ctx)
	defer iter.Stop()

	records := []*SessionRecord{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate sessions: %w", err)
		}

		record, err := s.fromSnapshot(doc)
		if err != nil {
			log.LogError("Failed to read session %s: %v", doc.Ref.ID, err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// DeleteUserSessions removes all of a user's sessions.
func (s *FirestoreStorage) DeleteUserSessions(ctx context.Context, userID string) error {
	_, err := s.deleteMatching(ctx, s.sessions().Where("user_id", "==", userID))
	return err
}

// DeleteExpiredSessions removes every expired session.
func (s *FirestoreStorage) DeleteExpiredSessions(ctx context.Context) (int, error) {
	count, err := s.deleteMatching(ctx, s.sessions().Where("expires_at", "<=", toMillis(s.now())))
	if err != nil {
		return count, err
	}
	if count > 0 {
		log.LogInfoWithFields("firestore", "Cleaned up expired sessions", map[string]any{
			"count": count,
		})
	}
	return count, nil
}

// deleteMatching deletes every document matched by query in batches.
func (s *FirestoreStorage) deleteMatching(ctx context.Context, query firestore.Query) (int, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	count := 0
	batch := s.client.Batch()
	batchSize := 0

	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to iterate sessions: %w", err)
		}

		batch.Delete(doc.Ref)
		batchSize++
		count++

		if batchSize >= maxBatchSize {
			if _, err := batch.Commit(ctx); err != nil {
				return count, fmt.Errorf("failed to commit batch: %w", err)
			}
			batch = s.client.Batch()
			batchSize = 0
		}
	}

	if batchSize > 0 {
		if _, err := batch.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit final batch: %w", err)
		}
	}
	return count, nil
}

// Close closes the Firestore client
func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
