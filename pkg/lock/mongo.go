package lock

import (
	"context"
	"fmt"
	"fleetbook/pkg/model"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// VehicleLocksCollection holds one document per held lock, keyed by lock key.
// A TTL index on expires_at reaps abandoned locks.
const VehicleLocksCollection = "Vehicle_locks"

type mongoLocker struct {
	collection *mongo.Collection
	ttl        time.Duration
	wait       time.Duration
}

type mongoLease struct {
	collection *mongo.Collection
	id         string
	token      string
}

func NewMongoLocker(db *mongo.Database, ttl, wait time.Duration) Locker {
	return &mongoLocker{
		collection: db.Collection(VehicleLocksCollection),
		ttl:        ttl,
		wait:       wait,
	}
}

func (l *mongoLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()

	return acquireWithin(ctx, l.wait, func(ctx context.Context) (Lease, bool, error) {
		now := time.Now()
		doc := &model.VehicleLock{
			ID:        key,
			Token:     token,
			ExpiresAt: now.Add(l.ttl),
			CreatedAt: now,
		}

		_, err := l.collection.InsertOne(ctx, doc)
		if err == nil {
			return &mongoLease{collection: l.collection, id: key, token: token}, true, nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, fmt.Errorf("mongo lock %s: %w", key, err)
		}

		// The TTL monitor runs about once a minute; clear an expired holder
		// ourselves so the next attempt can take the lock.
		if _, err := l.collection.DeleteOne(ctx, bson.M{
			"_id":        key,
			"expires_at": bson.M{"$lt": now},
		}); err != nil {
			return nil, false, fmt.Errorf("mongo lock %s: clear expired: %w", key, err)
		}
		return nil, false, nil
	})
}

func (l *mongoLease) Release(ctx context.Context) error {
	_, err := l.collection.DeleteOne(ctx, bson.M{"_id": l.id, "token": l.token})
	return err
}
