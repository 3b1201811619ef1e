package model

import "time"

// VehicleLock is an advisory lock document held while a booking for the
// vehicle is being committed. Expired locks are reaped by a TTL index.
type VehicleLock struct {
	ID        string    `bson:"_id" json:"id"`
	Token     string    `bson:"token" json:"token"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
