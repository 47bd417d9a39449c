package service

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// parseObjectID converts a hex id from a request path into an ObjectID.
// Malformed ids map onto the caller's not-found sentinel so the API answers
// 404 instead of 500.
func parseObjectID(id string, notFound error) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, notFound
	}
	return oid, nil
}

// shortTxid trims a txid for log lines.
func shortTxid(txid string) string {
	if len(txid) <= 16 {
		return txid
	}
	return txid[:16]
}
