package service

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"attest/internal/trail/models"
)

// chainChecksum computes the tamper-evidence checksum for one audit record:
// blake2b-256 over the previous checksum of the same entity followed by the
// record's identifying fields and every change row in canonical order.
// Serialization uses unit separators so field boundaries cannot be forged by
// crafted values.
func chainChecksum(prev string, log *models.AuditLog, changes []models.AuditLogChange) string {
	h, _ := blake2b.New256(nil)

	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0x1f})
		}
	}

	write(prev,
		log.ID.String(),
		log.EntityType,
		log.EntityID,
		log.ReferenceNumber,
		log.UserName,
		string(log.Operation),
		strconv.Itoa(log.AttributeCount),
		log.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z"),
	)
	for _, ch := range changes {
		write(ch.AttributeName, ch.ModuleName, ch.OldValue, ch.NewValue)
	}
	return hex.EncodeToString(h.Sum(nil))
}
