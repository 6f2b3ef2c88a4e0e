package idempotency

import (
	"testing"

	"github.com/armandavtyann/ticket/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestKeyIgnoresTicketOrder(t *testing.T) {
	a := domain.BulkDeletePayload{TicketIDs: []string{"c", "a", "b"}}
	b := domain.BulkDeletePayload{TicketIDs: []string{"a", "b", "c"}}
	c := domain.BulkDeletePayload{TicketIDs: []string{"b", "c", "a"}}

	ka := Key("user-1", domain.TypeBulkDelete, a)
	kb := Key("user-1", domain.TypeBulkDelete, b)
	kc := Key("user-1", domain.TypeBulkDelete, c)

	assert.Equal(t, ka, kb)
	assert.Equal(t, kb, kc)
	assert.Len(t, ka, 64, "hex-encoded sha256")
}

func TestKeyVariesByUserTypeAndPayload(t *testing.T) {
	p := domain.BulkDeletePayload{TicketIDs: []string{"a", "b"}}

	base := Key("user-1", domain.TypeBulkDelete, p)

	assert.NotEqual(t, base, Key("user-2", domain.TypeBulkDelete, p))
	assert.NotEqual(t, base, Key("user-1", domain.JobType("bulk-archive"), p))
	assert.NotEqual(t, base, Key("user-1", domain.TypeBulkDelete,
		domain.BulkDeletePayload{TicketIDs: []string{"a"}}))
}

func TestKeyDoesNotMutateInput(t *testing.T) {
	p := domain.BulkDeletePayload{TicketIDs: []string{"c", "a", "b"}}
	Key("user-1", domain.TypeBulkDelete, p)
	assert.Equal(t, []string{"c", "a", "b"}, p.TicketIDs)
}
