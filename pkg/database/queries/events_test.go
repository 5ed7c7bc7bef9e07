package queries_test

import (
	"testing"

	"github.com/OldStager01/elastic-orchestrator/internal/events"
	"github.com/OldStager01/elastic-orchestrator/pkg/database/queries"
	"github.com/stretchr/testify/assert"
)

func TestEventRepositoryIsStore(t *testing.T) {
	var store events.Store = queries.NewEventRepository(nil)
	assert.NotNil(t, store)
}
