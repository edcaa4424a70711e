package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/gutensearch/pkg/config"
	"github.com/kadirpekel/gutensearch/pkg/guten"
)

func TestRequeueClassification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		requeue bool
	}{
		{"success", nil, false},
		{"book not stored locally", fmt.Errorf("book 11: %w", guten.ErrNotFound), false},
		{"unparseable book", fmt.Errorf("book 11: %w", guten.ErrBookFormat), false},
		{"cluster unavailable", fmt.Errorf("put: %w", guten.ErrCluster), true},
		{"unclassified failure", errors.New("disk on fire"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.requeue, Requeue(tt.err))
		})
	}
}

func TestDestination(t *testing.T) {
	cfg := config.ActiveMQConfig{}
	cfg.SetDefaults()
	assert.Equal(t, "/queue/book-indexing", destination(cfg))

	cfg.QueueName = "custom"
	assert.Equal(t, "/queue/custom", destination(cfg))
}
