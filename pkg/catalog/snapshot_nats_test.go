package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNATSSnapshotKey(t *testing.T) {
	assert.Equal(t, "acme.tag", natsSnapshotKey("acme", CategoryTag))
	assert.Equal(t, "acme_example_com_443.custom-metadata", natsSnapshotKey("acme.example.com:443", CategoryCustomMetadata))
	assert.Equal(t, "default.source-tag", natsSnapshotKey("", CategorySourceTag))
}

func TestNewNATSSnapshotStore_RequiresConfig(t *testing.T) {
	_, err := NewNATSSnapshotStore(nil)
	assert.ErrorIs(t, err, ErrNATSConfigRequired)
}
