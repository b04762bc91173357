package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SetBackend("document")
		m.PublicationCreated()
		m.PageSaved(true)
		m.VersionEvicted()
		m.Published("published")
		m.ViewRecorded(true)
		m.FollowChanged("follow")
		m.NotificationCreated("new_issue")
		m.RepositoryError("conflict")
		m.ObserveRequest("/x", "200", time.Millisecond)
	})
	assert.NotNil(t, m.Registry())
}

func TestSetBackendKeepsOneActive(t *testing.T) {
	m := New()
	m.SetBackend("document")
	m.SetBackend("relational")

	assert.Equal(t, 1, testutil.CollectAndCount(m.BackendSelected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendSelected.WithLabelValues("relational")))
}

func TestCounters(t *testing.T) {
	m := New()
	m.PageSaved(true)
	m.PageSaved(false)
	m.PageSaved(false)
	m.ViewRecorded(true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.PagesSaved.WithLabelValues("append")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesSaved.WithLabelValues("update")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViewsRecorded.WithLabelValues("true")))

	families, err := m.Registry().Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}
