package notifications

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/rdocs/internal/redistest"
	"github.com/hashicorp-forge/rdocs/pkg/models"
	"github.com/hashicorp-forge/rdocs/pkg/notifications/backends"
)

type plainErrorBackend struct{}

func (plainErrorBackend) Name() string { return "plain" }
func (plainErrorBackend) Handle(context.Context, *models.Change) error {
	return errors.New("plain failure")
}

func TestNotifier_PublishFansOut(t *testing.T) {
	fake := redistest.New()
	recorder := backends.NewTestBackend(backends.TestBackendConfig{RecordChanges: true})
	n := NewNotifier(nil, backends.NewRedisBackend(fake), recorder)

	assert.Equal(t, []string{"redis", "test"}, n.Backends())

	change := models.NewChange(models.ChangeTypeUpdated, 7, models.Body{"title": "Updated"})
	require.NoError(t, n.Publish(context.Background(), change))

	published := fake.Published()
	require.Len(t, published, 1)
	assert.Equal(t, "docs:7:updates", published[0].Channel)
	assert.JSONEq(t, `{"title":"Updated"}`, published[0].Message)

	changes := recorder.GetChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, change.ID, changes[0].Change.ID)
}

func TestNotifier_FailingBackendDoesNotStopOthers(t *testing.T) {
	fake := redistest.New()
	fake.Fail("PUBLISH", errors.New("connection reset"))
	recorder := backends.NewTestBackend(backends.TestBackendConfig{RecordChanges: true})
	n := NewNotifier(nil, backends.NewRedisBackend(fake), plainErrorBackend{}, recorder)

	err := n.Publish(context.Background(), models.NewChange(models.ChangeTypeUpdated, 1, models.Body{"a": "b"}))
	require.Error(t, err)

	var multi *backends.MultiBackendError
	require.ErrorAs(t, err, &multi)
	assert.Equal(t, []string{"redis", "plain"}, multi.Backends())
	assert.False(t, multi.AllRetryable())
	assert.Equal(t, 1, recorder.GetSuccessCount())
}

func TestNotifier_LogLevelFollowsRetryability(t *testing.T) {
	var buf bytes.Buffer
	logger := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Trace})
	n := NewNotifier(logger,
		backends.NewTestBackend(backends.TestBackendConfig{Name: "transient", FailureMode: backends.FailureModeAlways}),
		backends.NewTestBackend(backends.TestBackendConfig{Name: "broken", FailureMode: backends.FailureModePermanent}),
	)

	err := n.Publish(context.Background(), models.NewChange(models.ChangeTypeUpdated, 3, models.Body{"a": "b"}))
	require.Error(t, err)

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "[WARN]")
	assert.Contains(t, string(lines[0]), "backend=transient")
	assert.Contains(t, string(lines[1]), "[ERROR]")
	assert.Contains(t, string(lines[1]), "backend=broken")
}

func TestNotifier_NoBackends(t *testing.T) {
	n := NewNotifier(nil)
	assert.NoError(t, n.Publish(context.Background(), models.NewChange(models.ChangeTypeUpdated, 1, models.Body{"a": "b"})))
}

func TestNewNotifierFromRegistry(t *testing.T) {
	registry, err := backends.NewRegistry(&backends.Config{Log: &backends.LogConfig{Enabled: true}}, redistest.New(), nil)
	require.NoError(t, err)

	n := NewNotifierFromRegistry(registry, nil)
	assert.Equal(t, []string{"redis", "log"}, n.Backends())
}
