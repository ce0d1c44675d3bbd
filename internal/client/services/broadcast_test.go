package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmarchenko/signon/internal/client/models"
)

func TestBroadcaster_CurrentBeforeFirstPublish(t *testing.T) {
	b := NewStateBroadcaster()

	_, ok := b.Current()
	require.False(t, ok)
}

func TestBroadcaster_SubscriberReceivesInPublishOrder(t *testing.T) {
	b := NewStateBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(models.SignedOut())
	require.Equal(t, models.SignedOut(), <-ch)

	b.Publish(models.SigningIn("alice"))
	require.Equal(t, models.SigningIn("alice"), <-ch)
}

func TestBroadcaster_LateJoinerGetsReplayOfOne(t *testing.T) {
	b := NewStateBroadcaster()

	b.Publish(models.SignedOut())
	b.Publish(models.SigningIn("alice"))

	ch, cancel := b.Subscribe()
	defer cancel()

	require.Equal(t, models.SigningIn("alice"), <-ch, "late joiner must immediately see the latest state")
}

func TestBroadcaster_SlowSubscriberKeepsOnlyNewest(t *testing.T) {
	b := NewStateBroadcaster()
	ch, cancel := b.Subscribe()
	defer cancel()

	// Nothing consumed between publishes: the older value must be dropped.
	b.Publish(models.SigningIn("alice"))
	b.Publish(models.SignedIn("alice"))

	require.Equal(t, models.SignedIn("alice"), <-ch)
	select {
	case extra := <-ch:
		t.Fatalf("expected no further value, got %v", extra)
	default:
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewStateBroadcaster()

	ch1, cancel1 := b.Subscribe()
	defer cancel1()
	ch2, cancel2 := b.Subscribe()
	defer cancel2()

	b.Publish(models.SignedIn("alice"))

	require.Equal(t, models.SignedIn("alice"), <-ch1)
	require.Equal(t, models.SignedIn("alice"), <-ch2)
}

func TestBroadcaster_CancelClosesChannelAndIsIdempotent(t *testing.T) {
	b := NewStateBroadcaster()
	ch, cancel := b.Subscribe()

	cancel()
	cancel() // second call must be a no-op

	_, open := <-ch
	require.False(t, open)

	// Publishing after cancel must not panic or deliver.
	b.Publish(models.SignedOut())
}
