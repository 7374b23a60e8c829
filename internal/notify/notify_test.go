package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type mockStore struct {
	saved []Notification
	err   error
}

func (m *mockStore) InsertNotification(ctx context.Context, n *Notification) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, *n)
	return nil
}

func TestNotifyStores(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, nil)

	svc.Notify(context.Background(), Notification{UserID: "prov-1", Type: TypeBookingRequested, Title: "New booking"})

	assert.Len(t, store.saved, 1)
	assert.Equal(t, "prov-1", store.saved[0].UserID)
}

func TestNotifySwallowsStoreErrors(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &mockStore{err: errors.New("db down")}
	svc := NewService(store, zap.New(core))

	svc.Notify(context.Background(), Notification{UserID: "user-1", Type: TypeBookingConfirmed, BookingID: "b-1"})

	assert.Equal(t, 1, logs.FilterMessage("notify: failed to store notification").Len())
}

func TestNotifySkipsMissingRecipient(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, nil)

	svc.Notify(context.Background(), Notification{Type: TypeBookingConfirmed})

	assert.Empty(t, store.saved)
}

func TestNilServiceIsSafe(t *testing.T) {
	var svc *Service
	svc.Notify(context.Background(), Notification{UserID: "u"})
}
