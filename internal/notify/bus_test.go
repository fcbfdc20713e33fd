package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/approvedrevs/internal/model"
)

var fooItem = model.Item{ID: 1, Namespace: model.NSMain, Name: "Foo", Exists: true}

func TestPublishOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.SubscribeAll(func(context.Context, Event) error { order = append(order, "all"); return nil })
	bus.Subscribe(KindRevisionApproved, func(context.Context, Event) error { order = append(order, "first"); return nil })
	bus.Subscribe(KindRevisionApproved, func(context.Context, Event) error { order = append(order, "second"); return nil })
	bus.Subscribe(KindFileApproved, func(context.Context, Event) error { order = append(order, "file"); return nil })

	require.NoError(t, bus.Publish(context.Background(), RevisionApproved(model.Actor{Name: "Alice"}, fooItem, 7)))
	assert.Equal(t, []string{"first", "second", "all"}, order)
}

func TestPublishJoinsFailures(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	ran := 0
	bus.SubscribeAll(func(context.Context, Event) error { ran++; return boom })
	bus.SubscribeAll(func(context.Context, Event) error { ran++; panic("bad handler") })
	bus.SubscribeAll(func(context.Context, Event) error { ran++; return nil })

	err := bus.Publish(context.Background(), RevisionUnapproved(model.Anonymous(), fooItem))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, 3, ran)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()
	id := bus.Subscribe(KindFileApproved, func(context.Context, Event) error { return nil })
	assert.Equal(t, 1, bus.SubscriptionCount())

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id))
	assert.Zero(t, bus.SubscriptionCount())
}

func TestEventConstructors(t *testing.T) {
	alice := model.Actor{Name: "Alice"}
	logo := model.Item{ID: 5, Namespace: model.NSFile, Name: "Logo.png", Exists: true}

	e := RevisionApproved(alice, fooItem, 7)
	assert.Equal(t, KindRevisionApproved, e.Kind)
	assert.Equal(t, int64(7), e.RevisionID)
	assert.Equal(t, "Foo", e.Title)
	assert.NotEmpty(t, e.ID)

	f := FileApproved(alice, logo, model.FileVersion{Timestamp: "20250101000000", SHA1: "abc"})
	assert.Equal(t, "File:Logo.png", f.Title)
	assert.Equal(t, "abc", f.SHA1)
	assert.NotEqual(t, e.ID, f.ID)
}
