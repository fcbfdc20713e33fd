package authority

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/policy"
	"github.com/ppiankov/approvedrevs/internal/scope"
)

type fakeClosures map[int64][]string

func (f fakeClosures) InScope(_ context.Context, _ *scope.Scope, item model.Item) ([]string, error) {
	return f[item.ID], nil
}

type fakeCreators map[int64]string

func (f fakeCreators) Creator(_ context.Context, item model.Item) (string, error) {
	return f[item.ID], nil
}

type fakeProperties map[string][]string

func (f fakeProperties) PropertyActors(_ context.Context, property string, _ model.Item) ([]string, error) {
	return f[property], nil
}

var (
	foo     = model.Item{ID: 1, Namespace: model.NSMain, Name: "Foo", Exists: true}
	sysop   = model.Actor{Name: "Root", Groups: []string{"sysop"}}
	alice   = model.Actor{Name: "Alice"}
	bob     = model.Actor{Name: "Bob"}
	carol   = model.Actor{Name: "Carol"}
	editor  = model.Actor{Name: "Erin", Groups: []string{"Editors"}}
	nobody  = model.Anonymous()
	rawUser = func(names ...string) policy.RawRule { return policy.RawRule{User: names} }
)

func authorizer(cfg *policy.PolicyConfig, closures fakeClosures, creators fakeCreators, props PropertyLookup) *Authorizer {
	return NewAuthorizer(policy.NewStaticProvider(cfg), closures, creators, props)
}

func canApprove(t *testing.T, a *Authorizer, actor model.Actor, item model.Item) bool {
	t.Helper()
	ok, err := a.CanApprove(context.Background(), scope.New(actor), actor, item)
	require.NoError(t, err)
	return ok
}

func TestSysopAndNamespaceScenario(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{
		AllPages:             policy.RawRule{Group: policy.StringList{"sysop"}},
		NamespacePermissions: policy.Zone{"Main": {}},
	}, nil, nil, nil)

	assert.True(t, canApprove(t, a, sysop, foo))
	assert.False(t, canApprove(t, a, bob, foo))
}

func TestOverrideFalseProtectsGrant(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{
		AllPages:        policy.RawRule{Group: policy.StringList{"sysop"}},
		PagePermissions: policy.Zone{"Foo": {User: policy.StringList{"alice"}, Override: policy.Flag{Set: true, Value: false}}},
	}, nil, nil, nil)

	assert.True(t, canApprove(t, a, alice, foo))
	assert.False(t, canApprove(t, a, bob, foo))
}

func TestLaterZoneRevokesEarlierGrant(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{
		NamespacePermissions: policy.Zone{"Main": {Group: policy.StringList{"editors"}}},
		CategoryPermissions:  policy.Zone{"Legal": rawUser("carol")},
	}, fakeClosures{1: {"Legal"}}, nil, nil)

	assert.False(t, canApprove(t, a, editor, foo), "category zone overwrites the namespace grant")
	assert.True(t, canApprove(t, a, carol, foo))
}

func TestNonOverridingZoneKeepsEarlierGrant(t *testing.T) {
	legal := rawUser("carol")
	legal.Override = policy.Flag{Set: true, Value: false}
	a := authorizer(&policy.PolicyConfig{
		NamespacePermissions: policy.Zone{"Main": {Group: policy.StringList{"editors"}}},
		CategoryPermissions:  policy.Zone{"Legal": legal},
	}, fakeClosures{1: {"Legal"}}, nil, nil)

	assert.True(t, canApprove(t, a, editor, foo))
}

func TestEveryMatchingCategoryApplies(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{
		CategoryPermissions: policy.Zone{"A": rawUser("alice"), "B": rawUser("bob")},
	}, fakeClosures{1: {"A", "B"}}, nil, nil)

	assert.False(t, canApprove(t, a, alice, foo), "B is applied after A and revokes")
	assert.True(t, canApprove(t, a, bob, foo))
}

func TestAllPagesGrantIsFinal(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{
		AllPages:        policy.RawRule{Group: policy.StringList{"sysop"}},
		PagePermissions: policy.Zone{"Foo": rawUser("alice")},
	}, nil, nil, nil)

	assert.True(t, canApprove(t, a, sysop, foo))
}

func TestGroupMatchIsCaseInsensitive(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{AllPages: policy.RawRule{Group: policy.StringList{"editors"}}}, nil, nil, nil)
	assert.True(t, canApprove(t, a, editor, foo))
}

func TestUserMatchIsCaseInsensitive(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{AllPages: rawUser("ALICE")}, nil, nil, nil)
	assert.True(t, canApprove(t, a, alice, foo))
}

func TestCreatorRule(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{
		NamespacePermissions: policy.Zone{"Main": {Creator: policy.Flag{Set: true, Value: true}}},
	}, nil, fakeCreators{1: "Alice"}, nil)

	assert.True(t, canApprove(t, a, alice, foo))
	assert.False(t, canApprove(t, a, bob, foo))
}

func TestPropertyRule(t *testing.T) {
	cfg := &policy.PolicyConfig{
		PagePermissions: policy.Zone{"Foo": {Property: policy.StringList{"Reviewer"}}},
	}
	a := authorizer(cfg, nil, nil, fakeProperties{"Reviewer": {"bob"}})

	assert.True(t, canApprove(t, a, bob, foo))
	assert.False(t, canApprove(t, a, alice, foo))
}

func TestPropertyRuleWithoutLookupIsFatal(t *testing.T) {
	cfg := &policy.PolicyConfig{
		PagePermissions: policy.Zone{"Foo": {Property: policy.StringList{"Reviewer"}}},
	}
	a := authorizer(cfg, nil, nil, nil)

	assert.ErrorIs(t, a.CheckWiring(), ErrPropertyLookupUnavailable)

	_, err := a.CanApprove(context.Background(), scope.New(bob), bob, foo)
	assert.ErrorIs(t, err, ErrPropertyLookupUnavailable)
}

func TestCheckWiringWithoutPropertyRules(t *testing.T) {
	a := authorizer(policy.DefaultConfig(), nil, nil, nil)
	assert.NoError(t, a.CheckWiring())
}

func TestAnonymousActor(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{
		AllPages:             policy.RawRule{Group: policy.StringList{"sysop"}},
		NamespacePermissions: policy.Zone{"Main": {}},
	}, nil, fakeCreators{1: ""}, nil)
	assert.False(t, canApprove(t, a, nobody, foo))

	open := authorizer(&policy.PolicyConfig{AllPages: policy.RawRule{Group: policy.StringList{"*"}}}, nil, nil, nil)
	assert.True(t, canApprove(t, open, nobody, foo))
}

func TestOwnUserPageFallback(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{}, nil, nil, nil)

	own := model.Item{ID: 2, Namespace: model.NSUser, Name: "Alice/Drafts", Exists: true}
	talk := model.Item{ID: 3, Namespace: model.NSUserTalk, Name: "Alice", Exists: true}
	other := model.Item{ID: 4, Namespace: model.NSUser, Name: "Bob", Exists: true}
	lower := model.Actor{Name: "alice"}

	assert.True(t, canApprove(t, a, alice, own))
	assert.True(t, canApprove(t, a, alice, talk))
	assert.False(t, canApprove(t, a, alice, other))
	assert.False(t, canApprove(t, a, lower, own), "fallback is case-sensitive")
	assert.False(t, canApprove(t, a, alice, foo))
}

func TestVerdictMemoizedPerActor(t *testing.T) {
	props := &countingProperties{names: []string{"Bob"}}
	a := authorizer(&policy.PolicyConfig{AllPages: policy.RawRule{Property: policy.StringList{"Owner"}}}, nil, nil, props)
	sc := scope.New(bob)

	for i := 0; i < 3; i++ {
		ok, err := a.CanApprove(context.Background(), sc, bob, foo)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, props.calls)

	ok, err := a.CanApprove(context.Background(), sc, alice, foo)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, props.calls)
}

type countingProperties struct {
	names []string
	calls int
}

func (c *countingProperties) PropertyActors(context.Context, string, model.Item) ([]string, error) {
	c.calls++
	return c.names, nil
}

func TestMissingPagesShareNoVerdict(t *testing.T) {
	a := authorizer(&policy.PolicyConfig{}, nil, nil, nil)
	sc := scope.New(alice)
	draft := model.Item{Namespace: model.NSUser, Name: "Alice/Draft"}
	secret := model.Item{Namespace: model.NSMain, Name: "Secret plan"}

	ok, err := a.CanApprove(context.Background(), sc, alice, draft)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.CanApprove(context.Background(), sc, alice, secret)
	require.NoError(t, err)
	assert.False(t, ok, "a missing page must not reuse another missing page's verdict")
}
