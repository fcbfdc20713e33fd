package approvability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/approvedrevs/internal/model"
	"github.com/ppiankov/approvedrevs/internal/policy"
	"github.com/ppiankov/approvedrevs/internal/scope"
)

type fakeClosures struct {
	byItem map[int64][]string
	calls  int
}

func (f *fakeClosures) InScope(_ context.Context, sc *scope.Scope, item model.Item) ([]string, error) {
	if c, ok := sc.Closure(item.ID); ok {
		return c, nil
	}
	f.calls++
	sc.SetClosure(item.ID, f.byItem[item.ID])
	return f.byItem[item.ID], nil
}

type fakeMarkers map[int64]bool

func (f fakeMarkers) HasApprovalMarker(_ context.Context, item model.Item) (bool, error) {
	return f[item.ID], nil
}

type fakeRecords struct {
	pages map[int64]bool
	files map[string]bool
	err   error
}

func (f *fakeRecords) HasApprovalRecord(_ context.Context, itemID int64) (bool, error) {
	return f.pages[itemID], f.err
}

func (f *fakeRecords) HasFileApprovalRecord(_ context.Context, fileKey string) (bool, error) {
	return f.files[fileKey], f.err
}

func newResolver(cfg *policy.PolicyConfig, closures *fakeClosures, markers fakeMarkers, records *fakeRecords) *Resolver {
	if closures == nil {
		closures = &fakeClosures{}
	}
	if records == nil {
		records = &fakeRecords{}
	}
	return NewResolver(policy.NewStaticProvider(cfg), closures, markers, records)
}

func page(id int64, ns model.NamespaceID, name string) model.Item {
	return model.Item{ID: id, Namespace: ns, Name: name, Exists: true}
}

func TestUntouchedItemIsNotApprovable(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{}, nil, nil, nil)
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMain, "Foo"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMissingItemIsNotApprovable(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{NamespacePermissions: policy.Zone{"Main": {}}}, nil, nil, nil)
	item := page(1, model.NSMain, "Foo")
	item.Exists = false
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), item)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNamespaceZone(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{NamespacePermissions: policy.Zone{"Main": {}}}, nil, nil, nil)
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMain, "Foo"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConfiguredBannedNamespaceIsApprovable(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{NamespacePermissions: policy.Zone{"MediaWiki": {}}}, nil, nil, nil)
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMediaWiki, "Sidebar"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBannedNamespaceSuppressesLegacyPaths(t *testing.T) {
	markers := fakeMarkers{1: true}
	records := &fakeRecords{pages: map[int64]bool{1: true}}
	r := newResolver(&policy.PolicyConfig{}, nil, markers, records)
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSCategory, "Drafts"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitiveCategoryMatch(t *testing.T) {
	closures := &fakeClosures{byItem: map[int64][]string{1: {"A", "B"}}}
	r := newResolver(&policy.PolicyConfig{CategoryPermissions: policy.Zone{"B": {}}}, closures, nil, nil)
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMain, "Foo"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCategoryWalkSkippedWithoutCategoryRules(t *testing.T) {
	closures := &fakeClosures{}
	r := newResolver(&policy.PolicyConfig{}, closures, nil, nil)
	_, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMain, "Foo"))
	require.NoError(t, err)
	assert.Zero(t, closures.calls)
}

func TestPageZone(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{PagePermissions: policy.Zone{"Help:Editing": {}}}, nil, nil, nil)
	sc := scope.New(model.Anonymous())

	ok, err := r.IsApprovable(context.Background(), sc, page(1, model.NSHelp, "Editing"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.IsApprovable(context.Background(), sc, page(2, model.NSMain, "Editing"))
	require.NoError(t, err)
	assert.False(t, ok, "bare name must not match a qualified page entry")
}

func TestLegacyMarker(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{}, nil, fakeMarkers{1: true}, nil)
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMain, "Foo"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExistingRecordKeepsItemManageable(t *testing.T) {
	records := &fakeRecords{pages: map[int64]bool{1: true}}
	r := newResolver(&policy.PolicyConfig{}, nil, nil, records)
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMain, "Foo"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOverrideHookWins(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{NamespacePermissions: policy.Zone{"Main": {}}}, nil, nil, nil)
	r.AddOverride(func(_ context.Context, item model.Item) (bool, bool) {
		return false, item.Name == "Sandbox"
	})
	sc := scope.New(model.Anonymous())

	ok, err := r.IsApprovable(context.Background(), sc, page(1, model.NSMain, "Sandbox"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.IsApprovable(context.Background(), sc, page(2, model.NSMain, "Other"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestOverrideHookCanGrant(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{}, nil, nil, nil)
	r.AddOverride(func(context.Context, model.Item) (bool, bool) { return true, true })
	ok, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMediaWiki, "Sidebar"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsApprovableMemoized(t *testing.T) {
	records := &fakeRecords{pages: map[int64]bool{1: true}}
	r := newResolver(&policy.PolicyConfig{}, nil, nil, records)
	sc := scope.New(model.Anonymous())
	item := page(1, model.NSMain, "Foo")

	ok, err := r.IsApprovable(context.Background(), sc, item)
	require.NoError(t, err)
	require.True(t, ok)

	records.pages[1] = false
	ok, err = r.IsApprovable(context.Background(), sc, item)
	require.NoError(t, err)
	assert.True(t, ok, "answer is memoized for the request")

	ok, err = r.IsApprovable(context.Background(), scope.New(model.Anonymous()), item)
	require.NoError(t, err)
	assert.False(t, ok, "a new request recomputes")
}

func TestMediaIsApprovable(t *testing.T) {
	records := &fakeRecords{files: map[string]bool{"Old_logo.png": true}}
	r := newResolver(&policy.PolicyConfig{}, nil, fakeMarkers{2: true}, records)
	sc := scope.New(model.Anonymous())

	ok, err := r.MediaIsApprovable(context.Background(), sc, page(1, model.NSFile, "Old logo.png"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.MediaIsApprovable(context.Background(), sc, page(2, model.NSFile, "Marked.png"))
	require.NoError(t, err)
	assert.False(t, ok, "files ignore the legacy marker")
}

func TestMediaZoneMatch(t *testing.T) {
	r := newResolver(&policy.PolicyConfig{NamespacePermissions: policy.Zone{"File": {}}}, nil, nil, nil)
	ok, err := r.MediaIsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSFile, "Logo.png"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecordLookupError(t *testing.T) {
	boom := errors.New("db down")
	r := newResolver(&policy.PolicyConfig{}, nil, nil, &fakeRecords{err: boom})
	_, err := r.IsApprovable(context.Background(), scope.New(model.Anonymous()), page(1, model.NSMain, "Foo"))
	assert.ErrorIs(t, err, boom)
}

func TestPolicyApprovableIgnoresRecords(t *testing.T) {
	records := &fakeRecords{pages: map[int64]bool{1: true}, files: map[string]bool{"Logo.png": true}}
	r := newResolver(&policy.PolicyConfig{}, nil, fakeMarkers{2: true}, records)
	sc := scope.New(model.Anonymous())

	ok, err := r.PolicyApprovable(context.Background(), sc, page(1, model.NSMain, "Foo"), false)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = r.PolicyApprovable(context.Background(), sc, page(2, model.NSMain, "Marked"), false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.PolicyApprovable(context.Background(), sc, page(3, model.NSFile, "Logo.png"), true)
	require.NoError(t, err)
	assert.False(t, ok)
}
