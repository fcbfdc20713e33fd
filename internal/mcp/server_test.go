package mcp

import (
	"context"
	"path/filepath"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/approvedrevs/internal/config"
	"github.com/ppiankov/approvedrevs/internal/engine"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database = filepath.Join(dir, "approvedrevs.db")
	cfg.AuditLog = filepath.Join(dir, "audit.jsonl")
	cfg.Policy = filepath.Join(dir, "policy.yaml")
	cfg.Approvals.AutomaticApprovals = false

	e, err := engine.Open(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	ctx := context.Background()
	require.NoError(t, e.Wiki().AddUser(ctx, "Root", "sysop"))
	require.NoError(t, e.Wiki().AddUser(ctx, "Guest"))
	return e
}

func newTestServer(t *testing.T, e *engine.Engine, actor string) *Server {
	t.Helper()
	return New(e, Config{Actor: actor, Version: "test"}, zerolog.Nop())
}

func savePage(t *testing.T, e *engine.Engine, title, text string) {
	t.Helper()
	r, err := e.RequestAs(context.Background(), "Guest")
	require.NoError(t, err)
	_, err = r.SaveRevision(context.Background(), title, text)
	require.NoError(t, err)
}

func TestStatusMissingPage(t *testing.T) {
	s := newTestServer(t, newTestEngine(t), "Root")

	result, out, err := s.handleStatus(context.Background(), &mcpsdk.CallToolRequest{}, StatusInput{Title: "Nowhere"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.False(t, out.Exists)
}

func TestApproveAndStatus(t *testing.T) {
	e := newTestEngine(t)
	savePage(t, e, "Help:Editing", "one")
	savePage(t, e, "Help:Editing", "two")
	s := newTestServer(t, e, "Root")
	ctx := context.Background()

	result, out, err := s.handleApprove(ctx, &mcpsdk.CallToolRequest{}, ApproveInput{Title: "Help:Editing"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, "approved", out.Status)
	assert.NotZero(t, out.Rev)

	_, status, err := s.handleStatus(ctx, &mcpsdk.CallToolRequest{}, StatusInput{Title: "Help:Editing"})
	require.NoError(t, err)
	assert.True(t, status.Approvable)
	assert.True(t, status.CanApprove)
	assert.True(t, status.Approved)
	assert.True(t, status.IsLatest)
	assert.Equal(t, out.Rev, status.ApprovedRev)
	assert.Nil(t, status.File)
}

func TestApproveDenied(t *testing.T) {
	e := newTestEngine(t)
	savePage(t, e, "Help:Editing", "text")
	s := newTestServer(t, e, "Guest")

	result, out, err := s.handleApprove(context.Background(), &mcpsdk.CallToolRequest{}, ApproveInput{Title: "Help:Editing"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, "denied", out.Status)
	assert.NotEmpty(t, out.Reason)
}

func TestApproveNotApprovable(t *testing.T) {
	e := newTestEngine(t)
	savePage(t, e, "Talk:Editing", "chat")
	s := newTestServer(t, e, "Root")

	result, out, err := s.handleApprove(context.Background(), &mcpsdk.CallToolRequest{}, ApproveInput{Title: "Talk:Editing"})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
	assert.Equal(t, "not_approvable", out.Status)
}

func TestApproveUnknownRevision(t *testing.T) {
	e := newTestEngine(t)
	savePage(t, e, "Foo", "text")
	s := newTestServer(t, e, "Root")

	result, out, err := s.handleApprove(context.Background(), &mcpsdk.CallToolRequest{}, ApproveInput{Title: "Foo", Rev: 4242})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "not_found", out.Status)
}

func TestCanApprove(t *testing.T) {
	e := newTestEngine(t)
	savePage(t, e, "Foo", "text")
	ctx := context.Background()

	_, out, err := newTestServer(t, e, "Root").handleCanApprove(ctx, &mcpsdk.CallToolRequest{}, CanApproveInput{Title: "Foo"})
	require.NoError(t, err)
	assert.True(t, out.CanApprove)
	assert.Equal(t, "Root", out.Actor)

	_, out, err = newTestServer(t, e, "Guest").handleCanApprove(ctx, &mcpsdk.CallToolRequest{}, CanApproveInput{Title: "Foo"})
	require.NoError(t, err)
	assert.True(t, out.Approvable)
	assert.False(t, out.CanApprove)
}

func TestUnapproveAndList(t *testing.T) {
	e := newTestEngine(t)
	savePage(t, e, "Foo", "text")
	savePage(t, e, "Bar", "text")
	s := newTestServer(t, e, "Root")
	ctx := context.Background()

	_, _, err := s.handleApprove(ctx, &mcpsdk.CallToolRequest{}, ApproveInput{Title: "Foo"})
	require.NoError(t, err)

	_, list, err := s.handleList(ctx, &mcpsdk.CallToolRequest{}, ListInput{})
	require.NoError(t, err)
	require.Len(t, list.Pages, 1)
	assert.Equal(t, "Foo", list.Pages[0].Item.Name)

	_, list, err = s.handleList(ctx, &mcpsdk.CallToolRequest{}, ListInput{Mode: "unapproved"})
	require.NoError(t, err)
	require.Len(t, list.Pages, 1)
	assert.Equal(t, "Bar", list.Pages[0].Item.Name)

	result, out, err := s.handleUnapprove(ctx, &mcpsdk.CallToolRequest{}, UnapproveInput{Title: "Foo"})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, "unapproved", out.Status)

	_, list, err = s.handleList(ctx, &mcpsdk.CallToolRequest{}, ListInput{Mode: "approved"})
	require.NoError(t, err)
	assert.Empty(t, list.Pages)
}

func TestListRejectsUnknownMode(t *testing.T) {
	s := newTestServer(t, newTestEngine(t), "Root")
	_, _, err := s.handleList(context.Background(), &mcpsdk.CallToolRequest{}, ListInput{Mode: "everything"})
	assert.Error(t, err)

	_, _, err = s.handleList(context.Background(), &mcpsdk.CallToolRequest{}, ListInput{Kind: "users"})
	assert.Error(t, err)
}

func TestApproveFile(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	r, err := e.RequestAs(ctx, "Root")
	require.NoError(t, err)
	_, v, err := r.UploadFile(ctx, "Logo.png", []byte("png"))
	require.NoError(t, err)

	// The default policy does not cover files; a page-zone entry would.
	s := newTestServer(t, e, "Root")
	result, out, err := s.handleApprove(ctx, &mcpsdk.CallToolRequest{}, ApproveInput{Title: "File:Logo.png", File: true})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "not_approvable", out.Status)

	_, status, err := s.handleStatus(ctx, &mcpsdk.CallToolRequest{}, StatusInput{Title: "File:Logo.png"})
	require.NoError(t, err)
	require.NotNil(t, status.File)
	assert.False(t, status.File.Approvable)
	assert.Equal(t, v, status.File.Latest)
}
