package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/planloop/internal/bus"
	"github.com/roasbeef/planloop/internal/review"
	"github.com/roasbeef/planloop/internal/store"
)

func newTestSetup(t *testing.T) (*Server, *review.Engine, *bus.Bus) {
	t.Helper()

	fileStore, err := store.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)

	eventBus := bus.New(nil)
	engine := review.NewEngine(fileStore, eventBus, nil, nil)
	svc := review.NewService(engine, nil)
	srv := NewServer(svc, eventBus, nil)

	return srv, engine, eventBus
}

// seedChangesRequested creates a review with one unresolved comment in
// the changes_requested state.
func seedChangesRequested(t *testing.T,
	engine *review.Engine,
) (*review.Review, *review.Comment) {

	t.Helper()
	ctx := context.Background()

	r, err := engine.Create(ctx, "line one\nline two", "/proj")
	require.NoError(t, err)

	_, c, err := engine.AddComment(ctx, r.ID, "line one", "rename",
		review.TextPosition{EndOffset: 8})
	require.NoError(t, err)

	r, err = engine.RequestChanges(ctx, r.ID)
	require.NoError(t, err)

	return r, c
}

func TestAskQuestions_BlocksUntilAnswered(t *testing.T) {
	srv, engine, _ := newTestSetup(t)
	r, c := seedChangesRequested(t, engine)

	type outcome struct {
		result AskQuestionsResult
		err    error
	}
	resultCh := make(chan outcome, 1)

	go func() {
		_, result, err := srv.handleAskQuestions(
			context.Background(), nil, AskQuestionsArgs{
				ReviewID: r.ID,
				Questions: []QuestionArg{{
					CommentID: c.ID,
					Type:      "choice",
					Message:   "Which name?",
					Options:   []string{"lineOne", "LINE_ONE"},
				}},
			},
		)
		resultCh <- outcome{result, err}
	}()

	// The call must stay blocked while the question is unanswered.
	select {
	case out := <-resultCh:
		t.Fatalf("call returned early: %+v", out)
	case <-time.After(100 * time.Millisecond):
	}

	_, err := engine.Answer(context.Background(), r.ID, c.ID, "LINE_ONE")
	require.NoError(t, err)

	select {
	case out := <-resultCh:
		require.NoError(t, out.err)
		require.True(t, out.result.Success)
		require.Equal(t, string(review.StatusDiscussing), out.result.Status)
		require.Equal(t, []AnswerResult{{
			CommentID: c.ID,
			Answer:    "LINE_ONE",
		}}, out.result.Answers)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not resume after the answer")
	}
}

func TestAskQuestions_ResumesOnApproval(t *testing.T) {
	srv, engine, _ := newTestSetup(t)
	r, c := seedChangesRequested(t, engine)

	resultCh := make(chan AskQuestionsResult, 1)
	go func() {
		_, result, _ := srv.handleAskQuestions(
			context.Background(), nil, AskQuestionsArgs{
				ReviewID: r.ID,
				Questions: []QuestionArg{{
					CommentID: c.ID,
					Type:      "clarification",
					Message:   "why rename?",
				}},
			},
		)
		resultCh <- result
	}()

	time.Sleep(100 * time.Millisecond)

	// The human may approve outright despite pending questions; the
	// blocked call resumes with the new status.
	_, err := engine.Approve(context.Background(), r.ID, "")
	require.NoError(t, err)

	select {
	case result := <-resultCh:
		require.True(t, result.Success)
		require.Equal(t, string(review.StatusApproved), result.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not resume after approval")
	}
}

func TestAskQuestions_AllAcceptedReturnsImmediately(t *testing.T) {
	srv, engine, _ := newTestSetup(t)
	r, c := seedChangesRequested(t, engine)

	_, result, err := srv.handleAskQuestions(
		context.Background(), nil, AskQuestionsArgs{
			ReviewID: r.ID,
			Questions: []QuestionArg{{
				CommentID: c.ID,
				Type:      "accepted",
				Message:   "will do",
			}},
		},
	)
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, string(review.StatusChangesRequested), result.Status)
	require.Empty(t, result.Answers)
}

func TestAskQuestions_ValidationFailureIsStructured(t *testing.T) {
	srv, engine, _ := newTestSetup(t)
	r, c := seedChangesRequested(t, engine)

	// Choice without options: reported through the success flag, never
	// as an RPC error.
	_, result, err := srv.handleAskQuestions(
		context.Background(), nil, AskQuestionsArgs{
			ReviewID: r.ID,
			Questions: []QuestionArg{{
				CommentID: c.ID,
				Type:      "choice",
				Message:   "pick",
			}},
		},
	)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)

	// Review state untouched.
	after, err := engine.Get(context.Background(), r.ID, "")
	require.NoError(t, err)
	require.Equal(t, review.StatusChangesRequested, after.Status)
}

func TestResolveResource(t *testing.T) {
	srv, engine, _ := newTestSetup(t)
	ctx := context.Background()

	r, err := engine.Create(ctx, "# Resource plan\nbody", "/home/user/proj")
	require.NoError(t, err)

	// Full review by ID.
	payload, err := srv.resolveResource(ctx, "review://"+r.ID)
	require.NoError(t, err)
	require.Equal(t, r.ID, payload.(*review.Review).ID)

	encoded := store.EncodeProjectPath("/home/user/proj")

	// Pending summaries for the project.
	payload, err = srv.resolveResource(ctx,
		"review://project/"+encoded+"/pending")
	require.NoError(t, err)
	summaries := payload.([]review.Summary)
	require.Len(t, summaries, 1)
	require.Equal(t, r.ID, summaries[0].ID)

	// Freshest pending review in full.
	payload, err = srv.resolveResource(ctx,
		"review://project/"+encoded+"/current")
	require.NoError(t, err)
	require.Equal(t, r.ID, payload.(*review.Review).ID)

	_, err = srv.resolveResource(ctx, "bogus://uri")
	require.Error(t, err)
}
