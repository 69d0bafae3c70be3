package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/planloop/internal/review"
)

const resourceScheme = "review://"

// registerResources registers the read-only review resources. Resources
// never mutate state.
func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "review://project/{path}/pending",
		Name:        "pending_reviews",
		Description: "Summaries of the pending reviews of one project",
		MIMEType:    "application/json",
	}, s.readResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "review://project/{path}/current",
		Name:        "current_review",
		Description: "The freshest pending review of one project, " +
			"with full plan content and comments",
		MIMEType: "application/json",
	}, s.readResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "review://{id}",
		Name:        "review",
		Description: "One review in full",
		MIMEType:    "application/json",
	}, s.readResource)
}

// readResource serves every review:// URI by dispatching on its shape.
func (s *Server) readResource(ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {

	uri := req.Params.URI

	payload, err := s.resolveResource(ctx, uri)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode resource %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// resolveResource maps a review:// URI to its payload. Project URIs
// carry the encoded project path; the encoding is idempotent, so it can
// be handed to the store as-is.
func (s *Server) resolveResource(ctx context.Context,
	uri string,
) (any, error) {

	rest, ok := strings.CutPrefix(uri, resourceScheme)
	if !ok {
		return nil, fmt.Errorf("unsupported resource URI %q", uri)
	}

	if project, ok := strings.CutPrefix(rest, "project/"); ok {
		switch {
		case strings.HasSuffix(project, "/pending"):
			path := strings.TrimSuffix(project, "/pending")
			return s.pendingSummaries(ctx, path)

		case strings.HasSuffix(project, "/current"):
			path := strings.TrimSuffix(project, "/current")
			return s.currentReview(ctx, path)

		default:
			return nil, fmt.Errorf("unsupported resource URI %q", uri)
		}
	}

	// Bare review ID.
	resp, err := s.svc.Receive(ctx, review.GetReviewRequest{
		ReviewID: rest,
	}).Unpack()
	if err != nil {
		return nil, err
	}
	return resp.(review.ReviewSnapshotResponse).Review, nil
}

func (s *Server) pendingSummaries(ctx context.Context,
	encodedPath string,
) (any, error) {

	resp, err := s.svc.Receive(ctx, review.ListPendingRequest{
		ProjectPath: encodedPath,
	}).Unpack()
	if err != nil {
		return nil, err
	}
	return resp.(review.SummariesResponse).Summaries, nil
}

// currentReview returns the freshest pending review of the project in
// full.
func (s *Server) currentReview(ctx context.Context,
	encodedPath string,
) (any, error) {

	resp, err := s.svc.Receive(ctx, review.ListPendingRequest{
		ProjectPath: encodedPath,
	}).Unpack()
	if err != nil {
		return nil, err
	}

	summaries := resp.(review.SummariesResponse).Summaries
	if len(summaries) == 0 {
		return nil, review.ErrReviewNotFound
	}

	full, err := s.svc.Receive(ctx, review.GetReviewRequest{
		ReviewID:    summaries[0].ID,
		ProjectPath: encodedPath,
	}).Unpack()
	if err != nil {
		return nil, err
	}
	return full.(review.ReviewSnapshotResponse).Review, nil
}
