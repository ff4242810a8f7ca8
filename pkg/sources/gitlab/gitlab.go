// Package gitlab reads the merge requests of a GitLab group that involve the
// configured user as reviewer.
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/sync/errgroup"

	"github.com/mywio/task-sync/pkg/reconcile"
)

const (
	perPage          = 100
	approvalsWorkers = 4
)

var ErrMissingToken = errors.New("gitlab: missing API token")

// Config contains configuration for the GitLab review source
type Config struct {
	URL      string
	Token    string
	Group    string
	Username string
	// Lookback bounds how far back merged merge requests are considered reviewed.
	Lookback   time.Duration
	HTTPClient *http.Client
}

type Source struct {
	client   *gitlab.Client
	group    string
	username string
	lookback time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// mrRef is a merge request as listed, before approvals are attached.
type mrRef struct {
	projectID int
	iid       int
	title     string
	webURL    string
	reviewers []string
}

func New(cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.Group == "" || cfg.Username == "" {
		return nil, errors.New("gitlab: group and username are required")
	}

	opts := []gitlab.ClientOptionFunc{}
	if cfg.URL != "" {
		opts = append(opts, gitlab.WithBaseURL(cfg.URL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, gitlab.WithHTTPClient(cfg.HTTPClient))
	}
	client, err := gitlab.NewClient(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitLab client: %w", err)
	}

	return &Source{
		client:   client,
		group:    cfg.Group,
		username: cfg.Username,
		lookback: cfg.Lookback,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Reviews returns the open merge requests awaiting the user's review and the
// merge requests the user already reviewed: open ones carrying the user's
// approval plus ones merged within the look-back window.
func (s *Source) Reviews(ctx context.Context) (awaiting, reviewed []reconcile.MergeRequest, err error) {
	open, err := s.list(ctx, &gitlab.ListGroupMergeRequestsOptions{
		State:            gitlab.Ptr("opened"),
		WIP:              gitlab.Ptr("no"),
		ReviewerUsername: gitlab.Ptr(s.username),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list open merge requests: %w", err)
	}

	withApprovals, err := s.attachApprovals(ctx, open)
	if err != nil {
		return nil, nil, err
	}

	awaiting = reconcile.AwaitingReview(withApprovals, s.username)
	for _, mr := range withApprovals {
		if reconcile.IsApprovedBy(mr, s.username) {
			reviewed = append(reviewed, mr)
		}
	}

	if s.lookback > 0 {
		merged, err := s.list(ctx, &gitlab.ListGroupMergeRequestsOptions{
			State:            gitlab.Ptr("merged"),
			ReviewerUsername: gitlab.Ptr(s.username),
			UpdatedAfter:     gitlab.Ptr(s.now().Add(-s.lookback)),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("list merged merge requests: %w", err)
		}
		for _, ref := range merged {
			reviewed = append(reviewed, reconcile.MergeRequest{Title: ref.title, URL: ref.webURL, Reviewers: ref.reviewers})
		}
	}

	s.logger.Debug("Fetched GitLab reviews", "group", s.group, "awaiting", len(awaiting), "reviewed", len(reviewed))
	return awaiting, reviewed, nil
}

func (s *Source) list(ctx context.Context, opt *gitlab.ListGroupMergeRequestsOptions) ([]mrRef, error) {
	opt.ListOptions = gitlab.ListOptions{PerPage: perPage, Page: 1}

	var refs []mrRef
	for {
		mrs, resp, err := s.client.MergeRequests.ListGroupMergeRequests(s.group, opt, gitlab.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		for _, mr := range mrs {
			if mr == nil || strings.TrimSpace(mr.Title) == "" || mr.WebURL == "" {
				s.logger.Warn("Dropping malformed GitLab merge request")
				continue
			}
			ref := mrRef{
				projectID: mr.ProjectID,
				iid:       mr.IID,
				title:     mr.Title,
				webURL:    mr.WebURL,
			}
			for _, r := range mr.Reviewers {
				if r != nil {
					ref.reviewers = append(ref.reviewers, r.Username)
				}
			}
			refs = append(refs, ref)
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opt.Page = resp.NextPage
	}
	return refs, nil
}

// attachApprovals fetches the approval state of every merge request, a few at a time.
func (s *Source) attachApprovals(ctx context.Context, refs []mrRef) ([]reconcile.MergeRequest, error) {
	out := make([]reconcile.MergeRequest, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(approvalsWorkers)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			approvers, err := s.approvers(gctx, ref.projectID, ref.iid)
			if err != nil {
				return fmt.Errorf("approvals for %s: %w", ref.webURL, err)
			}
			out[i] = reconcile.MergeRequest{
				Title:     ref.title,
				URL:       ref.webURL,
				Reviewers: ref.reviewers,
				Approvers: approvers,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Source) approvers(ctx context.Context, projectID, iid int) ([]string, error) {
	approvals, _, err := s.client.MergeRequestApprovals.GetConfiguration(projectID, iid, gitlab.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if approvals == nil {
		return nil, nil
	}
	var users []string
	for _, a := range approvals.ApprovedBy {
		if a != nil && a.User != nil {
			users = append(users, a.User.Username)
		}
	}
	return users, nil
}
