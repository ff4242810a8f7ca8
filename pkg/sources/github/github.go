// Package github reads pull requests that request or received the
// configured user's review.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/mywio/task-sync/pkg/reconcile"
)

const (
	perPage        = 100
	detailsWorkers = 4
)

var ErrMissingToken = errors.New("github: missing token")

type Config struct {
	Token    string
	Username string
	// Scope narrows searches, e.g. "org:acme" or "repo:acme/app".
	Scope    string
	Lookback time.Duration
	// BaseURL overrides the API endpoint (GitHub Enterprise, tests).
	BaseURL    string
	HTTPClient *http.Client
}

type Source struct {
	client   *github.Client
	username string
	scope    string
	lookback time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type prRef struct {
	owner  string
	repo   string
	number int
	title  string
	url    string
}

func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Source, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}
	if cfg.Username == "" {
		return nil, errors.New("github: username is required")
	}

	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid GitHub base URL: %w", err)
		}
		client.BaseURL = u
	}

	return &Source{
		client:   client,
		username: cfg.Username,
		scope:    strings.TrimSpace(cfg.Scope),
		lookback: cfg.Lookback,
		now:      time.Now,
		logger:   logger,
	}, nil
}

// Reviews returns open pull requests whose review is requested from the user
// and pull requests the user already reviewed within the look-back window.
// A pull request re-requested from the user and not approved by them counts
// only as awaiting.
func (s *Source) Reviews(ctx context.Context) (awaiting, reviewed []reconcile.MergeRequest, err error) {
	requested, err := s.search(ctx, s.query("is:pr is:open draft:false review-requested:"+s.username))
	if err != nil {
		return nil, nil, fmt.Errorf("search review requests: %w", err)
	}
	awaitingAll, err := s.attachReviews(ctx, requested)
	if err != nil {
		return nil, nil, err
	}
	awaiting = reconcile.AwaitingReview(awaitingAll, s.username)

	pending := map[string]bool{}
	for _, mr := range awaiting {
		if !reconcile.IsApprovedBy(mr, s.username) {
			pending[mr.URL] = true
		}
	}

	q := "is:pr reviewed-by:" + s.username
	if s.lookback > 0 {
		q += " updated:>=" + s.now().Add(-s.lookback).UTC().Format("2006-01-02")
	}
	done, err := s.search(ctx, s.query(q))
	if err != nil {
		return nil, nil, fmt.Errorf("search reviewed pull requests: %w", err)
	}
	for _, ref := range done {
		if pending[ref.url] {
			continue
		}
		reviewed = append(reviewed, reconcile.MergeRequest{Title: ref.title, URL: ref.url, Reviewers: []string{s.username}})
	}

	s.logger.Debug("Fetched GitHub reviews", "awaiting", len(awaiting), "reviewed", len(reviewed))
	return awaiting, reviewed, nil
}

func (s *Source) query(q string) string {
	if s.scope == "" {
		return q
	}
	return q + " " + s.scope
}

func (s *Source) search(ctx context.Context, query string) ([]prRef, error) {
	opts := &github.SearchOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	var refs []prRef
	for {
		result, resp, err := s.client.Search.Issues(ctx, query, opts)
		if err != nil {
			return nil, err
		}
		for _, issue := range result.Issues {
			if !issue.IsPullRequest() || strings.TrimSpace(issue.GetTitle()) == "" || issue.GetHTMLURL() == "" {
				continue
			}
			owner, repo, ok := splitRepositoryURL(issue.GetRepositoryURL())
			if !ok {
				s.logger.Warn("Dropping pull request with unknown repository", "url", issue.GetHTMLURL())
				continue
			}
			refs = append(refs, prRef{
				owner:  owner,
				repo:   repo,
				number: issue.GetNumber(),
				title:  issue.GetTitle(),
				url:    issue.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return refs, nil
}

func (s *Source) attachReviews(ctx context.Context, refs []prRef) ([]reconcile.MergeRequest, error) {
	out := make([]reconcile.MergeRequest, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailsWorkers)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			reviewers, err := s.requestedReviewers(gctx, ref)
			if err != nil {
				return fmt.Errorf("reviewers for %s: %w", ref.url, err)
			}
			approvers, err := s.approvers(gctx, ref)
			if err != nil {
				return fmt.Errorf("reviews for %s: %w", ref.url, err)
			}
			out[i] = reconcile.MergeRequest{Title: ref.title, URL: ref.url, Reviewers: reviewers, Approvers: approvers}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Source) requestedReviewers(ctx context.Context, ref prRef) ([]string, error) {
	reviewers, _, err := s.client.PullRequests.ListReviewers(ctx, ref.owner, ref.repo, ref.number, &github.ListOptions{PerPage: perPage})
	if err != nil {
		return nil, err
	}
	var logins []string
	for _, u := range reviewers.Users {
		logins = append(logins, u.GetLogin())
	}
	return logins, nil
}

// approvers returns the users whose latest decisive review is an approval.
// Comment-only reviews do not change a previous decision.
func (s *Source) approvers(ctx context.Context, ref prRef) ([]string, error) {
	opts := &github.ListOptions{PerPage: perPage}
	latest := map[string]string{}
	var order []string
	for {
		reviews, resp, err := s.client.PullRequests.ListReviews(ctx, ref.owner, ref.repo, ref.number, opts)
		if err != nil {
			return nil, err
		}
		for _, r := range reviews {
			login := r.GetUser().GetLogin()
			state := r.GetState()
			if login == "" || state == "COMMENTED" || state == "PENDING" {
				continue
			}
			if _, seen := latest[login]; !seen {
				order = append(order, login)
			}
			latest[login] = state
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	var approved []string
	for _, login := range order {
		if latest[login] == "APPROVED" {
			approved = append(approved, login)
		}
	}
	return approved, nil
}

// splitRepositoryURL extracts owner and repo from ".../repos/{owner}/{repo}".
func splitRepositoryURL(u string) (owner, repo string, ok bool) {
	idx := strings.LastIndex(u, "/repos/")
	if idx < 0 {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u[idx+len("/repos/"):], "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
