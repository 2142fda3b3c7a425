package github

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"
)

// ErrInvalidRepoSpec is returned for repository specs that are not "owner/repo[/path]".
var ErrInvalidRepoSpec = errors.New("repository must be owner/repo or owner/repo/path")

// DefaultExtensions are the file types fetched when none are configured.
var DefaultExtensions = []string{".md", ".markdown", ".txt", ".html"}

// RepoSpec identifies a directory in a GitHub repository.
type RepoSpec struct {
	Owner    string
	Repo     string
	BasePath string
}

// ParseRepoSpec parses "owner/repo" or "owner/repo/some/dir".
func ParseRepoSpec(s string) (RepoSpec, error) {
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return RepoSpec{}, fmt.Errorf("%w: %q", ErrInvalidRepoSpec, s)
	}
	spec := RepoSpec{Owner: parts[0], Repo: parts[1]}
	if len(parts) == 3 {
		spec.BasePath = parts[2]
	}
	return spec, nil
}

// String returns "owner/repo".
func (r RepoSpec) String() string {
	return r.Owner + "/" + r.Repo
}

// FetchedDoc is a file fetched from GitHub.
type FetchedDoc struct {
	Path    string // Relative path within the base directory
	Content []byte
	SHA     string // File's Git blob SHA
	URL     string // Download URL
}

// Fetcher lists and downloads files from a repository directory.
type Fetcher struct {
	client     *Client
	spec       RepoSpec
	extensions []string
}

// NewFetcher creates a fetcher for spec. Nil extensions use DefaultExtensions.
func NewFetcher(client *Client, spec RepoSpec, extensions []string) *Fetcher {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Fetcher{
		client:     client,
		spec:       spec,
		extensions: extensions,
	}
}

// Repository returns "owner/repo".
func (f *Fetcher) Repository() string {
	return f.spec.String()
}

// ListDocs recursively lists matching files under the base directory.
func (f *Fetcher) ListDocs(ctx context.Context) ([]string, error) {
	return f.listDocsRecursive(ctx, f.spec.BasePath, "")
}

func (f *Fetcher) listDocsRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.spec.Owner, f.spec.Repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if f.wanted(*item.Name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listDocsRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

func (f *Fetcher) wanted(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range f.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FetchDoc downloads one file by its path relative to the base directory.
func (f *Fetcher) FetchDoc(ctx context.Context, relativePath string) (*FetchedDoc, error) {
	fullPath := path.Join(f.spec.BasePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.spec.Owner, f.spec.Repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil || fileContent.Content == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	// The API wraps base64 at 60 columns; the decoder skips the newlines.
	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}

	url := fileContent.GetDownloadURL()
	if url == "" {
		url = fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/HEAD/%s", f.spec.Owner, f.spec.Repo, fullPath)
	}

	return &FetchedDoc{
		Path:    relativePath,
		Content: content,
		SHA:     fileContent.GetSHA(),
		URL:     url,
	}, nil
}

// GetLatestCommitSHA returns the SHA of the most recent commit touching the base directory.
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.spec.Owner, f.spec.Repo, &github.CommitsListOptions{
		Path: f.spec.BasePath,
		ListOptions: github.ListOptions{
			PerPage: 1,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.spec.BasePath)
	}
	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}

	return *commits[0].SHA, nil
}
