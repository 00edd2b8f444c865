package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
	"github.com/fivetwenty-io/catalog-client/internal/http"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// directoryResponse is the listing envelope of the role, user and group endpoints.
type directoryResponse struct {
	TotalRecord  int64             `json:"totalRecord"`
	FilterRecord int64             `json:"filterRecord"`
	Records      []DirectoryRecord `json:"records"`
}

// DirectoryRecord is one role, user or group.
type DirectoryRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Username    string `json:"username,omitempty"`
	Alias       string `json:"alias,omitempty"`
	Email       string `json:"email,omitempty"`
	Description string `json:"description,omitempty"`
}

// DirectoryResolver lists roles, users and groups.
type DirectoryResolver struct {
	httpClient *http.Client
	pageSize   int64
}

// NewDirectoryResolver creates a resolver over httpClient. Users and groups
// are paged with pageSize records per request.
func NewDirectoryResolver(httpClient *http.Client, pageSize int64) *DirectoryResolver {
	if pageSize <= 0 {
		pageSize = constants.ListingPageSize
	}

	return &DirectoryResolver{httpClient: httpClient, pageSize: pageSize}
}

// ListAll implements catalog.Resolver for roles, users and groups.
func (r *DirectoryResolver) ListAll(ctx context.Context, category catalog.Category) ([]catalog.Entry, error) {
	switch category {
	case catalog.CategoryRole:
		// Roles are few and not paged.
		page, err := r.listing(constants.APIPathRoles).FetchPage(ctx, catalog.SearchRequest{}, 0, 0)
		if err != nil {
			return nil, err
		}

		return directoryEntries(page.Records, func(record DirectoryRecord) string { return record.Name }), nil
	case catalog.CategoryUser:
		records, err := r.fetchAll(ctx, constants.APIPathUsers)
		if err != nil {
			return nil, err
		}

		return directoryEntries(records, func(record DirectoryRecord) string { return record.Username }), nil
	case catalog.CategoryGroup:
		records, err := r.fetchAll(ctx, constants.APIPathGroups)
		if err != nil {
			return nil, err
		}

		return directoryEntries(records, groupName), nil
	default:
		return nil, fmt.Errorf("%w: %s", catalog.ErrNoResolver, category)
	}
}

func (r *DirectoryResolver) listing(path string) *listingFetcher {
	return &listingFetcher{httpClient: r.httpClient, path: path}
}

func (r *DirectoryResolver) fetchAll(ctx context.Context, path string) ([]DirectoryRecord, error) {
	return catalog.FetchAll[DirectoryRecord](ctx, r.listing(path), catalog.SearchRequest{PageSize: r.pageSize}, nil)
}

// listingFetcher pages one directory endpoint. The search request carries
// no query for these endpoints, only offset and limit.
type listingFetcher struct {
	httpClient *http.Client
	path       string
}

// FetchPage implements catalog.PageFetcher. A limit of 0 requests everything.
func (f *listingFetcher) FetchPage(ctx context.Context, _ catalog.SearchRequest, offset, limit int64) (*catalog.Page[DirectoryRecord], error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.FormatInt(limit, 10))
		query.Set("offset", strconv.FormatInt(offset, 10))
	}

	resp, err := f.httpClient.Get(ctx, f.path, query)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", f.path, err)
	}

	var listing directoryResponse

	err = json.Unmarshal(resp.Body, &listing)
	if err != nil {
		return nil, fmt.Errorf("parsing %s listing: %w", f.path, err)
	}

	return &catalog.Page[DirectoryRecord]{
		Records:          listing.Records,
		ApproximateTotal: max(listing.FilterRecord, listing.TotalRecord),
	}, nil
}

func groupName(record DirectoryRecord) string {
	if record.Name != "" {
		return record.Name
	}

	return record.Alias
}

func directoryEntries(records []DirectoryRecord, name func(DirectoryRecord) string) []catalog.Entry {
	entries := make([]catalog.Entry, 0, len(records))

	for _, record := range records {
		extra := map[string]interface{}{}
		if record.Email != "" {
			extra["email"] = record.Email
		}

		if record.Alias != "" {
			extra["alias"] = record.Alias
		}

		if record.Description != "" {
			extra["description"] = record.Description
		}

		entries = append(entries, catalog.Entry{
			ID:    record.ID,
			Name:  name(record),
			Extra: extra,
		})
	}

	return entries
}
