package catalog

import (
	"fmt"
	"time"
)

// Category is the kind of remote entity a TenantCache resolves.
type Category string

const (
	// CategoryTag covers classifications (tags).
	CategoryTag Category = "tag"

	// CategoryCustomMetadata covers custom metadata (business metadata) definitions.
	CategoryCustomMetadata Category = "custom-metadata"

	// CategoryEnum covers enumeration definitions.
	CategoryEnum Category = "enum"

	// CategoryRole covers tenant roles.
	CategoryRole Category = "role"

	// CategoryUser covers tenant users.
	CategoryUser Category = "user"

	// CategoryGroup covers tenant groups.
	CategoryGroup Category = "group"

	// CategoryConnection covers data source connections.
	CategoryConnection Category = "connection"

	// CategorySourceTag covers tags synchronized from source systems.
	CategorySourceTag Category = "source-tag"
)

// AllCategories returns every category in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryTag,
		CategoryCustomMetadata,
		CategoryEnum,
		CategoryRole,
		CategoryUser,
		CategoryGroup,
		CategoryConnection,
		CategorySourceTag,
	}
}

// ParseCategory validates a category name.
func ParseCategory(value string) (Category, error) {
	for _, category := range AllCategories() {
		if string(category) == value {
			return category, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, value)
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// Entry is one cached entity: a name/id pair plus opaque metadata.
type Entry struct {
	ID         string                 `json:"id"                   yaml:"id"`
	Name       string                 `json:"name"                 yaml:"name"`
	Attributes []AttributeDef         `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Extra      map[string]interface{} `json:"extra,omitempty"      yaml:"extra,omitempty"`
}

// AttributeDef is an attribute of a custom metadata definition.
type AttributeDef struct {
	ID    string                 `json:"id"              yaml:"id"`
	Name  string                 `json:"name"            yaml:"name"`
	Type  string                 `json:"type,omitempty"  yaml:"type,omitempty"`
	Extra map[string]interface{} `json:"extra,omitempty" yaml:"extra,omitempty"`
}

// SortItem orders search results by one field.
type SortItem struct {
	Field string `json:"field" yaml:"field"`
	Order string `json:"order" yaml:"order"`
}

// SearchRequest is the request template shared by every page of one search.
// Offset and limit are supplied per page by the traversal.
type SearchRequest struct {
	Query      map[string]interface{} `json:"query"                yaml:"query"`
	Attributes []string               `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Sort       []SortItem             `json:"sort,omitempty"       yaml:"sort,omitempty"`
	PageSize   int64                  `json:"page_size"            yaml:"page_size"`
}

// Page is one page of search results.
type Page[T any] struct {
	Records          []T   `json:"records"           yaml:"records"`
	ApproximateTotal int64 `json:"approximate_total" yaml:"approximate_total"`
}

// Asset is the generic search record returned by the index search endpoint.
type Asset struct {
	GUID       string                 `json:"guid"                 yaml:"guid"`
	TypeName   string                 `json:"typeName"             yaml:"type_name"`
	Status     string                 `json:"status,omitempty"     yaml:"status,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// QualifiedName returns the asset's qualifiedName attribute.
func (a Asset) QualifiedName() string {
	return a.stringAttribute("qualifiedName")
}

// Name returns the asset's name attribute.
func (a Asset) Name() string {
	return a.stringAttribute("name")
}

func (a Asset) stringAttribute(key string) string {
	if a.Attributes == nil {
		return ""
	}

	value, _ := a.Attributes[key].(string)

	return value
}

// CacheStats reports TenantCache activity.
type CacheStats struct {
	Hits            int64 `json:"hits"             yaml:"hits"`
	Misses          int64 `json:"misses"           yaml:"misses"`
	Refreshes       int64 `json:"refreshes"        yaml:"refreshes"`
	RefreshFailures int64 `json:"refresh_failures" yaml:"refresh_failures"`
}

// GetHitRate returns the ratio of hits to lookups.
func (s *CacheStats) GetHitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// CategoryState describes the loaded snapshot of one category.
type CategoryState struct {
	Category   Category  `json:"category"    yaml:"category"`
	Generation uint64    `json:"generation"  yaml:"generation"`
	Entries    int       `json:"entries"     yaml:"entries"`
	LoadedAt   time.Time `json:"loaded_at"   yaml:"loaded_at"`
	Loaded     bool      `json:"loaded"      yaml:"loaded"`
}
