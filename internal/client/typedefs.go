package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
	"github.com/fivetwenty-io/catalog-client/internal/http"
	"github.com/fivetwenty-io/catalog-client/pkg/catalog"
)

// Type definition kinds accepted by the typedefs endpoint.
const (
	typeDefClassification   = "classification"
	typeDefBusinessMetadata = "business_metadata"
	typeDefEnum             = "enum"
)

type typeDefsResponse struct {
	ClassificationDefs   []typeDef `json:"classificationDefs"`
	BusinessMetadataDefs []typeDef `json:"businessMetadataDefs"`
	EnumDefs             []typeDef `json:"enumDefs"`
}

type typeDef struct {
	GUID          string         `json:"guid"`
	Name          string         `json:"name"`
	DisplayName   string         `json:"displayName"`
	Description   string         `json:"description,omitempty"`
	AttributeDefs []attributeDef `json:"attributeDefs,omitempty"`
	ElementDefs   []elementDef   `json:"elementDefs,omitempty"`
}

type attributeDef struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	TypeName    string `json:"typeName"`
}

type elementDef struct {
	Value   string `json:"value"`
	Ordinal int    `json:"ordinal"`
}

// displayOrName prefers the human-readable name; internal names are hashed.
func (d typeDef) displayOrName() string {
	if d.DisplayName != "" {
		return d.DisplayName
	}

	return d.Name
}

// TypeDefResolver lists tags, custom metadata definitions and enumerations.
type TypeDefResolver struct {
	httpClient *http.Client
}

// NewTypeDefResolver creates a resolver over httpClient.
func NewTypeDefResolver(httpClient *http.Client) *TypeDefResolver {
	return &TypeDefResolver{httpClient: httpClient}
}

// ListAll implements catalog.Resolver for the type definition categories.
func (r *TypeDefResolver) ListAll(ctx context.Context, category catalog.Category) ([]catalog.Entry, error) {
	switch category {
	case catalog.CategoryTag:
		defs, err := r.list(ctx, typeDefClassification)
		if err != nil {
			return nil, err
		}

		return tagEntries(defs.ClassificationDefs), nil
	case catalog.CategoryCustomMetadata:
		defs, err := r.list(ctx, typeDefBusinessMetadata)
		if err != nil {
			return nil, err
		}

		return customMetadataEntries(defs.BusinessMetadataDefs), nil
	case catalog.CategoryEnum:
		defs, err := r.list(ctx, typeDefEnum)
		if err != nil {
			return nil, err
		}

		return enumEntries(defs.EnumDefs), nil
	default:
		return nil, fmt.Errorf("%w: %s", catalog.ErrNoResolver, category)
	}
}

func (r *TypeDefResolver) list(ctx context.Context, kind string) (*typeDefsResponse, error) {
	query := url.Values{}
	query.Set("type", kind)

	resp, err := r.httpClient.Get(ctx, constants.APIPathTypeDefs, query)
	if err != nil {
		return nil, fmt.Errorf("listing %s type definitions: %w", kind, err)
	}

	var defs typeDefsResponse

	err = json.Unmarshal(resp.Body, &defs)
	if err != nil {
		return nil, fmt.Errorf("parsing type definitions: %w", err)
	}

	return &defs, nil
}

func tagEntries(defs []typeDef) []catalog.Entry {
	entries := make([]catalog.Entry, 0, len(defs))

	for _, def := range defs {
		entries = append(entries, catalog.Entry{
			ID:    def.Name,
			Name:  def.displayOrName(),
			Extra: map[string]interface{}{"guid": def.GUID},
		})
	}

	return entries
}

func customMetadataEntries(defs []typeDef) []catalog.Entry {
	entries := make([]catalog.Entry, 0, len(defs))

	for _, def := range defs {
		attributes := make([]catalog.AttributeDef, 0, len(def.AttributeDefs))

		for _, attr := range def.AttributeDefs {
			name := attr.DisplayName
			if name == "" {
				name = attr.Name
			}

			attributes = append(attributes, catalog.AttributeDef{
				ID:   attr.Name,
				Name: name,
				Type: attr.TypeName,
			})
		}

		entries = append(entries, catalog.Entry{
			ID:         def.Name,
			Name:       def.displayOrName(),
			Attributes: attributes,
			Extra:      map[string]interface{}{"guid": def.GUID},
		})
	}

	return entries
}

func enumEntries(defs []typeDef) []catalog.Entry {
	entries := make([]catalog.Entry, 0, len(defs))

	for _, def := range defs {
		values := make([]string, 0, len(def.ElementDefs))
		for _, element := range def.ElementDefs {
			values = append(values, element.Value)
		}

		entries = append(entries, catalog.Entry{
			ID:    def.GUID,
			Name:  def.Name,
			Extra: map[string]interface{}{"values": values},
		})
	}

	return entries
}
