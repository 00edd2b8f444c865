package client_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fivetwenty-io/catalog-client/internal/constants"
)

// fakeCatalog is an in-memory stand-in for the catalog service.
type fakeCatalog struct {
	t *testing.T

	mu        sync.Mutex
	tags      []map[string]interface{}
	users     int
	tables    int
	authToken string

	typeDefCalls atomic.Int64
	userCalls    atomic.Int64
	searchCalls  atomic.Int64
	searchBodies []map[string]interface{}
}

func newFakeCatalog(t *testing.T) *fakeCatalog {
	t.Helper()

	return &fakeCatalog{
		t: t,
		tags: []map[string]interface{}{
			{"guid": "g-1", "name": "t1hash", "displayName": "PII"},
			{"guid": "g-2", "name": "t2hash", "displayName": "Confidential"},
		},
		users:  5,
		tables: 0,
	}
}

func (f *fakeCatalog) addTag(name, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.tags = append(f.tags, map[string]interface{}{"guid": "g-" + name, "name": name, "displayName": displayName})
}

func (f *fakeCatalog) start() *httptest.Server {
	f.t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc(constants.APIPathTypeDefs, f.handleTypeDefs)
	mux.HandleFunc(constants.APIPathRoles, f.handleRoles)
	mux.HandleFunc(constants.APIPathUsers, f.handleUsers)
	mux.HandleFunc(constants.APIPathGroups, f.handleGroups)
	mux.HandleFunc(constants.APIPathIndexSearch, f.handleSearch)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.authToken != "" && r.Header.Get("Authorization") != "Bearer "+f.authToken {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errorCode":"ATLAS-401-00-001","errorMessage":"invalid token"}`))

			return
		}

		mux.ServeHTTP(w, r)
	}))
	f.t.Cleanup(server.Close)

	return server
}

func (f *fakeCatalog) handleTypeDefs(w http.ResponseWriter, r *http.Request) {
	f.typeDefCalls.Add(1)

	f.mu.Lock()
	tags := append([]map[string]interface{}(nil), f.tags...)
	f.mu.Unlock()

	switch r.URL.Query().Get("type") {
	case "classification":
		writeJSON(w, map[string]interface{}{"classificationDefs": tags})
	case "business_metadata":
		writeJSON(w, map[string]interface{}{
			"businessMetadataDefs": []map[string]interface{}{
				{
					"guid":        "bm-1",
					"name":        "cm1hash",
					"displayName": "Data Quality",
					"attributeDefs": []map[string]interface{}{
						{"name": "a1hash", "displayName": "Score", "typeName": "float"},
						{"name": "a2hash", "displayName": "Owner", "typeName": "string"},
					},
				},
			},
		})
	case "enum":
		writeJSON(w, map[string]interface{}{
			"enumDefs": []map[string]interface{}{
				{"guid": "e-1", "name": "Criticality", "elementDefs": []map[string]interface{}{
					{"value": "High", "ordinal": 0},
					{"value": "Low", "ordinal": 1},
				}},
			},
		})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func (f *fakeCatalog) handleRoles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{
		"totalRecord": 2,
		"records": []map[string]interface{}{
			{"id": "r-1", "name": "$admin"},
			{"id": "r-2", "name": "$guest"},
		},
	})
}

func (f *fakeCatalog) handleUsers(w http.ResponseWriter, r *http.Request) {
	f.userCalls.Add(1)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	records := []map[string]interface{}{}

	for i := offset; i < min(offset+limit, f.users); i++ {
		records = append(records, map[string]interface{}{
			"id":       fmt.Sprintf("u-%d", i),
			"username": fmt.Sprintf("user%d", i),
			"email":    fmt.Sprintf("user%d@example.com", i),
		})
	}

	writeJSON(w, map[string]interface{}{"totalRecord": f.users, "filterRecord": f.users, "records": records})
}

func (f *fakeCatalog) handleGroups(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]interface{}{
		"totalRecord": 1,
		"records":     []map[string]interface{}{{"id": "grp-1", "name": "data_stewards", "alias": "Data Stewards"}},
	})
}

func (f *fakeCatalog) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.searchCalls.Add(1)

	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)

		return
	}

	f.mu.Lock()
	f.searchBodies = append(f.searchBodies, body)
	f.mu.Unlock()

	dsl, _ := body["dsl"].(map[string]interface{})
	from := int(dsl["from"].(float64))
	size := int(dsl["size"].(float64))
	query, _ := json.Marshal(dsl["query"])

	var all []map[string]interface{}

	switch {
	case strings.Contains(string(query), "Connection"):
		all = []map[string]interface{}{
			assetJSON("c-1", "Connection", "snowflake-prod", "default/snowflake/1700000000"),
			assetJSON("c-2", "Connection", "bigquery", "default/bigquery/1700000001"),
		}
	case strings.Contains(string(query), "SnowflakeTag"):
		all = []map[string]interface{}{
			assetJSON("st-1", "SnowflakeTag", "PII", "default/snowflake/1700000000/DB/SCHEMA/PII"),
		}
	default:
		for i := range f.tables {
			all = append(all, assetJSON(fmt.Sprintf("t-%d", i), "Table", fmt.Sprintf("table_%d", i),
				fmt.Sprintf("default/snowflake/1700000000/DB/SCHEMA/table_%d", i)))
		}
	}

	entities := []map[string]interface{}{}
	if from < len(all) {
		entities = all[from:min(from+size, len(all))]
	}

	writeJSON(w, map[string]interface{}{"approximateCount": len(all), "entities": entities})
}

func (f *fakeCatalog) bodies() []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]map[string]interface{}(nil), f.searchBodies...)
}

func assetJSON(guid, typeName, name, qualifiedName string) map[string]interface{} {
	return map[string]interface{}{
		"guid":     guid,
		"typeName": typeName,
		"status":   "ACTIVE",
		"attributes": map[string]interface{}{
			"name":          name,
			"qualifiedName": qualifiedName,
		},
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
