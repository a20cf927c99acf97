package bigquery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/bigquery"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const basePath = "/bigquery/v2/"

// fakeREST serves the dataset and table metadata endpoints of the BigQuery v2 REST API
// from memory. Jobs are not supported.
type fakeREST struct {
	mu       sync.Mutex
	datasets map[string]string              // "project/dataset" -> location
	tables   map[string]map[string]string   // "project/dataset" -> table -> view query
}

func newFakeREST() *fakeREST {
	return &fakeREST{
		datasets: make(map[string]string),
		tables:   make(map[string]map[string]string),
	}
}

func (f *fakeREST) addDataset(project, dataset, location string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := project + "/" + dataset
	f.datasets[key] = location
	if f.tables[key] == nil {
		f.tables[key] = make(map[string]string)
	}
}

func (f *fakeREST) addTable(project, dataset, table, viewQuery string) {
	f.addDataset(project, dataset, f.location(project, dataset))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[project+"/"+dataset][table] = viewQuery
}

func (f *fakeREST) location(project, dataset string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if loc, ok := f.datasets[project+"/"+dataset]; ok {
		return loc
	}
	return "US"
}

// newTestClient starts the fake and returns a Client talking to it.
func newTestClient(t *testing.T, f *fakeREST) *Client {
	t.Helper()

	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	client, err := bigquery.NewClient(context.Background(), "test-project",
		option.WithEndpoint(srv.URL+basePath),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	c := NewClientWithBigQuery(client)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (f *fakeREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, basePath), "/"), "/")

	f.mu.Lock()
	defer f.mu.Unlock()

	// projects/{p}/datasets[/{d}[/tables[/{t}]]]
	if len(parts) < 3 || parts[0] != "projects" || parts[2] != "datasets" {
		writeError(w, http.StatusNotFound, "unsupported path "+r.URL.Path)
		return
	}
	project := parts[1]

	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		var list []map[string]any
		for key, loc := range f.datasets {
			p, d, _ := strings.Cut(key, "/")
			if p != project {
				continue
			}
			list = append(list, map[string]any{
				"datasetReference": map[string]string{"projectId": p, "datasetId": d},
				"location":         loc,
			})
		}
		sort.Slice(list, func(i, j int) bool {
			a := list[i]["datasetReference"].(map[string]string)["datasetId"]
			b := list[j]["datasetReference"].(map[string]string)["datasetId"]
			return a < b
		})
		writeJSON(w, map[string]any{"kind": "bigquery#datasetList", "datasets": list})

	case len(parts) == 3 && r.Method == http.MethodPost:
		var body struct {
			DatasetReference struct {
				DatasetID string `json:"datasetId"`
			} `json:"datasetReference"`
			Location string `json:"location"`
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		key := project + "/" + body.DatasetReference.DatasetID
		if _, ok := f.datasets[key]; ok {
			writeError(w, http.StatusConflict, "Already Exists: Dataset "+key)
			return
		}
		loc := body.Location
		if loc == "" {
			loc = "US"
		}
		f.datasets[key] = loc
		f.tables[key] = make(map[string]string)
		writeJSON(w, datasetJSON(project, body.DatasetReference.DatasetID, loc))

	case len(parts) >= 4:
		dataset := parts[3]
		key := project + "/" + dataset
		loc, ok := f.datasets[key]
		if !ok {
			writeError(w, http.StatusNotFound, "Not found: Dataset "+key)
			return
		}
		f.serveDataset(w, r, project, dataset, loc, parts[4:])

	default:
		writeError(w, http.StatusMethodNotAllowed, r.Method)
	}
}

func (f *fakeREST) serveDataset(w http.ResponseWriter, r *http.Request, project, dataset, loc string, rest []string) {
	key := project + "/" + dataset

	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		writeJSON(w, datasetJSON(project, dataset, loc))

	case len(rest) == 0 && r.Method == http.MethodDelete:
		if len(f.tables[key]) > 0 && r.URL.Query().Get("deleteContents") != "true" {
			writeError(w, http.StatusBadRequest, "Dataset "+key+" is still in use")
			return
		}
		delete(f.datasets, key)
		delete(f.tables, key)
		w.WriteHeader(http.StatusNoContent)

	case len(rest) == 1 && rest[0] == "tables" && r.Method == http.MethodGet:
		var ids []string
		for id := range f.tables[key] {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		var list []map[string]any
		for _, id := range ids {
			list = append(list, map[string]any{"tableReference": tableRef(project, dataset, id)})
		}
		writeJSON(w, map[string]any{"kind": "bigquery#tableList", "tables": list, "totalItems": len(list)})

	case len(rest) == 1 && rest[0] == "tables" && r.Method == http.MethodPost:
		var body struct {
			TableReference struct {
				TableID string `json:"tableId"`
			} `json:"tableReference"`
			View *struct {
				Query string `json:"query"`
			} `json:"view"`
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		query := ""
		if body.View != nil {
			query = body.View.Query
		}
		f.tables[key][body.TableReference.TableID] = query
		writeJSON(w, tableJSON(project, dataset, body.TableReference.TableID, query))

	case len(rest) == 2 && rest[0] == "tables":
		f.serveTable(w, r, project, dataset, rest[1])

	default:
		writeError(w, http.StatusMethodNotAllowed, r.Method)
	}
}

func (f *fakeREST) serveTable(w http.ResponseWriter, r *http.Request, project, dataset, table string) {
	key := project + "/" + dataset
	query, ok := f.tables[key][table]
	if !ok {
		writeError(w, http.StatusNotFound, "Not found: Table "+key+"/"+table)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, tableJSON(project, dataset, table, query))
	case http.MethodDelete:
		delete(f.tables[key], table)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodPatch, http.MethodPut:
		var body struct {
			View *struct {
				Query string `json:"query"`
			} `json:"view"`
		}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		if body.View != nil {
			f.tables[key][table] = body.View.Query
		}
		writeJSON(w, tableJSON(project, dataset, table, f.tables[key][table]))
	default:
		writeError(w, http.StatusMethodNotAllowed, r.Method)
	}
}

func datasetJSON(project, dataset, loc string) map[string]any {
	return map[string]any{
		"kind":             "bigquery#dataset",
		"id":               project + ":" + dataset,
		"datasetReference": map[string]string{"projectId": project, "datasetId": dataset},
		"location":         loc,
	}
}

func tableRef(project, dataset, table string) map[string]string {
	return map[string]string{"projectId": project, "datasetId": dataset, "tableId": table}
}

func tableJSON(project, dataset, table, viewQuery string) map[string]any {
	out := map[string]any{
		"kind":           "bigquery#table",
		"id":             project + ":" + dataset + "." + table,
		"tableReference": tableRef(project, dataset, table),
		"type":           "TABLE",
		"etag":           "etag-" + table,
	}
	if viewQuery != "" {
		out["type"] = "VIEW"
		out["view"] = map[string]any{"query": viewQuery}
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
			"errors":  []map[string]string{{"message": msg, "reason": http.StatusText(code)}},
		},
	})
}
