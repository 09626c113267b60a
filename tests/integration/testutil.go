// Package integration provides CLI integration tests for worktrack, run
// against an in-process fake of the remote work-tracking service.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
)

var (
	// worktrackBin is the path to the built worktrack binary.
	worktrackBin string
	// buildErr captures any build error.
	buildErr error
)

// BuildError wraps a build error with output.
type BuildError struct {
	Err    error
	Output string
}

func (e *BuildError) Error() string {
	return e.Err.Error() + ": " + e.Output
}

// FindProjectRoot finds the project root by walking up and looking for go.mod.
func FindProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		goModPath := filepath.Join(dir, "go.mod")
		if _, err := os.Stat(goModPath); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}

// SetWorktrackBin sets the path to the worktrack binary (called from TestMain).
func SetWorktrackBin(path string) {
	worktrackBin = path
}

// SetBuildErr sets the build error (called from TestMain).
func SetBuildErr(err error) {
	buildErr = err
}

// storedItem is one work item held by the fake service.
type storedItem struct {
	ID      int64
	Name    string
	TypeKey string
	Fields  map[string]any
}

// fakeService is an in-memory stand-in for the remote work-tracking service,
// speaking its envelope protocol. One workspace ("Main"/proj_main) with two
// item types is predefined.
type fakeService struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]*storedItem
}

func newFakeService() *fakeService {
	return &fakeService{nextID: 7000000000, items: map[int64]*storedItem{}}
}

func (s *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == "/open_api/projects":
		writeData(w, []string{"proj_main"})
	case path == "/open_api/projects/detail":
		writeData(w, map[string]any{
			"proj_main": map[string]any{"name": "Main", "project_key": "proj_main"},
		})
	case path == "/open_api/proj_main/work_item/all-types":
		writeData(w, []map[string]any{
			{"name": "Issue", "type_key": "type_issue"},
			{"name": "Story", "type_key": "type_story"},
		})
	case path == "/open_api/proj_main/field/all":
		writeData(w, fieldDefinitions())
	case path == "/open_api/user/search", path == "/open_api/user/query":
		writeData(w, []map[string]any{
			{"name_cn": "Jane Doe", "email": "jane@example.com", "user_key": "user_jane"},
		})
	case path == "/open_api/proj_main/work_item/create":
		s.handleCreate(w, r)
	case path == "/open_api/proj_main/work_item/filter":
		s.handleFilter(w, r)
	case strings.HasSuffix(path, "/query"):
		s.handleQuery(w, r)
	case strings.HasSuffix(path, "/search_params"):
		s.handleSearch(w, r)
	case r.Method == http.MethodPut:
		s.handleUpdate(w, r)
	case r.Method == http.MethodDelete:
		s.handleDelete(w, r)
	default:
		http.NotFound(w, r)
	}
}

func fieldDefinitions() []map[string]any {
	return []map[string]any{
		{"field_name": "priority", "field_key": "field_priority", "field_type_key": "select",
			"options": []map[string]any{
				{"label": "P0", "value": "opt_p0"},
				{"label": "P1", "value": "opt_p1"},
				{"label": "P2", "value": "opt_p2"},
			}},
		{"field_name": "status", "field_key": "field_status", "field_type_key": "select",
			"options": []map[string]any{
				{"label": "Open", "value": "opt_open"},
				{"label": "Done", "value": "opt_done"},
			}},
		{"field_name": "description", "field_key": "field_description", "field_type_key": "multi_text"},
		{"field_name": "owner", "field_key": "owner", "field_type_key": "user"},
	}
}

func (s *fakeService) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TypeKey string `json:"work_item_type_key"`
		Name    string `json:"name"`
		Patches []struct {
			Key   string `json:"field_key"`
			Value any    `json:"field_value"`
		} `json:"field_value_pairs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, 40001, "bad request")
		return
	}
	s.nextID++
	item := &storedItem{ID: s.nextID, Name: body.Name, TypeKey: body.TypeKey, Fields: map[string]any{}}
	for _, p := range body.Patches {
		item.Fields[p.Key] = p.Value
	}
	s.items[item.ID] = item
	writeData(w, item.ID)
}

func (s *fakeService) handleQuery(w http.ResponseWriter, r *http.Request) {
	typeKey := pathSegment(r.URL.Path, 3)
	var body struct {
		IDs []int64 `json:"work_item_ids"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	var out []map[string]any
	for _, id := range body.IDs {
		if item, ok := s.items[id]; ok && item.TypeKey == typeKey {
			out = append(out, wireItem(item))
		}
	}
	writeData(w, out)
}

func (s *fakeService) handleFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TypeKeys []string `json:"work_item_type_keys"`
		Name     string   `json:"work_item_name"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	var out []map[string]any
	for _, item := range s.items {
		if !containsString(body.TypeKeys, item.TypeKey) {
			continue
		}
		if body.Name != "" && !strings.Contains(item.Name, body.Name) {
			continue
		}
		out = append(out, wireItem(item))
	}
	writeData(w, out)
}

func (s *fakeService) handleSearch(w http.ResponseWriter, r *http.Request) {
	typeKey := pathSegment(r.URL.Path, 3)
	var out []map[string]any
	for _, item := range s.items {
		if item.TypeKey == typeKey {
			out = append(out, wireItem(item))
		}
	}
	writeData(w, out)
}

func (s *fakeService) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := trailingID(r.URL.Path)
	if !ok {
		writeError(w, 40001, "bad id")
		return
	}
	item, ok := s.items[id]
	if !ok {
		writeError(w, 40400, "work item not found")
		return
	}
	var body struct {
		Patches []struct {
			Key   string `json:"field_key"`
			Value any    `json:"field_value"`
		} `json:"update_fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, 40001, "bad request")
		return
	}
	for _, p := range body.Patches {
		if p.Key == "field_locked" {
			writeError(w, 40003, "field field_locked is illegal")
			return
		}
		item.Fields[p.Key] = p.Value
	}
	writeData(w, nil)
}

func (s *fakeService) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := trailingID(r.URL.Path)
	if !ok {
		writeError(w, 40001, "bad id")
		return
	}
	delete(s.items, id)
	writeData(w, nil)
}

func wireItem(item *storedItem) map[string]any {
	fields := make([]map[string]any, 0, len(item.Fields))
	for key, value := range item.Fields {
		fields = append(fields, map[string]any{"field_key": key, "field_value": value})
	}
	return map[string]any{
		"id":                 item.ID,
		"name":               item.Name,
		"work_item_type_key": item.TypeKey,
		"fields":             fields,
	}
}

func writeData(w http.ResponseWriter, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"err_code": 0, "data": data})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	_ = json.NewEncoder(w).Encode(map[string]any{"err_code": code, "err_msg": msg})
}

func pathSegment(path string, n int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if n < len(parts) {
		return parts[n]
	}
	return ""
}

func trailingID(path string) (int64, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	return id, err == nil
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// TestEnv provides an isolated test environment: a fake service and a config
// directory pointing the CLI at it.
type TestEnv struct {
	t         *testing.T
	ConfigDir string
	Service   *fakeService
	Server    *httptest.Server
}

// NewTestEnv creates a new isolated test environment.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	if buildErr != nil {
		t.Fatalf("failed to build worktrack: %v", buildErr)
	}
	if worktrackBin == "" {
		t.Fatal("worktrack binary not built (worktrackBin is empty)")
	}

	service := newFakeService()
	server := httptest.NewServer(service)
	t.Cleanup(server.Close)

	configDir := filepath.Join(t.TempDir(), "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	configContent := fmt.Sprintf(
		"base_url: %s\ntoken: test-token\nuser_key: user_jane\nworkspace: Main\nitem_type: Issue\nlog_level: error\n",
		server.URL)
	if err := os.WriteFile(filepath.Join(configDir, "worktrack.yaml"), []byte(configContent), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	return &TestEnv{
		t:         t,
		ConfigDir: configDir,
		Service:   service,
		Server:    server,
	}
}

// SeedItem plants one work item directly into the fake service.
func (e *TestEnv) SeedItem(name, typeKey string, fields map[string]any) int64 {
	e.Service.mu.Lock()
	defer e.Service.mu.Unlock()
	e.Service.nextID++
	if fields == nil {
		fields = map[string]any{}
	}
	e.Service.items[e.Service.nextID] = &storedItem{
		ID: e.Service.nextID, Name: name, TypeKey: typeKey, Fields: fields,
	}
	return e.Service.nextID
}

// FieldValue reads a stored field from the fake service.
func (e *TestEnv) FieldValue(id int64, key string) any {
	e.Service.mu.Lock()
	defer e.Service.mu.Unlock()
	item, ok := e.Service.items[id]
	if !ok {
		return nil
	}
	return item.Fields[key]
}

// CmdResult holds the result of a worktrack command execution.
type CmdResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// RunWorktrack executes the worktrack CLI with the given arguments.
func (e *TestEnv) RunWorktrack(args ...string) CmdResult {
	e.t.Helper()

	allArgs := append([]string{"--config-dir", e.ConfigDir}, args...)
	cmd := exec.Command(worktrackBin, allArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			e.t.Fatalf("failed to run worktrack: %v", err)
		}
	}

	return CmdResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
	}
}

// MustRunWorktrack executes the worktrack CLI and fails the test on non-zero exit.
func (e *TestEnv) MustRunWorktrack(args ...string) CmdResult {
	e.t.Helper()
	result := e.RunWorktrack(args...)
	if result.ExitCode != 0 {
		e.t.Fatalf("worktrack %v failed with exit code %d:\nstdout: %s\nstderr: %s",
			args, result.ExitCode, result.Stdout, result.Stderr)
	}
	return result
}

// ParseJSON parses JSON output into the target type.
func ParseJSON[T any](t *testing.T, jsonStr string) T {
	t.Helper()
	var result T
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		t.Fatalf("failed to parse JSON %q: %v", jsonStr, err)
	}
	return result
}
