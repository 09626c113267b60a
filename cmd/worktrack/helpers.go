// Shared helpers for worktrack CLI commands.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pivotstack/worktrack/internal/items"
	"github.com/pivotstack/worktrack/internal/metadata"
	"github.com/pivotstack/worktrack/internal/paths"
	"github.com/pivotstack/worktrack/internal/remote"
	"github.com/pivotstack/worktrack/pkg/types"
)

// errPartialFailure marks a command where some per-field writes failed while
// others succeeded. main exits 1 for it instead of 2.
var errPartialFailure = errors.New("some updates failed")

// appContext carries the wired client, resolver, and provider for commands.
type appContext struct {
	logger *slog.Logger
	client *remote.Client
	meta   *metadata.Resolver

	workspaceName string
	workspaceKey  string
	typeName      string
}

// initApp loads config and wires the remote client and metadata resolver.
func initApp(cmd *cobra.Command, args []string) error {
	// Commands that touch nothing remote skip wiring.
	switch cmd.Name() {
	case "version", "help", "completion":
		return nil
	}

	dir, err := paths.ResolveConfigDir(configDirFlag)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := loadConfig(dir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.GetString(cfgKeyLogLevel))

	baseURL := cfg.GetString(cfgKeyBaseURL)
	if baseURL == "" {
		return fmt.Errorf("base_url is not configured; set it in %s or via WORKTRACK_BASE_URL",
			filepath.Join(dir, configFileExt))
	}
	token := cfg.GetString(cfgKeyToken)
	userKey := cfg.GetString(cfgKeyUserKey)
	timeout := time.Duration(cfg.GetInt(cfgKeyTimeout)) * time.Second

	client := remote.NewClient(remote.Options{
		BaseURL: baseURL,
		TokenProvider: func(context.Context) (string, string, error) {
			return token, userKey, nil
		},
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  "worktrack/" + version,
		Logger:     logger,
	})

	workspaceName := flagWorkspace
	workspaceKey := ""
	if workspaceName == "" {
		workspaceName = cfg.GetString(cfgKeyWorkspace)
		workspaceKey = cfg.GetString(cfgKeyWorkspaceKey)
	}
	typeName := flagType
	if typeName == "" {
		typeName = cfg.GetString(cfgKeyItemType)
	}

	app = &appContext{
		logger:        logger,
		client:        client,
		meta:          metadata.NewResolver(client, metadata.Config{Logger: logger}),
		workspaceName: workspaceName,
		workspaceKey:  workspaceKey,
		typeName:      typeName,
	}
	return nil
}

// newLogger builds the CLI logger writing to stderr at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// provider builds the work-item provider bound to the configured workspace
// and type. Commands that operate on items call this.
func (a *appContext) provider() (*items.Provider, error) {
	if a.workspaceName == "" && a.workspaceKey == "" {
		return nil, errors.New("no workspace configured; set workspace in the config file or pass --workspace")
	}
	return items.NewProvider(a.client, a.meta, items.Config{
		WorkspaceName: a.workspaceName,
		WorkspaceKey:  a.workspaceKey,
		TypeName:      a.typeName,
		Logger:        a.logger,
	})
}

// resolveWorkspaceKey returns the configured workspace's opaque key.
func (a *appContext) resolveWorkspaceKey(ctx context.Context) (string, error) {
	if a.workspaceKey != "" {
		return a.workspaceKey, nil
	}
	if a.workspaceName == "" {
		return "", errors.New("no workspace configured; set workspace in the config file or pass --workspace")
	}
	return a.meta.ResolveWorkspaceKey(ctx, a.workspaceName)
}

// parseItemID parses a work item ID argument.
func parseItemID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid work item id %q", arg)
	}
	return id, nil
}

// parseFieldFlags turns repeated --field name=value flags into a map.
func parseFieldFlags(flags []string) (map[string]any, error) {
	if len(flags) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(flags))
	for _, f := range flags {
		name, value, ok := strings.Cut(f, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid --field %q (expected name=value)", f)
		}
		out[strings.TrimSpace(name)] = value
	}
	return out, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

// printNameKeyTable prints a sorted name→key map in a two-column table.
func printNameKeyTable(head1, head2 string, byName map[string]string) {
	if len(byName) == 0 {
		fmt.Println("Nothing found.")
		return
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\n", head1, head2)
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, byName[name])
	}
	w.Flush()
	fmt.Printf("Total: %d\n", len(byName))
}

// printItemPage prints a page of work items in a human-readable table.
func printItemPage(page types.Page) {
	if len(page.Items) == 0 {
		fmt.Println("No work items found.")
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, item := range page.Items {
			name := item.Name
			if len(name) > 60 {
				name = name[:57] + "..."
			}
			fmt.Fprintf(w, "%d\t%s\n", item.ID, name)
		}
		w.Flush()
		fmt.Printf("Page %d (%d shown, %d total)\n", page.PageNum, len(page.Items), page.Total)
	}
	if page.Hint != "" {
		fmt.Println(page.Hint)
	}
}

// printUpdateResults prints per-field update outcomes and returns
// errPartialFailure when any of them failed.
func printUpdateResults(results []types.UpdateResult) error {
	if jsonOutput {
		if err := printJSON(results); err != nil {
			return err
		}
	} else {
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFIELD\tRESULT\tDETAIL")
		for _, r := range results {
			detail := r.Message
			status := "ok"
			if !r.Success {
				status = "failed"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.IssueID, r.FieldName, status, detail)
		}
		w.Flush()
	}

	if types.Failed(results) > 0 {
		return errPartialFailure
	}
	return nil
}
