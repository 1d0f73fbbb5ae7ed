// Command dashctl reads the admin backend from the command line.
//
//	dashctl list   -resource orders -page 2 -per_page 50 -filter status=paid
//	dashctl export -resource orders [-table dash_orders] [-concurrency 4] [-out orders.xlsx]
//	dashctl recipe -id 42 [-toggle 0:2] [-base 1] [-submit]
//
// list prints one canonical entity per line followed by the page
// descriptor. export walks every page and upserts raw snapshots into the
// configured store, and with -out also writes the canonical rows as CSV or
// XLSX. recipe prints the normalized edit form and, with -submit, saves it
// back.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"dashboard/internal/apiclient"
	"dashboard/internal/config"
	"dashboard/internal/entity"
	"dashboard/internal/indexnorm"
	"dashboard/internal/listing"
	"dashboard/internal/logging"
	"dashboard/internal/metrics"
	"dashboard/internal/metrics/datadog"
	"dashboard/internal/normalize"
	"dashboard/internal/recipeform"
	"dashboard/internal/sheet"
	"dashboard/internal/storage"
	_ "dashboard/internal/storage/all"

	"go.uber.org/zap"
)

// backendCloser is a metrics backend the command must close on exit.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: point the transport at an httptest server, capture output.
//   - Alternate runtimes: swap the metrics backend or snapshot store.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	LoadConfig     func(path string) (config.Config, error)
	NewLogger      func(level string, json bool) (*zap.Logger, error)
	NewTransport   func(cfg config.Config, log *zap.Logger) (listing.Transport, error)
	OpenStore      func(ctx context.Context, cfg storage.Config) (storage.Repository, error)
	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	Now            func() time.Time
}

// runConfig holds the parsed command line.
type runConfig struct {
	Command    string
	ConfigPath string

	Resource string
	Page     int
	PerPage  int
	Filters  kvList

	Table       string
	Concurrency int
	Out         string

	RecipeID string
	Toggles  toggleList
	Base     int
	Submit   bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], deps{
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		LoadConfig:   config.Load,
		NewLogger:    logging.New,
		NewTransport: newTransport,
		OpenStore:    storage.New,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		Now: time.Now,
	})
	stop()
	os.Exit(code)
}

func newTransport(cfg config.Config, log *zap.Logger) (listing.Transport, error) {
	return apiclient.New(apiclient.Options{
		BaseURL:         cfg.API.BaseURL,
		Tokens:          apiclient.StaticToken(cfg.API.Token),
		Timeout:         cfg.API.Timeout,
		MaxConnsPerHost: cfg.API.MaxConnsPerHost,
		Job:             "dashctl",
		Logger:          log,
	})
}

// run executes one dashctl command and returns an exit code.
//
// Exit codes:
//   - 0: success.
//   - 1: the backend or the store failed.
//   - 2: usage, configuration or initialization error.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LoadConfig == nil || d.NewTransport == nil {
		fmt.Fprintln(d.Stderr, "internal error: LoadConfig and NewTransport are required")
		return 2
	}
	if d.NewLogger == nil {
		d.NewLogger = logging.New
	}
	if d.OpenStore == nil {
		d.OpenStore = storage.New
	}

	rc, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	cfg, err := d.LoadConfig(rc.ConfigPath)
	if err != nil {
		fmt.Fprintf(d.Stderr, "config: %v\n", err)
		return 2
	}
	if issues := cfg.Validate(); len(issues) > 0 {
		fmt.Fprintf(d.Stderr, "invalid configuration:\n  %s\n", strings.Join(issues, "\n  "))
		return 2
	}

	log, err := d.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintf(d.Stderr, "logger: %v\n", err)
		return 2
	}
	defer func() { _ = log.Sync() }()

	if cfg.Metrics.Backend == "datadog" {
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append(datadog.ParseTagsCSV(cfg.Metrics.Tags), "tool:dashctl", "command:"+rc.Command)
		backend, err := d.BackendFactory(ctx, "dashctl", tags, cfg.Metrics.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(backend)
		defer func() {
			_ = backend.Close()
			metrics.SetBackend(nil)
		}()
	}

	mapper := entity.NewMapper(nil)
	if cfg.Aliases.Path != "" {
		t, err := entity.LoadAliasFile(cfg.Aliases.Path)
		if err != nil {
			fmt.Fprintf(d.Stderr, "aliases: %v\n", err)
			return 2
		}
		mapper = entity.NewMapper(t)
	}

	tr, err := d.NewTransport(cfg, log)
	if err != nil {
		fmt.Fprintf(d.Stderr, "transport: %v\n", err)
		return 2
	}
	orch := listing.New(tr, listing.Options{
		Mapper:         mapper,
		DefaultPerPage: cfg.Listing.DefaultPerPage,
		Logger:         log,
	})

	switch rc.Command {
	case "list":
		err = runList(ctx, d, orch, rc, cfg.Listing.PageSizes)
	case "export":
		if rc.Concurrency < 1 {
			rc.Concurrency = cfg.Export.Concurrency
		}
		err = runExport(ctx, d, orch, cfg, rc, log)
	case "recipe":
		if rc.Base < 0 {
			rc.Base = cfg.Recipes.IndexBase
		}
		err = runRecipe(ctx, d, orch, rc, log)
	}
	if err != nil {
		log.Error("command failed", zap.String("command", rc.Command), zap.Error(err))
		fmt.Fprintf(d.Stderr, "%s: %v\n", rc.Command, err)
		return 1
	}
	return 0
}

// runList prints one page. The trailing line carries the page descriptor and
// the page-size choices, which include a server-confirmed size outside the
// configured list.
func runList(ctx context.Context, d deps, o *listing.Orchestrator, rc runConfig, pageSizes []int) error {
	v := listing.NewView(rc.Resource, listing.Query{
		Page:    rc.Page,
		PerPage: rc.PerPage,
		Filters: rc.Filters.values(),
	})
	v.SetPageSizes(pageSizes)
	res, _, err := v.Load(ctx, o)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(d.Stdout)
	for _, rec := range res.Items {
		if err := enc.Encode(mapEntity(o.Mapper(), rc.Resource, rec)); err != nil {
			return err
		}
	}
	return enc.Encode(map[string]any{
		"page":       res.Page,
		"page_sizes": v.State().PageSizes,
	})
}

// mapEntity maps rec with the typed mapper of resource, falling back to the
// generic canonical map.
func mapEntity(m *entity.Mapper, resource string, rec normalize.RawRecord) any {
	switch resource {
	case entity.Addons:
		return m.MapAddon(rec)
	case entity.Users:
		return m.MapUser(rec)
	case entity.Orders:
		return m.MapOrder(rec)
	case entity.Recipes:
		return m.MapRecipe(rec)
	case entity.RecipeSuggestions:
		return m.MapSuggestion(rec)
	default:
		return m.Map(resource, rec)
	}
}

type exportSummary struct {
	Resource string `json:"resource"`
	Table    string `json:"table"`
	Fetched  int    `json:"fetched"`
	Written  int64  `json:"written"`
	Skipped  int    `json:"skipped"`
	File     string `json:"file,omitempty"`
}

func runExport(ctx context.Context, d deps, o *listing.Orchestrator, cfg config.Config, rc runConfig, log *zap.Logger) error {
	table := rc.Table
	if table == "" {
		table = storage.TableName(rc.Resource)
	}

	repo, err := d.OpenStore(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.EnsureSnapshotTable(ctx, table); err != nil {
		return err
	}

	res, err := o.FetchAll(ctx, rc.Resource, listing.Query{
		PerPage: rc.PerPage,
		Filters: rc.Filters.values(),
	}, rc.Concurrency)
	if err != nil {
		return err
	}

	m := o.Mapper()
	snaps, skipped, err := storage.NewSnapshots(rc.Resource, res.Items, func(rec map[string]any) string {
		v, _ := m.Lookup(rc.Resource, rec, "id")
		return entity.AsString(v)
	}, d.Now())
	if err != nil {
		return err
	}
	if skipped > 0 {
		log.Warn("records without id skipped", zap.String("resource", rc.Resource), zap.Int("skipped", skipped))
	}

	written, err := repo.UpsertSnapshots(ctx, table, snaps)
	if err != nil {
		return err
	}
	log.Info("export complete",
		zap.String("resource", rc.Resource),
		zap.String("table", table),
		zap.Int("fetched", len(res.Items)),
		zap.Int64("written", written),
	)

	if rc.Out != "" {
		if err := writeSheet(rc.Out, rc.Resource, m, res.Items); err != nil {
			return err
		}
	}
	return json.NewEncoder(d.Stdout).Encode(exportSummary{
		Resource: rc.Resource,
		Table:    table,
		Fetched:  len(res.Items),
		Written:  written,
		Skipped:  skipped,
		File:     rc.Out,
	})
}

// writeSheet writes the canonical rows of items to path, format by extension.
func writeSheet(path, resource string, m *entity.Mapper, items []normalize.RawRecord) error {
	format, err := sheet.FormatFor(path)
	if err != nil {
		return err
	}
	rows := make([]map[string]any, 0, len(items))
	for _, rec := range items {
		rows = append(rows, m.Map(resource, rec))
	}
	cols := sheet.Columns(rows)
	if len(cols) == 0 {
		cols = []string{"id"}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := sheet.Write(f, format, resource, cols, rows); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type recipeOutput struct {
	ID             string              `json:"id"`
	Title          string              `json:"title"`
	Ingredients    []string            `json:"ingredients"`
	Steps          []recipeStepOut     `json:"steps"`
	AmbiguousSteps []int               `json:"ambiguous_steps,omitempty"`
	Payload        map[string]any      `json:"payload"`
	Saved          normalize.RawRecord `json:"saved,omitempty"`
}

type recipeStepOut struct {
	Position    int    `json:"position"`
	Text        string `json:"text"`
	Ingredients []int  `json:"ingredients"`
}

func runRecipe(ctx context.Context, d deps, o *listing.Orchestrator, rc runConfig, log *zap.Logger) error {
	path := o.Mapper().Path(entity.Recipes) + "/" + rc.RecipeID
	rec, err := o.Record(ctx, path)
	if err != nil {
		return err
	}

	f := recipeform.Load(o.Mapper(), rec, log)
	for _, tg := range rc.Toggles {
		if err := f.Toggle(tg.step, tg.ingredient); err != nil {
			return err
		}
	}

	base := indexnorm.Base(rc.Base)
	out := recipeOutput{
		ID:             f.ID,
		Title:          f.Title,
		Ingredients:    make([]string, 0, len(f.Ingredients)),
		Steps:          make([]recipeStepOut, 0, len(f.Steps)),
		AmbiguousSteps: f.AmbiguousSteps(),
		Payload:        f.Payload(base),
	}
	for _, in := range f.Ingredients {
		out.Ingredients = append(out.Ingredients, in.Name)
	}
	for _, st := range f.Steps {
		out.Steps = append(out.Steps, recipeStepOut{Position: st.Position, Text: st.Text, Ingredients: st.Ingredients})
	}

	if rc.Submit {
		saved, err := o.Mutate(ctx, http.MethodPut, path, out.Payload)
		if err != nil {
			return err
		}
		out.Saved = saved
	}
	return json.NewEncoder(d.Stdout).Encode(out)
}

// parseFlags parses "<command> [flags]" into a validated runConfig.
//
// Errors:
//   - Unknown or missing command, invalid or missing required flags.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	const usage = "usage: dashctl <list|export|recipe> [flags]"
	if len(args) == 0 {
		return runConfig{}, errors.New(usage)
	}

	rc := runConfig{Command: args[0]}
	switch rc.Command {
	case "list", "export", "recipe":
	case "-h", "-help", "--help", "help":
		return runConfig{}, errors.New(usage)
	default:
		return runConfig{}, fmt.Errorf("unknown command %q\n%s", rc.Command, usage)
	}

	fs := flag.NewFlagSet("dashctl "+rc.Command, flag.ContinueOnError)

	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)
	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage of %s:\n", fs.Name())
		fs.PrintDefaults()
	}

	fs.StringVar(&rc.ConfigPath, "config", "", "Config directory or dashboard.yaml path (default: working directory)")

	switch rc.Command {
	case "list", "export":
		fs.StringVar(&rc.Resource, "resource", "", "Resource to read (addons, users, orders, recipes, recipe_suggestions, ...)")
		fs.IntVar(&rc.PerPage, "per_page", 0, "Page size (0 uses listing.default_per_page)")
		fs.Var(&rc.Filters, "filter", "Filter as key=value (repeatable)")
	}
	switch rc.Command {
	case "list":
		fs.IntVar(&rc.Page, "page", 1, "Page number (1-based)")
	case "export":
		fs.StringVar(&rc.Table, "table", "", "Snapshot table (default dash_<resource>)")
		fs.IntVar(&rc.Concurrency, "concurrency", 0, "Concurrent page fetches (0 uses export.concurrency)")
		fs.StringVar(&rc.Out, "out", "", "Also write canonical rows to this .csv or .xlsx file")
	case "recipe":
		fs.StringVar(&rc.RecipeID, "id", "", "Recipe id")
		fs.Var(&rc.Toggles, "toggle", "Toggle ingredient on step as step:ingredient, both 0-based (repeatable)")
		fs.IntVar(&rc.Base, "base", -1, "Index base of submitted ingredient references (0 or 1; -1 uses recipes.index_base)")
		fs.BoolVar(&rc.Submit, "submit", false, "Save the form back to the backend")
	}

	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}
	if fs.NArg() > 0 {
		return runConfig{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch rc.Command {
	case "list", "export":
		if rc.Resource == "" {
			return runConfig{}, errors.New("missing required -resource")
		}
		if rc.PerPage < 0 {
			return runConfig{}, errors.New("-per_page must be >= 0")
		}
	case "recipe":
		if rc.RecipeID == "" {
			return runConfig{}, errors.New("missing required -id")
		}
		if rc.Base < -1 || rc.Base > 1 {
			return runConfig{}, errors.New("-base must be 0 or 1")
		}
	}
	if rc.Command == "list" && rc.Page < 1 {
		return runConfig{}, errors.New("-page must be >= 1")
	}
	if rc.Command == "export" && rc.Concurrency < 0 {
		return runConfig{}, errors.New("-concurrency must be >= 0")
	}
	if rc.Out != "" {
		if _, err := sheet.FormatFor(rc.Out); err != nil {
			return runConfig{}, err
		}
	}
	return rc, nil
}

// kvList collects repeated key=value flags.
type kvList [][2]string

func (l *kvList) String() string {
	parts := make([]string, 0, len(*l))
	for _, kv := range *l {
		parts = append(parts, kv[0]+"="+kv[1])
	}
	return strings.Join(parts, ",")
}

func (l *kvList) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("filter %q is not key=value", s)
	}
	*l = append(*l, [2]string{strings.TrimSpace(k), v})
	return nil
}

func (l kvList) values() map[string][]string {
	if len(l) == 0 {
		return nil
	}
	out := make(map[string][]string, len(l))
	for _, kv := range l {
		out[kv[0]] = append(out[kv[0]], kv[1])
	}
	return out
}

type toggle struct{ step, ingredient int }

// toggleList collects repeated step:ingredient flags.
type toggleList []toggle

func (l *toggleList) String() string {
	parts := make([]string, 0, len(*l))
	for _, t := range *l {
		parts = append(parts, fmt.Sprintf("%d:%d", t.step, t.ingredient))
	}
	return strings.Join(parts, ",")
}

func (l *toggleList) Set(s string) error {
	a, b, ok := strings.Cut(s, ":")
	if !ok {
		return fmt.Errorf("toggle %q is not step:ingredient", s)
	}
	step, err1 := strconv.Atoi(strings.TrimSpace(a))
	ing, err2 := strconv.Atoi(strings.TrimSpace(b))
	if err1 != nil || err2 != nil {
		return fmt.Errorf("toggle %q is not step:ingredient", s)
	}
	*l = append(*l, toggle{step, ing})
	return nil
}
