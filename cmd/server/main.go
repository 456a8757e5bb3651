// Command server exposes a workspace over HTTP and gRPC. The gRPC
// surface uses a JSON codec with a hand-written service descriptor, so
// any JSON-speaking client can call it without protobuf tooling.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"gopkg.in/yaml.v3"

	"github.com/SimonWaldherr/wrangle/internal/engine"
	"github.com/SimonWaldherr/wrangle/internal/exporter"
	"github.com/SimonWaldherr/wrangle/internal/importer"
	"github.com/SimonWaldherr/wrangle/internal/pipeline"
	"github.com/SimonWaldherr/wrangle/internal/schedule"
	"github.com/SimonWaldherr/wrangle/internal/table"
)

// Config is read from WRANGLE_-prefixed environment variables; flags
// override individual fields.
type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	GRPCAddr  string `envconfig:"GRPC_ADDR" default:":9090"`
	Workspace string `envconfig:"WORKSPACE"`
	JobsFile  string `envconfig:"JOBS_FILE"`
}

// Prometheus metrics
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wrangle_requests_total",
		Help: "API requests by endpoint.",
	}, []string{"endpoint"})
	replacementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wrangle_replacements_total",
		Help: "Replace operations executed.",
	})
	rowsChangedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wrangle_rows_changed_total",
		Help: "Rows actually changed by replace operations.",
	})
)

// Request/response types shared by HTTP and gRPC
type replaceRequest struct {
	Table     string `json:"table"`
	Column    string `json:"column"`
	Value     string `json:"value"`
	Condition string `json:"condition"`
}
type replaceResponse struct {
	Table    string `json:"table"`
	Changed  int    `json:"changed"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

type listTablesRequest struct{}
type tableInfo struct {
	Name string `json:"name"`
	Rows int    `json:"rows"`
	Cols int    `json:"cols"`
}
type listTablesResponse struct {
	Tables []tableInfo `json:"tables"`
}

type getTableRequest struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"`
}
type getTableResponse struct {
	Name    string           `json:"name"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Error   string           `json:"error,omitempty"`
}

type importRequest struct {
	Path  string `json:"path"`
	Table string `json:"table,omitempty"`
}
type importResponse struct {
	Table string `json:"table"`
	Rows  int    `json:"rows"`
	Error string `json:"error,omitempty"`
}

type exportRequest struct {
	Table string `json:"table"`
	Path  string `json:"path"`
}
type exportResponse struct {
	Error string `json:"error,omitempty"`
}

// gRPC JSON codec
type jsonCodec struct{}

func (jsonCodec) Name() string                      { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)     { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// gRPC service interface and descriptors (manual, no protobuf)
type WrangleServer interface {
	Replace(context.Context, *replaceRequest) (*replaceResponse, error)
	ListTables(context.Context, *listTablesRequest) (*listTablesResponse, error)
	GetTable(context.Context, *getTableRequest) (*getTableResponse, error)
	Import(context.Context, *importRequest) (*importResponse, error)
}

func registerWrangleServer(s *grpc.Server, srv WrangleServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "wrangle.Wrangle",
		HandlerType: (*WrangleServer)(nil),
		Methods: []grpc.MethodDesc{
			{MethodName: "Replace", Handler: _Wrangle_Replace_Handler},
			{MethodName: "ListTables", Handler: _Wrangle_ListTables_Handler},
			{MethodName: "GetTable", Handler: _Wrangle_GetTable_Handler},
			{MethodName: "Import", Handler: _Wrangle_Import_Handler},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "wrangle",
	}, srv)
}

func _Wrangle_Replace_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(replaceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WrangleServer).Replace(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/wrangle.Wrangle/Replace"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WrangleServer).Replace(ctx, req.(*replaceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Wrangle_ListTables_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(listTablesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WrangleServer).ListTables(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/wrangle.Wrangle/ListTables"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WrangleServer).ListTables(ctx, req.(*listTablesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Wrangle_GetTable_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(getTableRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WrangleServer).GetTable(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/wrangle.Wrangle/GetTable"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WrangleServer).GetTable(ctx, req.(*getTableRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Wrangle_Import_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(importRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WrangleServer).Import(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/wrangle.Wrangle/Import"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(WrangleServer).Import(ctx, req.(*importRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// server state
type server struct {
	mu        sync.RWMutex
	ws        *table.Workspace
	wsPath    string
	pipelines map[string]*pipeline.Pipeline
	started   time.Time
}

func newServer(cfg Config) (*server, error) {
	s := &server{
		ws:        table.NewWorkspace(),
		wsPath:    cfg.Workspace,
		pipelines: make(map[string]*pipeline.Pipeline),
		started:   time.Now(),
	}
	if cfg.Workspace != "" {
		if _, err := os.Stat(cfg.Workspace); err == nil {
			ws, err := table.LoadFromFile(cfg.Workspace)
			if err != nil {
				return nil, fmt.Errorf("load workspace %s: %w", cfg.Workspace, err)
			}
			s.ws = ws
			log.Printf("loaded workspace %s (%d tables)", cfg.Workspace, len(ws.List()))
		}
	}
	return s, nil
}

func (s *server) persist() {
	if s.wsPath == "" {
		return
	}
	if err := table.SaveToFile(s.ws, s.wsPath); err != nil {
		log.Printf("save workspace %s: %v", s.wsPath, err)
	}
}

// RunPipeline implements schedule.JobExecutor.
func (s *server) RunPipeline(ctx context.Context, name string) error {
	s.mu.RLock()
	p, ok := s.pipelines[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown pipeline %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := p.Run(ctx, s.ws)
	if err == nil {
		s.persist()
	}
	return err
}

// WrangleServer implementation
func (s *server) Replace(ctx context.Context, req *replaceRequest) (*replaceResponse, error) {
	start := time.Now()
	replacementsTotal.Inc()

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.ws.Get(req.Table)
	if err != nil {
		return &replaceResponse{Table: req.Table, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	out, changed, err := engine.Replace(t, req.Column, req.Value, req.Condition)
	if err != nil {
		return &replaceResponse{Table: req.Table, Error: err.Error(), Duration: time.Since(start).String()}, nil
	}
	s.ws.Put(out)
	s.persist()
	rowsChangedTotal.Add(float64(changed))
	return &replaceResponse{Table: req.Table, Changed: changed, Duration: time.Since(start).String()}, nil
}

func (s *server) ListTables(ctx context.Context, _ *listTablesRequest) (*listTablesResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &listTablesResponse{Tables: []tableInfo{}}
	for _, t := range s.ws.List() {
		resp.Tables = append(resp.Tables, tableInfo{Name: t.Name, Rows: t.NumRows(), Cols: t.NumCols()})
	}
	return resp, nil
}

func (s *server) GetTable(ctx context.Context, req *getTableRequest) (*getTableResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, err := s.ws.Get(req.Name)
	if err != nil {
		return &getTableResponse{Name: req.Name, Error: err.Error()}, nil
	}
	limit := req.Limit
	if limit <= 0 || limit > t.NumRows() {
		limit = t.NumRows()
	}
	resp := &getTableResponse{Name: t.Name, Columns: t.ColumnNames(), Rows: []map[string]any{}}
	for _, row := range t.Rows[:limit] {
		m := make(map[string]any, len(t.Cols))
		for i, c := range t.Cols {
			m[c.Name] = table.NormalizeForJSON(row[i])
		}
		resp.Rows = append(resp.Rows, m)
	}
	return resp, nil
}

func (s *server) Import(ctx context.Context, req *importRequest) (*importResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, _, err := importer.ImportFile(req.Path, &importer.ImportOptions{TableName: req.Table})
	if err != nil {
		return &importResponse{Error: err.Error()}, nil
	}
	s.ws.Put(t)
	s.persist()
	return &importResponse{Table: t.Name, Rows: t.NumRows()}, nil
}

// HTTP handlers
func (s *server) handleReplace(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("replace").Inc()
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req replaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Replace(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleTables(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("tables").Inc()
	resp, _ := s.ListTables(r.Context(), &listTablesRequest{})
	writeJSON(w, resp)
}

func (s *server) handleTable(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("table").Inc()
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "missing name parameter", http.StatusBadRequest)
		return
	}
	limit := 0
	fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
	resp, _ := s.GetTable(r.Context(), &getTableRequest{Name: name, Limit: limit})
	writeJSON(w, resp)
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("import").Inc()
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	resp, _ := s.Import(r.Context(), &req)
	writeJSON(w, resp)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("export").Inc()
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.RLock()
	t, err := s.ws.Get(req.Table)
	s.mu.RUnlock()
	if err != nil {
		writeJSON(w, &exportResponse{Error: err.Error()})
		return
	}
	f, err := os.Create(req.Path)
	if err != nil {
		writeJSON(w, &exportResponse{Error: err.Error()})
		return
	}
	defer f.Close()
	if err := exporter.ExportCSV(f, t, exporter.Options{}); err != nil {
		writeJSON(w, &exportResponse{Error: err.Error()})
		return
	}
	writeJSON(w, &exportResponse{})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	requestsTotal.WithLabelValues("status").Inc()
	s.mu.RLock()
	tables := len(s.ws.List())
	pipelines := len(s.pipelines)
	s.mu.RUnlock()
	writeJSON(w, map[string]any{
		"ok":        true,
		"time":      time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
		"tables":    tables,
		"pipelines": pipelines,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// jobsFile mirrors the -jobs YAML: named pipeline files plus the jobs
// that schedule them.
type jobsFile struct {
	Pipelines []struct {
		Name string `yaml:"name"`
		File string `yaml:"file"`
	} `yaml:"pipelines"`
	Jobs []struct {
		Name         string `yaml:"name"`
		Pipeline     string `yaml:"pipeline"`
		Schedule     string `yaml:"schedule"` // CRON, INTERVAL or ONCE
		Cron         string `yaml:"cron,omitempty"`
		Timezone     string `yaml:"timezone,omitempty"`
		IntervalMs   int64  `yaml:"interval_ms,omitempty"`
		NoOverlap    bool   `yaml:"no_overlap,omitempty"`
		MaxRuntimeMs int64  `yaml:"max_runtime_ms,omitempty"`
		CatchUp      bool   `yaml:"catch_up,omitempty"`
	} `yaml:"jobs"`
}

func (s *server) loadJobs(path string) (*schedule.Scheduler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var jf jobsFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	for _, p := range jf.Pipelines {
		pl, err := pipeline.Load(p.File)
		if err != nil {
			return nil, err
		}
		name := p.Name
		if name == "" {
			name = pl.Name
		}
		s.pipelines[name] = pl
	}

	sched := schedule.NewScheduler(s)
	for _, j := range jf.Jobs {
		err := sched.AddJob(&schedule.Job{
			Name:         j.Name,
			Pipeline:     j.Pipeline,
			ScheduleType: j.Schedule,
			CronExpr:     j.Cron,
			Timezone:     j.Timezone,
			IntervalMs:   j.IntervalMs,
			NoOverlap:    j.NoOverlap,
			MaxRuntimeMs: j.MaxRuntimeMs,
			CatchUp:      j.CatchUp,
			Enabled:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("job %q: %w", j.Name, err)
		}
	}
	return sched, nil
}

func main() {
	var cfg Config
	if err := envconfig.Process("wrangle", &cfg); err != nil {
		log.Fatalf("config error: %v", err)
	}
	flag.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "HTTP listen address (empty to disable)")
	flag.StringVar(&cfg.GRPCAddr, "grpc", cfg.GRPCAddr, "gRPC listen address (empty to disable)")
	flag.StringVar(&cfg.Workspace, "workspace", cfg.Workspace, "Workspace snapshot to load and persist")
	flag.StringVar(&cfg.JobsFile, "jobs", cfg.JobsFile, "YAML file with pipelines and scheduled jobs")
	flag.Parse()

	srv, err := newServer(cfg)
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}

	if cfg.JobsFile != "" {
		sched, err := srv.loadJobs(cfg.JobsFile)
		if err != nil {
			log.Fatalf("jobs error: %v", err)
		}
		if err := sched.Start(); err != nil {
			log.Fatalf("scheduler error: %v", err)
		}
		defer sched.Stop()
	}

	encoding.RegisterCodec(jsonCodec{})

	if cfg.GRPCAddr != "" {
		go func() {
			lis, err := net.Listen("tcp", cfg.GRPCAddr)
			if err != nil {
				log.Printf("gRPC listen error: %v", err)
				return
			}
			gs := grpc.NewServer()
			registerWrangleServer(gs, srv)
			log.Printf("gRPC listening on %s", cfg.GRPCAddr)
			if err := gs.Serve(lis); err != nil {
				log.Printf("gRPC serve error: %v", err)
			}
		}()
	}

	if cfg.HTTPAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/api/replace", srv.handleReplace)
		mux.HandleFunc("/api/tables", srv.handleTables)
		mux.HandleFunc("/api/table", srv.handleTable)
		mux.HandleFunc("/api/import", srv.handleImport)
		mux.HandleFunc("/api/export", srv.handleExport)
		mux.HandleFunc("/api/status", srv.handleStatus)
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("HTTP listening on %s", cfg.HTTPAddr)
		if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
			log.Fatalf("HTTP serve error: %v", err)
		}
	} else {
		select {}
	}
}
