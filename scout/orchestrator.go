// Package scout implements the extraction orchestrator: a per-source state
// machine that decides between cached strategies, fresh discovery and
// sandboxed scraper execution, then normalizes and stores the results.
package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"hackscout/eventbus"
	"hackscout/llm"
	"hackscout/sandbox"
	"hackscout/toolcache"
)

// State names one stage of the per-source pass. Exposed for events and
// transition tracing.
type State string

const (
	StateCheckCache     State = "check_cache"
	StateDiscover       State = "discover"
	StateGenerate       State = "generate_scraper"
	StateExecuteAPI     State = "execute_api"
	StateExecuteScraper State = "execute_scraper"
	StateNormalize      State = "normalize"
	StateStore          State = "store"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// FailureReason classifies a terminal failure for one source.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonInvalidSource    FailureReason = "invalid_source"
	ReasonCacheUnavailable FailureReason = "cache_unavailable"
	ReasonFetchError       FailureReason = "fetch_error"
	ReasonDiscoveryError   FailureReason = "discovery_error"
	ReasonGenerationError  FailureReason = "generation_error"
	ReasonAPIExecution     FailureReason = "api_execution_error"
	ReasonScraperExecution FailureReason = "scraper_execution_error"
)

// SourceStatus is the terminal verdict for one source.
type SourceStatus string

const (
	StatusDone    SourceStatus = "done"
	StatusPartial SourceStatus = "partial"
	StatusFailed  SourceStatus = "failed"
)

// Collaborator contracts. The orchestrator owns none of the intelligence or
// storage; it only decides and sequences.
type (
	ToolCache interface {
		Lookup(ctx context.Context, sourceKey string) (*toolcache.Entry, error)
		Save(ctx context.Context, entry *toolcache.Entry) error
	}

	Executor interface {
		Execute(ctx context.Context, req sandbox.ExecutionRequest) (*sandbox.Outcome, error)
	}

	StrategyDiscoverer interface {
		DiscoverStrategy(ctx context.Context, pageContent, sourceURL string) (*llm.Strategy, error)
	}

	CodeGenerator interface {
		GenerateExtractor(ctx context.Context, sourceURL string, strategy *llm.Strategy) (string, error)
	}

	Fetcher interface {
		FetchPage(ctx context.Context, url string) (string, error)
	}

	RecordStore interface {
		Upsert(ctx context.Context, record *HackathonRecord) error
	}

	EventPublisher interface {
		Publish(ctx context.Context, evt eventbus.Event) error
	}

	Notifier interface {
		Notify(recipientID, text string)
	}
)

// Config bounds the blocking operations of one pass.
type Config struct {
	FetchTimeout   time.Duration
	APITimeout     time.Duration
	SandboxLimits  sandbox.Limits
	DefaultSources []string
}

func (c Config) withDefaults() Config {
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 10 * time.Second
	}
	if c.APITimeout <= 0 {
		c.APITimeout = 10 * time.Second
	}
	if c.SandboxLimits.Timeout <= 0 {
		c.SandboxLimits = sandbox.DefaultLimits()
	}
	return c
}

// Deps wires the orchestrator's collaborators. Bus and Gateway are optional.
type Deps struct {
	Cache      ToolCache
	Executor   Executor
	Discoverer StrategyDiscoverer
	Generator  CodeGenerator
	Fetcher    Fetcher
	Store      RecordStore
	Bus        EventPublisher
	Gateway    Notifier
}

// Orchestrator drives one state-machine pass per source. Safe for concurrent
// Run calls; each run is independent and sources within a run are processed
// sequentially because every scraper execution costs a dedicated sandbox.
type Orchestrator struct {
	deps      Deps
	cfg       Config
	apiClient *http.Client
}

func New(deps Deps, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		deps:      deps,
		cfg:       cfg,
		apiClient: &http.Client{Timeout: cfg.APITimeout},
	}
}

// SourceReport is the terminal status of one source within a run.
type SourceReport struct {
	SourceKey string        `json:"source_key"`
	SourceURL string        `json:"source_url"`
	Status    SourceStatus  `json:"status"`
	Stored    int           `json:"stored"`
	Dropped   int           `json:"dropped"`
	Reason    FailureReason `json:"reason,omitempty"`
	Detail    string        `json:"detail,omitempty"`
}

// RunReport aggregates one orchestration run.
type RunReport struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Sources   []SourceReport `json:"sources"`
}

// TotalStored sums stored records across sources.
func (r *RunReport) TotalStored() int {
	total := 0
	for _, s := range r.Sources {
		total += s.Stored
	}
	return total
}

// Run processes sources sequentially. A failure on one source never aborts
// the others; each gets its own terminal status in the report.
func (o *Orchestrator) Run(ctx context.Context, userID string, sources []string) *RunReport {
	if len(sources) == 0 {
		sources = o.cfg.DefaultSources
	}
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	log.Printf("🔎 [SCOUT] Run %s: %d source(s)", report.RunID, len(sources))
	o.notify(userID, fmt.Sprintf("🔎 Scanning %d source(s) for hackathons...", len(sources)))

	for _, src := range sources {
		sr := o.processSource(ctx, report.RunID, src)
		report.Sources = append(report.Sources, sr)
		if sr.Status == StatusFailed {
			log.Printf("❌ [SCOUT] %s failed (%s): %s", sr.SourceKey, sr.Reason, sr.Detail)
		} else {
			log.Printf("✅ [SCOUT] %s: %d stored, %d dropped (%s)", sr.SourceKey, sr.Stored, sr.Dropped, sr.Status)
		}
	}

	o.notify(userID, summarize(report))
	return report
}

func (o *Orchestrator) processSource(ctx context.Context, runID, rawURL string) SourceReport {
	sr := SourceReport{SourceURL: rawURL}

	sourceKey, err := toolcache.NormalizeSourceKey(rawURL)
	if err != nil {
		sr.Status = StatusFailed
		sr.Reason = ReasonInvalidSource
		sr.Detail = err.Error()
		return sr
	}
	sr.SourceKey = sourceKey

	o.publish(ctx, runID, sourceKey, StateCheckCache, "")
	entry, err := o.deps.Cache.Lookup(ctx, sourceKey)
	switch {
	case err == toolcache.ErrNotFound:
		entry, err = o.discover(ctx, runID, sourceKey, rawURL, &sr)
		if err != nil {
			return sr // sr already carries reason/detail
		}
	case err != nil:
		// A dead cache backend is not a miss. Re-discovering here would
		// burn LLM cost on every request until the backend recovers.
		sr.Status = StatusFailed
		sr.Reason = ReasonCacheUnavailable
		sr.Detail = err.Error()
		return sr
	}

	var raw []map[string]any
	switch entry.Kind {
	case toolcache.KindAPIEndpoint:
		// The cache validates on read, but the ToolCache contract does not
		// guarantee it; a malformed entry must fail the source, not panic.
		if entry.Endpoint == nil {
			sr.Status = StatusFailed
			sr.Reason = ReasonCacheUnavailable
			sr.Detail = fmt.Sprintf("cache entry for %s has no endpoint descriptor", sourceKey)
			return sr
		}
		o.publish(ctx, runID, sourceKey, StateExecuteAPI, entry.Endpoint.EndpointURL)
		raw, err = o.executeAPI(ctx, entry.Endpoint)
		if err != nil {
			sr.Status = StatusFailed
			sr.Reason = ReasonAPIExecution
			sr.Detail = err.Error()
			return sr
		}
	case toolcache.KindScraper:
		o.publish(ctx, runID, sourceKey, StateExecuteScraper, "")
		raw, err = o.executeScraper(ctx, entry.ScraperCode, rawURL)
		if err != nil {
			sr.Status = StatusFailed
			sr.Reason = ReasonScraperExecution
			sr.Detail = err.Error()
			return sr
		}
	default:
		sr.Status = StatusFailed
		sr.Reason = ReasonCacheUnavailable
		sr.Detail = fmt.Sprintf("cache entry for %s has unknown kind %q", sourceKey, entry.Kind)
		return sr
	}

	// An empty list is a valid outcome: the source currently lists nothing.
	o.publish(ctx, runID, sourceKey, StateNormalize, "")
	records, dropped := NormalizeRecords(raw, rawURL, time.Now().UTC())
	sr.Dropped = dropped

	o.publish(ctx, runID, sourceKey, StateStore, "")
	storeFailures := 0
	for i := range records {
		if err := o.deps.Store.Upsert(ctx, &records[i]); err != nil {
			// One bad record must not block the batch.
			log.Printf("⚠️ [SCOUT] Skipping record %s (%s): %v", records[i].ID[:12], records[i].Title, err)
			storeFailures++
		}
	}
	sr.Stored = len(records) - storeFailures

	if dropped > 0 || storeFailures > 0 {
		sr.Status = StatusPartial
	} else {
		sr.Status = StatusDone
	}
	o.publish(ctx, runID, sourceKey, StateDone, fmt.Sprintf("%d stored", sr.Stored))
	return sr
}

// discover runs the cache-miss path: fetch the page, classify it, cache the
// resulting strategy. On return the entry is ready to execute. Failures are
// recorded into sr and returned as a non-nil error.
func (o *Orchestrator) discover(ctx context.Context, runID, sourceKey, rawURL string, sr *SourceReport) (*toolcache.Entry, error) {
	o.publish(ctx, runID, sourceKey, StateDiscover, "")

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()
	content, err := o.deps.Fetcher.FetchPage(fetchCtx, rawURL)
	if err != nil {
		sr.Status = StatusFailed
		sr.Reason = ReasonFetchError
		sr.Detail = err.Error()
		return nil, err
	}

	strategy, err := o.deps.Discoverer.DiscoverStrategy(ctx, content, rawURL)
	if err != nil {
		sr.Status = StatusFailed
		sr.Reason = ReasonDiscoveryError
		sr.Detail = err.Error()
		return nil, err
	}

	var entry *toolcache.Entry
	if strategy.APIFound {
		entry = &toolcache.Entry{
			SourceKey: sourceKey,
			Kind:      toolcache.KindAPIEndpoint,
			Endpoint: &toolcache.APIDescriptor{
				EndpointURL: strategy.EndpointURL,
				HTTPMethod:  strategy.Method,
				Notes:       strategy.ScrapingNotes,
			},
		}
	} else {
		o.publish(ctx, runID, sourceKey, StateGenerate, "")
		code, err := o.deps.Generator.GenerateExtractor(ctx, rawURL, strategy)
		if err != nil {
			sr.Status = StatusFailed
			sr.Reason = ReasonGenerationError
			sr.Detail = err.Error()
			return nil, err
		}
		entry = &toolcache.Entry{
			SourceKey:   sourceKey,
			Kind:        toolcache.KindScraper,
			ScraperCode: code,
		}
	}

	// A failed save costs one regeneration on the next request; the
	// strategy in hand is still good for this pass.
	if err := o.deps.Cache.Save(ctx, entry); err != nil {
		log.Printf("⚠️ [SCOUT] Could not cache strategy for %s: %v", sourceKey, err)
	}
	return entry, nil
}

// executeAPI calls a cached or freshly discovered endpoint and returns its
// record list. Non-2xx or non-JSON responses are execution errors.
func (o *Orchestrator) executeAPI(ctx context.Context, desc *toolcache.APIDescriptor) ([]map[string]any, error) {
	method := desc.HTTPMethod
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, desc.EndpointURL, nil)
	if err != nil {
		return nil, fmt.Errorf("bad endpoint %q: %v", desc.EndpointURL, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.apiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API call to %s: %v", desc.EndpointURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("API call to %s: status %d", desc.EndpointURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("API call to %s: reading body: %v", desc.EndpointURL, err)
	}
	return decodeRecordList(body)
}

// decodeRecordList accepts either a top-level JSON array of objects or an
// object wrapping one (Devpost-style {"hackathons": [...]}).
func decodeRecordList(body []byte) ([]map[string]any, error) {
	var list []map[string]any
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var wrapper map[string]any
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("response is not JSON: %v", err)
	}
	for _, key := range []string{"hackathons", "results", "items", "data"} {
		arr, ok := wrapper[key].([]any)
		if !ok {
			continue
		}
		list = make([]map[string]any, 0, len(arr))
		for _, e := range arr {
			if m, ok := e.(map[string]any); ok {
				list = append(list, m)
			}
		}
		return list, nil
	}
	return nil, fmt.Errorf("JSON response carries no record list")
}

// executeScraper delegates to the sandbox and converts failure outcomes into
// errors with enough detail to tell bad code from a changed site from
// resource starvation.
func (o *Orchestrator) executeScraper(ctx context.Context, code, targetURL string) ([]map[string]any, error) {
	outcome, err := o.deps.Executor.Execute(ctx, sandbox.ExecutionRequest{
		Code:      code,
		TargetURL: targetURL,
		Limits:    o.cfg.SandboxLimits,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox invocation: %v", err)
	}

	switch outcome.Kind {
	case sandbox.OutcomeSuccess:
		return outcome.Records, nil
	case sandbox.OutcomeTimeout:
		return nil, fmt.Errorf("extractor timed out after %s", outcome.Duration.Round(time.Second))
	case sandbox.OutcomeResourceLimit:
		return nil, fmt.Errorf("extractor exceeded resource limits (exit %d)", outcome.ExitCode)
	default:
		return nil, fmt.Errorf("extractor failed (exit %d): %s", outcome.ExitCode, outcome.Stderr)
	}
}

func (o *Orchestrator) publish(ctx context.Context, runID, sourceKey string, stage State, detail string) {
	if o.deps.Bus == nil {
		return
	}
	evt := eventbus.Event{
		RunID:     runID,
		SourceKey: sourceKey,
		Stage:     string(stage),
		Detail:    detail,
		Timestamp: time.Now().UTC(),
	}
	if err := o.deps.Bus.Publish(ctx, evt); err != nil {
		log.Printf("⚠️ [SCOUT] Event publish failed: %v", err)
	}
}

func (o *Orchestrator) notify(userID, text string) {
	if o.deps.Gateway == nil || userID == "" {
		return
	}
	o.deps.Gateway.Notify(userID, text)
}

func summarize(report *RunReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🏁 Scan finished: %d hackathon(s) found.\n", report.TotalStored())
	for _, s := range report.Sources {
		switch s.Status {
		case StatusFailed:
			fmt.Fprintf(&b, "❌ %s: %s\n", s.SourceKey, s.Reason)
		case StatusPartial:
			fmt.Fprintf(&b, "⚠️ %s: %d stored, %d skipped\n", s.SourceKey, s.Stored, s.Dropped)
		default:
			fmt.Fprintf(&b, "✅ %s: %d stored\n", s.SourceKey, s.Stored)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
