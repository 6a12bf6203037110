// Package nudge sends proactive, personalized hackathon notifications based
// on stored user preferences.
package nudge

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"hackscout/notify"
	"hackscout/scout"
	"hackscout/store"
)

// Collaborator contracts, narrowed to what the agent needs so tests can fake
// them.
type (
	PreferenceSource interface {
		ActiveUsers(ctx context.Context) ([]string, error)
		Get(ctx context.Context, userID string) (*store.Preference, error)
	}

	RecordSource interface {
		Recent(ctx context.Context, n int) ([]*scout.HackathonRecord, error)
		GetVector(ctx context.Context, id string) ([]float64, error)
		SaveVector(ctx context.Context, id string, vector []float64) error
	}

	History interface {
		MarkNotified(ctx context.Context, userID, hackathonID string) error
		WasNotified(ctx context.Context, userID, hackathonID string) (bool, error)
	}

	Embedder interface {
		Embed(ctx context.Context, text string) ([]float64, error)
	}

	Crafter interface {
		CraftNudge(ctx context.Context, prefText string, matches []string) (string, error)
	}
)

// Config tunes the matching pass.
type Config struct {
	RecentWindow   int     // how many recent records to consider
	MatchThreshold float64 // minimum cosine similarity
	MaxMatches     int     // matches per notification
}

func (c Config) withDefaults() Config {
	if c.RecentWindow <= 0 {
		c.RecentWindow = 50
	}
	if c.MatchThreshold <= 0 {
		c.MatchThreshold = 0.6
	}
	if c.MaxMatches <= 0 {
		c.MaxMatches = 3
	}
	return c
}

// Agent matches recent hackathons against preference vectors and delivers
// one crafted message per user with fresh matches.
type Agent struct {
	prefs    PreferenceSource
	records  RecordSource
	history  History
	embedder Embedder
	crafter  Crafter
	gateway  notify.Gateway
	cfg      Config
}

func NewAgent(prefs PreferenceSource, records RecordSource, history History, embedder Embedder, crafter Crafter, gateway notify.Gateway, cfg Config) *Agent {
	return &Agent{
		prefs:    prefs,
		records:  records,
		history:  history,
		embedder: embedder,
		crafter:  crafter,
		gateway:  gateway,
		cfg:      cfg.withDefaults(),
	}
}

type match struct {
	record *scout.HackathonRecord
	score  float64
}

// Run performs one notification pass. A failure for one user never blocks
// the others; the returned count is messages actually dispatched.
func (a *Agent) Run(ctx context.Context) (int, error) {
	users, err := a.prefs.ActiveUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("nudge: listing users: %v", err)
	}
	recent, err := a.records.Recent(ctx, a.cfg.RecentWindow)
	if err != nil {
		return 0, fmt.Errorf("nudge: listing recent hackathons: %v", err)
	}
	if len(users) == 0 || len(recent) == 0 {
		return 0, nil
	}

	sent := 0
	for _, userID := range users {
		if err := a.notifyUser(ctx, userID, recent); err != nil {
			log.Printf("⚠️ [NUDGE] Skipping user %s: %v", userID, err)
			continue
		}
		sent++
	}
	log.Printf("📣 [NUDGE] Pass complete: %d/%d users notified", sent, len(users))
	return sent, nil
}

func (a *Agent) notifyUser(ctx context.Context, userID string, recent []*scout.HackathonRecord) error {
	pref, err := a.prefs.Get(ctx, userID)
	if err != nil {
		return err
	}
	if len(pref.Vector) == 0 {
		return fmt.Errorf("preference for %s has no vector", userID)
	}

	var matches []match
	for _, rec := range recent {
		seen, err := a.history.WasNotified(ctx, userID, rec.ID)
		if err != nil {
			return err
		}
		if seen {
			continue
		}
		vec, err := a.recordVector(ctx, rec)
		if err != nil {
			log.Printf("⚠️ [NUDGE] No vector for %s: %v", rec.ID[:12], err)
			continue
		}
		if score := Cosine(pref.Vector, vec); score >= a.cfg.MatchThreshold {
			matches = append(matches, match{record: rec, score: score})
		}
	}
	if len(matches) == 0 {
		return fmt.Errorf("no fresh matches")
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > a.cfg.MaxMatches {
		matches = matches[:a.cfg.MaxMatches]
	}

	summaries := make([]string, 0, len(matches))
	for _, m := range matches {
		summaries = append(summaries, summarizeRecord(m.record))
	}

	text, err := a.crafter.CraftNudge(ctx, pref.Text, summaries)
	if err != nil {
		return err
	}
	a.gateway.Notify(userID, text)

	for _, m := range matches {
		if err := a.history.MarkNotified(ctx, userID, m.record.ID); err != nil {
			log.Printf("⚠️ [NUDGE] Could not record history for %s: %v", userID, err)
		}
	}
	return nil
}

// recordVector returns the cached embedding for a record, computing and
// caching it on first use.
func (a *Agent) recordVector(ctx context.Context, rec *scout.HackathonRecord) ([]float64, error) {
	vec, err := a.records.GetVector(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		return vec, nil
	}
	vec, err = a.embedder.Embed(ctx, summarizeRecord(rec))
	if err != nil {
		return nil, err
	}
	if err := a.records.SaveVector(ctx, rec.ID, vec); err != nil {
		log.Printf("⚠️ [NUDGE] Could not cache vector for %s: %v", rec.ID[:12], err)
	}
	return vec, nil
}

func summarizeRecord(rec *scout.HackathonRecord) string {
	s := rec.Title
	if rec.Prize != "" {
		s += " — prize: " + rec.Prize
	}
	if rec.Deadline != "" {
		s += " — deadline: " + rec.Deadline
	}
	return s
}

// Cosine returns the cosine similarity of two vectors, 0 when either is
// empty or lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
