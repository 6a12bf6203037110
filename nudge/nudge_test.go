package nudge

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"hackscout/scout"
	"hackscout/store"
)

type fakePrefs struct {
	prefs map[string]*store.Preference
}

func (f *fakePrefs) ActiveUsers(ctx context.Context) ([]string, error) {
	users := make([]string, 0, len(f.prefs))
	for id := range f.prefs {
		users = append(users, id)
	}
	return users, nil
}

func (f *fakePrefs) Get(ctx context.Context, userID string) (*store.Preference, error) {
	p, ok := f.prefs[userID]
	if !ok {
		return nil, store.ErrNoPreference
	}
	return p, nil
}

type fakeRecords struct {
	recent  []*scout.HackathonRecord
	vectors map[string][]float64
	embeds  int
}

func (f *fakeRecords) Recent(ctx context.Context, n int) ([]*scout.HackathonRecord, error) {
	return f.recent, nil
}

func (f *fakeRecords) GetVector(ctx context.Context, id string) ([]float64, error) {
	return f.vectors[id], nil
}

func (f *fakeRecords) SaveVector(ctx context.Context, id string, vector []float64) error {
	f.vectors[id] = vector
	return nil
}

type fakeHistory struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeHistory() *fakeHistory { return &fakeHistory{seen: make(map[string]bool)} }

func (f *fakeHistory) MarkNotified(ctx context.Context, userID, hackathonID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[userID+"|"+hackathonID] = true
	return nil
}

func (f *fakeHistory) WasNotified(ctx context.Context, userID, hackathonID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[userID+"|"+hackathonID], nil
}

// fakeEmbedder maps known phrases to fixed vectors so similarity is exact.
type fakeEmbedder struct {
	vectors map[string][]float64
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.calls++
	for phrase, vec := range f.vectors {
		if strings.Contains(strings.ToLower(text), strings.ToLower(phrase)) {
			return vec, nil
		}
	}
	return []float64{0, 0, 1}, nil
}

type fakeCrafter struct{ calls int }

func (f *fakeCrafter) CraftNudge(ctx context.Context, prefText string, matches []string) (string, error) {
	f.calls++
	return fmt.Sprintf("Found %d hackathons for you!", len(matches)), nil
}

type fakeGateway struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newFakeGateway() *fakeGateway { return &fakeGateway{messages: make(map[string][]string)} }

func (f *fakeGateway) Notify(recipientID, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[recipientID] = append(f.messages[recipientID], text)
}

func hackRecord(title string) *scout.HackathonRecord {
	return &scout.HackathonRecord{
		ID:           scout.RecordID(title, "https://devpost.com/hackathons"),
		Title:        title,
		SourceURL:    "https://devpost.com/hackathons",
		DiscoveredAt: time.Now().UTC(),
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1},
		{"empty", nil, nil, 0},
		{"length mismatch", []float64{1, 2}, []float64{1}, 0},
		{"zero vector", []float64{0, 0}, []float64{1, 1}, 0},
	}

	for _, tc := range cases {
		if got := Cosine(tc.a, tc.b); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: Cosine = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRunNotifiesMatchingUser(t *testing.T) {
	aiVec := []float64{1, 0, 0}
	rec := hackRecord("AI Agents Hackathon")

	prefs := &fakePrefs{prefs: map[string]*store.Preference{
		"42": {UserID: "42", Text: "AI hackathons", Vector: aiVec},
	}}
	records := &fakeRecords{
		recent:  []*scout.HackathonRecord{rec},
		vectors: map[string][]float64{rec.ID: aiVec},
	}
	history := newFakeHistory()
	gateway := newFakeGateway()
	crafter := &fakeCrafter{}

	agent := NewAgent(prefs, records, history, &fakeEmbedder{}, crafter, gateway, Config{})
	sent, err := agent.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if len(gateway.messages["42"]) != 1 {
		t.Errorf("user 42 got %d messages, want 1", len(gateway.messages["42"]))
	}
	if crafter.calls != 1 {
		t.Errorf("crafter calls = %d, want 1", crafter.calls)
	}

	seen, _ := history.WasNotified(context.Background(), "42", rec.ID)
	if !seen {
		t.Error("notification must be recorded in history")
	}
}

func TestRunSkipsAlreadyNotified(t *testing.T) {
	vec := []float64{1, 0, 0}
	rec := hackRecord("AI Agents Hackathon")

	prefs := &fakePrefs{prefs: map[string]*store.Preference{
		"42": {UserID: "42", Text: "AI", Vector: vec},
	}}
	records := &fakeRecords{
		recent:  []*scout.HackathonRecord{rec},
		vectors: map[string][]float64{rec.ID: vec},
	}
	history := newFakeHistory()
	history.MarkNotified(context.Background(), "42", rec.ID)
	gateway := newFakeGateway()

	agent := NewAgent(prefs, records, history, &fakeEmbedder{}, &fakeCrafter{}, gateway, Config{})
	sent, err := agent.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0: the only match was already delivered", sent)
	}
	if len(gateway.messages["42"]) != 0 {
		t.Error("no message should be sent for stale matches")
	}
}

func TestRunBelowThreshold(t *testing.T) {
	rec := hackRecord("Blockchain Summit Hack")

	prefs := &fakePrefs{prefs: map[string]*store.Preference{
		"42": {UserID: "42", Text: "AI", Vector: []float64{1, 0, 0}},
	}}
	records := &fakeRecords{
		recent:  []*scout.HackathonRecord{rec},
		vectors: map[string][]float64{rec.ID: {0, 1, 0}},
	}
	gateway := newFakeGateway()

	agent := NewAgent(prefs, records, newFakeHistory(), &fakeEmbedder{}, &fakeCrafter{}, gateway, Config{})
	sent, err := agent.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sent != 0 {
		t.Errorf("sent = %d, want 0: orthogonal vectors must not match", sent)
	}
}

func TestRunEmbedsAndCachesMissingVectors(t *testing.T) {
	vec := []float64{1, 0, 0}
	rec := hackRecord("AI Agents Hackathon")

	prefs := &fakePrefs{prefs: map[string]*store.Preference{
		"42": {UserID: "42", Text: "AI", Vector: vec},
	}}
	records := &fakeRecords{
		recent:  []*scout.HackathonRecord{rec},
		vectors: map[string][]float64{},
	}
	embedder := &fakeEmbedder{vectors: map[string][]float64{"AI Agents": vec}}

	agent := NewAgent(prefs, records, newFakeHistory(), embedder, &fakeCrafter{}, newFakeGateway(), Config{})
	sent, err := agent.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1", sent)
	}
	if embedder.calls != 1 {
		t.Errorf("embedder calls = %d, want 1", embedder.calls)
	}
	if len(records.vectors[rec.ID]) == 0 {
		t.Error("computed vector must be cached on the record store")
	}
}

func TestRunCapsMatches(t *testing.T) {
	vec := []float64{1, 0, 0}
	prefs := &fakePrefs{prefs: map[string]*store.Preference{
		"42": {UserID: "42", Text: "AI", Vector: vec},
	}}

	records := &fakeRecords{vectors: map[string][]float64{}}
	for i := 0; i < 5; i++ {
		rec := hackRecord(fmt.Sprintf("AI Hack %d", i))
		records.recent = append(records.recent, rec)
		records.vectors[rec.ID] = vec
	}

	crafter := &capturingCrafter{}
	agent := NewAgent(prefs, records, newFakeHistory(), &fakeEmbedder{}, crafter, newFakeGateway(), Config{MaxMatches: 2})
	if _, err := agent.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(crafter.matches) != 2 {
		t.Errorf("crafter saw %d matches, want 2", len(crafter.matches))
	}
}

type capturingCrafter struct{ matches []string }

func (c *capturingCrafter) CraftNudge(ctx context.Context, prefText string, matches []string) (string, error) {
	c.matches = matches
	return "msg", nil
}

func TestRunUserIsolation(t *testing.T) {
	vec := []float64{1, 0, 0}
	rec := hackRecord("AI Agents Hackathon")

	prefs := &fakePrefs{prefs: map[string]*store.Preference{
		"novector": {UserID: "novector", Text: "AI"}, // no embedding stored
		"42":       {UserID: "42", Text: "AI", Vector: vec},
	}}
	records := &fakeRecords{
		recent:  []*scout.HackathonRecord{rec},
		vectors: map[string][]float64{rec.ID: vec},
	}
	gateway := newFakeGateway()

	agent := NewAgent(prefs, records, newFakeHistory(), &fakeEmbedder{}, &fakeCrafter{}, gateway, Config{})
	sent, err := agent.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sent != 1 {
		t.Errorf("sent = %d, want 1: one bad user must not block the rest", sent)
	}
	if len(gateway.messages["42"]) != 1 {
		t.Error("healthy user missed their notification")
	}
}
