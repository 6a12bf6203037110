package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	telegramAPIBase = "https://api.telegram.org/bot"
	defaultScoutURL = "http://localhost:8090"
)

type Update struct {
	UpdateID int     `json:"update_id"`
	Message  Message `json:"message"`
}

type Message struct {
	MessageID int    `json:"message_id"`
	From      User   `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

type User struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID int `json:"id"`
}

type TelegramResponse struct {
	OK     bool     `json:"ok"`
	Result []Update `json:"result"`
}

type discoverRequest struct {
	UserID  string   `json:"user_id"`
	Sources []string `json:"sources,omitempty"`
}

type sourceReport struct {
	SourceURL string `json:"source_url"`
	Status    string `json:"status"`
	Stored    int    `json:"stored"`
	Reason    string `json:"reason,omitempty"`
}

type runReport struct {
	RunID   string         `json:"run_id"`
	Sources []sourceReport `json:"sources"`
}

type preferencesRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type hackathonRecord struct {
	Title     string `json:"title"`
	Deadline  string `json:"deadline,omitempty"`
	Prize     string `json:"prize,omitempty"`
	SourceURL string `json:"source_url"`
}

type hackathonsResponse struct {
	Count      int               `json:"count"`
	Hackathons []hackathonRecord `json:"hackathons"`
}

type TelegramBot struct {
	token        string
	scoutURL     string
	lastUpdate   int
	allowedUsers map[string]bool
	client       *http.Client
}

func NewTelegramBot(token, scoutURL string, allowed []string) *TelegramBot {
	allowedMap := make(map[string]bool)
	for _, u := range allowed {
		allowedMap[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(u), "@"))] = true
	}

	return &TelegramBot{
		token:        token,
		scoutURL:     strings.TrimSuffix(scoutURL, "/"),
		lastUpdate:   0,
		allowedUsers: allowedMap,
		// Discovery runs can take minutes when scrapers are generated fresh.
		client: &http.Client{Timeout: 210 * time.Second},
	}
}

func (bot *TelegramBot) getUpdates() ([]Update, error) {
	url := fmt.Sprintf("%s%s/getUpdates?offset=%d&timeout=30", telegramAPIBase, bot.token, bot.lastUpdate+1)

	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var telegramResp TelegramResponse
	if err := json.NewDecoder(resp.Body).Decode(&telegramResp); err != nil {
		return nil, err
	}

	if !telegramResp.OK {
		return nil, fmt.Errorf("telegram API error")
	}

	return telegramResp.Result, nil
}

func (bot *TelegramBot) sendMessage(chatID int, text string) error {
	// Standard Telegram maxLength is 4096, using 4000 for safety
	const maxLength = 4000

	if len(text) > maxLength {
		log.Printf("⚠️ Message to %d is too long (%d chars), truncating to %d", chatID, len(text), maxLength)
		text = text[:maxLength] + "\n\n... (truncated, message too long)"
	}

	url := fmt.Sprintf("%s%s/sendMessage", telegramAPIBase, bot.token)

	payload := map[string]interface{}{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	// If Markdown failed, retry as plain text
	if resp.StatusCode == http.StatusBadRequest {
		log.Printf("⚠️ Telegram Markdown failed for chat %d, retrying as plain text", chatID)
		delete(payload, "parse_mode")
		jsonData, _ = json.Marshal(payload)
		resp2, err := http.Post(url, "application/json", bytes.NewBuffer(jsonData))
		if err != nil {
			return err
		}
		defer resp2.Body.Close()

		if resp2.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp2.Body)
			return fmt.Errorf("telegram API error (plain text retry): %d %s", resp2.StatusCode, string(body))
		}
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("telegram API error: %d %s", resp.StatusCode, string(body))
}

func (bot *TelegramBot) runDiscovery(chatID int, sources []string) (string, error) {
	req := discoverRequest{
		UserID:  fmt.Sprintf("%d", chatID),
		Sources: sources,
	}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	resp, err := bot.client.Post(bot.scoutURL+"/api/v1/discover", "application/json", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", fmt.Errorf("scout service error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scout service returned status: %s", resp.Status)
	}

	var report runReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return "", fmt.Errorf("failed to parse discovery report: %v", err)
	}

	var b strings.Builder
	total := 0
	b.WriteString("🔍 *Discovery complete*\n")
	for _, src := range report.Sources {
		total += src.Stored
		switch src.Status {
		case "failed":
			b.WriteString(fmt.Sprintf("❌ %s — %s\n", src.SourceURL, src.Reason))
		case "partial":
			b.WriteString(fmt.Sprintf("⚠️ %s — %d stored (some entries skipped)\n", src.SourceURL, src.Stored))
		default:
			b.WriteString(fmt.Sprintf("✅ %s — %d stored\n", src.SourceURL, src.Stored))
		}
	}
	b.WriteString(fmt.Sprintf("\n📦 %d hackathons stored. Use /list to see them.", total))
	return b.String(), nil
}

func (bot *TelegramBot) savePreference(chatID int, text string) (string, error) {
	req := preferencesRequest{UserID: fmt.Sprintf("%d", chatID), Text: text}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	resp, err := bot.client.Post(bot.scoutURL+"/api/v1/preferences", "application/json", bytes.NewBuffer(reqJSON))
	if err != nil {
		return "", fmt.Errorf("scout service error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("scout service returned %s: %s", resp.Status, string(body))
	}
	return "💾 Got it! I'll nudge you when matching hackathons show up.", nil
}

func (bot *TelegramBot) listHackathons(limit int) (string, error) {
	resp, err := bot.client.Get(fmt.Sprintf("%s/api/v1/hackathons?limit=%d", bot.scoutURL, limit))
	if err != nil {
		return "", fmt.Errorf("scout service error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scout service returned status: %s", resp.Status)
	}

	var list hackathonsResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("failed to parse hackathon list: %v", err)
	}
	if list.Count == 0 {
		return "📭 Nothing stored yet. Try /find to run a discovery pass.", nil
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🏆 *Latest hackathons* (%d)\n\n", list.Count))
	for i, h := range list.Hackathons {
		b.WriteString(fmt.Sprintf("%d. *%s*\n", i+1, h.Title))
		if h.Deadline != "" {
			b.WriteString("   ⏳ " + h.Deadline + "\n")
		}
		if h.Prize != "" {
			b.WriteString("   💰 " + h.Prize + "\n")
		}
		b.WriteString("   🔗 " + h.SourceURL + "\n")
	}
	return b.String(), nil
}

func (bot *TelegramBot) forgetTool(source string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/tools?source=%s", bot.scoutURL, url.QueryEscape(source))
	req, err := http.NewRequest(http.MethodDelete, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := bot.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scout service error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("scout service returned %s: %s", resp.Status, string(body))
	}
	return fmt.Sprintf("🗑 Cached tool for %s dropped. The next /find rebuilds it.", source), nil
}

// hasAnyKeyword reports whether text contains one of the words. Substring
// match is intentional so "reminder" and "reminders" both route the same way.
func hasAnyKeyword(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

var (
	discoverWords   = []string{"find", "search", "discover", "scout", "look for"}
	preferenceWords = []string{"remind", "notify", "interested", "prefer", "nudge"}
)

const helpText = `🤖 *Hackathon Scout Bot*

Available commands:
/find [url ...] - Run a discovery pass (optionally over specific sources)
/list - Show the latest stored hackathons
/prefs <text> - Save what you care about, e.g. /prefs AI and climate hackathons with cash prizes
/forget <url> - Drop the cached extraction tool for a source
/help - Show this message

You can also just talk to me:
"find new hackathons" runs discovery,
"remind me about web3 events" saves a preference.`

func (bot *TelegramBot) handleMessage(msg Message) {
	username := strings.ToLower(msg.From.Username)
	if len(bot.allowedUsers) > 0 && !bot.allowedUsers[username] {
		log.Printf("🚫 Unauthorized access attempt from %s (ID: %d)", msg.From.Username, msg.From.ID)
		bot.sendMessage(msg.Chat.ID, "🚫 *Unauthorized*\nSorry, you are not on the whitelist for this bot.")
		return
	}
	log.Printf("📩 Message from %s (@%s, UserID: %d): %s", msg.From.FirstName, msg.From.Username, msg.From.ID, msg.Text)

	text := strings.TrimSpace(msg.Text)
	lower := strings.ToLower(text)

	var response string
	var err error

	switch {
	case strings.HasPrefix(text, "/start") || strings.HasPrefix(text, "/help"):
		response = helpText
	case strings.HasPrefix(text, "/find"):
		args := strings.Fields(strings.TrimPrefix(text, "/find"))
		bot.sendMessage(msg.Chat.ID, "🔍 On it! Discovery can take a few minutes when a source needs a fresh scraper...")
		response, err = bot.runDiscovery(msg.Chat.ID, args)
	case strings.HasPrefix(text, "/list"):
		response, err = bot.listHackathons(10)
	case strings.HasPrefix(text, "/prefs"):
		prefText := strings.TrimSpace(strings.TrimPrefix(text, "/prefs"))
		if prefText == "" {
			response = "❌ Tell me what you care about. Example: /prefs AI hackathons with cash prizes"
		} else {
			response, err = bot.savePreference(msg.Chat.ID, prefText)
		}
	case strings.HasPrefix(text, "/forget "):
		source := strings.TrimSpace(strings.TrimPrefix(text, "/forget"))
		response, err = bot.forgetTool(source)
	case hasAnyKeyword(lower, discoverWords):
		bot.sendMessage(msg.Chat.ID, "🔍 On it! Discovery can take a few minutes when a source needs a fresh scraper...")
		response, err = bot.runDiscovery(msg.Chat.ID, nil)
	case hasAnyKeyword(lower, preferenceWords):
		response, err = bot.savePreference(msg.Chat.ID, text)
	default:
		response = "🤔 Not sure what you mean. Try /help for what I can do."
	}

	if err != nil {
		response = fmt.Sprintf("❌ Error: %v", err)
	}

	if err := bot.sendMessage(msg.Chat.ID, response); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func (bot *TelegramBot) start() {
	log.Println("🤖 Telegram bot started. Polling for messages...")

	for {
		updates, err := bot.getUpdates()
		if err != nil {
			log.Printf("Error getting updates: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		for _, update := range updates {
			if update.Message.Text != "" {
				go bot.handleMessage(update.Message)
			}
			bot.lastUpdate = update.UpdateID
		}

		time.Sleep(1 * time.Second)
	}
}

func main() {
	_ = godotenv.Load()

	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN environment variable not set")
	}

	scoutURL := os.Getenv("SCOUT_SERVER_URL")
	if scoutURL == "" {
		scoutURL = defaultScoutURL
		log.Printf("Using default scout service URL: %s", scoutURL)
	}

	allowedUsersStr := os.Getenv("ALLOWED_TELEGRAM_USERS")
	var allowedUsers []string
	if allowedUsersStr != "" {
		allowedUsers = strings.Split(allowedUsersStr, ",")
		log.Printf("🔒 Bot restricted to: %s", allowedUsersStr)
	} else {
		log.Printf("⚠️ WARNING: No ALLOWED_TELEGRAM_USERS set. Bot is open to everyone!")
	}

	bot := NewTelegramBot(token, scoutURL, allowedUsers)
	bot.start()
}
