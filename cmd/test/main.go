package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

const sampleDescription = "Eleven year old who reads fluently and loves drawing, " +
	"but loses focus in group work and gets anxious before tests."

type SmokeClient struct {
	baseURL     string
	client      *http.Client
	description string
	locale      string
	file        string
}

type envelope struct {
	Error   bool            `json:"error"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Base URL of the service")
	check := flag.String("test", "all", "Check to run: all, health, agent-card, categories, full, a2a")
	description := flag.String("description", sampleDescription, "Student description")
	locale := flag.String("locale", "en", "Prompt locale")
	file := flag.String("file", "", "Optional pdf, txt or docx document for the full profile")
	timeout := flag.Duration("timeout", 6*time.Minute, "Per-request timeout")
	flag.Parse()

	sc := &SmokeClient{
		baseURL:     strings.TrimRight(*baseURL, "/"),
		client:      &http.Client{Timeout: *timeout},
		description: *description,
		locale:      *locale,
		file:        *file,
	}

	printHeader("Recommendation Service - Smoke Checks")
	fmt.Printf("%sBase URL: %s%s\n\n", colorCyan, sc.baseURL, colorReset)

	checks := map[string]func() bool{
		"health":     sc.checkHealth,
		"agent-card": sc.checkAgentCard,
		"categories": sc.checkCategories,
		"full":       sc.checkFullProfile,
		"a2a":        sc.checkA2A,
	}
	if *check == "all" {
		sc.runAll()
		return
	}
	fn, ok := checks[*check]
	if !ok {
		printError(fmt.Sprintf("Unknown check: %s", *check))
		fmt.Println("\nAvailable checks: all, health, agent-card, categories, full, a2a")
		os.Exit(1)
	}
	if !fn() {
		os.Exit(1)
	}
}

func (sc *SmokeClient) runAll() {
	checks := []struct {
		name string
		fn   func() bool
	}{
		{"Health", sc.checkHealth},
		{"Agent Card", sc.checkAgentCard},
		{"Categories", sc.checkCategories},
		{"Full Profile", sc.checkFullProfile},
		{"A2A", sc.checkA2A},
	}

	passed, failed := 0, 0
	for _, c := range checks {
		if c.fn() {
			passed++
		} else {
			failed++
		}
		fmt.Println()
	}

	printHeader("Summary")
	fmt.Printf("%sPassed: %d%s\n", colorGreen, passed, colorReset)
	fmt.Printf("%sFailed: %d%s\n", colorRed, failed, colorReset)
	if failed > 0 {
		os.Exit(1)
	}
}

func (sc *SmokeClient) checkHealth() bool {
	printTestHeader("Health endpoint")
	resp, err := sc.client.Get(sc.baseURL + "/health")
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "OK" {
		printError(fmt.Sprintf("Expected 200 OK, got %d %q", resp.StatusCode, string(body)))
		return false
	}
	printSuccess("Health check passed")
	return true
}

func (sc *SmokeClient) checkAgentCard() bool {
	printTestHeader("Agent card")
	resp, err := sc.client.Get(sc.baseURL + "/.well-known/agent.json")
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var card map[string]any
	if err := json.Unmarshal(body, &card); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return false
	}
	for _, field := range []string{"name", "description", "version", "capabilities", "endpoints"} {
		if _, ok := card[field]; !ok {
			printError(fmt.Sprintf("Missing required field: %s", field))
			return false
		}
	}
	printSuccess("Agent card is valid")
	printJSON(body)
	return true
}

// checkCategories walks the single-category endpoints in pipeline order,
// feeding each result into the next request.
func (sc *SmokeClient) checkCategories() bool {
	printTestHeader("Category endpoints")
	base := map[string]any{"description": sc.description, "locale": sc.locale, "item_count": 3}

	var strengths, challenges, needs []string
	for _, step := range []struct {
		path string
		into *[]string
	}{
		{"strengths", &strengths},
		{"challenges", &challenges},
		{"needs", &needs},
	} {
		env, ok := sc.postJSON("/api/v1/"+step.path+"/", base)
		if !ok || json.Unmarshal(env.Data, step.into) != nil {
			return false
		}
		printSuccess(fmt.Sprintf("%s: %s", step.path, strings.Join(*step.into, " | ")))
	}

	env, ok := sc.postJSON("/api/v1/goals/", map[string]any{
		"locale": sc.locale, "item_count": 3,
		"strengths": strengths, "challenges": challenges, "needs": needs,
	})
	if !ok {
		return false
	}
	var goals []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(env.Data, &goals); err != nil {
		printError(fmt.Sprintf("Unexpected goals payload: %v", err))
		return false
	}
	descriptions := make([]string, len(goals))
	for i, g := range goals {
		descriptions[i] = g.Description
	}
	printSuccess(fmt.Sprintf("goals: %s", strings.Join(descriptions, " | ")))

	env, ok = sc.postJSON("/api/v1/means/", map[string]any{
		"locale": sc.locale, "item_count": 3,
		"strengths": strengths, "challenges": challenges, "needs": needs, "goals": descriptions,
	})
	if !ok {
		return false
	}
	printSuccess("means received")
	printJSON(env.Data)
	return true
}

func (sc *SmokeClient) checkFullProfile() bool {
	printTestHeader("Full profile")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("description", sc.description)
	_ = mw.WriteField("locale", sc.locale)
	if sc.file != "" {
		data, err := os.ReadFile(sc.file)
		if err != nil {
			printError(fmt.Sprintf("Cannot read %s: %v", sc.file, err))
			return false
		}
		fw, err := mw.CreateFormFile("file", filepath.Base(sc.file))
		if err != nil {
			printError(err.Error())
			return false
		}
		_, _ = fw.Write(data)
	}
	_ = mw.Close()

	env, ok := sc.do(http.MethodPost, "/api/v1/profile/full/", mw.FormDataContentType(), &buf)
	if !ok {
		return false
	}
	printSuccess("Full profile generated")
	printJSON(env.Data)
	return true
}

func (sc *SmokeClient) checkA2A() bool {
	printTestHeader("A2A message/send")
	request := map[string]any{
		"jsonrpc": "2.0",
		"id":      fmt.Sprintf("smoke-%d", time.Now().Unix()),
		"method":  "message/send",
		"params": map[string]any{
			"message": map[string]any{
				"kind": "message",
				"role": "user",
				"parts": []map[string]any{
					{"kind": "text", "text": sc.description},
					{"kind": "data", "data": map[string]any{"locale": sc.locale}},
				},
			},
			"configuration": map[string]any{"blocking": true, "acceptedOutputModes": []string{"text", "data"}},
		},
	}
	payload, _ := json.Marshal(request)

	resp, err := sc.client.Post(sc.baseURL+"/a2a/recommend", "application/json", bytes.NewReader(payload))
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return false
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	var rpc struct {
		Result *struct {
			Status struct {
				State   string `json:"state"`
				Message struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"message"`
			} `json:"status"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &rpc); err != nil {
		printError(fmt.Sprintf("Invalid JSON response: %v", err))
		return false
	}
	if rpc.Error != nil {
		printError(fmt.Sprintf("RPC error %d: %s", rpc.Error.Code, rpc.Error.Message))
		return false
	}
	if rpc.Result == nil || rpc.Result.Status.State != "completed" {
		printError("Task did not complete")
		printJSON(body)
		return false
	}

	printSuccess("Task completed")
	fmt.Println(strings.Repeat("=", 80))
	for _, p := range rpc.Result.Status.Message.Parts {
		fmt.Println(p.Text)
	}
	fmt.Println(strings.Repeat("=", 80))
	return true
}

func (sc *SmokeClient) postJSON(path string, body any) (envelope, bool) {
	payload, err := json.Marshal(body)
	if err != nil {
		printError(err.Error())
		return envelope{}, false
	}
	return sc.do(http.MethodPost, path, "application/json", bytes.NewReader(payload))
}

func (sc *SmokeClient) do(method, path, contentType string, body io.Reader) (envelope, bool) {
	fmt.Printf("%s %s\n", method, sc.baseURL+path)
	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		printError(err.Error())
		return envelope{}, false
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := sc.client.Do(req)
	if err != nil {
		printError(fmt.Sprintf("Request failed: %v", err))
		return envelope{}, false
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		printError(fmt.Sprintf("Invalid JSON response (%d): %s", resp.StatusCode, string(raw)))
		return envelope{}, false
	}
	if resp.StatusCode != http.StatusOK || env.Error {
		printError(fmt.Sprintf("%d after %s: %s", resp.StatusCode, time.Since(start).Round(time.Millisecond), env.Message))
		return env, false
	}
	fmt.Printf("%s%d in %s%s\n", colorYellow, resp.StatusCode, time.Since(start).Round(time.Millisecond), colorReset)
	return env, true
}

func printHeader(text string) {
	fmt.Printf("\n%s%s%s\n", colorBlue, strings.Repeat("=", len(text)+4), colorReset)
	fmt.Printf("%s= %s =%s\n", colorBlue, text, colorReset)
	fmt.Printf("%s%s%s\n\n", colorBlue, strings.Repeat("=", len(text)+4), colorReset)
}

func printTestHeader(text string) {
	fmt.Printf("%s[CHECK] %s%s\n", colorCyan, text, colorReset)
	fmt.Println(strings.Repeat("-", 80))
}

func printSuccess(text string) {
	fmt.Printf("%s✓ %s%s\n", colorGreen, text, colorReset)
}

func printError(text string) {
	fmt.Printf("%s✗ %s%s\n", colorRed, text, colorReset)
}

func printJSON(data []byte) {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err == nil {
		fmt.Printf("%s%s%s\n", colorYellow, pretty.String(), colorReset)
	}
}
