package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
)

type Options struct {
	BaseURL        string
	APIKey         string
	UserID         string
	ConversationID string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Stdout         io.Writer
	Stderr         io.Writer
}

type request struct {
	method string
	path   string
	body   any
	render func(io.Writer, []byte) bool
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("tabletalkctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "tabletalk API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	userID := fs.String("user-id", defaults.UserID, "User ID header (used when auth is disabled)")
	conversationID := fs.String("conversation", defaults.ConversationID, "Conversation ID for ask and history; ask mints one when empty")
	raw := fs.Bool("json", false, "Print raw JSON responses")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	command := strings.TrimSpace(fs.Arg(0))
	rest := fs.Args()[1:]
	var req request
	switch command {
	case "health":
		req = request{method: http.MethodGet, path: "/v1/health"}
	case "ready":
		req = request{method: http.MethodGet, path: "/v1/ready"}
	case "datasets":
		req = request{method: http.MethodGet, path: "/v1/datasets", render: renderDatasets}
	case "dataset":
		if len(rest) != 1 {
			return usageError(stderr, "dataset requires a target id")
		}
		req = request{method: http.MethodGet, path: "/v1/datasets/" + url.PathEscape(rest[0])}
	case "register":
		if len(rest) < 1 || len(rest) > 2 {
			return usageError(stderr, "register requires an object path and an optional display name")
		}
		body := map[string]string{"object_path": rest[0]}
		if len(rest) == 2 {
			body["display_name"] = rest[1]
		}
		req = request{method: http.MethodPost, path: "/v1/datasets", body: body}
	case "ask":
		message := strings.TrimSpace(strings.Join(rest, " "))
		if message == "" {
			return usageError(stderr, "ask requires a message")
		}
		if strings.TrimSpace(*conversationID) == "" {
			*conversationID = uuid.NewString()
			_, _ = fmt.Fprintf(stderr, "conversation: %s\n", *conversationID)
		}
		req = request{
			method: http.MethodPost,
			path:   "/v1/conversations/" + url.PathEscape(*conversationID) + "/messages",
			body:   map[string]string{"message": message},
			render: renderAnswer,
		}
	case "history":
		if strings.TrimSpace(*conversationID) == "" {
			return usageError(stderr, "history requires -conversation")
		}
		req = request{method: http.MethodGet, path: "/v1/conversations/" + url.PathEscape(*conversationID), render: renderHistory}
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	endpoint := strings.TrimRight(*baseURL, "/") + req.path
	code, responseBody, err := doRequest(ctx, client, req.method, endpoint, req.body, *apiKey, *userID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}

	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if req.render != nil && !*raw && req.render(stdout, responseBody) {
		return 0
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint string, body any, apiKey, userID string) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}
	if strings.TrimSpace(userID) != "" {
		req.Header.Set("X-User-ID", strings.TrimSpace(userID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

type answer struct {
	Message string `json:"message"`
	Outcome string `json:"outcome"`
	Result  *struct {
		Columns []struct {
			Name string `json:"name"`
		} `json:"columns"`
		Rows      [][]any `json:"rows"`
		Truncated bool    `json:"truncated"`
	} `json:"result"`
	Clarification *struct {
		Choices []struct {
			Number int    `json:"number"`
			Label  string `json:"label"`
		} `json:"choices"`
	} `json:"clarification"`
}

// renderAnswer prints the assistant message and, when rows came back, the
// rows as an aligned table.
func renderAnswer(w io.Writer, raw []byte) bool {
	var a answer
	if err := json.Unmarshal(raw, &a); err != nil || a.Outcome == "" {
		return false
	}
	_, _ = fmt.Fprintln(w, a.Message)
	if a.Result == nil || len(a.Result.Rows) == 0 {
		return true
	}
	_, _ = fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	names := make([]string, 0, len(a.Result.Columns))
	for _, column := range a.Result.Columns {
		names = append(names, column.Name)
	}
	_, _ = fmt.Fprintln(tw, strings.Join(names, "\t"))
	for _, row := range a.Result.Rows {
		cells := make([]string, 0, len(row))
		for _, value := range row {
			cells = append(cells, formatCell(value))
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	return true
}

func renderDatasets(w io.Writer, raw []byte) bool {
	var body struct {
		Datasets []struct {
			TargetID    string `json:"target_id"`
			DisplayName string `json:"display_name"`
			Ordinal     int    `json:"ordinal"`
			RowCount    int64  `json:"row_count"`
			Columns     []any  `json:"columns"`
		} `json:"datasets"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tTARGET\tNAME\tROWS\tCOLUMNS")
	for _, dataset := range body.Datasets {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\n", dataset.Ordinal, dataset.TargetID, dataset.DisplayName, dataset.RowCount, len(dataset.Columns))
	}
	_ = tw.Flush()
	return true
}

func renderHistory(w io.Writer, raw []byte) bool {
	var body struct {
		Turns []struct {
			Utterance string `json:"utterance"`
			Outcome   string `json:"outcome"`
			Statement string `json:"statement"`
		} `json:"turns"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return false
	}
	for i, turn := range body.Turns {
		_, _ = fmt.Fprintf(w, "%d. %s [%s]\n", i+1, turn.Utterance, turn.Outcome)
		if turn.Statement != "" {
			_, _ = fmt.Fprintf(w, "   %s\n", turn.Statement)
		}
	}
	return true
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func usageError(w io.Writer, message string) int {
	_, _ = fmt.Fprintf(w, "%s\n\n", message)
	writeUsage(w)
	return 2
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: tabletalkctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                         GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                          GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  datasets                       GET /v1/datasets")
	_, _ = fmt.Fprintln(w, "  dataset <target>               GET /v1/datasets/{target}")
	_, _ = fmt.Fprintln(w, "  register <object> [name]       POST /v1/datasets")
	_, _ = fmt.Fprintln(w, "  ask <message...>               POST /v1/conversations/{conversation}/messages")
	_, _ = fmt.Fprintln(w, "  history                        GET /v1/conversations/{conversation}")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
