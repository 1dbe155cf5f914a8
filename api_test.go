package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/Seednode/manzai/archive"
	"github.com/Seednode/manzai/game"
	"github.com/Seednode/manzai/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	*httptest.Server
	cfg  *Config
	fake *llmtest.Fake
}

func newTestServer(t *testing.T, fake *llmtest.Fake, store *archive.Store, opts ...func(*Config)) *testServer {
	t.Helper()

	cfg := validConfig()
	cfg.revealDelay = 0
	cfg.finishDelay = 0
	cfg.sessionTimeout = 0
	cfg.llmTimeout = 5 * time.Second
	cfg.logger = zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))

	for _, opt := range opts {
		opt(cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())

	errs := make(chan error, 64)
	router := newRouter(ctx, cfg, game.NewDirector(fake, cfg.logger), store, errs)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	return &testServer{Server: srv, cfg: cfg, fake: fake}
}

func testArchive(t *testing.T) *archive.Store {
	t.Helper()

	store, err := archive.Open(filepath.Join(t.TempDir(), "manzai.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

func postJSON(t *testing.T, url, body string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))

	return resp.StatusCode, out
}

func TestGenerateTopic(t *testing.T) {
	fake := llmtest.New().Reply(game.OpTopic, `{"topic": "傘", "category": "道具"}`)
	srv := newTestServer(t, fake, nil)

	status, body := postJSON(t, srv.URL+"/api/generate-topic", `{"level": "easy"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "傘", body["topic"])
	assert.Equal(t, "道具", body["category"])

	assert.Contains(t, fake.Requests()[0].Prompt, "初級")
}

func TestGenerateTopicModelError(t *testing.T) {
	fake := llmtest.New().Fail(game.OpTopic, errors.New("quota exceeded"))
	srv := newTestServer(t, fake, nil)

	status, body := postJSON(t, srv.URL+"/api/generate-topic", `{"level": "hard"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "お題の生成に失敗しました", body["error"])
}

func TestRespond(t *testing.T) {
	fake := llmtest.New()
	srv := newTestServer(t, fake, nil)

	request := `{
		"topic": "おにぎり",
		"userHint": "お米",
		"conversationHistory": [
			{"role": "user", "content": "三角形"},
			{"role": "ai", "content": "ほなサンドイッチやないかい！"}
		],
		"turnCount": 2
	}`

	fake.Reply(game.OpRespond, `{"guess": "おにぎり", "isCorrect": true, "responseV1": "ほなおにぎりやないかい！", "responseV2": ""}`)

	status, body := postJSON(t, srv.URL+"/api/respond", request)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["isCorrect"])
	assert.Equal(t, "ほなおにぎりやないかい！", body["responseV1"])
	assert.Equal(t, "おにぎり", body["suggestedAnswer"])

	prompt := fake.Requests()[0].Prompt
	assert.Contains(t, prompt, "駒場: 三角形")
	assert.Contains(t, prompt, "【駒場の新しいヒント】: お米")

	fake.Reply(game.OpRespond, `{"guess": "パン", "isCorrect": false, "responseV1": "ほなパンやないかい！", "responseV2": "ほなパンと違うかぁ"}`)

	status, body = postJSON(t, srv.URL+"/api/respond", request)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["isCorrect"])
	assert.Equal(t, "ほなパンと違うかぁ", body["responseV2"])
	assert.Contains(t, body, "suggestedAnswer")
	assert.Nil(t, body["suggestedAnswer"])
}

func TestRespondRejectsBadInput(t *testing.T) {
	fake := llmtest.New()
	srv := newTestServer(t, fake, nil)

	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `topic=おにぎり`},
		{name: "missing topic", body: `{"userHint": "丸い"}`},
		{name: "blank hint", body: `{"topic": "おにぎり", "userHint": "　"}`},
		{name: "past turn limit", body: `{"topic": "おにぎり", "userHint": "丸い", "turnCount": 11}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := postJSON(t, srv.URL+"/api/respond", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, body["error"])
		})
	}

	assert.Equal(t, 0, fake.Count(game.OpRespond))
}

func TestAnalyze(t *testing.T) {
	fake := llmtest.New().Reply(game.OpAnalyze, `{"analysis": [{"turn": 1, "strategy": "visualization", "explanation": "形"}], "summary": "視覚で攻めた"}`)
	srv := newTestServer(t, fake, nil)

	status, body := postJSON(t, srv.URL+"/api/analyze",
		`{"topic": "おにぎり", "conversationHistory": [{"role": "user", "content": "三角形"}, {"role": "ai", "content": "ほなおにぎりやないかい！"}]}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "視覚で攻めた", body["summary"])

	entries := body["analysis"].([]any)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]any)
	assert.Equal(t, "三角形", entry["userHint"])
	assert.Equal(t, "視覚化", entry["strategyName"])
	assert.Equal(t, "blue", entry["color"])
}

func TestAnalyzeRequiresTopic(t *testing.T) {
	srv := newTestServer(t, llmtest.New(), nil)

	status, body := postJSON(t, srv.URL+"/api/analyze", `{"conversationHistory": []}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "topic is required", body["error"])
}

func TestGenerateScript(t *testing.T) {
	fake := llmtest.New().Reply(game.OpScript, "駒場「どうもー！」\n内海「おにぎりやないかい！」")
	srv := newTestServer(t, fake, nil)

	status, body := postJSON(t, srv.URL+"/api/generate-script",
		`{"topic": "おにぎり", "conversationHistory": [{"role": "user", "content": "三角形"}]}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "駒場「どうもー！」\n内海「おにぎりやないかい！」", body["script"])

	fake.Fail(game.OpScript, context.DeadlineExceeded)

	status, body = postJSON(t, srv.URL+"/api/generate-script", `{"topic": "おにぎり"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "台本の生成に失敗しました", body["error"])
}

func TestStrategiesEndpoint(t *testing.T) {
	srv := newTestServer(t, llmtest.New(), nil)

	resp, err := http.Get(srv.URL + "/api/strategies")
	require.NoError(t, err)
	defer resp.Body.Close()

	var strategies []game.Strategy
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&strategies))
	require.Len(t, strategies, 16)
	assert.Equal(t, "amplification", strategies[0].ID)
	assert.NotEmpty(t, strategies[0].NameEn)
}

func TestArchiveEndpoints(t *testing.T) {
	store := testArchive(t)
	srv := newTestServer(t, llmtest.New(), store)

	id, err := store.Save(context.Background(), archive.Record{
		Session:    "AbCd1234",
		Difficulty: game.Easy,
		Topic:      "おにぎり",
		Category:   "食べ物",
		Turns:      1,
		Script:     "内海「おにぎりやないかい！」",
	})
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/games")
	require.NoError(t, err)
	var list []archive.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	resp, err = http.Get(srv.URL + "/api/games/" + id)
	require.NoError(t, err)
	var record archive.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	resp.Body.Close()
	assert.Equal(t, "内海「おにぎりやないかい！」", record.Script)

	resp, err = http.Get(srv.URL + "/api/games/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/games?limit=500")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestArchiveEndpointsDisabledWithoutStore(t *testing.T) {
	srv := newTestServer(t, llmtest.New(), nil)

	resp, err := http.Get(srv.URL + "/api/games")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSiteRoutes(t *testing.T) {
	srv := newTestServer(t, llmtest.New(), nil)
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Equal(t, "/play", resp.Header.Get("Location"))

	resp, err = client.Get(srv.URL + "/play")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTemporaryRedirect, resp.StatusCode)
	assert.Regexp(t, `^/play/[A-Za-z0-9]{8}$`, resp.Header.Get("Location"))

	resp, err = client.Get(srv.URL + "/play/AbCd1234")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("Set-Cookie"))
	assert.Contains(t, resp.Header.Get("Set-Cookie"), playerCookieName+"=")

	resp, err = client.Get(srv.URL + "/play/AbCd1234/qr")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp, err = client.Get(srv.URL + "/assets/manzai/app.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/javascript; charset=utf-8", resp.Header.Get("Content-Type"))

	resp, err = client.Get(srv.URL + "/assets/manzai/missing.js")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = client.Get(srv.URL + "/favicons/favicon.svg")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))

	resp, err = client.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "default-src 'self'; img-src 'self' data:", resp.Header.Get("Content-Security-Policy"))

	resp, err = client.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPrefixedPageLinks(t *testing.T) {
	srv := newTestServer(t, llmtest.New(), nil, func(c *Config) { c.prefix = "/manzai" })
	client := &http.Client{CheckRedirect: noRedirect}

	resp, err := client.Get(srv.URL + "/manzai/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "/manzai/play", resp.Header.Get("Location"))

	page, err := url.Parse(srv.URL + "/manzai/play/AbCd1234")
	require.NoError(t, err)

	resp, err = client.Get(page.String())
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, string(body), `id="print"`)

	links := regexp.MustCompile(`(?:href|src)="([^"]+)"`).FindAllStringSubmatch(string(body), -1)
	require.Len(t, links, 4)

	for _, link := range links {
		ref, err := url.Parse(link[1])
		require.NoError(t, err)

		target := page.ResolveReference(ref)
		assert.True(t, strings.HasPrefix(target.Path, "/manzai/"), target.Path)

		resp, err := client.Get(target.String())
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, target.Path)
	}
}

func TestRealIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1:5555", realIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.7")
	assert.Equal(t, "203.0.113.7:5555", realIP(r))

	r.Header.Set("CF-Connecting-IP", "2001:db8::1")
	assert.Equal(t, "[2001:db8::1]:5555", realIP(r))
}
