/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Seednode/manzai/archive"
	"github.com/Seednode/manzai/game"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

const maxRequestBody = 64 << 10

type apiError struct {
	Error string `json:"error"`
}

type topicRequest struct {
	Level string `json:"level"`
}

type respondRequest struct {
	Topic               string           `json:"topic"`
	UserHint            string           `json:"userHint"`
	ConversationHistory []game.Utterance `json:"conversationHistory"`
	TurnCount           int              `json:"turnCount"`
}

type respondResponse struct {
	game.Reply
	SuggestedAnswer *string `json:"suggestedAnswer"`
}

type conversationRequest struct {
	Topic               string           `json:"topic"`
	ConversationHistory []game.Utterance `json:"conversationHistory"`
}

type scriptResponse struct {
	Script string `json:"script"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any, errs chan<- error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs <- err
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)

	return json.NewDecoder(r.Body).Decode(v)
}

// modelFailed logs err and answers with a 500 carrying msg.
func modelFailed(cfg *Config, w http.ResponseWriter, r *http.Request, msg string, err error, errs chan<- error) {
	if cfg.logger != nil {
		cfg.logger.Warn("API: model call failed",
			zap.String("path", r.URL.Path),
			zap.String("client", realIP(r)),
			zap.Error(err))
	}

	writeJSON(cfg, w, http.StatusInternalServerError, apiError{Error: msg}, errs)
}

func (c *Config) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), c.llmTimeout)
}

func serveGenerateTopic(cfg *Config, director *game.Director, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req topicRequest
		if err := readJSON(w, r, &req); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "invalid request body"}, errs)
			return
		}

		ctx, cancel := cfg.requestContext(r)
		defer cancel()

		level := game.ParseDifficulty(req.Level)

		topic, err := director.Topic(ctx, level)
		if err != nil {
			modelFailed(cfg, w, r, "お題の生成に失敗しました", err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, topic, errs)

		logf(cfg, "API: Topic (%s) for %s in %s", level, realIP(r), time.Since(startTime).Round(time.Millisecond))
	}
}

func serveRespond(cfg *Config, director *game.Director, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req respondRequest
		if err := readJSON(w, r, &req); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "invalid request body"}, errs)
			return
		}

		hint := game.NormalizeHint(req.UserHint)
		if req.Topic == "" || hint == "" {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "topic and userHint are required"}, errs)
			return
		}

		prior := game.HistoryFrom(req.ConversationHistory)

		turn := req.TurnCount
		if turn <= 0 {
			turn = len(prior.Hints()) + 1
		}
		if turn > game.MaxTurns {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "turn limit reached"}, errs)
			return
		}

		ctx, cancel := cfg.requestContext(r)
		defer cancel()

		reply, err := director.Respond(ctx, game.Turn{
			Number: turn,
			Hint:   hint,
			Topic:  game.Topic{Topic: req.Topic},
			Prior:  prior.Lines(),
		})
		if err != nil {
			modelFailed(cfg, w, r, "返答の生成に失敗しました", err, errs)
			return
		}

		resp := respondResponse{Reply: reply}
		if reply.IsCorrect {
			topic := req.Topic
			resp.SuggestedAnswer = &topic
		}

		writeJSON(cfg, w, http.StatusOK, resp, errs)

		logf(cfg, "API: Response for turn %d (correct: %t) to %s in %s",
			turn, reply.IsCorrect, realIP(r), time.Since(startTime).Round(time.Millisecond))
	}
}

func readConversation(cfg *Config, w http.ResponseWriter, r *http.Request, errs chan<- error) (conversationRequest, bool) {
	var req conversationRequest
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "invalid request body"}, errs)
		return req, false
	}
	if req.Topic == "" {
		writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "topic is required"}, errs)
		return req, false
	}

	req.ConversationHistory = game.HistoryFrom(req.ConversationHistory).Lines()

	return req, true
}

func serveAnalyze(cfg *Config, director *game.Director, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		req, ok := readConversation(cfg, w, r, errs)
		if !ok {
			return
		}

		ctx, cancel := cfg.requestContext(r)
		defer cancel()

		analysis, err := director.Analyze(ctx, req.Topic, req.ConversationHistory)
		if err != nil {
			modelFailed(cfg, w, r, "分析に失敗しました", err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, analysis, errs)
	}
}

func serveGenerateScript(cfg *Config, director *game.Director, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		req, ok := readConversation(cfg, w, r, errs)
		if !ok {
			return
		}

		ctx, cancel := cfg.requestContext(r)
		defer cancel()

		script, err := director.Script(ctx, req.Topic, req.ConversationHistory)
		if err != nil {
			modelFailed(cfg, w, r, "台本の生成に失敗しました", err, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, scriptResponse{Script: script}, errs)
	}
}

func serveStrategies(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		writeJSON(cfg, w, http.StatusOK, game.Strategies(), errs)
	}
}

func serveArchiveList(cfg *Config, store *archive.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		limit := 20
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > 100 {
				writeJSON(cfg, w, http.StatusBadRequest, apiError{Error: "limit must be between 1 and 100"}, errs)
				return
			}
			limit = n
		}

		records, err := store.Recent(r.Context(), limit)
		if err != nil {
			if cfg.logger != nil {
				cfg.logger.Error("API: archive list failed", zap.Error(err))
			}
			writeJSON(cfg, w, http.StatusInternalServerError, apiError{Error: "archive unavailable"}, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, records, errs)
	}
}

func serveArchiveGame(cfg *Config, store *archive.Store, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		record, err := store.Get(r.Context(), ps.ByName("id"))
		switch {
		case errors.Is(err, archive.ErrNotFound):
			writeJSON(cfg, w, http.StatusNotFound, apiError{Error: "game not found"}, errs)
			return
		case err != nil:
			if cfg.logger != nil {
				cfg.logger.Error("API: archive lookup failed", zap.Error(err))
			}
			writeJSON(cfg, w, http.StatusInternalServerError, apiError{Error: "archive unavailable"}, errs)
			return
		}

		writeJSON(cfg, w, http.StatusOK, record, errs)
	}
}

func registerAPI(cfg *Config, mux *httprouter.Router, director *game.Director, store *archive.Store, errs chan<- error) {
	mux.POST(cfg.prefix+"/api/generate-topic", serveGenerateTopic(cfg, director, errs))
	mux.POST(cfg.prefix+"/api/respond", serveRespond(cfg, director, errs))
	mux.POST(cfg.prefix+"/api/analyze", serveAnalyze(cfg, director, errs))
	mux.POST(cfg.prefix+"/api/generate-script", serveGenerateScript(cfg, director, errs))

	mux.GET(cfg.prefix+"/api/strategies", serveStrategies(cfg, errs))

	if store == nil {
		return
	}

	mux.GET(cfg.prefix+"/api/games", serveArchiveList(cfg, store, errs))
	mux.GET(cfg.prefix+"/api/games/:id", serveArchiveGame(cfg, store, errs))
}
