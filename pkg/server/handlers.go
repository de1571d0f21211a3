// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jllopis/canvasrelay/pkg/agent"
	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
	"github.com/jllopis/canvasrelay/pkg/tools"
)

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	var req agent.TurnRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.deps.Agent.Turn(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.runTool(w, r, tools.NameSearchLibrary, queryArgs(r, "query", "source", "ratio"))
}

func (s *Server) handleWeatherHistory(w http.ResponseWriter, r *http.Request) {
	s.runTool(w, r, tools.NameGetWeatherHistory, queryArgs(r, "city", "date"))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if err := decodeBody(w, r, &args); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runTool(w, r, tools.NameGenerateAI, args)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	var args map[string]any
	if err := decodeBody(w, r, &args); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.runTool(w, r, tools.NameRefineImage, args)
}

// runTool answers with the bare tool output, or the tool error and its status.
func (s *Server) runTool(w http.ResponseWriter, r *http.Request, name string, args map[string]any) {
	if s.deps.Tools == nil {
		s.writeError(w, r, errors.NewConfiguration("server.tools"))
		return
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := s.deps.Tools.Execute(r.Context(), tools.Call{Name: name, Arguments: args})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Result)
}

func queryArgs(r *http.Request, keys ...string) map[string]any {
	q := r.URL.Query()
	args := make(map[string]any, len(keys))
	for _, k := range keys {
		if v := strings.TrimSpace(q.Get(k)); v != "" {
			args[k] = v
		}
	}
	return args
}

type weatherResponse struct {
	City    string `json:"city,omitempty"`
	Country string `json:"country,omitempty"`
	*core.CurrentWeather
}

// handleWeather reports the current weather for lat/lon, or for a city which
// is geocoded first.
func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	if s.deps.Weather == nil {
		s.writeError(w, r, errors.NewConfiguration("providers.openmeteo"))
		return
	}
	q := r.URL.Query()
	var resp weatherResponse
	var lat, lon float64

	switch city := strings.TrimSpace(q.Get("city")); {
	case q.Get("lat") != "" || q.Get("lon") != "":
		var err error
		if lat, err = parseCoord(q.Get("lat"), "lat", 90); err != nil {
			s.writeError(w, r, err)
			return
		}
		if lon, err = parseCoord(q.Get("lon"), "lon", 180); err != nil {
			s.writeError(w, r, err)
			return
		}
	case city != "":
		if s.deps.Geocoder == nil {
			s.writeError(w, r, errors.NewConfiguration("providers.openmeteo"))
			return
		}
		loc, err := s.deps.Geocoder.Geocode(r.Context(), city)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		lat, lon = loc.Latitude, loc.Longitude
		resp.City, resp.Country = loc.Name, loc.Country
	default:
		s.writeError(w, r, errors.NewInvalidInput("lat and lon, or city, are required"))
		return
	}

	current, err := s.deps.Weather.Current(r.Context(), lat, lon)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp.CurrentWeather = current
	writeJSON(w, http.StatusOK, resp)
}

func parseCoord(raw, name string, limit float64) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || v < -limit || v > limit {
		return 0, errors.NewInvalidInput("invalid "+name).WithContext(name, raw)
	}
	return v, nil
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transcriber == nil {
		s.writeError(w, r, errors.NewConfiguration("openai.api_key"))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, r, errors.New(errors.CodeInvalidInput, "invalid multipart upload", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, errors.NewInvalidInput("file is required"))
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, errors.New(errors.CodeInvalidInput, "failed to read upload", err))
		return
	}

	text, err := s.deps.Transcriber.Transcribe(r.Context(), header.Filename, audio)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
