// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package core defines the capability interfaces the agent core consumes and
// the shapes every provider adapter normalizes into.
package core

import "context"

// Image library sources.
const (
	SourceUnsplash = "unsplash"
	SourcePexels   = "pexels"
)

// Views the front-end can switch between.
const (
	ViewWeather = "weather"
	ViewGallery = "gallery"
)

// DefaultRatio is used whenever the caller has not expressed a preference.
const DefaultRatio = "1:1"

// Ratios lists the accepted image ratios, in display order.
var Ratios = []string{"1:1", "4:3", "16:9", "3:4", "9:16"}

// ValidRatio reports whether r is one of Ratios.
func ValidRatio(r string) bool {
	for _, v := range Ratios {
		if v == r {
			return true
		}
	}
	return false
}

// SearchResult is the normalized image-library search response.
type SearchResult struct {
	Images []string `json:"images"`
	Source string   `json:"source"`
}

// Location is a geocoded place.
type Location struct {
	Name      string  `json:"name"`
	Country   string  `json:"country,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DailyWeather holds the archived daily aggregates for one date.
type DailyWeather struct {
	Date             string  `json:"date"`
	TemperatureMax   float64 `json:"temperature_max"`
	TemperatureMin   float64 `json:"temperature_min"`
	PrecipitationSum float64 `json:"precipitation_sum"`
	WindspeedMax     float64 `json:"windspeed_max"`
}

// CurrentWeather is a point-in-time observation.
type CurrentWeather struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Temperature float64 `json:"temperature"`
	Windspeed   float64 `json:"windspeed"`
	WeatherCode int     `json:"weathercode"`
	Time        string  `json:"time"`
}

// ImageSearcher searches one stock-photo library.
type ImageSearcher interface {
	Search(ctx context.Context, query, ratio string) ([]string, error)
}

// ImageGenerator creates images from a prompt through an asynchronous job.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, count int, aspectRatio string) ([]string, error)
}

// ImageRefiner edits an existing image according to a prompt.
type ImageRefiner interface {
	Refine(ctx context.Context, prompt, inputImage string) (string, error)
}

// Geocoder resolves a city name to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, city string) (*Location, error)
}

// WeatherArchive returns daily aggregates for a past date (YYYY-MM-DD).
type WeatherArchive interface {
	History(ctx context.Context, lat, lon float64, date string) (*DailyWeather, error)
}

// WeatherNow returns the current weather at a coordinate.
type WeatherNow interface {
	Current(ctx context.Context, lat, lon float64) (*CurrentWeather, error)
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (string, error)
}
