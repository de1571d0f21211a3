// Copyright 2026 © The Canvasrelay Authors
// SPDX-License-Identifier: Apache-2.0

// Package openmeteo implements geocoding, historical and current weather on
// the keyless Open-Meteo APIs.
package openmeteo

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/jllopis/canvasrelay/pkg/adapters"
	"github.com/jllopis/canvasrelay/pkg/core"
	"github.com/jllopis/canvasrelay/pkg/errors"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com"
	DefaultArchiveURL   = "https://archive-api.open-meteo.com"
	DefaultForecastURL  = "https://api.open-meteo.com"

	provider    = "openmeteo"
	dailyFields = "temperature_2m_max,temperature_2m_min,precipitation_sum,windspeed_10m_max"
)

// Client talks to the three Open-Meteo hosts.
type Client struct {
	geocodingURL string
	archiveURL   string
	forecastURL  string
	language     string
	http         *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURLs overrides the API hosts. Empty values keep the defaults.
func WithBaseURLs(geocoding, archive, forecast string) Option {
	return func(c *Client) {
		if geocoding != "" {
			c.geocodingURL = strings.TrimRight(geocoding, "/")
		}
		if archive != "" {
			c.archiveURL = strings.TrimRight(archive, "/")
		}
		if forecast != "" {
			c.forecastURL = strings.TrimRight(forecast, "/")
		}
	}
}

// WithLanguage sets the language of geocoded place names.
func WithLanguage(lang string) Option {
	return func(c *Client) { c.language = lang }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		geocodingURL: DefaultGeocodingURL,
		archiveURL:   DefaultArchiveURL,
		forecastURL:  DefaultForecastURL,
		language:     "en",
		http:         adapters.NewHTTPClient(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Geocode implements core.Geocoder with the best match for city.
func (c *Client) Geocode(ctx context.Context, city string) (*core.Location, error) {
	q := url.Values{}
	q.Set("name", city)
	q.Set("count", "1")
	q.Set("language", c.language)
	q.Set("format", "json")

	body, err := c.get(ctx, c.geocodingURL+"/v1/search?"+q.Encode())
	if err != nil {
		return nil, err
	}
	first := gjson.GetBytes(body, "results.0")
	if !first.Exists() {
		return nil, errors.NewNotFound("city", city).
			WithContext("provider", provider)
	}
	return &core.Location{
		Name:      first.Get("name").String(),
		Country:   first.Get("country").String(),
		Latitude:  first.Get("latitude").Float(),
		Longitude: first.Get("longitude").Float(),
	}, nil
}

// History implements core.WeatherArchive for one day (YYYY-MM-DD).
func (c *Client) History(ctx context.Context, lat, lon float64, date string) (*core.DailyWeather, error) {
	q := coords(lat, lon)
	q.Set("start_date", date)
	q.Set("end_date", date)
	q.Set("daily", dailyFields)
	q.Set("windspeed_unit", "ms")
	q.Set("timezone", "auto")

	body, err := c.get(ctx, c.archiveURL+"/v1/archive?"+q.Encode())
	if err != nil {
		return nil, err
	}
	daily := gjson.GetBytes(body, "daily")
	values := make(map[string]float64, 4)
	for _, field := range strings.Split(dailyFields, ",") {
		v := daily.Get(field + ".0")
		if v.Type != gjson.Number {
			return nil, errors.NewUpstream(provider, "weather archive has no data for "+date, nil).
				WithContext("field", field)
		}
		values[field] = v.Float()
	}
	day := daily.Get("time.0").String()
	if day == "" {
		day = date
	}
	return &core.DailyWeather{
		Date:             day,
		TemperatureMax:   values["temperature_2m_max"],
		TemperatureMin:   values["temperature_2m_min"],
		PrecipitationSum: values["precipitation_sum"],
		WindspeedMax:     values["windspeed_10m_max"],
	}, nil
}

// Current implements core.WeatherNow.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*core.CurrentWeather, error) {
	q := coords(lat, lon)
	q.Set("current_weather", "true")
	q.Set("windspeed_unit", "ms")
	q.Set("timezone", "auto")

	body, err := c.get(ctx, c.forecastURL+"/v1/forecast?"+q.Encode())
	if err != nil {
		return nil, err
	}
	cw := gjson.GetBytes(body, "current_weather")
	if !cw.Exists() {
		return nil, errors.NewUpstream(provider, "forecast response has no current weather", nil)
	}
	return &core.CurrentWeather{
		Latitude:    lat,
		Longitude:   lon,
		Temperature: cw.Get("temperature").Float(),
		Windspeed:   cw.Get("windspeed").Float(),
		WeatherCode: int(cw.Get("weathercode").Int()),
		Time:        cw.Get("time").String(),
	}, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "failed to build open-meteo request", err)
	}
	return adapters.Do(c.http, req, provider)
}

func coords(lat, lon float64) url.Values {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	return q
}

var (
	_ core.Geocoder       = (*Client)(nil)
	_ core.WeatherArchive = (*Client)(nil)
	_ core.WeatherNow     = (*Client)(nil)
)
