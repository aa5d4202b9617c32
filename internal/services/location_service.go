package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jellydator/ttlcache/v3"

	"bazaar/leadhub/internal/config"
	"bazaar/leadhub/internal/models"
)

// ErrLocationUnavailable is returned when an address cannot be resolved,
// including for private and loopback client addresses.
var ErrLocationUnavailable = errors.New("location unavailable")

const geoUserAgent = "LeadHub/1.0 (inquiry-location)"

// ILocationService resolves coarse locations from IPs and coordinates.
type ILocationService interface {
	FromIP(ctx context.Context, ip string) (*models.Location, error)
	Reverse(ctx context.Context, lat, lon float64) (*models.Location, error)
}

type LocationService struct {
	ipapiURL     string
	nominatimURL string
	client       *http.Client
	cache        *ttlcache.Cache[string, models.Location]
}

// NewLocationService creates the geo lookup client. Stop releases the cache janitor.
func NewLocationService(cfg *config.Config) *LocationService {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, models.Location](cfg.GeoCacheTTL),
		ttlcache.WithCapacity[string, models.Location](10000),
	)
	go cache.Start()
	return &LocationService{
		ipapiURL:     strings.TrimRight(cfg.IpapiURL, "/"),
		nominatimURL: strings.TrimRight(cfg.NominatimURL, "/"),
		client:       &http.Client{Timeout: cfg.GeoHTTPTimeout},
		cache:        cache,
	}
}

func (s *LocationService) Stop() {
	s.cache.Stop()
}

// NormalizeIP strips the IPv4-mapped prefix and reports whether the address is
// publicly routable.
func NormalizeIP(raw string) (string, bool) {
	ip := strings.TrimPrefix(strings.TrimSpace(raw), "::ffff:")
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip, false
	}
	if parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return ip, false
	}
	return ip, true
}

type ipapiResponse struct {
	City        string  `json:"city"`
	Region      string  `json:"region"`
	CountryName string  `json:"country_name"`
	Postal      string  `json:"postal"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

func (s *LocationService) FromIP(ctx context.Context, raw string) (*models.Location, error) {
	ip, public := NormalizeIP(raw)
	if !public {
		return nil, ErrLocationUnavailable
	}
	key := "ip:" + ip
	if item := s.cache.Get(key); item != nil {
		loc := item.Value()
		return &loc, nil
	}

	var out ipapiResponse
	if err := s.getJSON(ctx, fmt.Sprintf("%s/%s/json/", s.ipapiURL, url.PathEscape(ip)), &out); err != nil {
		log.Printf("Location: ip lookup for %s failed: %v", ip, err)
		return nil, ErrLocationUnavailable
	}
	if out.Error || out.City == "" {
		return nil, ErrLocationUnavailable
	}

	lat, lon := out.Latitude, out.Longitude
	loc := models.Location{
		Latitude:  &lat,
		Longitude: &lon,
		City:      out.City,
		State:     out.Region,
		Country:   out.CountryName,
		Pincode:   out.Postal,
	}
	s.cache.Set(key, loc, ttlcache.DefaultTTL)
	return &loc, nil
}

type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		State    string `json:"state"`
		Country  string `json:"country"`
		Postcode string `json:"postcode"`
	} `json:"address"`
	Error string `json:"error"`
}

func (s *LocationService) Reverse(ctx context.Context, lat, lon float64) (*models.Location, error) {
	key := fmt.Sprintf("rev:%.5f,%.5f", lat, lon)
	if item := s.cache.Get(key); item != nil {
		loc := item.Value()
		return &loc, nil
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("addressdetails", "1")

	var out nominatimResponse
	if err := s.getJSON(ctx, s.nominatimURL+"/reverse?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("reverse geocoding failed: %w", err)
	}
	if out.Error != "" || out.DisplayName == "" {
		return nil, ErrLocationUnavailable
	}

	city := out.Address.City
	if city == "" {
		city = out.Address.Town
	}
	if city == "" {
		city = out.Address.Village
	}
	loc := models.Location{
		Latitude:  &lat,
		Longitude: &lon,
		Address:   out.DisplayName,
		City:      city,
		State:     out.Address.State,
		Country:   out.Address.Country,
		Pincode:   out.Address.Postcode,
	}
	s.cache.Set(key, loc, ttlcache.DefaultTTL)
	return &loc, nil
}

func (s *LocationService) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", geoUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out)
}
