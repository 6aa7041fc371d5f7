package services

import (
	"accidentwatch/interfaces"
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	geojson "github.com/paulmach/go.geojson"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const maxLayerBytes = 32 << 20

var (
	nameProperties     = []string{"name_ar", "name", "Name", "NAME", "name_en"}
	idProperties       = []string{"OBJECTID", "ObjectId", "FID", "id"}
	capacityProperties = []string{"Bed", "beds", "Beds", "capacity"}
)

// GeoJSONLoader reads facility layers as GeoJSON from an ArcGIS FeatureServer
// layer URL, any http(s) GeoJSON URL, or a local file.
type GeoJSONLoader struct {
	httpClient *http.Client
}

func NewGeoJSONLoader(timeout time.Duration) *GeoJSONLoader {
	return &GeoJSONLoader{httpClient: &http.Client{Timeout: timeout}}
}

func (gl *GeoJSONLoader) Load(ctx context.Context, source string, role models.FacilityRole) ([]models.Facility, error) {
	data, err := gl.read(ctx, source)
	if err != nil {
		return nil, err
	}

	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("error decoding facility layer %s: %w", source, err)
	}
	return facilitiesFromCollection(collection, role), nil
}

func (gl *GeoJSONLoader) read(ctx context.Context, source string) ([]byte, error) {
	switch {
	case strings.HasPrefix(source, "http://"), strings.HasPrefix(source, "https://"):
		return gl.fetch(ctx, featureQueryURL(source))
	case strings.HasPrefix(source, "file://"):
		return os.ReadFile(strings.TrimPrefix(source, "file://"))
	default:
		return os.ReadFile(source)
	}
}

func (gl *GeoJSONLoader) fetch(ctx context.Context, layerURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, layerURL, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating facility layer request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := gl.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewNetworkError("facility layer request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewNetworkError(fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxLayerBytes))
}

// featureQueryURL turns a FeatureServer layer URL into its GeoJSON query.
// Other URLs are returned unchanged.
func featureQueryURL(source string) string {
	u, err := url.Parse(source)
	if err != nil || !strings.Contains(u.Path, "/FeatureServer/") || strings.HasSuffix(u.Path, "/query") {
		return source
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/query"
	q := u.Query()
	q.Set("where", "1=1")
	q.Set("outFields", "*")
	q.Set("outSR", "4326")
	q.Set("returnGeometry", "true")
	q.Set("f", "geojson")
	u.RawQuery = q.Encode()
	return u.String()
}

func facilitiesFromCollection(fc *geojson.FeatureCollection, role models.FacilityRole) []models.Facility {
	facilities := make([]models.Facility, 0, len(fc.Features))
	for i, f := range fc.Features {
		if f.Geometry == nil || !f.Geometry.IsPoint() || len(f.Geometry.Point) < 2 {
			logrus.Debugf("Skipping %s feature %d without point geometry", role, i)
			continue
		}
		lon, lat := f.Geometry.Point[0], f.Geometry.Point[1]
		if !utils.IsValidCoordinate(lat, lon) {
			logrus.Debugf("Skipping %s feature %d with invalid coordinates", role, i)
			continue
		}

		facility := models.Facility{
			ID:       featureID(f, i),
			Name:     stringProperty(f, nameProperties),
			Location: models.NewGeoPoint(lon, lat),
			Capacity: 1,
			Role:     role,
		}
		if role == models.FacilityRoleHospital {
			facility.Capacity = intProperty(f, capacityProperties)
		}
		facilities = append(facilities, facility)
	}
	return facilities
}

func featureID(f *geojson.Feature, index int) string {
	switch id := f.ID.(type) {
	case string:
		if id != "" {
			return id
		}
	case float64:
		return strconv.FormatInt(int64(id), 10)
	}
	if n := intProperty(f, idProperties); n > 0 {
		return strconv.Itoa(n)
	}
	return strconv.Itoa(index + 1)
}

func stringProperty(f *geojson.Feature, keys []string) string {
	for _, key := range keys {
		if s, ok := f.Properties[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// intProperty returns the first numeric property among keys, or 0.
func intProperty(f *geojson.Feature, keys []string) int {
	for _, key := range keys {
		switch v := f.Properties[key].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}
	return 0
}

// LoadFacilityLayers loads both layers concurrently. Either failure fails the load.
func LoadFacilityLayers(ctx context.Context, loader interfaces.FacilityLoader, ambulanceSource, hospitalSource string) (ambulances, hospitals []models.Facility, err error) {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ambulances, err = loader.Load(ctx, ambulanceSource, models.FacilityRoleAmbulance)
		if err != nil {
			return fmt.Errorf("load ambulances: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		hospitals, err = loader.Load(ctx, hospitalSource, models.FacilityRoleHospital)
		if err != nil {
			return fmt.Errorf("load hospitals: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return ambulances, hospitals, nil
}
