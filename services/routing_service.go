package services

import (
	"accidentwatch/interfaces"
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNoRoute means the solve finished but found no path.
var ErrNoRoute = errors.New("no route found")

const (
	travelToFacility   = "esriNATravelDirectionToFacility"
	travelFromFacility = "esriNATravelDirectionFromFacility"
)

// ArcGISRouter calls the ArcGIS closest-facility solve endpoint.
type ArcGISRouter struct {
	httpClient *http.Client
	solveURL   string
	apiKey     string
}

func NewArcGISRouter(solveURL, apiKey string, timeout time.Duration) *ArcGISRouter {
	return &ArcGISRouter{
		httpClient: &http.Client{Timeout: timeout},
		solveURL:   solveURL,
		apiKey:     apiKey,
	}
}

type arcgisPoint struct {
	Geometry   arcgisGeometry         `json:"geometry"`
	Attributes map[string]interface{} `json:"attributes"`
}

type arcgisGeometry struct {
	X                float64          `json:"x"`
	Y                float64          `json:"y"`
	SpatialReference spatialReference `json:"spatialReference"`
}

type spatialReference struct {
	WKID int `json:"wkid"`
}

type arcgisFeatureSet struct {
	Features []arcgisPoint `json:"features"`
}

type arcgisSolveResponse struct {
	Routes *struct {
		Features []struct {
			Attributes struct {
				FacilityID      int     `json:"FacilityID"`
				IncidentID      int     `json:"IncidentID"`
				TotalKilometers float64 `json:"Total_Kilometers"`
			} `json:"attributes"`
		} `json:"features"`
	} `json:"routes"`
	Error *struct {
		Code    int      `json:"code"`
		Message string   `json:"message"`
		Details []string `json:"details"`
	} `json:"error"`
}

// ClosestFacility solves from origins to destinations. With a single
// destination the origins become the candidate facilities travelling to it,
// otherwise the destinations are the candidates. Incident and facility IDs
// returned by the service are 1-based positions in the submitted sets.
func (ar *ArcGISRouter) ClosestFacility(ctx context.Context, origins, destinations []models.GeoPoint) (*interfaces.Route, error) {
	if len(origins) == 0 || len(destinations) == 0 {
		return nil, ErrNoRoute
	}

	originsAreFacilities := len(destinations) == 1 && len(origins) > 1
	facilities, incidents, direction := destinations, origins, travelToFacility
	if originsAreFacilities {
		facilities, incidents, direction = origins, destinations, travelFromFacility
	}

	form := url.Values{}
	form.Set("f", "json")
	form.Set("incidents", encodeFeatureSet(incidents))
	form.Set("facilities", encodeFeatureSet(facilities))
	form.Set("travelDirection", direction)
	form.Set("defaultTargetFacilityCount", "1")
	form.Set("returnCFRoutes", "true")
	form.Set("returnDirections", "false")
	form.Set("outSR", "4326")
	if ar.apiKey != "" {
		form.Set("token", ar.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ar.solveURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating closest facility request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := ar.httpClient.Do(req)
	if err != nil {
		return nil, utils.NewNetworkError("closest facility request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, utils.NewNetworkError(fmt.Sprintf("unexpected status code: %d", resp.StatusCode), nil)
	}

	var solved arcgisSolveResponse
	if err := json.NewDecoder(resp.Body).Decode(&solved); err != nil {
		return nil, fmt.Errorf("error decoding closest facility response: %w", err)
	}
	if solved.Error != nil {
		return nil, fmt.Errorf("closest facility solve failed (%d): %s", solved.Error.Code, solved.Error.Message)
	}
	if solved.Routes == nil || len(solved.Routes.Features) == 0 {
		return nil, ErrNoRoute
	}

	// One route per incident; keep the cheapest, first wins on ties.
	best := -1
	for i, f := range solved.Routes.Features {
		if best < 0 || f.Attributes.TotalKilometers < solved.Routes.Features[best].Attributes.TotalKilometers {
			best = i
		}
	}
	attrs := solved.Routes.Features[best].Attributes

	facilityIdx, incidentIdx := attrs.FacilityID-1, attrs.IncidentID-1
	if facilityIdx < 0 || facilityIdx >= len(facilities) || incidentIdx < 0 || incidentIdx >= len(incidents) {
		return nil, fmt.Errorf("closest facility returned out of range ids facility=%d incident=%d", attrs.FacilityID, attrs.IncidentID)
	}

	route := &interfaces.Route{Kilometers: attrs.TotalKilometers}
	if originsAreFacilities {
		route.OriginIndex, route.DestinationIndex = facilityIdx, incidentIdx
	} else {
		route.OriginIndex, route.DestinationIndex = incidentIdx, facilityIdx
	}

	logrus.Debugf("Closest facility solved: origin=%d destination=%d km=%.3f",
		route.OriginIndex, route.DestinationIndex, route.Kilometers)
	return route, nil
}

func encodeFeatureSet(points []models.GeoPoint) string {
	set := arcgisFeatureSet{Features: make([]arcgisPoint, len(points))}
	for i, p := range points {
		set.Features[i] = arcgisPoint{
			Geometry: arcgisGeometry{
				X:                p.Longitude(),
				Y:                p.Latitude(),
				SpatialReference: spatialReference{WKID: 4326},
			},
			Attributes: map[string]interface{}{"Name": fmt.Sprintf("%d", i+1)},
		}
	}
	data, _ := json.Marshal(set)
	return string(data)
}

// HaversineRouter ranks candidates by great-circle distance. It is used when
// no routing service is configured and as the offline fallback.
type HaversineRouter struct{}

func NewHaversineRouter() *HaversineRouter {
	return &HaversineRouter{}
}

func (HaversineRouter) ClosestFacility(ctx context.Context, origins, destinations []models.GeoPoint) (*interfaces.Route, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(origins) == 0 || len(destinations) == 0 {
		return nil, ErrNoRoute
	}

	var route *interfaces.Route
	for i, o := range origins {
		for j, d := range destinations {
			km := utils.HaversineKm(o.Latitude(), o.Longitude(), d.Latitude(), d.Longitude())
			if route == nil || km < route.Kilometers {
				route = &interfaces.Route{OriginIndex: i, DestinationIndex: j, Kilometers: km}
			}
		}
	}
	return route, nil
}

// NewRoutingService picks the router named by provider.
func NewRoutingService(provider, solveURL, apiKey string, timeout time.Duration) interfaces.RoutingService {
	switch provider {
	case "haversine":
		return NewHaversineRouter()
	default:
		if solveURL == "" {
			logrus.Warn("No routing URL configured, using great-circle distances")
			return NewHaversineRouter()
		}
		return NewArcGISRouter(solveURL, apiKey, timeout)
	}
}
