package services

import (
	"accidentwatch/interfaces"
	"accidentwatch/models"
	"accidentwatch/utils"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DispatchError lists the legs that could not be planned. The plan that
// came with it still carries every leg that succeeded.
type DispatchError struct {
	Ambulance *models.DispatchFailure
	Hospital  *models.DispatchFailure
}

func (e *DispatchError) Error() string {
	var parts []string
	if e.Ambulance != nil {
		parts = append(parts, fmt.Sprintf("ambulance leg: %s: %s", e.Ambulance.Reason, e.Ambulance.Message))
	}
	if e.Hospital != nil {
		parts = append(parts, fmt.Sprintf("hospital leg: %s: %s", e.Hospital.Reason, e.Hospital.Message))
	}
	return "dispatch incomplete: " + strings.Join(parts, "; ")
}

// Code lets DispatchError be classified like a ServiceError.
func (e *DispatchError) Code() string {
	return utils.ErrCodeDispatchFailure
}

// Reasons returns the failure reasons in leg order.
func (e *DispatchError) Reasons() []models.DispatchFailureReason {
	var reasons []models.DispatchFailureReason
	if e.Ambulance != nil {
		reasons = append(reasons, e.Ambulance.Reason)
	}
	if e.Hospital != nil {
		reasons = append(reasons, e.Hospital.Reason)
	}
	return reasons
}

// DispatchPlannerService assigns the nearest ambulance and then the nearest
// hospital with enough beds. The two searches are independent.
type DispatchPlannerService struct {
	router   interfaces.RoutingService
	speedKmh float64
}

func NewDispatchPlannerService(router interfaces.RoutingService, speedKmh float64) *DispatchPlannerService {
	return &DispatchPlannerService{
		router:   router,
		speedKmh: speedKmh,
	}
}

// Plan always returns a plan. The error, when non-nil, is a *DispatchError.
func (dp *DispatchPlannerService) Plan(ctx context.Context, report models.AccidentReport, ambulances, hospitals []models.Facility) (*models.DispatchPlan, error) {
	plan := &models.DispatchPlan{
		RequiredBeds: RequiredBeds(report.NumberOfAccidents),
		PlannedAt:    time.Now(),
	}
	if !report.ID.IsZero() {
		plan.ReportID = report.ID.Hex()
	}
	accident := report.Geom

	plan.Ambulance, plan.AmbulanceFailure = dp.ambulanceLeg(ctx, accident, ambulances)
	plan.Hospital, plan.HospitalFailure = dp.hospitalLeg(ctx, accident, hospitals, plan.RequiredBeds)

	for _, leg := range []*models.DispatchLeg{plan.Ambulance, plan.Hospital} {
		if leg != nil {
			plan.TotalKilometers += leg.Kilometers
			plan.TotalMinutes += leg.Minutes
		}
	}

	if plan.AmbulanceFailure != nil || plan.HospitalFailure != nil {
		return plan, &DispatchError{Ambulance: plan.AmbulanceFailure, Hospital: plan.HospitalFailure}
	}
	return plan, nil
}

func (dp *DispatchPlannerService) ambulanceLeg(ctx context.Context, accident models.GeoPoint, ambulances []models.Facility) (*models.DispatchLeg, *models.DispatchFailure) {
	if len(ambulances) == 0 {
		return nil, &models.DispatchFailure{
			Reason:  models.DispatchNoAmbulanceAvailable,
			Message: "no ambulances in the facility directory",
		}
	}

	route, err := dp.router.ClosestFacility(ctx, locations(ambulances), []models.GeoPoint{accident})
	if err != nil {
		if errors.Is(err, ErrNoRoute) {
			return nil, &models.DispatchFailure{
				Reason:  models.DispatchNoAmbulanceAvailable,
				Message: "no ambulance can reach the accident",
			}
		}
		return nil, routingFailure(err)
	}
	if route.OriginIndex < 0 || route.OriginIndex >= len(ambulances) {
		return nil, routingFailure(fmt.Errorf("route origin %d out of range", route.OriginIndex))
	}
	return dp.leg(ambulances[route.OriginIndex], route.Kilometers), nil
}

func (dp *DispatchPlannerService) hospitalLeg(ctx context.Context, accident models.GeoPoint, hospitals []models.Facility, requiredBeds int) (*models.DispatchLeg, *models.DispatchFailure) {
	eligible := make([]models.Facility, 0, len(hospitals))
	for _, h := range hospitals {
		if h.Capacity >= requiredBeds {
			eligible = append(eligible, h)
		}
	}
	if len(eligible) == 0 {
		return nil, &models.DispatchFailure{
			Reason:  models.DispatchInsufficientCapacity,
			Message: fmt.Sprintf("no hospital has %d available beds", requiredBeds),
		}
	}

	route, err := dp.router.ClosestFacility(ctx, []models.GeoPoint{accident}, locations(eligible))
	if err != nil {
		if errors.Is(err, ErrNoRoute) {
			return nil, &models.DispatchFailure{
				Reason:  models.DispatchNoHospitalRoute,
				Message: "no route from the accident to an eligible hospital",
			}
		}
		return nil, routingFailure(err)
	}
	if route.DestinationIndex < 0 || route.DestinationIndex >= len(eligible) {
		return nil, routingFailure(fmt.Errorf("route destination %d out of range", route.DestinationIndex))
	}
	return dp.leg(eligible[route.DestinationIndex], route.Kilometers), nil
}

func (dp *DispatchPlannerService) leg(f models.Facility, km float64) *models.DispatchLeg {
	return &models.DispatchLeg{
		Facility:   f,
		Kilometers: km,
		Minutes:    utils.TravelMinutes(km, dp.speedKmh),
	}
}

func routingFailure(err error) *models.DispatchFailure {
	return &models.DispatchFailure{
		Reason:  models.DispatchRoutingFailed,
		Message: err.Error(),
	}
}

func locations(facilities []models.Facility) []models.GeoPoint {
	points := make([]models.GeoPoint, len(facilities))
	for i, f := range facilities {
		points[i] = f.Location
	}
	return points
}

// RequiredBeds is the hospital capacity needed for an accident.
func RequiredBeds(numberOfAccidents int) int {
	return utils.MaxInt(1, numberOfAccidents)
}
