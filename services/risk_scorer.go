package services

import (
	"accidentwatch/models"
	"accidentwatch/utils"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	defaultResponseTimeSeconds = 60
	failOpenMessage            = "Fraud check unavailable - report allowed"
	scorerWaitDelay            = 500 * time.Millisecond
)

// ProcessRunner runs one scorer invocation: input goes to stdin, stdout comes back.
type ProcessRunner interface {
	Run(ctx context.Context, input []byte) ([]byte, error)
}

// ExecRunner spawns a fresh process per call. The process is killed when ctx ends.
type ExecRunner struct {
	Command string
	Args    []string
}

func (r ExecRunner) Run(ctx context.Context, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = scorerWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

type RiskScorerService struct {
	runner  ProcessRunner
	timeout time.Duration
	slots   *semaphore.Weighted
	now     func() time.Time
}

func NewRiskScorerService(runner ProcessRunner, timeout time.Duration, maxConcurrent int) *RiskScorerService {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &RiskScorerService{
		runner:  runner,
		timeout: timeout,
		slots:   semaphore.NewWeighted(int64(maxConcurrent)),
		now:     time.Now,
	}
}

// Assess scores a report. It never fails: any scorer problem yields the
// UNKNOWN fail-open assessment with the reason in Error.
func (rs *RiskScorerService) Assess(ctx context.Context, report models.AccidentReport) models.RiskAssessment {
	assessment, err := rs.score(ctx, report)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ Fraud detection failed, allowing report (fail-open)")
		return FailOpenAssessment(err)
	}

	logrus.Debugf("Fraud check: %s (%.1f%%)", assessment.RiskLevel, assessment.FraudProbability*100)
	return *assessment
}

func (rs *RiskScorerService) score(ctx context.Context, report models.AccidentReport) (*models.RiskAssessment, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	if err := rs.slots.Acquire(ctx, 1); err != nil {
		return nil, utils.NewScorerError("no scorer slot available before timeout", err)
	}
	defer rs.slots.Release(1)

	input, err := json.Marshal(rs.buildRequest(report))
	if err != nil {
		return nil, utils.NewScorerError("encode scoring request", err)
	}

	output, err := rs.runner.Run(ctx, input)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.NewScorerError(fmt.Sprintf("fraud check timeout after %s", rs.timeout), err)
		}
		return nil, utils.NewScorerError("scorer process failed", err)
	}

	var response models.ScoringResponse
	if err := json.Unmarshal(bytes.TrimSpace(output), &response); err != nil {
		return nil, utils.NewScorerError("invalid response from fraud detection model", err)
	}
	if !response.Success {
		msg := response.Error
		if msg == "" {
			msg = "scorer reported failure"
		}
		return nil, utils.NewScorerError(msg, nil)
	}
	if response.Prediction == nil {
		return nil, utils.NewScorerError("scorer response has no prediction", nil)
	}
	if err := validatePrediction(response.Prediction); err != nil {
		return nil, utils.NewScorerError("malformed prediction", err)
	}
	return response.Prediction, nil
}

func (rs *RiskScorerService) buildRequest(report models.AccidentReport) models.ScoringRequest {
	req := models.ScoringRequest{
		NumberOfAccidents:   report.NumberOfAccidents,
		HasPhoto:            report.PictureURL != "",
		ResponseTimeSeconds: report.ResponseTimeSeconds,
		LocationSource:      report.LocationSource,
		Geom:                report.Geom,
	}
	if req.ResponseTimeSeconds <= 0 {
		req.ResponseTimeSeconds = defaultResponseTimeSeconds
	}
	if req.LocationSource == "" {
		req.LocationSource = models.LocationSourceGPS
	}
	ts := report.Timestamp
	if ts.IsZero() {
		ts = rs.now()
	}
	req.Timestamp = ts.UTC().Format(time.RFC3339Nano)
	return req
}

func validatePrediction(p *models.RiskAssessment) error {
	if p.FraudProbability < 0 || p.FraudProbability > 1 {
		return fmt.Errorf("fraud_probability %v outside [0,1]", p.FraudProbability)
	}
	// UNKNOWN belongs to the fail-open path only.
	if !p.RiskLevel.Valid() || p.RiskLevel == models.RiskLevelUnknown {
		return fmt.Errorf("unrecognized risk_level %q", p.RiskLevel)
	}
	if p.Recommendation.ShouldBlock && !p.RiskLevel.Blockable() {
		return fmt.Errorf("should_block set on %s risk", p.RiskLevel)
	}
	return nil
}

// FailOpenAssessment is the permissive verdict used whenever scoring fails.
func FailOpenAssessment(reason error) models.RiskAssessment {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return models.RiskAssessment{
		IsFraud:          0,
		FraudProbability: 0,
		RiskLevel:        models.RiskLevelUnknown,
		RiskFactors:      []models.RiskFactor{},
		Recommendation: models.Recommendation{
			Action:      models.ActionDispatchImmediately,
			Message:     failOpenMessage,
			ShouldBlock: false,
		},
		Error: msg,
	}
}
