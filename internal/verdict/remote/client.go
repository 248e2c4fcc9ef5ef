// internal/verdict/remote/client.go
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"loan-decision/internal/common/errors"
	httpclient "loan-decision/internal/common/http"
	"loan-decision/internal/common/logger"
	"loan-decision/internal/common/validation"
	"loan-decision/internal/models"
	"loan-decision/internal/verdict"
)

const (
	Name       = "remote"
	DefaultURL = "http://127.0.0.1:8000/predict"

	maxResponseBytes = 1 << 20
)

// VerdictSchema is the shape a prediction response must have when
// response validation is switched on.
const VerdictSchema = `{
  "type": "object",
  "required": ["status", "confidence", "reasons"],
  "properties": {
    "status": {"type": "string", "minLength": 1},
    "confidence": {"type": "string"},
    "reasons": {"type": "array", "items": {"type": "string"}}
  }
}`

type Config struct {
	URL              string
	Timeout          time.Duration
	ValidateResponse bool
}

// Client delegates evaluation to an external prediction endpoint. The
// application is posted as-is and a successful response is adopted as
// the verdict.
type Client struct {
	config     Config
	httpClient *httpclient.Client
	logger     logger.Logger
}

var _ verdict.Source = (*Client)(nil)

func New(cfg Config, log logger.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	return &Client{
		config:     cfg,
		httpClient: httpclient.NewClient(cfg.Timeout),
		logger:     log.WithFields(map[string]interface{}{"source": Name, "url": cfg.URL}),
	}
}

func (c *Client) Name() string { return Name }

// Evaluate makes exactly one request. Failures come back as
// *errors.StandardError whose Message is fit to show the user.
func (c *Client) Evaluate(ctx context.Context, app models.Application) (*models.Verdict, error) {
	start := time.Now()

	resp, err := c.httpClient.PostJSON(ctx, c.config.URL, app)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NewEvaluationCancelledError(ctx.Err())
		}
		c.logger.WithError(err).Warn("prediction request failed", nil)
		return nil, errors.NewPredictionServiceFailedError(c.connectionMessage(), 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.logger.WithError(err).Warn("failed to read prediction response", nil)
		return nil, errors.NewPredictionServiceFailedError(c.connectionMessage(), resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := c.connectionMessage()
		if detail := extractDetail(body); detail != "" {
			message = detail
		}
		c.logger.Warn("prediction service returned an error", map[string]interface{}{
			"status":   resp.StatusCode,
			"detail":   message,
			"duration": time.Since(start).Milliseconds(),
		})
		return nil, errors.NewPredictionServiceFailedError(message, resp.StatusCode,
			fmt.Errorf("prediction service returned status %d", resp.StatusCode))
	}

	if c.config.ValidateResponse {
		if err := validateBody(body); err != nil {
			c.logger.WithError(err).Warn("prediction response rejected", nil)
			return nil, err
		}
	}

	v, err := decodeVerdict(body)
	if err != nil {
		c.logger.WithError(err).Warn("prediction response is not a verdict", nil)
		return nil, errors.NewPredictionResponseInvalidError(err.Error())
	}

	c.logger.Info("prediction received", map[string]interface{}{
		"status":     v.Status,
		"confidence": v.Confidence,
		"duration":   time.Since(start).Milliseconds(),
	})
	return v, nil
}

func (c *Client) connectionMessage() string {
	return fmt.Sprintf("Failed to connect to the prediction service at %s", c.config.URL)
}

// extractDetail pulls a string "detail" out of an error body. Structured
// details such as validation error lists are ignored.
func extractDetail(body []byte) string {
	var payload struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	detail, _ := payload.Detail.(string)
	return detail
}

// decodeVerdict adopts a JSON object as the verdict without checking its
// types. Scalars are kept as their literal text, so a numeric confidence
// of 87.5 reads "87.5". A lone reason string becomes a one-item list.
func decodeVerdict(body []byte) (*models.Verdict, error) {
	var doc map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("prediction response is not a JSON object")
	}

	v := &models.Verdict{
		Status:     displayText(doc["status"]),
		Confidence: displayText(doc["confidence"]),
	}
	switch reasons := doc["reasons"].(type) {
	case []interface{}:
		v.Reasons = make([]string, 0, len(reasons))
		for _, r := range reasons {
			v.Reasons = append(v.Reasons, displayText(r))
		}
	case nil:
	default:
		v.Reasons = []string{displayText(reasons)}
	}
	return v, nil
}

func displayText(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}

func validateBody(body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return errors.NewPredictionResponseInvalidError(err.Error())
	}
	result, err := validation.ValidateDocument(VerdictSchema, doc)
	if err != nil {
		return errors.NewPredictionResponseInvalidError(err.Error())
	}
	if !result.Valid {
		return errors.NewPredictionResponseInvalidError(fmt.Sprint(result.GetErrorMessages()))
	}
	return nil
}
