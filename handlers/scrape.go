package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fetchrelay/pkg/metrics"
	"fetchrelay/pkg/relay"
)

// Response is the JSON envelope returned by POST /scrape. Exactly one of
// Content and Error is set; absent fields are omitted, never emitted as null.
// Content is a pointer so a successful fetch of an empty body still carries
// the field ("content":"") instead of dropping it.
type Response struct {
	Content *string `json:"content,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Scrape is the fiber handler for POST /scrape. It parses the request body,
// hands the fetch to the relay core, and maps the outcome onto the response.
func Scrape(r *relay.Relay, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqLog := log.With().Str("request_id", uuid.NewString()).Logger()

		var req relay.Request
		if err := c.BodyParser(&req); err != nil {
			reqLog.Warn().Err(err).Msg("rejecting malformed request body")
			metrics.RequestsTotal.WithLabelValues("bad_request").Inc()
			return c.Status(fiber.StatusBadRequest).JSON(Response{
				Error: "Invalid request body: " + err.Error(),
			})
		}
		if req.URL == "" {
			reqLog.Warn().Msg("rejecting request with no url")
			metrics.RequestsTotal.WithLabelValues("bad_request").Inc()
			return c.Status(fiber.StatusBadRequest).JSON(Response{
				Error: "Missing required field: url",
			})
		}

		start := time.Now()
		res := r.Fetch(c.UserContext(), req)
		metrics.FetchDuration.Observe(time.Since(start).Seconds())
		metrics.RequestsTotal.WithLabelValues(string(res.Outcome)).Inc()

		if !res.OK() {
			return c.Status(res.Status).JSON(Response{Error: res.Err})
		}
		return c.Status(res.Status).JSON(Response{Content: &res.Content})
	}
}
