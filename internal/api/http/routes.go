package httpapi

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/i474232898/weather-forecaster/internal/dataset"
	"github.com/i474232898/weather-forecaster/internal/forecast"
	"github.com/i474232898/weather-forecaster/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *forecast.Service, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"service":     serviceName,
			"modelsReady": service.Predictor().Ready(),
			"training":    service.Training(),
		})
	})

	v1 := app.Group("/api/v1")

	v1.Post("/dataset", func(c *fiber.Ctx) error {
		body, source, err := uploadedCSV(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		defer body.Close()

		summary, err := service.LoadCSV(body, source)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(summary)
	})

	v1.Post("/dataset/fetch", func(c *fiber.Ctx) error {
		var req fetchRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		summary, err := service.FetchDataset(c.UserContext(), req.URL)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(summary)
	})

	v1.Post("/dataset/openmeteo", func(c *fiber.Ctx) error {
		var req historyRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		q, err := req.toQuery()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		summary, err := service.ImportHistory(c.UserContext(), q)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(summary)
	})

	v1.Get("/dataset", func(c *fiber.Ctx) error {
		summary, err := service.Dataset()
		if err != nil {
			return mapError(err)
		}
		return c.JSON(summary)
	})

	v1.Post("/training", func(c *fiber.Ctx) error {
		run, err := service.StartTraining()
		if err != nil {
			return mapError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(run)
	})

	v1.Get("/training", func(c *fiber.Ctx) error {
		run, err := service.Status()
		if err != nil {
			return mapError(err)
		}
		return c.JSON(run)
	})

	v1.Delete("/training", func(c *fiber.Ctx) error {
		if !service.CancelTraining() {
			return fiber.NewError(fiber.StatusNotFound, "no active training run")
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"canceled": true})
	})

	v1.Get("/training/events", func(c *fiber.Ctx) error {
		return streamEvents(c, service, log)
	})

	v1.Post("/predict", func(c *fiber.Ctx) error {
		var req predictRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		conditions, err := req.toConditions()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		result, err := service.Predict(conditions)
		if err != nil {
			return mapError(err)
		}
		return c.JSON(result)
	})
}

// mapError translates service errors into HTTP errors.
func mapError(err error) error {
	switch {
	case errors.Is(err, dataset.ErrMalformedInput):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, dataset.ErrNoDataset), errors.Is(err, forecast.ErrNoRun):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, forecast.ErrTrainingInProgress), errors.Is(err, forecast.ErrModelNotReady):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, forecast.ErrInsufficientData), errors.Is(err, forecast.ErrNumericInstability):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, dataset.ErrTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, dataset.ErrUpstream):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return err
	}
}

// uploadedCSV returns the CSV body from either a multipart "file" field or
// the raw request body.
func uploadedCSV(c *fiber.Ctx) (io.ReadCloser, string, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, "", errors.New("multipart upload requires a \"file\" field")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, "", err
		}
		return f, fh.Filename, nil
	}

	body := c.Body()
	if len(body) == 0 {
		return nil, "", errors.New("request body is empty")
	}
	// The body buffer is reused by fasthttp once the handler returns.
	owned := bytes.Clone(body)
	return io.NopCloser(bytes.NewReader(owned)), "upload", nil
}

// fetchRequest is the body of the remote dataset endpoint.
type fetchRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// historyRequest selects the Open-Meteo archive range to import.
type historyRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	From      string   `json:"from" validate:"required"`
	To        string   `json:"to" validate:"required"`
}

func (r historyRequest) toQuery() (dataset.HistoryQuery, error) {
	from, err := time.Parse(dataset.DateLayout, strings.TrimSpace(r.From))
	if err != nil {
		return dataset.HistoryQuery{}, errors.New("invalid from date; use YYYY-MM-DD")
	}
	to, err := time.Parse(dataset.DateLayout, strings.TrimSpace(r.To))
	if err != nil {
		return dataset.HistoryQuery{}, errors.New("invalid to date; use YYYY-MM-DD")
	}
	if to.Before(from) {
		return dataset.HistoryQuery{}, errors.New("to must not be before from")
	}
	return dataset.HistoryQuery{
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		From:      from.UTC(),
		To:        to.UTC(),
	}, nil
}

// predictRequest holds the user-entered current conditions.
type predictRequest struct {
	Date            string   `json:"date" validate:"required"`
	TemperatureC    *float64 `json:"temperatureC" validate:"required,gte=-100,lte=70"`
	Humidity        *float64 `json:"humidity" validate:"required,gte=0,lte=100"`
	PressureHpa     *float64 `json:"pressureHpa" validate:"required,gt=0"`
	WindSpeedMps    *float64 `json:"windSpeedMps" validate:"required,gte=0"`
	PrecipitationMm *float64 `json:"precipitationMm" validate:"required,gte=0"`
}

func (r predictRequest) toConditions() (weather.Conditions, error) {
	date, err := time.Parse(dataset.DateLayout, strings.TrimSpace(r.Date))
	if err != nil {
		return weather.Conditions{}, errors.New("invalid date; use YYYY-MM-DD")
	}
	return weather.Conditions{
		Date:         date.UTC(),
		TemperatureC: *r.TemperatureC,
		HumidityPct:  *r.Humidity,
		PressureHpa:  *r.PressureHpa,
		WindSpeedMS:  *r.WindSpeedMps,
		PrecipMm:     *r.PrecipitationMm,
	}, nil
}
