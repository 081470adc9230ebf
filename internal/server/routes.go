package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tariffmeter2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/meters", s.ListMetersHandler)
	e.GET("/meters/:id", s.GetMeterHandler)
	e.POST("/meters/:id/calibrate", s.CalibrateMeterHandler)
	e.POST("/meters/:id/reset", s.ResetMeterHandler)
	e.POST("/meters/:id/select_tariff", s.SelectTariffHandler)
	e.POST("/meters/:id/next_tariff", s.SelectNextTariffHandler)
	e.POST("/reset", s.ResetAllMetersHandler)

	return e
}

type errorResponse struct {
	Error string `json:"error"`
}

type calibrateRequest struct {
	// Value accepts a JSON number or a numeric string.
	Value json.RawMessage `json:"value"`
}

type selectTariffRequest struct {
	Tariff string `json:"tariff"`
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ListMetersHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetMetersRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetMetersResponse)
	if !ok || response.HasResponseError() {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "could not list meters"})
	}
	return c.JSON(http.StatusOK, response.Meters)
}

func (s *Server) GetMeterHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetMeterRequest{
		MeterID: c.Param("id"),
	}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.GetMeterResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() || response.Meter == nil {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "unknown meter"})
	}
	return c.JSON(http.StatusOK, response.Meter)
}

func (s *Server) CalibrateMeterHandler(c echo.Context) error {
	var body calibrateRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	value, err := parseCalibrationValue(body.Value)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	res, err := s.rootContext.RequestFuture(s.masterActor, domain.CalibrateMeterRequest{
		MeterID: c.Param("id"),
		Value:   value,
	}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.CalibrateMeterResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, response.Meter)
}

func (s *Server) ResetMeterHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ResetMeterRequest{
		MeterID: c.Param("id"),
	}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.ResetMeterResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusNotFound, errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) SelectTariffHandler(c echo.Context) error {
	var body selectTariffRequest
	if err := c.Bind(&body); err != nil || strings.TrimSpace(body.Tariff) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "tariff is required"})
	}
	return s.selectTariff(c, domain.SelectTariffRequest{
		MeterID: c.Param("id"),
		Tariff:  strings.TrimSpace(body.Tariff),
	})
}

func (s *Server) SelectNextTariffHandler(c echo.Context) error {
	return s.selectTariff(c, domain.SelectNextTariffRequest{
		MeterID: c.Param("id"),
	})
}

func (s *Server) selectTariff(c echo.Context, req any) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, req, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	response, ok := res.(domain.SelectTariffResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: response.GetResponseError().Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"tariff": response.Tariff})
}

func (s *Server) ResetAllMetersHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ResetAllMetersRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	}
	if _, ok := res.(domain.ResetAllMetersResponse); !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "unexpected response"})
	}
	return c.NoContent(http.StatusNoContent)
}

// parseCalibrationValue accepts a JSON number or a numeric string and returns
// the canonical decimal text.
func parseCalibrationValue(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errInvalidCalibration
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		var asNumber float64
		if err := json.Unmarshal(raw, &asNumber); err != nil {
			return "", errInvalidCalibration
		}
		asString = strconv.FormatFloat(asNumber, 'f', -1, 64)
	}
	if _, err := domain.NewDecimal(asString); err != nil {
		return "", errInvalidCalibration
	}
	return asString, nil
}

var errInvalidCalibration = errors.New("value must be a number")
