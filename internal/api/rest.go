// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package api exposes the metric service over HTTP: archive policies,
// metrics, measures, and cross-metric aggregation. Policy enforcement
// and authentication are deliberately not handled here.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/gorilla/mux"

	"github.com/lawrancejing/gnocchi/internal/indexer"
	"github.com/lawrancejing/gnocchi/internal/storage"
	"github.com/lawrancejing/gnocchi/pkg/carbonara"
)

type RestApi struct {
	Index     *indexer.MetricRepository
	Processor *storage.Processor
}

func New(index *indexer.MetricRepository, proc *storage.Processor) *RestApi {
	return &RestApi{Index: index, Processor: proc}
}

func (api *RestApi) MountRoutes(r *mux.Router) {
	r = r.PathPrefix("/v1").Subrouter()
	r.StrictSlash(true)
	r.Use(instrument)

	r.HandleFunc("/archive_policy/", api.createPolicy).Methods(http.MethodPost)
	r.HandleFunc("/archive_policy/", api.listPolicies).Methods(http.MethodGet)
	r.HandleFunc("/archive_policy/{name}", api.getPolicy).Methods(http.MethodGet)
	r.HandleFunc("/archive_policy/{name}", api.deletePolicy).Methods(http.MethodDelete)

	r.HandleFunc("/metric/", api.createMetric).Methods(http.MethodPost)
	r.HandleFunc("/metric/", api.listMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metric/{id}", api.getMetric).Methods(http.MethodGet)
	r.HandleFunc("/metric/{id}", api.deleteMetric).Methods(http.MethodDelete)

	r.HandleFunc("/metric/{id}/measures", api.postMeasures).Methods(http.MethodPost)
	r.HandleFunc("/metric/{id}/measures", api.getMeasures).Methods(http.MethodGet)

	r.HandleFunc("/aggregation/metric", api.getCrossMetricMeasures).Methods(http.MethodGet)
}

// ErrorResponse model
type ErrorResponse struct {
	// Statustext of Errorcode
	Status string `json:"status"`
	Error  string `json:"error"` // Error Message
}

func handleError(err error, statusCode int, rw http.ResponseWriter) {
	cclog.Warnf("REST ERROR : %s", err.Error())
	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(ErrorResponse{
		Status: http.StatusText(statusCode),
		Error:  err.Error(),
	})
}

func decode(r *http.Request, val any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(val)
}

func (api *RestApi) createPolicy(rw http.ResponseWriter, r *http.Request) {
	var policy indexer.ArchivePolicy
	if err := decode(r, &policy); err != nil {
		handleError(fmt.Errorf("parsing request body failed: %w", err), http.StatusBadRequest, rw)
		return
	}

	// Reject unknown aggregation methods before they reach an archive.
	if policy.AggregationMethod != "" {
		if err := carbonara.ValidateAggregationMethod(policy.AggregationMethod); err != nil {
			handleError(err, http.StatusBadRequest, rw)
			return
		}
	}

	if err := api.Index.CreatePolicy(&policy); err != nil {
		if errors.Is(err, indexer.ErrAlreadyExists) {
			handleError(err, http.StatusConflict, rw)
		} else {
			handleError(err, http.StatusBadRequest, rw)
		}
		return
	}

	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(http.StatusCreated)
	json.NewEncoder(rw).Encode(policy)
}

func (api *RestApi) listPolicies(rw http.ResponseWriter, r *http.Request) {
	policies, err := api.Index.ListPolicies()
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	json.NewEncoder(rw).Encode(policies)
}

func (api *RestApi) getPolicy(rw http.ResponseWriter, r *http.Request) {
	policy, err := api.Index.GetPolicy(mux.Vars(r)["name"])
	if err != nil {
		handleError(err, http.StatusNotFound, rw)
		return
	}
	json.NewEncoder(rw).Encode(policy)
}

func (api *RestApi) deletePolicy(rw http.ResponseWriter, r *http.Request) {
	if err := api.Index.DeletePolicy(mux.Vars(r)["name"]); err != nil {
		if errors.Is(err, indexer.ErrPolicyNotFound) {
			handleError(err, http.StatusNotFound, rw)
		} else {
			handleError(err, http.StatusBadRequest, rw)
		}
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// CreateMetricApiRequest model
type CreateMetricApiRequest struct {
	Name          string `json:"name"`
	ArchivePolicy string `json:"archive_policy" validate:"required" example:"low"`
}

func (api *RestApi) createMetric(rw http.ResponseWriter, r *http.Request) {
	var req CreateMetricApiRequest
	if err := decode(r, &req); err != nil {
		handleError(fmt.Errorf("parsing request body failed: %w", err), http.StatusBadRequest, rw)
		return
	}

	metric, err := api.Index.CreateMetric(req.Name, req.ArchivePolicy)
	if err != nil {
		if errors.Is(err, indexer.ErrPolicyNotFound) {
			handleError(err, http.StatusBadRequest, rw)
		} else {
			handleError(err, http.StatusInternalServerError, rw)
		}
		return
	}

	rw.Header().Add("Content-Type", "application/json")
	rw.WriteHeader(http.StatusCreated)
	json.NewEncoder(rw).Encode(metric)
}

func (api *RestApi) listMetrics(rw http.ResponseWriter, r *http.Request) {
	metrics, err := api.Index.ListMetrics(r.URL.Query().Get("name"))
	if err != nil {
		handleError(err, http.StatusInternalServerError, rw)
		return
	}
	json.NewEncoder(rw).Encode(metrics)
}

func (api *RestApi) getMetric(rw http.ResponseWriter, r *http.Request) {
	metric, err := api.Index.GetMetric(mux.Vars(r)["id"])
	if err != nil {
		handleError(err, http.StatusNotFound, rw)
		return
	}
	json.NewEncoder(rw).Encode(metric)
}

func (api *RestApi) deleteMetric(rw http.ResponseWriter, r *http.Request) {
	err := api.Processor.DeleteMetric(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, indexer.ErrMetricNotFound) {
			handleError(err, http.StatusNotFound, rw)
		} else {
			handleError(err, http.StatusInternalServerError, rw)
		}
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// Measure model
type Measure struct {
	Timestamp string  `json:"timestamp" example:"2014-01-01 12:00:00"`
	Value     float64 `json:"value" example:"11.5"`
}

func (api *RestApi) postMeasures(rw http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var measures []Measure
	if err := decode(r, &measures); err != nil {
		handleError(fmt.Errorf("parsing request body failed: %w", err), http.StatusBadRequest, rw)
		return
	}

	samples := make([]carbonara.Sample, len(measures))
	for i, m := range measures {
		t, err := carbonara.ParseTimestamp(m.Timestamp)
		if err != nil {
			handleError(err, http.StatusBadRequest, rw)
			return
		}
		samples[i] = carbonara.Sample{Timestamp: t, Value: m.Value}
	}

	if err := api.Processor.Ingest(r.Context(), id, samples); err != nil {
		var violation *carbonara.BackWindowViolation
		switch {
		case errors.As(err, &violation):
			handleError(err, http.StatusBadRequest, rw)
		case errors.Is(err, indexer.ErrMetricNotFound):
			handleError(err, http.StatusNotFound, rw)
		default:
			handleError(err, http.StatusInternalServerError, rw)
		}
		return
	}
	rw.WriteHeader(http.StatusAccepted)
}

func parseTimeRange(r *http.Request) (from, to *time.Time, err error) {
	if s := r.URL.Query().Get("start"); s != "" {
		t, perr := carbonara.ParseTimestamp(s)
		if perr != nil {
			return nil, nil, perr
		}
		from = &t
	}
	if s := r.URL.Query().Get("stop"); s != "" {
		t, perr := carbonara.ParseTimestamp(s)
		if perr != nil {
			return nil, nil, perr
		}
		to = &t
	}
	return from, to, nil
}

func writeMeasures(rw http.ResponseWriter, points []carbonara.Point) {
	// The interoperable measure triple: [timestamp, granularity, value]
	out := make([][3]any, len(points))
	for i, p := range points {
		out[i] = [3]any{
			p.Timestamp.UTC().Format(time.RFC3339Nano),
			p.Granularity.Seconds(),
			p.Value,
		}
	}
	rw.Header().Add("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(out)
}

func (api *RestApi) getMeasures(rw http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r)
	if err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	points, err := api.Processor.GetMeasures(r.Context(), mux.Vars(r)["id"], from, to)
	if err != nil {
		if errors.Is(err, indexer.ErrMetricNotFound) {
			handleError(err, http.StatusNotFound, rw)
		} else {
			handleError(err, http.StatusInternalServerError, rw)
		}
		return
	}
	writeMeasures(rw, points)
}

func (api *RestApi) getCrossMetricMeasures(rw http.ResponseWriter, r *http.Request) {
	from, to, err := parseTimeRange(r)
	if err != nil {
		handleError(err, http.StatusBadRequest, rw)
		return
	}

	metricIDs := r.URL.Query()["metric"]
	if len(metricIDs) == 0 {
		handleError(fmt.Errorf("at least one metric is required"), http.StatusBadRequest, rw)
		return
	}

	aggregation := r.URL.Query().Get("aggregation")
	if aggregation == "" {
		aggregation = "mean"
	}

	neededOverlap := 100.0
	if s := r.URL.Query().Get("needed_overlap"); s != "" {
		if neededOverlap, err = strconv.ParseFloat(s, 64); err != nil {
			handleError(fmt.Errorf("invalid needed_overlap: %w", err), http.StatusBadRequest, rw)
			return
		}
	}

	points, err := api.Processor.AggregatedMeasures(r.Context(), metricIDs, from, to, aggregation, neededOverlap)
	if err != nil {
		var unagg *carbonara.UnAggregableTimeseries
		var invalid *carbonara.InvalidAggregationMethod
		switch {
		case errors.As(err, &unagg), errors.As(err, &invalid):
			handleError(err, http.StatusBadRequest, rw)
		case errors.Is(err, indexer.ErrMetricNotFound):
			handleError(err, http.StatusNotFound, rw)
		default:
			handleError(err, http.StatusInternalServerError, rw)
		}
		return
	}
	writeMeasures(rw, points)
}
