// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of gnocchi.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package indexer

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lawrancejing/gnocchi/pkg/carbonara"
)

var (
	ErrPolicyNotFound = errors.New("archive policy not found")
	ErrMetricNotFound = errors.New("metric not found")
	ErrAlreadyExists  = errors.New("record already exists")
)

// PolicyDefinition is one aggregated series of an archive policy,
// expressed in seconds the way the REST surface does.
type PolicyDefinition struct {
	Granularity float64 `json:"granularity"`
	Points      int     `json:"points"`
}

type ArchivePolicy struct {
	Name              string             `json:"name" db:"name"`
	AggregationMethod string             `json:"aggregation_method" db:"aggregation_method"`
	Definition        []PolicyDefinition `json:"definition" db:"-"`
}

type Metric struct {
	ID            string `json:"id" db:"id"`
	Name          string `json:"name" db:"name"`
	ArchivePolicy string `json:"archive_policy" db:"archive_policy"`
	CreatedAt     int64  `json:"created_at" db:"created_at"`
}

// ArchiveDefinitions converts the policy to engine definitions.
func (p *ArchivePolicy) ArchiveDefinitions() []carbonara.ArchiveDefinition {
	defs := make([]carbonara.ArchiveDefinition, len(p.Definition))
	for i, d := range p.Definition {
		defs[i] = carbonara.ArchiveDefinition{
			Granularity: time.Duration(math.Round(d.Granularity * float64(time.Second))),
			Points:      d.Points,
		}
	}
	return defs
}

// Validate checks a policy before it enters the index.
func (p *ArchivePolicy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("archive policy needs a name")
	}
	if len(p.Definition) == 0 {
		return fmt.Errorf("archive policy %q needs at least one definition", p.Name)
	}
	for _, d := range p.Definition {
		if d.Granularity <= 0 {
			return fmt.Errorf("archive policy %q: granularity must be positive", p.Name)
		}
		if d.Points < 0 {
			return fmt.Errorf("archive policy %q: points must not be negative", p.Name)
		}
	}
	return nil
}

var (
	metricRepoOnce     sync.Once
	metricRepoInstance *MetricRepository
)

type MetricRepository struct {
	DB *sqlx.DB
}

func GetMetricRepository() *MetricRepository {
	metricRepoOnce.Do(func() {
		db := GetConnection()
		metricRepoInstance = &MetricRepository{DB: db.DB}
	})
	return metricRepoInstance
}

func (r *MetricRepository) CreatePolicy(p *ArchivePolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.AggregationMethod == "" {
		p.AggregationMethod = "mean"
	}

	definition, err := json.Marshal(p.Definition)
	if err != nil {
		return err
	}

	_, err = r.DB.Exec(
		"INSERT INTO archive_policy (name, aggregation_method, definition) VALUES (?, ?, ?)",
		p.Name, p.AggregationMethod, string(definition))
	if err != nil {
		cclog.Warnf("Error while inserting archive policy '%s': %v", p.Name, err)
		return ErrAlreadyExists
	}
	return nil
}

func (r *MetricRepository) GetPolicy(name string) (*ArchivePolicy, error) {
	query, args, err := sq.Select("name", "aggregation_method", "definition").
		From("archive_policy").Where(sq.Eq{"name": name}).ToSql()
	if err != nil {
		return nil, err
	}

	p := &ArchivePolicy{}
	var definition string
	if err := r.DB.QueryRow(query, args...).Scan(&p.Name, &p.AggregationMethod, &definition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(definition), &p.Definition); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *MetricRepository) ListPolicies() ([]*ArchivePolicy, error) {
	rows, err := r.DB.Query("SELECT name, aggregation_method, definition FROM archive_policy ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	policies := make([]*ArchivePolicy, 0)
	for rows.Next() {
		p := &ArchivePolicy{}
		var definition string
		if err := rows.Scan(&p.Name, &p.AggregationMethod, &definition); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(definition), &p.Definition); err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (r *MetricRepository) DeletePolicy(name string) error {
	var n int
	if err := r.DB.QueryRow("SELECT COUNT(*) FROM metric WHERE archive_policy = ?", name).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("archive policy %q is still in use by %d metrics", name, n)
	}

	res, err := r.DB.Exec("DELETE FROM archive_policy WHERE name = ?", name)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrPolicyNotFound
	}
	return nil
}

func (r *MetricRepository) CreateMetric(name, policy string) (*Metric, error) {
	if _, err := r.GetPolicy(policy); err != nil {
		return nil, err
	}

	m := &Metric{
		ID:            uuid.New().String(),
		Name:          name,
		ArchivePolicy: policy,
		CreatedAt:     time.Now().Unix(),
	}
	_, err := r.DB.Exec(
		"INSERT INTO metric (id, name, archive_policy, created_at) VALUES (?, ?, ?, ?)",
		m.ID, m.Name, m.ArchivePolicy, m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MetricRepository) GetMetric(id string) (*Metric, error) {
	query, args, err := sq.Select("id", "name", "archive_policy", "created_at").
		From("metric").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}

	m := &Metric{}
	if err := r.DB.QueryRowx(query, args...).StructScan(m); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMetricNotFound
		}
		return nil, err
	}
	return m, nil
}

func (r *MetricRepository) ListMetrics(name string) ([]*Metric, error) {
	q := sq.Select("id", "name", "archive_policy", "created_at").From("metric").OrderBy("created_at")
	if name != "" {
		q = q.Where(sq.Eq{"name": name})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Queryx(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := make([]*Metric, 0)
	for rows.Next() {
		m := &Metric{}
		if err := rows.StructScan(m); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (r *MetricRepository) DeleteMetric(id string) error {
	res, err := r.DB.Exec("DELETE FROM metric WHERE id = ?", id)
	if err != nil {
		return err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrMetricNotFound
	}
	return nil
}
