package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/bashkirian/kpi-engine/internal/storage"
	"github.com/bashkirian/kpi-engine/pkg/models"
)

// Dataset выгрузка событий, истории назначений и меню
type Dataset struct {
	Events    []models.Event              `json:"events" yaml:"events"`
	Intervals []models.AssignmentInterval `json:"intervals" yaml:"intervals"`
	Menu      []models.MenuItem           `json:"menu" yaml:"menu"`
}

// LoadDataset читает JSON или YAML по расширению файла
func LoadDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	var ds Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&ds)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &ds)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q (supported: .json, .yaml, .yml)", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return &ds, nil
}

// Store загружает выгрузку в хранилище в памяти
func (d *Dataset) Store(ctx context.Context) (*storage.InMemoryStorage, error) {
	s := storage.NewInMemoryStorage()
	for i, e := range d.Events {
		if _, err := s.AddEvent(ctx, e); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	if err := s.ImportIntervals(d.Intervals); err != nil {
		return nil, err
	}
	for _, it := range d.Menu {
		if err := s.UpsertMenuItem(ctx, it); err != nil {
			return nil, err
		}
	}
	return s, nil
}
