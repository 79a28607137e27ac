// Package seed uploads demo datasets and registers them through the API so
// a fresh deployment has something to talk about.
package seed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/duckmesh/tabletalk/internal/storage"
)

type Service struct {
	cfg       Config
	log       *slog.Logger
	http      *http.Client
	objects   storage.ObjectStore
	generator *Generator
}

type dataset struct {
	displayName string
	objectName  string
	encode      func() ([]byte, error)
}

type registerRequest struct {
	ObjectPath  string `json:"object_path"`
	DisplayName string `json:"display_name"`
}

type Registered struct {
	TargetID    string `json:"target_id"`
	DisplayName string `json:"display_name"`
	RowCount    int64  `json:"row_count"`
}

type listResponse struct {
	Datasets []Registered `json:"datasets"`
}

func NewService(cfg Config, objects storage.ObjectStore, logger *slog.Logger, client *http.Client) (*Service, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("api base url is required")
	}
	if objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.HTTPTimeout}
	}
	return &Service{
		cfg:       cfg,
		log:       logger,
		http:      client,
		objects:   objects,
		generator: NewGenerator(cfg.Seed),
	}, nil
}

// Run uploads and registers every demo dataset the user does not have yet.
// It returns the datasets registered by this call.
func (s *Service) Run(ctx context.Context) ([]Registered, error) {
	existing, err := s.existingNames(ctx)
	if err != nil {
		return nil, err
	}

	registered := make([]Registered, 0, 2)
	for _, ds := range s.datasets() {
		if _, ok := existing[ds.displayName]; ok {
			s.log.Info("demo dataset already registered", slog.String("display_name", ds.displayName))
			continue
		}
		out, err := s.upload(ctx, ds)
		if err != nil {
			return registered, err
		}
		registered = append(registered, out)
	}
	return registered, nil
}

func (s *Service) datasets() []dataset {
	return []dataset{
		{
			displayName: "pipeline.csv",
			objectName:  "demo_pipeline",
			encode:      func() ([]byte, error) { return Encode(s.generator.Deals(s.cfg.DealRows)) },
		},
		{
			displayName: "people.csv",
			objectName:  "demo_people",
			encode:      func() ([]byte, error) { return Encode(s.generator.Employees(s.cfg.StaffRows)) },
		},
	}
}

func (s *Service) existingNames(ctx context.Context) (map[string]struct{}, error) {
	var listed listResponse
	status, body, err := s.doJSON(ctx, http.MethodGet, "/v1/datasets", nil, &listed)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("list datasets failed with status %d: %s", status, strings.TrimSpace(string(body)))
	}
	names := make(map[string]struct{}, len(listed.Datasets))
	for _, ds := range listed.Datasets {
		names[ds.DisplayName] = struct{}{}
	}
	return names, nil
}

func (s *Service) upload(ctx context.Context, ds dataset) (Registered, error) {
	data, err := ds.encode()
	if err != nil {
		return Registered{}, fmt.Errorf("encode %s: %w", ds.displayName, err)
	}
	key, err := storage.BuildDatasetPath(s.ownerPrefix(), ds.objectName)
	if err != nil {
		return Registered{}, err
	}
	if _, err := s.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: storage.ParquetContentType,
		Metadata:    map[string]string{"display-name": ds.displayName},
	}); err != nil {
		return Registered{}, fmt.Errorf("upload %s: %w", key, err)
	}

	var out Registered
	status, body, err := s.doJSON(ctx, http.MethodPost, "/v1/datasets", registerRequest{ObjectPath: key, DisplayName: ds.displayName}, &out)
	if err != nil {
		return Registered{}, fmt.Errorf("register %s: %w", ds.displayName, err)
	}
	if status != http.StatusCreated {
		return Registered{}, fmt.Errorf("register %s failed with status %d: %s", ds.displayName, status, strings.TrimSpace(string(body)))
	}

	s.log.Info("registered demo dataset",
		slog.String("target_id", out.TargetID),
		slog.String("display_name", ds.displayName),
		slog.String("object_path", key),
		slog.Int64("row_count", out.RowCount),
	)
	return out, nil
}

func (s *Service) ownerPrefix() string {
	if s.cfg.UserID != "" {
		return s.cfg.UserID
	}
	return "demo"
}

func (s *Service) doJSON(ctx context.Context, method, path string, requestBody any, responseBody any) (int, []byte, error) {
	var payload io.Reader
	if requestBody != nil {
		raw, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIBaseURL+path, payload)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.UserID != "" {
		req.Header.Set("X-User-ID", s.cfg.UserID)
	}
	if requestBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.cfg.APIKey != "" {
		req.Header.Set("X-API-Key", s.cfg.APIKey)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}

	if responseBody != nil && resp.StatusCode < 300 && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, responseBody); err != nil {
			return resp.StatusCode, body, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, body, nil
}
