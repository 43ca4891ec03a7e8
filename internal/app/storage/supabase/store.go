// Package supabase implements the storage interfaces against a hosted
// PostgREST endpoint. Every request carries the tenant identifier as an
// equality filter; the adapter never issues an unscoped query.
package supabase

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsehr/analytics_layer/internal/app/domain/contribution"
	"github.com/pulsehr/analytics_layer/internal/app/domain/employee"
	"github.com/pulsehr/analytics_layer/internal/app/domain/engagement"
	"github.com/pulsehr/analytics_layer/internal/app/storage"
	"github.com/pulsehr/analytics_layer/internal/httputil"
)

const (
	maxResponseBytes  = 8 << 20  // 8 MiB
	maxErrorBodyBytes = 32 << 10 // 32 KiB
)

// Config holds the PostgREST endpoint configuration.
type Config struct {
	URL        string
	ServiceKey string
}

// Store is a storage adapter backed by the Supabase REST API.
type Store struct {
	url        string
	serviceKey string
	httpClient *http.Client
}

var _ storage.EmployeeStore = (*Store)(nil)
var _ storage.ContributionStore = (*Store)(nil)
var _ storage.EngagementStore = (*Store)(nil)

// New creates a Store. URL and service key are required.
func New(cfg Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.ServiceKey == "" {
		return nil, fmt.Errorf("supabase service key is required")
	}
	if u, err := neturl.Parse(cfg.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("supabase URL must be a valid URL")
	}

	transport := http.DefaultTransport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		cloned := base.Clone()
		if cloned.TLSClientConfig == nil {
			cloned.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		} else if cloned.TLSClientConfig.MinVersion < tls.VersionTLS12 {
			cloned.TLSClientConfig = cloned.TLSClientConfig.Clone()
			cloned.TLSClientConfig.MinVersion = tls.VersionTLS12
		}
		transport = cloned
	}

	return &Store{
		url:        strings.TrimRight(cfg.URL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}, nil
}

// request performs one REST call. When wantCount is true the exact table
// count (for the applied filters) is parsed from the Content-Range header.
func (s *Store) request(ctx context.Context, method, table string, body interface{}, query string, wantCount bool) ([]byte, int, error) {
	url := fmt.Sprintf("%s/rest/v1/%s", s.url, table)
	if query != "" {
		url += "?" + query
	}

	var reqBody *bytes.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	prefer := "return=representation"
	if wantCount {
		prefer += ",count=exact"
	}
	req.Header.Set("Prefer", prefer)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, truncated, readErr := httputil.ReadAllWithLimit(resp.Body, maxErrorBodyBytes)
		if readErr != nil {
			return nil, 0, fmt.Errorf("read error response: %w", readErr)
		}
		msg := strings.TrimSpace(string(respBody))
		if truncated {
			msg += "...(truncated)"
		}
		return nil, 0, fmt.Errorf("supabase API error %d: %s", resp.StatusCode, msg)
	}

	respBody, err := httputil.ReadAllStrict(resp.Body, maxResponseBytes)
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}

	total := 0
	if wantCount {
		total, err = parseContentRangeTotal(resp.Header.Get("Content-Range"))
		if err != nil {
			return nil, 0, err
		}
	}
	return respBody, total, nil
}

// parseContentRangeTotal extracts the total from a "0-99/250" style header.
func parseContentRangeTotal(header string) (int, error) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 || idx == len(header)-1 {
		return 0, fmt.Errorf("missing count in Content-Range %q", header)
	}
	raw := header[idx+1:]
	if raw == "*" {
		return 0, fmt.Errorf("supabase did not return an exact count")
	}
	return strconv.Atoi(raw)
}

// --- wire records -----------------------------------------------------------

type employeeRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Name       string    `json:"name"`
	Team       string    `json:"team"`
	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (r employeeRecord) toDomain() employee.Employee {
	return employee.Employee{
		ID:         r.ID,
		TenantID:   r.TenantID,
		Name:       r.Name,
		Team:       r.Team,
		Department: r.Department,
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

// contributionRecord carries text-typed score columns as stored upstream.
type contributionRecord struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	EmployeeID     string    `json:"employee_id"`
	ProblemSolving string    `json:"problem_solving"`
	Collaboration  string    `json:"collaboration"`
	Initiative     string    `json:"initiative"`
	Overall        string    `json:"overall_score"`
	CalculatedAt   time.Time `json:"calculated_at"`
}

func (r contributionRecord) toDomain() (contribution.Record, error) {
	rec := contribution.Record{
		ID:           r.ID,
		TenantID:     r.TenantID,
		EmployeeID:   r.EmployeeID,
		CalculatedAt: r.CalculatedAt.UTC(),
	}
	var err error
	if rec.ProblemSolving, err = parseScore("problem_solving", r.ProblemSolving); err != nil {
		return contribution.Record{}, err
	}
	if rec.Collaboration, err = parseScore("collaboration", r.Collaboration); err != nil {
		return contribution.Record{}, err
	}
	if rec.Initiative, err = parseScore("initiative", r.Initiative); err != nil {
		return contribution.Record{}, err
	}
	if rec.Overall, err = parseScore("overall_score", r.Overall); err != nil {
		return contribution.Record{}, err
	}
	return rec, nil
}

// parseScore decodes a text-typed score. Empty means zero; anything
// non-numeric fails the read rather than silently becoming zero.
func parseScore(column, raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("decode %s value %q: %w", column, raw, err)
	}
	return v, nil
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tenantFilter(tenantID string) string {
	return "tenant_id=eq." + neturl.QueryEscape(tenantID)
}

// --- EmployeeStore ----------------------------------------------------------

func (s *Store) CreateEmployee(ctx context.Context, emp employee.Employee) (employee.Employee, error) {
	if emp.TenantID == "" {
		return employee.Employee{}, fmt.Errorf("tenant_id required")
	}
	if emp.ID == "" {
		emp.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	emp.CreatedAt = now
	emp.UpdatedAt = now

	payload := employeeRecord{
		ID:         emp.ID,
		TenantID:   emp.TenantID,
		Name:       emp.Name,
		Team:       emp.Team,
		Department: emp.Department,
		CreatedAt:  emp.CreatedAt,
		UpdatedAt:  emp.UpdatedAt,
	}
	body, _, err := s.request(ctx, http.MethodPost, "hr_employees", payload, "", false)
	if err != nil {
		return employee.Employee{}, err
	}

	var created []employeeRecord
	if err := json.Unmarshal(body, &created); err != nil {
		return employee.Employee{}, fmt.Errorf("decode insert response: %w", err)
	}
	if len(created) == 0 {
		return emp, nil
	}
	return created[0].toDomain(), nil
}

func (s *Store) GetEmployee(ctx context.Context, tenantID, id string) (employee.Employee, error) {
	query := tenantFilter(tenantID) + "&id=eq." + neturl.QueryEscape(id) + "&select=*&limit=1"
	body, _, err := s.request(ctx, http.MethodGet, "hr_employees", nil, query, false)
	if err != nil {
		return employee.Employee{}, err
	}

	var records []employeeRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return employee.Employee{}, fmt.Errorf("decode employees: %w", err)
	}
	if len(records) == 0 {
		return employee.Employee{}, storage.ErrNotFound
	}
	return records[0].toDomain(), nil
}

func (s *Store) ListEmployees(ctx context.Context, tenantID string, page storage.Page) ([]employee.Employee, int, error) {
	page = page.Normalize()
	query := tenantFilter(tenantID) +
		"&select=*&order=created_at.asc,id.asc" +
		"&offset=" + strconv.Itoa(page.Offset) +
		"&limit=" + strconv.Itoa(page.Limit)
	body, total, err := s.request(ctx, http.MethodGet, "hr_employees", nil, query, true)
	if err != nil {
		return nil, 0, err
	}

	var records []employeeRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, 0, fmt.Errorf("decode employees: %w", err)
	}
	out := make([]employee.Employee, 0, len(records))
	for _, r := range records {
		out = append(out, r.toDomain())
	}
	return out, total, nil
}

// --- ContributionStore ------------------------------------------------------

func (s *Store) CreateContribution(ctx context.Context, rec contribution.Record) (contribution.Record, error) {
	if rec.TenantID == "" || rec.EmployeeID == "" {
		return contribution.Record{}, fmt.Errorf("tenant_id and employee_id required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CalculatedAt.IsZero() {
		rec.CalculatedAt = time.Now().UTC()
	}

	payload := contributionRecord{
		ID:             rec.ID,
		TenantID:       rec.TenantID,
		EmployeeID:     rec.EmployeeID,
		ProblemSolving: formatScore(rec.ProblemSolving),
		Collaboration:  formatScore(rec.Collaboration),
		Initiative:     formatScore(rec.Initiative),
		Overall:        formatScore(rec.Overall),
		CalculatedAt:   rec.CalculatedAt,
	}
	if _, _, err := s.request(ctx, http.MethodPost, "hr_contributions", payload, "", false); err != nil {
		return contribution.Record{}, err
	}
	return rec, nil
}

func (s *Store) LatestContribution(ctx context.Context, tenantID, employeeID string) (contribution.Record, bool, error) {
	query := tenantFilter(tenantID) +
		"&employee_id=eq." + neturl.QueryEscape(employeeID) +
		"&select=*&order=calculated_at.desc&limit=1"
	body, _, err := s.request(ctx, http.MethodGet, "hr_contributions", nil, query, false)
	if err != nil {
		return contribution.Record{}, false, err
	}

	var records []contributionRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return contribution.Record{}, false, fmt.Errorf("decode contributions: %w", err)
	}
	if len(records) == 0 {
		return contribution.Record{}, false, nil
	}
	rec, err := records[0].toDomain()
	if err != nil {
		return contribution.Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) ListEmployeeContributions(ctx context.Context, tenantID, employeeID string) ([]contribution.Record, error) {
	query := tenantFilter(tenantID) +
		"&employee_id=eq." + neturl.QueryEscape(employeeID) +
		"&select=*&order=calculated_at.asc,id.asc"
	body, _, err := s.request(ctx, http.MethodGet, "hr_contributions", nil, query, false)
	if err != nil {
		return nil, err
	}

	var records []contributionRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode contributions: %w", err)
	}
	out := make([]contribution.Record, 0, len(records))
	for _, r := range records {
		rec, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) ListContributions(ctx context.Context, tenantID string, page storage.Page) ([]contribution.Record, int, error) {
	page = page.Normalize()
	query := tenantFilter(tenantID) +
		"&select=*&order=calculated_at.asc,id.asc" +
		"&offset=" + strconv.Itoa(page.Offset) +
		"&limit=" + strconv.Itoa(page.Limit)
	body, total, err := s.request(ctx, http.MethodGet, "hr_contributions", nil, query, true)
	if err != nil {
		return nil, 0, err
	}

	var records []contributionRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, 0, fmt.Errorf("decode contributions: %w", err)
	}
	out := make([]contribution.Record, 0, len(records))
	for _, r := range records {
		rec, err := r.toDomain()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, nil
}

// --- EngagementStore --------------------------------------------------------

type interactionRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	EmployeeID string    `json:"employee_id"`
	Kind       string    `json:"kind"`
	OccurredAt time.Time `json:"occurred_at"`
}

type kudosRecord struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	FromEmployeeID string    `json:"from_employee_id"`
	ToEmployeeID   string    `json:"to_employee_id"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Store) CreateInteraction(ctx context.Context, in engagement.Interaction) (engagement.Interaction, error) {
	if in.TenantID == "" {
		return engagement.Interaction{}, fmt.Errorf("tenant_id required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}

	payload := interactionRecord{
		ID:         in.ID,
		TenantID:   in.TenantID,
		EmployeeID: in.EmployeeID,
		Kind:       in.Kind,
		OccurredAt: in.OccurredAt,
	}
	if _, _, err := s.request(ctx, http.MethodPost, "hr_interactions", payload, "", false); err != nil {
		return engagement.Interaction{}, err
	}
	return in, nil
}

func (s *Store) CreateKudos(ctx context.Context, k engagement.Kudos) (engagement.Kudos, error) {
	if k.TenantID == "" {
		return engagement.Kudos{}, fmt.Errorf("tenant_id required")
	}
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	if k.CreatedAt.IsZero() {
		k.CreatedAt = time.Now().UTC()
	}

	payload := kudosRecord{
		ID:             k.ID,
		TenantID:       k.TenantID,
		FromEmployeeID: k.FromEmployeeID,
		ToEmployeeID:   k.ToEmployeeID,
		Message:        k.Message,
		CreatedAt:      k.CreatedAt,
	}
	if _, _, err := s.request(ctx, http.MethodPost, "hr_kudos", payload, "", false); err != nil {
		return engagement.Kudos{}, err
	}
	return k, nil
}

func (s *Store) CountInteractions(ctx context.Context, tenantID string) (int, error) {
	return s.count(ctx, "hr_interactions", tenantID)
}

func (s *Store) CountKudos(ctx context.Context, tenantID string) (int, error) {
	return s.count(ctx, "hr_kudos", tenantID)
}

func (s *Store) count(ctx context.Context, table, tenantID string) (int, error) {
	query := tenantFilter(tenantID) + "&select=id&limit=1"
	_, total, err := s.request(ctx, http.MethodGet, table, nil, query, true)
	if err != nil {
		return 0, err
	}
	return total, nil
}
