package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"stealthcompany.com/glycorisk/internal/metrics"
)

// maxPages bounds how many "next" links one search follows.
const maxPages = 50

// Client reads patients, observations and encounters from a FHIR R4 server
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new FHIR client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// searchURL builds <base>/<resourceType>?<params>
func (fc *Client) searchURL(resourceType string, params url.Values) string {
	return fmt.Sprintf("%s/%s?%s", fc.baseURL, resourceType, params.Encode())
}

// fetchBundle fetches one page of search results
func (fc *Client) fetchBundle(ctx context.Context, resourceType, pageURL string) (*Bundle, error) {
	startTime := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", resourceType, err)
	}
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := fc.httpClient.Do(req)
	if err != nil {
		metrics.RecordHTTPMetrics(resourceType, startTime, 0)
		return nil, fmt.Errorf("failed to fetch %s: %w", resourceType, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close response body")
		}
	}()

	metrics.RecordHTTPMetrics(resourceType, startTime, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("FHIR server returned status %d for %s", resp.StatusCode, resourceType)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body for %s: %w", resourceType, err)
	}

	var bundle Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse FHIR bundle for %s: %w", resourceType, err)
	}
	if bundle.ResourceType != "Bundle" {
		return nil, fmt.Errorf("expected Bundle for %s, got %q", resourceType, bundle.ResourceType)
	}

	return &bundle, nil
}

// search follows next links until limit resources of resourceType were
// collected (limit <= 0 means no limit) or the server has no more pages.
func search[T any](ctx context.Context, fc *Client, resourceType string, params url.Values, limit int) ([]T, error) {
	var out []T
	pageURL := fc.searchURL(resourceType, params)

	for page := 0; pageURL != "" && page < maxPages; page++ {
		bundle, err := fc.fetchBundle(ctx, resourceType, pageURL)
		if err != nil {
			return nil, err
		}

		for _, entry := range bundle.Entry {
			var head struct {
				ResourceType string `json:"resourceType"`
			}
			if err := json.Unmarshal(entry.Resource, &head); err != nil || head.ResourceType != resourceType {
				// Included or OperationOutcome entries
				continue
			}
			var res T
			if err := json.Unmarshal(entry.Resource, &res); err != nil {
				return nil, fmt.Errorf("failed to decode %s entry: %w", resourceType, err)
			}
			out = append(out, res)
			if limit > 0 && len(out) >= limit {
				metrics.RecordResourcesFetched(resourceType, len(out))
				return out, nil
			}
		}

		pageURL = bundle.nextURL()
	}

	metrics.RecordResourcesFetched(resourceType, len(out))
	return out, nil
}

// ListPatients fetches up to count Patient resources
func (fc *Client) ListPatients(ctx context.Context, count int) ([]Patient, error) {
	params := url.Values{}
	params.Set("_count", strconv.Itoa(min(count, 100)))
	return search[Patient](ctx, fc, "Patient", params, count)
}

// PatientObservations fetches the lab and vital observations of one patient
func (fc *Client) PatientObservations(ctx context.Context, patientID string) ([]Observation, error) {
	params := url.Values{}
	params.Set("patient", patientID)
	params.Set("code", strings.Join(ObservationCodes, ","))
	params.Set("_count", "200")
	return search[Observation](ctx, fc, "Observation", params, 0)
}

// PatientEncounters fetches the encounters of one patient
func (fc *Client) PatientEncounters(ctx context.Context, patientID string) ([]Encounter, error) {
	params := url.Values{}
	params.Set("patient", patientID)
	params.Set("_count", "200")
	return search[Encounter](ctx, fc, "Encounter", params, 0)
}
