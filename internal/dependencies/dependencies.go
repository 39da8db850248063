// Package dependencies checks the optional external services a
// pipeline configuration can enable — an embedding provider and a
// vector index — and reports their reachability for `mdmcore doctor`.
package dependencies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mdmcore/resolve/pkg/config"
)

// Status is the reachability of one optional dependency.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusDisabled    Status = "disabled"
	StatusMissing     Status = "missing"
)

// DependencyInfo describes one checked dependency.
type DependencyInfo struct {
	Name    string
	Status  Status
	Version string
	URL     string
	Message string
}

// CheckResult bundles the status of every optional dependency.
type CheckResult struct {
	Embedding   DependencyInfo
	VectorIndex DependencyInfo
}

// Check probes every optional dependency cfg has enabled.
func Check(cfg *config.Config) *CheckResult {
	return &CheckResult{
		Embedding:   checkEmbedding(cfg),
		VectorIndex: checkVectorIndex(cfg),
	}
}

func checkEmbedding(cfg *config.Config) DependencyInfo {
	info := DependencyInfo{Name: "embedding provider", URL: cfg.Embedding.BaseURL}
	if !cfg.Embedding.Enabled {
		info.Status = StatusDisabled
		info.Message = "embedding is disabled in configuration"
		return info
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Embedding.BaseURL+"/api/tags", nil)
	if err != nil {
		info.Status = StatusUnavailable
		info.Message = "failed to build request"
		return info
	}

	resp, err := client.Do(req)
	if err != nil {
		info.Status = StatusMissing
		info.Message = fmt.Sprintf("%s is not reachable at %s", cfg.Embedding.Provider, cfg.Embedding.BaseURL)
		return info
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		info.Status = StatusUnavailable
		info.Message = fmt.Sprintf("%s returned status %d", cfg.Embedding.Provider, resp.StatusCode)
		return info
	}

	var modelsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if json.NewDecoder(resp.Body).Decode(&modelsResp) == nil {
		found := false
		for _, m := range modelsResp.Models {
			if m.Name == cfg.Embedding.Model || strings.Split(m.Name, ":")[0] == cfg.Embedding.Model {
				found = true
				break
			}
		}
		if !found {
			info.Status = StatusAvailable
			info.Message = fmt.Sprintf("running, but model %q is not pulled", cfg.Embedding.Model)
			return info
		}
	}

	info.Status = StatusAvailable
	info.Message = "running with the configured model available"
	return info
}

func checkVectorIndex(cfg *config.Config) DependencyInfo {
	info := DependencyInfo{Name: "vector index", URL: cfg.VectorIndex.URL}
	if !cfg.VectorIndex.Enabled || cfg.VectorIndex.Provider == "memory" {
		info.Status = StatusDisabled
		info.Message = "vector index runs in-process (provider=memory)"
		return info
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.VectorIndex.URL+"/collections", nil)
	if err != nil {
		info.Status = StatusUnavailable
		info.Message = "failed to build request"
		return info
	}

	resp, err := client.Do(req)
	if err != nil {
		info.Status = StatusMissing
		info.Message = fmt.Sprintf("%s is not reachable at %s", cfg.VectorIndex.Provider, cfg.VectorIndex.URL)
		return info
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		info.Status = StatusUnavailable
		info.Message = fmt.Sprintf("%s returned status %d", cfg.VectorIndex.Provider, resp.StatusCode)
		return info
	}

	info.Status = StatusAvailable
	info.Message = "reachable"
	return info
}

// HasAnyMissing reports whether an enabled dependency could not be reached at all.
func (r *CheckResult) HasAnyMissing() bool {
	return r.Embedding.Status == StatusMissing || r.VectorIndex.Status == StatusMissing
}

// FormatDoctorReport renders a human-readable status report for both
// dependencies, for `mdmcore doctor`.
func FormatDoctorReport(result *CheckResult) string {
	var buf bytes.Buffer
	writeSection := func(name string, info DependencyInfo) {
		buf.WriteString(name + "... ")
		switch info.Status {
		case StatusAvailable:
			buf.WriteString("OK\n")
			buf.WriteString(fmt.Sprintf("  URL: %s\n", info.URL))
		case StatusDisabled:
			buf.WriteString("DISABLED\n")
			buf.WriteString(fmt.Sprintf("  %s\n", info.Message))
		case StatusMissing, StatusUnavailable:
			buf.WriteString("NOT AVAILABLE\n")
			buf.WriteString(fmt.Sprintf("  %s\n", info.Message))
		}
		buf.WriteString("\n")
	}
	writeSection("Embedding provider", result.Embedding)
	writeSection("Vector index", result.VectorIndex)
	return buf.String()
}
