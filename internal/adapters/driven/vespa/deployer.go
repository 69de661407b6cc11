package vespa

import (
	"archive/zip"
	"bytes"
	"context"
	"embed"
	"fmt"
	"io"
	"net/http"
	"text/template"
	"time"

	"github.com/custodia-labs/sercha-chat/internal/core/domain"
)

//go:embed schemas/services.xml schemas/entry.sd.tmpl
var schemaFS embed.FS

// Deployer pushes the entry application package to a Vespa config server.
type Deployer struct {
	endpoint   string
	httpClient *http.Client
}

// NewDeployer creates a deployer for the config server at endpoint
// (e.g. http://localhost:19071).
func NewDeployer(endpoint string) (*Deployer, error) {
	base, err := validateEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	return &Deployer{
		endpoint:   base,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Deploy renders the schema for the embedding dimension and activates it.
func (d *Deployer) Deploy(ctx context.Context, dimensions int) error {
	pkg, err := buildAppPackage(dimensions)
	if err != nil {
		return err
	}

	url := d.endpoint + "/application/v2/tenant/default/prepareandactivate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(pkg))
	if err != nil {
		return fmt.Errorf("failed to create deploy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/zip")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deployment request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("deployment failed with status %s: %s", resp.Status, string(body))
	}
	return nil
}

// buildAppPackage zips services.xml and the rendered entry schema.
func buildAppPackage(dimensions int) ([]byte, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", domain.ErrInvalidInput)
	}

	services, err := schemaFS.ReadFile("schemas/services.xml")
	if err != nil {
		return nil, err
	}
	tmpl, err := template.ParseFS(schemaFS, "schemas/entry.sd.tmpl")
	if err != nil {
		return nil, err
	}
	var schema bytes.Buffer
	if err := tmpl.Execute(&schema, struct{ Dimensions int }{dimensions}); err != nil {
		return nil, fmt.Errorf("failed to render schema: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string][]byte{
		"services.xml":     services,
		"schemas/entry.sd": schema.Bytes(),
	} {
		w, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(content); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
