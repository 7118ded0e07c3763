package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/giantswarm/crm-oauth/providers"
)

// DefaultExportDir is where ContactsExporter writes unless told otherwise
const DefaultExportDir = "contact_data"

// ContactsExporter writes the last fetched contact list of each provider to
// {dir}/{provider}_contacts.json, replacing the previous export.
type ContactsExporter struct {
	mu  sync.Mutex
	dir string
}

// NewContactsExporter creates an exporter writing into dir (DefaultExportDir when empty)
func NewContactsExporter(dir string) *ContactsExporter {
	if dir == "" {
		dir = DefaultExportDir
	}
	return &ContactsExporter{dir: dir}
}

// Path returns the file an export for provider is written to
func (e *ContactsExporter) Path(provider string) string {
	return filepath.Join(e.dir, provider+"_contacts.json")
}

// ExportContacts writes contacts and returns the file path
func (e *ContactsExporter) ExportContacts(ctx context.Context, provider string, contacts []providers.Contact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if provider == "" {
		return "", fmt.Errorf("provider is required")
	}
	if contacts == nil {
		contacts = []providers.Contact{}
	}

	data, err := json.MarshalIndent(contacts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode contacts: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	path := e.Path(provider)
	if err := writeAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}
