package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	oauth "github.com/giantswarm/crm-oauth"
	"github.com/giantswarm/crm-oauth/instrumentation"
	"github.com/giantswarm/crm-oauth/security"
	"github.com/giantswarm/crm-oauth/storage"
	"github.com/giantswarm/crm-oauth/storage/backend"
	"github.com/giantswarm/crm-oauth/storage/file"
)

// app holds the components one command invocation works with
type app struct {
	env     *envConfig
	logger  *slog.Logger
	inst    *instrumentation.Instrumentation
	store   storage.Store
	service *oauth.Service
}

// newApp loads the configuration and wires the service. The caller must Close it.
func newApp(opts *rootOptions) (*app, error) {
	cfg, err := loadEnv(opts.envFile)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(opts.stderr, opts.logLevel, opts.logFormat)
	if err != nil {
		return nil, err
	}

	inst, err := instrumentation.New(instrumentation.Config{
		ServiceName:    instrumentation.DefaultServiceName,
		ServiceVersion: version,
		Enabled:        cfg.OTelEnabled,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		return nil, err
	}

	a := &app{env: cfg, logger: logger, inst: inst}
	if err := a.init(); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) init() error {
	key, err := a.env.encryptionKey()
	if err != nil {
		return fmt.Errorf("invalid encryption key: %w", err)
	}
	enc, err := security.NewEncryptor(key)
	if err != nil {
		return err
	}
	if !enc.IsEnabled() {
		a.logger.Debug("Token encryption at rest is disabled; set CRM_ENCRYPTION_KEY or CRM_ENCRYPTION_SECRET to enable it")
	}

	backendCfg, err := a.env.backendConfig()
	if err != nil {
		return err
	}
	a.store, err = backend.New(backendCfg, a.env.storeOptions(enc, a.logger, a.inst)...)
	if err != nil {
		return fmt.Errorf("failed to open %s storage: %w", backendCfg.Type, err)
	}

	var svcOpts []oauth.Option
	if a.env.ExportContacts {
		svcOpts = append(svcOpts, oauth.WithExporter(file.NewContactsExporter(a.env.ExportDir)))
	}

	a.service, err = oauth.New(a.env.oauthConfig(key, a.logger, a.inst), a.store, svcOpts...)
	return err
}

// Close releases the store and flushes telemetry
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	errs = append(errs, a.inst.Shutdown(ctx))
	return errors.Join(errs...)
}
