// Package manager implements the worker manager runtime (C6): the main loop
// that keeps a WireGuard tunnel up, announces the site's vantage points,
// fetches pending Tests, and drives one measurement task container per Test.
package manager

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"

	"github.com/kiwix/mirrors-qa/internal/config"
	apperrors "github.com/kiwix/mirrors-qa/internal/errors"
	"github.com/kiwix/mirrors-qa/internal/manager/client"
	"github.com/kiwix/mirrors-qa/internal/manager/runtime"
	"github.com/kiwix/mirrors-qa/internal/manager/tunnel"
	"github.com/kiwix/mirrors-qa/internal/measure"
	"github.com/kiwix/mirrors-qa/internal/models"
	"github.com/kiwix/mirrors-qa/internal/token"
)

// tunnelStatus is the manager's view of its WireGuard tunnel.
type tunnelStatus string

const (
	tunnelDown tunnelStatus = "DOWN"
	tunnelUp   tunnelStatus = "UP"

	activeConfigName = "active.conf"
)

// authCredentials caches the bearer token minted by the handshake.
type authCredentials struct {
	accessToken string
	expiresAt   time.Time
}

// Manager drives the main loop for a single measurement site.
type Manager struct {
	workerID   string
	cfg        *config.ManagerConfig
	privateKey *rsa.PrivateKey
	api        *client.Client
	log        zerolog.Logger

	status    tunnelStatus
	creds     authCredentials
	liveTasks map[string]testcontainers.Container

	tunnelContainer testcontainers.Container
	configs         []tunnel.Config
}

// New constructs a Manager for workerID. It loads the RSA private key from
// cfg.PrivateKeyFile and logs its fingerprint for operator correlation, but
// does not yet scan configs or start the tunnel; call Startup for that.
func New(workerID string, cfg *config.ManagerConfig, log zerolog.Logger) (*Manager, error) {
	priv, err := loadPrivateKey(cfg.PrivateKeyFile)
	if err != nil {
		return nil, err
	}
	fp, err := token.Fingerprint(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	log.Info().Str("worker_id", workerID).Str("pubkey_fingerprint", fp).Msg("loaded worker identity")

	return &Manager{
		workerID:   workerID,
		cfg:        cfg,
		privateKey: priv,
		api:        client.New(cfg.BackendAPIURI, cfg.HTTPTimeout, 3, time.Second),
		log:        log,
		status:     tunnelDown,
		liveTasks:  map[string]testcontainers.Container{},
	}, nil
}

// Startup implements spec.md §4.6's startup sequence: scan for VPN configs,
// refusing to start if none are found, then bring the tunnel UP.
func (m *Manager) Startup(ctx context.Context) error {
	configs, err := tunnel.Scan(m.cfg.WorkingDir)
	if err != nil {
		return err
	}
	if len(configs) == 0 {
		return apperrors.NewValidation("no VPN configuration files found in working directory")
	}
	m.configs = configs

	for _, candidate := range configs {
		if err := m.bringTunnelUp(ctx, candidate); err != nil {
			m.log.Warn().Err(err).Str("config", candidate.Path).Msg("tunnel candidate failed healthcheck")
			continue
		}
		return nil
	}
	return apperrors.NewUpstreamFetch("tunnel", fmt.Errorf("no config produced a healthy tunnel"))
}

// bringTunnelUp copies candidate to the active config path, (re)starts the
// tunnel container, and probes the healthcheck.
func (m *Manager) bringTunnelUp(ctx context.Context, candidate tunnel.Config) error {
	if err := copyFile(candidate.Path, filepath.Join(m.cfg.WorkingDir, activeConfigName)); err != nil {
		return err
	}

	if m.tunnelContainer != nil {
		_ = runtime.Terminate(ctx, m.tunnelContainer)
		m.tunnelContainer = nil
		m.status = tunnelDown
	}

	c, err := runtime.StartTunnel(ctx, runtime.TunnelSpec{
		Image:         m.cfg.WireguardImage,
		ConfigHostDir: m.cfg.WorkingDir,
		Name:          "mirrorsqa-tunnel-" + m.workerID,
	})
	if err != nil {
		return err
	}

	if _, err := runtime.HealthcheckExec(ctx, c); err != nil {
		_ = runtime.Terminate(ctx, c)
		return err
	}

	m.tunnelContainer = c
	m.status = tunnelUp
	return nil
}

// heartbeat implements main-loop step 1: re-probe the current tunnel, and on
// failure cycle through every available config until one succeeds.
func (m *Manager) heartbeat(ctx context.Context) error {
	if m.tunnelContainer != nil {
		if _, err := runtime.HealthcheckExec(ctx, m.tunnelContainer); err == nil {
			m.status = tunnelUp
			return nil
		}
	}
	m.status = tunnelDown
	for _, candidate := range m.configs {
		if err := m.bringTunnelUp(ctx, candidate); err == nil {
			return nil
		}
	}
	return apperrors.NewUpstreamFetch("tunnel", fmt.Errorf("no config produced a healthy tunnel"))
}

// ensureToken mints a fresh bearer token via the handshake if the cached one
// is absent or expired.
func (m *Manager) ensureToken(ctx context.Context) error {
	if m.creds.accessToken != "" && time.Now().Before(m.creds.expiresAt) {
		return nil
	}
	now := time.Now().UTC()
	message := fmt.Sprintf("%s:%s", m.workerID, now.Format(time.RFC3339))
	sig, err := token.Sign(m.privateKey, message)
	if err != nil {
		return err
	}
	resp, err := m.api.Authenticate(ctx, message, sig)
	if err != nil {
		return err
	}
	m.creds = authCredentials{
		accessToken: resp.AccessToken,
		expiresAt:   now.Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	return nil
}

// RunTick executes one iteration of the main loop (spec.md §4.6): heartbeat,
// sync countries, fetch work, run every pending Test.
func (m *Manager) RunTick(ctx context.Context) error {
	if err := m.heartbeat(ctx); err != nil {
		return err
	}
	if err := m.ensureToken(ctx); err != nil {
		return err
	}

	countries := tunnel.CountryCodes(m.configs)
	if err := m.api.PutWorkerCountries(ctx, m.creds.accessToken, m.workerID, countries); err != nil {
		return err
	}

	tests, err := m.api.ListPendingTests(ctx, m.creds.accessToken, m.workerID)
	if err != nil {
		return err
	}

	for _, t := range tests {
		m.runTest(ctx, t)
	}
	return nil
}

// runTest executes main-loop step 4 for a single Test. Every failure is
// logged and the Test is skipped (left PENDING), per spec.md §4.6's failure
// policy.
func (m *Manager) runTest(ctx context.Context, t models.Test) {
	log := m.log.With().Str("test_id", t.ID).Str("country_code", t.CountryCode).Logger()

	candidates := tunnel.ForCountry(m.configs, t.CountryCode)
	if len(candidates) == 0 {
		log.Warn().Msg("no tunnel config for country, skipping test")
		return
	}

	var egress runtime.EgressDescriptor
	found := false
	for _, candidate := range candidates {
		if err := m.bringTunnelUp(ctx, candidate); err != nil {
			continue
		}
		desc, err := runtime.HealthcheckExec(ctx, m.tunnelContainer)
		if err != nil {
			continue
		}
		egress = desc
		found = true
		break
	}
	if !found {
		log.Warn().Msg("no healthy tunnel for country, skipping test")
		return
	}

	outputName := t.ID + ".json"
	outputHostPath := filepath.Join(m.cfg.WorkingDir, outputName)
	testFileURL := t.MirrorURL

	taskContainer, err := runtime.StartTask(ctx, runtime.TaskSpec{
		Image:         m.cfg.TaskWorkerImage,
		Name:          "mirrorsqa-task-" + t.ID,
		NetworkMode:   "container:" + m.tunnelContainer.GetContainerID(),
		WorkingDir:    m.cfg.WorkingDir,
		ContainerArgs: []string{"run", testFileURL, "--output=/work/" + outputName},
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to start measurement task container")
		return
	}
	m.liveTasks[t.ID] = taskContainer
	defer func() {
		_ = runtime.Terminate(ctx, taskContainer)
		delete(m.liveTasks, t.ID)
		_ = os.Remove(outputHostPath)
	}()

	if _, err := runtime.Wait(ctx, taskContainer); err != nil {
		log.Error().Err(err).Msg("measurement task container did not exit cleanly")
		return
	}

	record, err := measure.ReadFile(outputHostPath)
	if err != nil {
		log.Error().Err(err).Msg("failed to read measurement task output")
		return
	}

	payload := record.PatchPayload()
	payload["ip_address"] = egress.IP
	payload["city"] = egress.City
	payload["isp"] = egress.Organization

	if err := m.api.PatchTest(ctx, m.creds.accessToken, t.ID, payload); err != nil {
		log.Error().Err(err).Msg("failed to report measurement task result, test stays pending")
	}
}

// Shutdown tears down the tunnel and any live task containers, best-effort,
// per spec.md §4.6's signal-handling policy.
func (m *Manager) Shutdown(ctx context.Context) {
	for id, c := range m.liveTasks {
		if err := runtime.Terminate(ctx, c); err != nil {
			m.log.Warn().Err(err).Str("test_id", id).Msg("failed to terminate task container during shutdown")
		}
	}
	if m.tunnelContainer != nil {
		if err := runtime.Terminate(ctx, m.tunnelContainer); err != nil {
			m.log.Warn().Err(err).Msg("failed to terminate tunnel container during shutdown")
		}
	}
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("private key file is not valid PEM")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return rsaKey, nil
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read tunnel config: %w", err)
	}
	if err := os.WriteFile(dst, data, 0o600); err != nil {
		return fmt.Errorf("write active tunnel config: %w", err)
	}
	return nil
}
