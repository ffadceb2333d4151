package workflow

import (
	"context"
	"fmt"

	"github.com/developiq/northstar/internal/auth"
	"github.com/developiq/northstar/internal/clients/buildingconnected"
	"github.com/developiq/northstar/internal/config"
	"github.com/developiq/northstar/internal/domain"
	"github.com/developiq/northstar/internal/email"
	"github.com/developiq/northstar/internal/secrets"
)

// RunOptions narrow a run for targeted execution. The zero value is a normal
// production run over the default day window.
type RunOptions struct {
	// Days overrides the queried day-offset window.
	Days []int
	// ProjectID limits the run to a single project.
	ProjectID string
}

// Runner executes workflow runs. Token managers, API clients and step state
// are constructed fresh for every run from durable storage; only the
// configuration and the tracker's connection pool are shared across runs.
type Runner struct {
	cfg     *config.Config
	tracker domain.EmailTracker
}

func NewRunner(cfg *config.Config, tracker domain.EmailTracker) *Runner {
	return &Runner{cfg: cfg, tracker: tracker}
}

// Run executes one workflow run end to end. A failed run still returns a
// finalized state; the error return covers only construction problems that
// prevent the run from starting at all.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*State, error) {
	store := secrets.NewFileTokenStore(r.cfg.TokenFile)

	microsoft, err := newManager(ctx, r.cfg, domain.ProviderMicrosoft, store)
	if err != nil {
		return nil, err
	}
	autodesk, err := newManager(ctx, r.cfg, domain.ProviderAutodesk, store)
	if err != nil {
		return nil, err
	}

	sender, err := newSender(r.cfg, microsoft)
	if err != nil {
		return nil, err
	}

	steps := &Steps{
		Microsoft:         microsoft,
		Autodesk:          autodesk,
		Projects:          buildingconnected.NewClient(autodesk),
		Composer:          email.NewComposer(),
		Sender:            sender,
		Tracker:           r.tracker,
		RecipientOverride: r.cfg.DefaultRecipient,
	}

	engine, err := NewEngine(steps.Handlers())
	if err != nil {
		return nil, err
	}

	state := NewState(opts.Days, opts.ProjectID)
	return engine.Run(ctx, state), nil
}

func newManager(ctx context.Context, cfg *config.Config, provider domain.Provider, store domain.TokenStore) (*auth.Manager, error) {
	creds := cfg.Provider(provider)
	manager, err := auth.NewManager(ctx, auth.ManagerConfig{
		Provider:      provider,
		ClientID:      creds.ClientID,
		ClientSecret:  creds.ClientSecret,
		EncryptionKey: creds.EncryptionKey,
		TokenURL:      creds.TokenURL,
		Scope:         creds.Scope,
		Rotating:      provider == domain.ProviderAutodesk,
	}, store)
	if err != nil {
		return nil, fmt.Errorf("failed to construct token manager for %s: %w", provider, err)
	}
	return manager, nil
}

func newSender(cfg *config.Config, microsoft domain.TokenManager) (domain.EmailSender, error) {
	switch cfg.EmailProvider {
	case "resend":
		return email.NewResendSender(cfg.ResendAPIKey, cfg.EmailFrom)
	default:
		return email.NewGraphSender(microsoft)
	}
}
